package engines

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fabaro/always/internal/speech"
)

// DefaultMaxFailures is how many consecutive primary failures switch a
// Fallback over for good.
const DefaultMaxFailures = 3

// Fallback speaks with a primary engine and retries failed utterances on a
// secondary one. After maxFailures consecutive failures it stops trying the
// primary.
type Fallback struct {
	primary     speech.Engine
	secondary   speech.Engine
	maxFailures int

	mu       sync.Mutex
	failures int
	switched bool
}

// NewFallback returns a Fallback. maxFailures below 1 uses
// DefaultMaxFailures.
func NewFallback(primary, secondary speech.Engine, maxFailures int) *Fallback {
	if maxFailures < 1 {
		maxFailures = DefaultMaxFailures
	}
	return &Fallback{primary: primary, secondary: secondary, maxFailures: maxFailures}
}

func (f *Fallback) Name() string { return f.active().Name() }

// Voices lists the voices of whichever engine is currently in use.
func (f *Fallback) Voices(ctx context.Context) ([]speech.VoiceDescriptor, error) {
	return f.active().Voices(ctx)
}

func (f *Fallback) Speak(ctx context.Context, u speech.Utterance) error {
	if f.usingSecondary() {
		return f.speakSecondary(ctx, u)
	}

	err := f.primary.Speak(ctx, u)
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		f.mu.Lock()
		if err == nil {
			f.failures = 0
		}
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.failures++
	if f.failures >= f.maxFailures && !f.switched {
		f.switched = true
		log.Warn("Switching speech engine", "from", f.primary.Name(), "to", f.secondary.Name(), "failures", f.failures)
	}
	f.mu.Unlock()

	log.Debug("Primary engine failed, retrying", "engine", f.primary.Name(), "error", err)
	if serr := f.speakSecondary(ctx, u); serr != nil {
		return errors.Join(err, serr)
	}
	return nil
}

// speakSecondary reselects the voice among the secondary engine's voices,
// since u was resolved against the primary.
func (f *Fallback) speakSecondary(ctx context.Context, u speech.Utterance) error {
	u.Voice = nil
	if voices, err := f.secondary.Voices(ctx); err == nil {
		if v, ok := speech.SelectVoice(voices, u.LanguageTag, ""); ok {
			u.Voice = &v
		}
	}
	return f.secondary.Speak(ctx, u)
}

func (f *Fallback) usingSecondary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.switched
}

func (f *Fallback) active() speech.Engine {
	if f.usingSecondary() {
		return f.secondary
	}
	return f.primary
}
