package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Speaker plays utterances on an Engine one at a time. Starting a new
// utterance cancels the one still playing.
type Speaker struct {
	engine Engine

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpeaker returns a Speaker for engine.
func NewSpeaker(engine Engine) *Speaker {
	return &Speaker{engine: engine}
}

// Engine returns the underlying engine.
func (s *Speaker) Engine() Engine { return s.engine }

// Prepare applies defaults, validates req and resolves it to an Utterance.
// Voice enumeration failures are logged and leave the voice unset.
func (s *Speaker) Prepare(ctx context.Context, req SpeechRequest) (Utterance, error) {
	req = withDefaults(req)
	req.Text = PlainText(req.Text)
	if err := ValidateRequest(req); err != nil {
		return Utterance{}, err
	}

	u := Utterance{
		Text:        req.Text,
		LanguageTag: req.LanguageTag,
		Rate:        req.Rate,
		Pitch:       req.Pitch,
	}

	voices, err := s.engine.Voices(ctx)
	if err != nil {
		log.Warn("voice enumeration failed, using engine default", "engine", s.engine.Name(), "error", err)
		return u, nil
	}
	if v, ok := SelectVoice(voices, req.LanguageTag, req.VoiceName); ok {
		u.Voice = &v
		if req.VoiceName != "" && !strings.EqualFold(v.Name, req.VoiceName) {
			log.Warn("voice not found", "voice", req.VoiceName, "using", v.Name,
				"suggestions", SuggestVoices(voices, req.VoiceName, 3))
		}
	}
	return u, nil
}

// Speak cancels whatever is playing and starts req in the background. It
// returns once the request is resolved; use Wait to block until playback
// ends. Playback errors are logged.
func (s *Speaker) Speak(ctx context.Context, req SpeechRequest) error {
	u, err := s.Prepare(ctx, req)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		log.Debug("speaking", "engine", s.engine.Name(), "lang", u.LanguageTag, "voice", voiceName(u.Voice), "chars", len(u.Text))
		if err := s.engine.Speak(playCtx, u); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("speech playback failed", "engine", s.engine.Name(), "error", err)
		}
	}()
	return nil
}

// Cancel stops the current utterance and waits for it to finish.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Wait blocks until the current utterance, if any, has finished.
func (s *Speaker) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Speaker) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

func voiceName(v *VoiceDescriptor) string {
	if v == nil {
		return "default"
	}
	return v.Name
}
