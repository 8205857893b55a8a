package engines

import (
	"context"
	"sync"
	"time"

	"github.com/fabaro/always/internal/speech"
)

// DefaultMockVoices is the voice list a Mock reports unless given another.
var DefaultMockVoices = []speech.VoiceDescriptor{
	{Name: "Mock Indonesia", LanguageTag: "id-ID"},
	{Name: "Mock US", LanguageTag: "en-US"},
	{Name: "Mock UK", LanguageTag: "en-GB"},
}

// Mock records utterances instead of playing them.
type Mock struct {
	voices []speech.VoiceDescriptor

	mu     sync.Mutex
	delay  time.Duration
	err    error
	spoken []speech.Utterance
}

// NewMock returns a Mock reporting voices, or DefaultMockVoices when none
// are given.
func NewMock(voices ...speech.VoiceDescriptor) *Mock {
	if len(voices) == 0 {
		voices = DefaultMockVoices
	}
	return &Mock{voices: voices}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Voices(context.Context) ([]speech.VoiceDescriptor, error) {
	return m.voices, nil
}

// Speak records u, then waits for the configured delay.
func (m *Mock) Speak(ctx context.Context, u speech.Utterance) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	delay, err := m.delay, m.err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SetDelay makes each Speak take d.
func (m *Mock) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// FailWith makes each Speak return err.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Spoken returns the utterances recorded so far.
func (m *Mock) Spoken() []speech.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]speech.Utterance(nil), m.spoken...)
}
