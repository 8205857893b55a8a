package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeEngine struct {
	voices   []VoiceDescriptor
	voiceErr error
	block    bool

	mu      sync.Mutex
	spoken  []Utterance
	started chan struct{}
}

func newFakeEngine(block bool) *fakeEngine {
	return &fakeEngine{voices: testVoices, block: block, started: make(chan struct{}, 8)}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Voices(context.Context) ([]VoiceDescriptor, error) {
	return f.voices, f.voiceErr
}

func (f *fakeEngine) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()
	f.started <- struct{}{}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeEngine) utterances() []Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Utterance(nil), f.spoken...)
}

func TestSpeakerPrepare(t *testing.T) {
	s := NewSpeaker(newFakeEngine(false))

	u, err := s.Prepare(context.Background(), SpeechRequest{Text: "**Halo** dunia"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if u.Text != "Halo dunia" {
		t.Errorf("Text = %q, want markdown stripped", u.Text)
	}
	if u.LanguageTag != "id-id" {
		t.Errorf("LanguageTag = %q, want id-id", u.LanguageTag)
	}
	if u.Voice == nil || u.Voice.Name != "Damayanti" {
		t.Errorf("Voice = %+v, want Damayanti", u.Voice)
	}
	if u.Rate != 1 || u.Pitch != 1 {
		t.Errorf("Rate/Pitch = %v/%v, want 1/1", u.Rate, u.Pitch)
	}
}

func TestSpeakerPrepareVoiceErrorUsesDefault(t *testing.T) {
	f := newFakeEngine(false)
	f.voiceErr = errors.New("no voices yet")
	u, err := NewSpeaker(f).Prepare(context.Background(), SpeechRequest{Text: "halo"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if u.Voice != nil {
		t.Errorf("Voice = %+v, want nil", u.Voice)
	}
}

func TestSpeakerPrepareEmptyVoiceList(t *testing.T) {
	f := newFakeEngine(false)
	f.voices = nil
	u, err := NewSpeaker(f).Prepare(context.Background(), SpeechRequest{Text: "halo", VoiceName: "Daniel"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if u.Voice != nil {
		t.Errorf("Voice = %+v, want nil", u.Voice)
	}
}

func TestSpeakerRejectsInvalid(t *testing.T) {
	f := newFakeEngine(false)
	s := NewSpeaker(f)
	if err := s.Speak(context.Background(), SpeechRequest{Text: "```\ncode only\n```"}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Speak() error = %v, want ErrEmptyText", err)
	}
	if err := s.Speak(context.Background(), SpeechRequest{Text: "x", Rate: 20}); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("Speak() error = %v, want ErrInvalidRate", err)
	}
	if n := len(f.utterances()); n != 0 {
		t.Errorf("engine spoke %d times, want 0", n)
	}
}

func TestSpeakerCancelsPrevious(t *testing.T) {
	f := newFakeEngine(true)
	s := NewSpeaker(f)
	ctx := context.Background()

	if err := s.Speak(ctx, SpeechRequest{Text: "satu"}); err != nil {
		t.Fatal(err)
	}
	<-f.started
	if err := s.Speak(ctx, SpeechRequest{Text: "dua"}); err != nil {
		t.Fatal(err)
	}
	<-f.started

	s.Cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Cancel()")
	}

	got := f.utterances()
	if len(got) != 2 || got[0].Text != "satu" || got[1].Text != "dua" {
		t.Errorf("utterances = %+v", got)
	}
}

func TestSpeakerWaitWithoutSpeech(t *testing.T) {
	s := NewSpeaker(newFakeEngine(false))
	s.Wait()
	s.Cancel()
}
