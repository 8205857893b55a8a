package speech

import "context"

// Engine is a speech backend.
type Engine interface {
	// Name identifies the engine in logs and config.
	Name() string

	// Voices lists the voices the engine can speak with right now. The
	// list may be empty.
	Voices(ctx context.Context) ([]VoiceDescriptor, error)

	// Speak plays u and blocks until playback ends or ctx is done.
	Speak(ctx context.Context, u Utterance) error
}
