package speech

import "errors"

var (
	// ErrEmptyText is returned for requests with nothing to say.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrInvalidRate is returned for rates outside (0, 10].
	ErrInvalidRate = errors.New("rate must be greater than 0 and at most 10")

	// ErrInvalidPitch is returned for pitches outside [0, 2].
	ErrInvalidPitch = errors.New("pitch must be between 0 and 2")

	// ErrInvalidLanguageTag is returned for malformed BCP 47 tags.
	ErrInvalidLanguageTag = errors.New("invalid language tag")

	// ErrUnknownEngine is returned when no engine is registered under a name.
	ErrUnknownEngine = errors.New("unknown speech engine")

	// ErrEngineUnavailable is returned when an engine's tooling is missing.
	ErrEngineUnavailable = errors.New("speech engine not available")
)
