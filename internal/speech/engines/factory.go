package engines

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/fabaro/always/internal/speech"
)

// Config selects and configures an engine.
type Config struct {
	Engine string

	// Fallback names an engine used when Engine is unavailable or keeps
	// failing. Empty disables it.
	Fallback    string
	MaxFailures int

	Espeak EspeakConfig
	GTTS   GTTSConfig
}

// Names lists the engines New accepts.
func Names() []string { return []string{"espeak", "gtts", "mock"} }

// New builds and validates the engine named by cfg.Engine, wrapped in a
// Fallback when cfg.Fallback names a different engine.
func New(cfg Config) (speech.Engine, error) {
	primary, err := newEngine(cfg.Engine, cfg)
	if cfg.Fallback == "" || canonical(cfg.Fallback) == canonical(cfg.Engine) {
		return primary, err
	}

	secondary, serr := newEngine(cfg.Fallback, cfg)
	switch {
	case err != nil && serr != nil:
		return nil, err
	case err != nil:
		log.Warn("Speech engine unavailable, using fallback", "engine", cfg.Engine, "fallback", cfg.Fallback, "error", err)
		return secondary, nil
	case serr != nil:
		log.Warn("Fallback speech engine unavailable", "fallback", cfg.Fallback, "error", serr)
		return primary, nil
	}
	return NewFallback(primary, secondary, cfg.MaxFailures), nil
}

func newEngine(name string, cfg Config) (speech.Engine, error) {
	switch canonical(name) {
	case "espeak":
		e := NewEspeak(cfg.Espeak)
		if err := e.Validate(); err != nil {
			return nil, err
		}
		return e, nil
	case "gtts":
		g := NewGTTS(cfg.GTTS)
		if err := g.Validate(); err != nil {
			return nil, err
		}
		return g, nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("%w %q (choose one of %s)", speech.ErrUnknownEngine, name, strings.Join(Names(), ", "))
	}
}

func canonical(name string) string {
	name = strings.ToLower(name)
	if name == "" || name == "espeak-ng" {
		return "espeak"
	}
	return name
}
