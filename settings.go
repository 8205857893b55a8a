package main

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/fabaro/always/internal/chat"
	"github.com/fabaro/always/internal/offline"
	"github.com/fabaro/always/internal/render"
	"github.com/fabaro/always/internal/speech"
	"github.com/fabaro/always/internal/speech/engines"
	"github.com/fabaro/always/utils"
)

// openRouterEnv holds secrets that only come from the environment.
type openRouterEnv struct {
	APIKey  string `env:"OPENROUTER_API_KEY"`
	Model   string `env:"OPENROUTER_MODEL"`
	SiteURL string `env:"OPENROUTER_SITE_URL"`
	BaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
}

type speechSettings struct {
	Enabled     bool
	Engine      string
	Fallback    string
	MaxFailures int
	Lang        string
	Voice       string
	Rate        float64
	Pitch       float64
	Espeak      engines.EspeakConfig
	GTTS        engines.GTTSConfig
}

type cacheSettings struct {
	Dir         string
	MaxSize     int64
	Compression int
	Version     string
	Ephemeral   bool
}

type serverSettings struct {
	Listen            string
	PublicDir         string
	RequestsPerMinute int
	Burst             int
}

type settings struct {
	Endpoint string
	Style    string
	Width    uint
	Debug    bool

	OpenRouter openRouterEnv
	Chat       chat.Defaults
	Speech     speechSettings
	Cache      cacheSettings
	Server     serverSettings
}

// loadSettings reads viper and the environment into settings and validates
// them.
func loadSettings() (settings, error) {
	or, err := env.ParseAs[openRouterEnv]()
	if err != nil {
		return settings{}, fmt.Errorf("error parsing environment: %w", err)
	}

	s := settings{
		Endpoint:   viper.GetString("endpoint"),
		Style:      viper.GetString("style"),
		Width:      viper.GetUint("width"),
		Debug:      viper.GetBool("debug"),
		OpenRouter: or,
		Chat:       chatDefaults(or),
		Speech: speechSettings{
			Enabled:     viper.GetBool("speech.enabled"),
			Engine:      viper.GetString("speech.engine"),
			Fallback:    viper.GetString("speech.fallback"),
			MaxFailures: viper.GetInt("speech.max_failures"),
			Lang:        viper.GetString("speech.lang"),
			Voice:       viper.GetString("speech.voice"),
			Rate:        viper.GetFloat64("speech.rate"),
			Pitch:       viper.GetFloat64("speech.pitch"),
			Espeak: engines.EspeakConfig{
				Binary:         viper.GetString("speech.espeak.binary"),
				WordsPerMinute: viper.GetInt("speech.espeak.wpm"),
			},
			GTTS: engines.GTTSConfig{
				Language:          viper.GetString("speech.gtts.language"),
				RequestsPerMinute: viper.GetInt("speech.gtts.requests_per_minute"),
			},
		},
		Cache: cacheSettings{
			Dir:         utils.ExpandPath(viper.GetString("cache.dir")),
			MaxSize:     viper.GetInt64("cache.max_size") * 1024 * 1024,
			Compression: viper.GetInt("cache.compression"),
			Version:     viper.GetString("cache.version"),
			Ephemeral:   viper.GetBool("ephemeral"),
		},
		Server: serverSettings{
			Listen:            viper.GetString("listen"),
			PublicDir:         utils.ExpandPath(viper.GetString("server.public_dir")),
			RequestsPerMinute: viper.GetInt("server.requests_per_minute"),
			Burst:             viper.GetInt("server.burst"),
		},
	}

	if s.Cache.Dir == "" {
		dir, err := gap.NewScope(gap.User, "always").CacheDir()
		if err != nil {
			return settings{}, fmt.Errorf("could not find cache directory: %w", err)
		}
		s.Cache.Dir = dir
	}
	return s, s.validate()
}

// chatDefaults builds the chat fallbacks from config, with the
// OPENROUTER_MODEL environment variable below an explicit config value.
func chatDefaults(or openRouterEnv) chat.Defaults {
	model := viper.GetString("chat.model")
	if model == "" {
		model = or.Model
	}
	return chat.Defaults{
		Model:       model,
		Temperature: viper.GetFloat64("chat.temperature"),
		TargetLang:  viper.GetString("chat.target_lang"),
	}
}

func (s settings) validate() error {
	var errs []error
	if err := render.ValidateStyle(s.Style); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(engines.Names(), s.Speech.Engine) {
		errs = append(errs, fmt.Errorf("%w %q", speech.ErrUnknownEngine, s.Speech.Engine))
	}
	if s.Speech.Fallback != "" && !slices.Contains(engines.Names(), s.Speech.Fallback) {
		errs = append(errs, fmt.Errorf("speech.fallback: %w %q", speech.ErrUnknownEngine, s.Speech.Fallback))
	}
	if err := speech.ValidateLanguageTag(s.Speech.Lang); err != nil {
		errs = append(errs, fmt.Errorf("speech.lang: %w", err))
	}
	if s.Chat.TargetLang != "" {
		if err := speech.ValidateLanguageTag(s.Chat.TargetLang); err != nil {
			errs = append(errs, fmt.Errorf("chat.target_lang: %w", err))
		}
	}
	if s.Speech.Rate <= 0 || s.Speech.Rate > speech.MaxRate {
		errs = append(errs, fmt.Errorf("speech.rate: %w, got %.2f", speech.ErrInvalidRate, s.Speech.Rate))
	}
	if s.Speech.Pitch < speech.MinPitch || s.Speech.Pitch > speech.MaxPitch {
		errs = append(errs, fmt.Errorf("speech.pitch: %w, got %.2f", speech.ErrInvalidPitch, s.Speech.Pitch))
	}
	if s.Chat.Temperature < 0 || s.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature must be between 0 and 2, got %.2f", s.Chat.Temperature))
	}
	if s.Cache.Compression < 0 || s.Cache.Compression > 22 {
		errs = append(errs, fmt.Errorf("cache.compression must be between 0 and 22, got %d", s.Cache.Compression))
	}
	if s.Cache.MaxSize < 0 {
		errs = append(errs, errors.New("cache.max_size must not be negative"))
	}
	if err := s.manifest().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache.version: %w", err))
	}
	if _, err := s.origin(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s settings) manifest() offline.Manifest {
	m := offline.DefaultManifest()
	if s.Cache.Version != "" {
		m.Version = s.Cache.Version
	}
	return m
}

// origin is the scheme and host of the chat endpoint; static assets are
// fetched from there.
func (s settings) origin() (*url.URL, error) {
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("endpoint %q must be an absolute URL", s.Endpoint)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// openStorage returns the offline asset storage.
func (s settings) openStorage() (offline.Storage, error) {
	if s.Cache.Ephemeral {
		return offline.NewMemoryStorage(s.Cache.MaxSize), nil
	}
	return offline.NewDiskStorage(offline.DiskConfig{
		Dir:              filepath.Join(s.Cache.Dir, "offline"),
		Capacity:         s.Cache.MaxSize,
		CompressionLevel: s.Cache.Compression,
	})
}

// openSpeechCache returns the store used for synthesized audio. It lives
// apart from the asset storage so activating a version never purges it.
func (s settings) openSpeechCache() (offline.Storage, offline.Store, error) {
	var storage offline.Storage
	if s.Cache.Ephemeral {
		storage = offline.NewMemoryStorage(s.Cache.MaxSize)
	} else {
		ds, err := offline.NewDiskStorage(offline.DiskConfig{
			Dir:              filepath.Join(s.Cache.Dir, "speech"),
			Capacity:         s.Cache.MaxSize,
			CompressionLevel: s.Cache.Compression,
		})
		if err != nil {
			return nil, nil, err
		}
		storage = ds
	}
	store, err := storage.Open("pcm")
	if err != nil {
		_ = storage.Close()
		return nil, nil, err
	}
	return storage, store, nil
}

// newEngine builds the configured speech engine. The returned close func
// releases its audio cache.
func (s settings) newEngine() (speech.Engine, func() error, error) {
	closer := func() error { return nil }
	cfg := engines.Config{
		Engine:      s.Speech.Engine,
		Fallback:    s.Speech.Fallback,
		MaxFailures: s.Speech.MaxFailures,
		Espeak:      s.Speech.Espeak,
		GTTS:        s.Speech.GTTS,
	}
	if s.Speech.Engine == "gtts" || s.Speech.Fallback == "gtts" {
		storage, store, err := s.openSpeechCache()
		if err != nil {
			log.Warn("speech cache unavailable", "error", err)
		} else {
			cfg.GTTS.Cache = store
			closer = storage.Close
		}
	}
	e, err := engines.New(cfg)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return e, closer, nil
}

// speechRequest builds a request for text from the speech settings.
func (s settings) speechRequest(text string) speech.SpeechRequest {
	return speech.SpeechRequest{
		Text:        text,
		LanguageTag: s.Speech.Lang,
		VoiceName:   s.Speech.Voice,
		Rate:        s.Speech.Rate,
		Pitch:       s.Speech.Pitch,
	}
}
