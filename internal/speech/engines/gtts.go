package engines

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/fabaro/always/internal/audio"
	"github.com/fabaro/always/internal/offline"
	"github.com/fabaro/always/internal/speech"
)

const (
	gttsBinary   = "gtts-cli"
	ffmpegBinary = "ffmpeg"

	// Google rejects longer inputs.
	gttsMaxTextSize = 5000
	maxPCMSize      = 20 * 1024 * 1024
)

// PCMPlayer plays signed 16-bit PCM and blocks until done.
type PCMPlayer interface {
	Play(ctx context.Context, pcm []byte) error
}

// GTTSConfig configures the gTTS engine.
type GTTSConfig struct {
	// Language used when no voice was selected, defaults to "en".
	Language string

	// RequestsPerMinute to Google, defaults to 50.
	RequestsPerMinute int

	// Player defaults to the shared audio player.
	Player PCMPlayer

	// Cache, when set, keeps synthesized PCM between runs.
	Cache offline.Store
}

// GTTS synthesizes speech with gtts-cli, converts the MP3 to PCM with ffmpeg
// and plays it through a PCMPlayer.
type GTTS struct {
	language string
	limiter  *rate.Limiter
	cache    offline.Store
	format   audio.Config

	mu     sync.Mutex
	player PCMPlayer
	voices []speech.VoiceDescriptor
}

// NewGTTS returns a gTTS engine.
func NewGTTS(cfg GTTSConfig) *GTTS {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	return &GTTS{
		language: cfg.Language,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cache:    cfg.Cache,
		format:   audio.DefaultConfig(),
		player:   cfg.Player,
	}
}

func (g *GTTS) Name() string { return "gtts" }

// Validate checks that gtts-cli and ffmpeg are installed.
func (g *GTTS) Validate() error {
	if _, err := lookPath(gttsBinary, "pip install gtts"); err != nil {
		return err
	}
	_, err := lookPath(ffmpegBinary, "install ffmpeg")
	return err
}

// Voices lists the languages gtts-cli supports, one voice per language.
func (g *GTTS) Voices(ctx context.Context) ([]speech.VoiceDescriptor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.voices != nil {
		return g.voices, nil
	}
	out, err := run(ctx, nil, gttsBinary, "--all")
	if err != nil {
		return nil, err
	}
	g.voices = parseGTTSLanguages(out)
	return g.voices, nil
}

// Speak synthesizes u and plays it. Long text is spoken in sentence
// chunks. Pitch is not supported by gTTS and is ignored.
func (g *GTTS) Speak(ctx context.Context, u speech.Utterance) error {
	lang := g.language
	if u.Voice != nil {
		lang = u.Voice.LanguageTag
	}
	player, err := g.audioPlayer()
	if err != nil {
		return err
	}

	chunks := speech.Chunk(u.Text, gttsMaxTextSize)
	for i, chunk := range chunks {
		pcm, err := g.synthesize(ctx, chunk, lang, u.Rate)
		if err != nil {
			return fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		if err := player.Play(ctx, pcm); err != nil {
			return err
		}
	}
	return nil
}

func (g *GTTS) synthesize(ctx context.Context, text, lang string, speed float64) ([]byte, error) {
	key := pcmCacheKey(text, lang, speed)
	if g.cache != nil {
		if e, ok := g.cache.Get(key); ok {
			log.Debug("speech cache hit", "lang", lang, "bytes", len(e.Body))
			return e.Body, nil
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	mp3, err := run(ctx, nil, gttsBinary, gttsArgs(text, lang)...)
	if err != nil {
		return nil, fmt.Errorf("MP3 generation failed: %w", err)
	}
	if len(mp3) == 0 {
		return nil, fmt.Errorf("gtts-cli produced no audio")
	}

	pcm, err := run(ctx, mp3, ffmpegBinary, ffmpegArgs(g.format, speed)...)
	if err != nil {
		return nil, fmt.Errorf("MP3 to PCM conversion failed: %w", err)
	}
	if len(pcm) == 0 || len(pcm) > maxPCMSize {
		return nil, fmt.Errorf("ffmpeg produced %d bytes of PCM", len(pcm))
	}

	if g.cache != nil {
		err := g.cache.Put(key, offline.Entry{
			Key:      key,
			Status:   http.StatusOK,
			Header:   http.Header{"Content-Type": {"audio/L16"}},
			Body:     pcm,
			StoredAt: g.cache.Name(),
			Created:  time.Now(),
		})
		if err != nil {
			log.Warn("speech cache write failed", "error", err)
		}
	}
	return pcm, nil
}

func (g *GTTS) audioPlayer() (PCMPlayer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.player == nil {
		p, err := audio.Shared(g.format)
		if err != nil {
			return nil, err
		}
		g.player = p
	}
	return g.player, nil
}

// gttsArgs ends options before text so replies starting with "-" are not
// parsed as flags.
func gttsArgs(text, lang string) []string {
	return []string{"-l", lang, "-o", "-", "--", text}
}

func ffmpegArgs(format audio.Config, speed float64) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprint(format.SampleRate),
		"-ac", fmt.Sprint(format.Channels),
	}
	if filter := atempoFilter(speed); filter != "" {
		args = append(args, "-filter:a", filter)
	}
	return append(args, "pipe:1")
}

// atempoFilter chains atempo stages, each limited to [0.5, 2.0].
func atempoFilter(speed float64) string {
	if speed <= 0 || speed == 1 {
		return ""
	}
	var stages []string
	for speed > 2 {
		stages = append(stages, "atempo=2.00")
		speed /= 2
	}
	for speed < 0.5 {
		stages = append(stages, "atempo=0.50")
		speed /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.2f", speed))
	return strings.Join(stages, ",")
}

// parseGTTSLanguages reads "  code: Name" lines printed by gtts-cli --all.
func parseGTTSLanguages(out []byte) []speech.VoiceDescriptor {
	voices := []speech.VoiceDescriptor{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		code, name, ok := strings.Cut(sc.Text(), ":")
		code, name = strings.TrimSpace(code), strings.TrimSpace(name)
		if !ok || code == "" || name == "" || strings.ContainsRune(code, ' ') {
			continue
		}
		voices = append(voices, speech.VoiceDescriptor{Name: name, LanguageTag: code})
	}
	return voices
}

func pcmCacheKey(text, lang string, speed float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.2f|%s", lang, speed, text)))
	return "gtts:" + hex.EncodeToString(sum[:])
}
