package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ErrEmptyAudio is returned when there is nothing to play.
var ErrEmptyAudio = errors.New("audio data is empty")

// Config describes the PCM format fed to the Player. Samples are always
// signed 16-bit little endian.
type Config struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
}

// DefaultConfig is mono 44.1 kHz, the format the gtts engine produces.
func DefaultConfig() Config {
	return Config{SampleRate: 44100, Channels: 1}
}

// Validate checks the config against what oto plays reliably.
func (c Config) Validate() error {
	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}
	return nil
}

// Duration returns how long n bytes of PCM in this format play for.
func (c Config) Duration(n int) time.Duration {
	frame := c.Channels * 2
	if frame == 0 || c.SampleRate == 0 {
		return 0
	}
	return time.Duration(n/frame) * time.Second / time.Duration(c.SampleRate)
}

// Player plays PCM buffers. It is safe for concurrent use; overlapping Play
// calls are serialized.
type Player struct {
	ctx    *oto.Context
	config Config
	mu     sync.Mutex
}

// oto allows a single context per process.
var (
	sharedOnce   sync.Once
	sharedPlayer *Player
	sharedErr    error
)

// Shared returns the process-wide Player, creating the oto context on first
// use. Later calls ignore cfg.
func Shared(cfg Config) (*Player, error) {
	sharedOnce.Do(func() {
		sharedPlayer, sharedErr = newPlayer(cfg)
	})
	return sharedPlayer, sharedErr
}

func newPlayer(cfg Config) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready
	return &Player{ctx: ctx, config: cfg}, nil
}

// Config returns the PCM format the player expects.
func (p *Player) Config() Config { return p.config }

// Play plays pcm and blocks until it has drained or ctx is done.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The reader keeps pcm reachable for the whole playback.
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
			if !player.IsPlaying() {
				return player.Err()
			}
		}
	}
}
