package engines

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/fabaro/always/internal/speech"
)

const (
	espeakDefaultBinary = "espeak-ng"
	espeakBaseWPM       = 175
	espeakMinWPM        = 80
	espeakMaxWPM        = 450
)

// EspeakConfig configures the espeak-ng engine.
type EspeakConfig struct {
	// Binary defaults to espeak-ng.
	Binary string

	// WordsPerMinute at rate 1.0, defaults to 175.
	WordsPerMinute int
}

// Espeak speaks through the espeak-ng command line tool.
type Espeak struct {
	binary string
	wpm    int

	mu     sync.Mutex
	voices []speech.VoiceDescriptor
}

// NewEspeak returns an espeak-ng engine.
func NewEspeak(cfg EspeakConfig) *Espeak {
	if cfg.Binary == "" {
		cfg.Binary = espeakDefaultBinary
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = espeakBaseWPM
	}
	return &Espeak{binary: cfg.Binary, wpm: cfg.WordsPerMinute}
}

func (e *Espeak) Name() string { return "espeak" }

// Validate checks that the binary is installed.
func (e *Espeak) Validate() error {
	_, err := lookPath(e.binary, "install espeak-ng")
	return err
}

// Voices lists the installed espeak-ng voices. The list is read once.
func (e *Espeak) Voices(ctx context.Context) ([]speech.VoiceDescriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.voices != nil {
		return e.voices, nil
	}
	out, err := run(ctx, nil, e.binary, "--voices")
	if err != nil {
		return nil, err
	}
	e.voices = parseEspeakVoices(out)
	return e.voices, nil
}

// Speak runs espeak-ng until the utterance has been played.
func (e *Espeak) Speak(ctx context.Context, u speech.Utterance) error {
	_, err := run(ctx, nil, e.binary, espeakArgs(u, e.wpm)...)
	return err
}

func espeakArgs(u speech.Utterance, wpm int) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := u.Pitch
	if pitch <= 0 {
		pitch = 1
	}
	speed := clamp(int(math.Round(float64(wpm)*rate)), espeakMinWPM, espeakMaxWPM)
	args := []string{
		"-s", strconv.Itoa(speed),
		"-p", strconv.Itoa(clamp(int(math.Round(pitch*50)), 0, 99)),
	}
	if u.Voice != nil {
		args = append(args, "-v", u.Voice.LanguageTag)
	}
	return append(args, "--", u.Text)
}

// parseEspeakVoices reads the table printed by espeak-ng --voices:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  id              --/M      Indonesian         poz/id
func parseEspeakVoices(out []byte) []speech.VoiceDescriptor {
	voices := []speech.VoiceDescriptor{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		voices = append(voices, speech.VoiceDescriptor{
			Name:        strings.ReplaceAll(fields[3], "_", " "),
			LanguageTag: fields[1],
		})
	}
	return voices
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
