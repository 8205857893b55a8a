// Package history persists the chat transcript between sessions.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/fabaro/always/internal/chat"
)

// Key names the transcript file.
const Key = "fabaro-always-chat-v1"

// Greeting opens every new conversation.
const Greeting = "Halo, aku FABARO ALWAYS. Ceritakan apa yang kamu rasakan — aku siap mendengarkan. 🎧"

// Seed returns a fresh transcript holding only the greeting.
func Seed() []chat.Message {
	return []chat.Message{{Role: chat.RoleAssistant, Content: Greeting}}
}

// DefaultPath returns the transcript location in the user data dir.
func DefaultPath() (string, error) {
	return gap.NewScope(gap.User, "always").DataPath(Key + ".json")
}

// Store is a JSON transcript file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the transcript file location.
func (s *Store) Path() string { return s.path }

// Load returns the saved transcript. A missing, empty or unreadable file
// yields the seed transcript.
func (s *Store) Load() ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]chat.Message, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Seed(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		log.Warn("ignoring unreadable history", "path", s.path, "error", err)
		return Seed(), nil
	}
	if len(msgs) == 0 {
		return Seed(), nil
	}
	return msgs, nil
}

// Save replaces the transcript.
func (s *Store) Save(msgs []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(msgs)
}

func (s *Store) saveLocked(msgs []chat.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*")
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write history: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Append adds msgs to the saved transcript and returns the result.
func (s *Store) Append(msgs ...chat.Message) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	current = append(current, msgs...)
	return current, s.saveLocked(current)
}

// Reset replaces the transcript with the seed and returns it.
func (s *Store) Reset() ([]chat.Message, error) {
	seed := Seed()
	return seed, s.Save(seed)
}

// Export writes msgs as plain text, one speaker-prefixed paragraph each.
// System messages are skipped.
func Export(w io.Writer, msgs []chat.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleUser:
			lines = append(lines, "Kamu: "+m.Content)
		case chat.RoleAssistant:
			lines = append(lines, "FABARO: "+m.Content)
		}
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n\n"))
	return err
}
