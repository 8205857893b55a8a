package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Defaults are the service-wide fallbacks for a Request.
type Defaults struct {
	Model       string
	Temperature float64
	TopP        float64
	TargetLang  string
}

// DefaultDefaults returns the built-in fallbacks.
func DefaultDefaults() Defaults {
	return Defaults{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		TargetLang:  DefaultTargetLang,
	}
}

// Service turns a Request into an upstream Completion.
type Service struct {
	completer Completer

	mu       sync.RWMutex
	defaults Defaults
}

// NewService returns a Service calling completer. Zero fields in defaults
// take the built-in values.
func NewService(completer Completer, defaults Defaults) *Service {
	s := &Service{completer: completer}
	s.SetDefaults(defaults)
	return s
}

// SetDefaults replaces the fallbacks, e.g. after a config reload.
func (s *Service) SetDefaults(d Defaults) {
	base := DefaultDefaults()
	if d.Model == "" {
		d.Model = base.Model
	}
	if d.Temperature == 0 {
		d.Temperature = base.Temperature
	}
	if d.TopP == 0 {
		d.TopP = base.TopP
	}
	if d.TargetLang == "" {
		d.TargetLang = base.TargetLang
	}
	s.mu.Lock()
	s.defaults = d
	s.mu.Unlock()
}

// Defaults returns the current fallbacks.
func (s *Service) Defaults() Defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// Completion builds the upstream call for req.
func (s *Service) Completion(req Request) Completion {
	d := s.Defaults()

	model := req.Model
	if model == "" {
		model = d.Model
	}
	temperature := d.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	lang := req.TargetLang
	if lang == "" {
		lang = d.TargetLang
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: SystemPrompt(lang)})
	messages = append(messages, req.Messages...)

	return Completion{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        d.TopP,
	}
}

// Complete validates req and returns the model's reply.
func (s *Service) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	comp := s.Completion(req)
	log.Debug("chat completion", "model", comp.Model, "messages", len(req.Messages), "temperature", comp.Temperature)
	return s.completer.Complete(ctx, comp)
}

// SystemPrompt is the persona prompt, asking for replies in lang.
func SystemPrompt(lang string) string {
	return "Kamu adalah FABARO ALWAYS, teman curhat yang empatik, suportif, dan menjaga privasi. " +
		fmt.Sprintf("Selalu balas dalam bahasa yang sesuai dengan kode locale BCP-47 berikut: %s. ", lang) +
		"Gunakan bahasa dan gaya alami setempat, singkat, jelas, hangat. " +
		"Jika ada tanda krisis (bahaya diri/Orang lain), sarankan menghubungi layanan darurat setempat. " +
		"Jangan memberi diagnosis atau nasihat medis profesional."
}
