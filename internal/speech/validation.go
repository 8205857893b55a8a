package speech

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Accepted ranges, matching what browsers allow for an utterance.
const (
	MaxRate  = 10.0
	MinPitch = 0.0
	MaxPitch = 2.0
)

// ValidateLanguageTag checks that tag is a well-formed BCP 47 tag.
func ValidateLanguageTag(tag string) error {
	if _, err := language.Parse(NormalizeTag(tag)); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidLanguageTag, tag, err)
	}
	return nil
}

// LanguageName returns the English name of tag, or tag itself when unknown.
func LanguageName(tag string) string {
	t, err := language.Parse(NormalizeTag(tag))
	if err != nil {
		return tag
	}
	base, conf := t.Base()
	if conf == language.No {
		return tag
	}
	name := base.String()
	if region, conf := t.Region(); conf == language.Exact {
		return fmt.Sprintf("%s (%s)", name, region)
	}
	return name
}

// ValidateRequest checks a request after defaults have been applied.
func ValidateRequest(req SpeechRequest) error {
	var errs []error
	if strings.TrimSpace(req.Text) == "" {
		errs = append(errs, ErrEmptyText)
	}
	if req.Rate <= 0 || req.Rate > MaxRate {
		errs = append(errs, fmt.Errorf("%w, got %.2f", ErrInvalidRate, req.Rate))
	}
	if req.Pitch < MinPitch || req.Pitch > MaxPitch {
		errs = append(errs, fmt.Errorf("%w, got %.2f", ErrInvalidPitch, req.Pitch))
	}
	return errors.Join(errs...)
}

// withDefaults fills in language, rate and pitch.
func withDefaults(req SpeechRequest) SpeechRequest {
	if strings.TrimSpace(req.LanguageTag) == "" {
		req.LanguageTag = DefaultLanguage
	}
	req.LanguageTag = NormalizeTag(req.LanguageTag)
	if req.Rate == 0 {
		req.Rate = 1
	}
	if req.Pitch == 0 {
		req.Pitch = 1
	}
	return req
}
