package speech

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// DefaultLanguage is used when a request names no language.
const DefaultLanguage = "id-ID"

// VoiceDescriptor describes one voice an engine can speak with.
type VoiceDescriptor struct {
	Name        string `json:"name"`
	LanguageTag string `json:"lang"`
}

// SpeechRequest is a single speak call. Zero Rate and Pitch mean the engine
// default (1.0).
type SpeechRequest struct {
	Text        string
	LanguageTag string
	VoiceName   string
	Rate        float64
	Pitch       float64
}

// Utterance is a request resolved against the available voices. A nil Voice
// means the engine should use its own default.
type Utterance struct {
	Text        string
	LanguageTag string
	Voice       *VoiceDescriptor
	Rate        float64
	Pitch       float64
}

type matcher func(VoiceDescriptor) bool

// SelectVoice returns the best voice in available for languageTag. Matching
// is case-insensitive and the first tier with a hit wins:
//
//  1. the voice named explicitVoiceName, if one is given
//  2. a voice whose tag equals languageTag
//  3. a voice whose tag starts with the base subtag of languageTag
//  4. the first English voice
//  5. the first voice
//
// It reports false only when available is empty.
func SelectVoice(available []VoiceDescriptor, languageTag, explicitVoiceName string) (VoiceDescriptor, bool) {
	for _, match := range matchers(languageTag, explicitVoiceName) {
		for _, v := range available {
			if match(v) {
				return v, true
			}
		}
	}
	return VoiceDescriptor{}, false
}

func matchers(languageTag, explicitVoiceName string) []matcher {
	tag := NormalizeTag(languageTag)
	base := BaseSubtag(tag)

	ms := make([]matcher, 0, 5)
	if explicitVoiceName != "" {
		ms = append(ms, func(v VoiceDescriptor) bool {
			return strings.EqualFold(v.Name, explicitVoiceName)
		})
	}
	return append(ms,
		func(v VoiceDescriptor) bool { return NormalizeTag(v.LanguageTag) == tag },
		func(v VoiceDescriptor) bool { return strings.HasPrefix(NormalizeTag(v.LanguageTag), base) },
		func(v VoiceDescriptor) bool { return strings.HasPrefix(NormalizeTag(v.LanguageTag), "en") },
		func(VoiceDescriptor) bool { return true },
	)
}

// NormalizeTag lowercases a language tag and accepts '_' as a separator.
func NormalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
}

// BaseSubtag returns the part of tag before the first '-'.
func BaseSubtag(tag string) string {
	tag = NormalizeTag(tag)
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		return tag[:i]
	}
	return tag
}

type voiceNames []VoiceDescriptor

func (v voiceNames) String(i int) string { return v[i].Name }
func (v voiceNames) Len() int            { return len(v) }

// SuggestVoices returns up to n voice names that fuzzily match name, best
// first.
func SuggestVoices(available []VoiceDescriptor, name string, n int) []string {
	if name == "" || n <= 0 {
		return nil
	}
	matches := fuzzy.FindFrom(name, voiceNames(available))
	out := make([]string, 0, n)
	for _, m := range matches {
		if len(out) == n {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
