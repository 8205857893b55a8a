package engines

import (
	"reflect"
	"testing"

	"github.com/fabaro/always/internal/speech"
)

const espeakVoicesOutput = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 2  en-gb           --/M      English_(Great_Britain) gmw/en               (en 2)
 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)
 5  id              --/M      Indonesian         poz/id

garbage line
`

func TestParseEspeakVoices(t *testing.T) {
	got := parseEspeakVoices([]byte(espeakVoicesOutput))
	want := []speech.VoiceDescriptor{
		{Name: "Afrikaans", LanguageTag: "af"},
		{Name: "English (Great Britain)", LanguageTag: "en-gb"},
		{Name: "English (America)", LanguageTag: "en-us"},
		{Name: "Indonesian", LanguageTag: "id"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseEspeakVoices() = %+v, want %+v", got, want)
	}

	if v, _ := speech.SelectVoice(got, "id-id", ""); v.Name != "Indonesian" {
		t.Errorf("selected %q for id-id, want Indonesian", v.Name)
	}
}

func TestParseEspeakVoicesEmpty(t *testing.T) {
	if got := parseEspeakVoices(nil); got == nil || len(got) != 0 {
		t.Errorf("parseEspeakVoices(nil) = %#v, want empty non-nil", got)
	}
}

func TestEspeakArgs(t *testing.T) {
	voice := &speech.VoiceDescriptor{Name: "Indonesian", LanguageTag: "id"}
	tests := []struct {
		name string
		u    speech.Utterance
		want []string
	}{
		{
			name: "defaults without voice",
			u:    speech.Utterance{Text: "halo"},
			want: []string{"-s", "175", "-p", "50", "--", "halo"},
		},
		{
			name: "voice rate pitch",
			u:    speech.Utterance{Text: "halo", Voice: voice, Rate: 1.2, Pitch: 1.5},
			want: []string{"-s", "210", "-p", "75", "-v", "id", "--", "halo"},
		},
		{
			name: "clamped",
			u:    speech.Utterance{Text: "-x", Rate: 10, Pitch: 2},
			want: []string{"-s", "450", "-p", "99", "--", "-x"},
		},
		{
			name: "slow floor",
			u:    speech.Utterance{Text: "x", Rate: 0.1, Pitch: 1},
			want: []string{"-s", "80", "-p", "50", "--", "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := espeakArgs(tt.u, espeakBaseWPM); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("espeakArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEspeakDefaults(t *testing.T) {
	e := NewEspeak(EspeakConfig{})
	if e.binary != "espeak-ng" || e.wpm != 175 {
		t.Errorf("NewEspeak defaults = %q %d", e.binary, e.wpm)
	}
}
