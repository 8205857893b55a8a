package speech

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Halo, apa kabar?", "Halo, apa kabar?"},
		{"emphasis", "**Halo**, aku _di sini_.", "Halo, aku di sini."},
		{"heading and paragraph", "# Judul\n\nIsi paragraf.", "Judul\nIsi paragraf."},
		{"list", "- satu\n- dua", "satu\ndua"},
		{"code block dropped", "Lihat:\n\n```go\nx := 1\n```\n\nSelesai.", "Lihat:\nSelesai."},
		{"inline code kept", "Pakai `go test` dulu.", "Pakai go test dulu."},
		{"link text kept", "Baca [dokumen](https://example.com) ini.", "Baca dokumen ini."},
		{"soft break joins", "baris satu\nbaris dua", "baris satu baris dua"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
