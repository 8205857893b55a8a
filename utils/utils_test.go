package utils

import (
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestExpandPath(t *testing.T) {
	t.Setenv("ALWAYS_TEST_DIR", "/srv/always")
	home, err := homedir.Dir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := map[string]string{
		"":                       "",
		"/tmp/x":                 "/tmp/x",
		"$ALWAYS_TEST_DIR/cache": "/srv/always/cache",
		"~/always.yml":           filepath.Join(home, "always.yml"),
	}
	for in, want := range tests {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanPath(t *testing.T) {
	if got := CleanPath("relative/dir/.."); !filepath.IsAbs(got) || filepath.Base(got) != "relative" {
		t.Errorf("CleanPath() = %q", got)
	}
	if CleanPath("") != "" {
		t.Error("CleanPath(\"\") should stay empty")
	}
}
