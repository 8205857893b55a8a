package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# chat endpoint used by "always chat"
endpoint: "http://127.0.0.1:3000/api/chat"
# address "always serve" listens on
listen: "127.0.0.1:3000"
# glamour style name or JSON path (default "auto")
style: "auto"
# word-wrap at width (0 uses the terminal width)
width: 0
# verbose logging
debug: false

chat:
  # empty uses OPENROUTER_MODEL, then openai/gpt-4o-mini
  model: ""
  temperature: 0.6
  # BCP 47 locale the companion replies in
  target_lang: "id-ID"

speech:
  # speak replies aloud in "always chat"
  enabled: true
  # espeak, gtts or mock
  engine: "espeak"
  # engine to use when the main one is missing or keeps failing
  fallback: ""
  max_failures: 3
  lang: "id-ID"
  # preferred voice name; see "always voices"
  voice: ""
  rate: 1.0
  pitch: 1.0
  espeak:
    binary: "espeak-ng"
    wpm: 175
  gtts:
    language: "en"
    requests_per_minute: 50

cache:
  # defaults to the user cache directory
  dir: ""
  # megabytes per store
  max_size: 50
  # zstd level, 0 disables compression
  compression: 3
  version: "fabaro-always-v2"

server:
  # serve static assets from this directory instead of the built-in ones
  public_dir: ""
  requests_per_minute: 60
  burst: 10
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the always config file",
	Long:    paragraph(fmt.Sprintf("\n%s the always config file. EDITOR decides which editor opens it. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("always config\nalways config --config path/to/always.yml"),
	Args:    cobra.NoArgs,
	// Editing must work even when the current config does not validate.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Always", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			return errors.New("no config file location; pass --config")
		}
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
