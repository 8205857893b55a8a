// Package main provides the entry point for the always CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fabaro/always/internal/chat"
	"github.com/fabaro/always/internal/offline"
	"github.com/fabaro/always/internal/speech"
	"github.com/fabaro/always/internal/speech/engines"
	"github.com/fabaro/always/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string

	// cfg is loaded before every command runs.
	cfg settings

	rootCmd = &cobra.Command{
		Use:   "always",
		Short: "An empathetic chat companion that talks back",
		Long: paragraph(fmt.Sprintf(
			"\nFABARO ALWAYS is a chat companion that %s. Start the API with %s, then talk to it with %s.",
			keyword("listens and speaks"), keyword("always serve"), keyword("always chat"),
		)),
		SilenceErrors: false,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initConfig()
		},
	}
)

func initConfig() error {
	if configFile != "" {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}
	cfg = s
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.String("endpoint", "", "chat endpoint URL")
	flags.String("engine", "", "speech engine (espeak, gtts or mock)")
	flags.String("lang", "", "BCP 47 language for speech")
	flags.String("voice", "", "preferred voice name")
	flags.Float64("rate", 0, "speech rate (0-10]")
	flags.Float64("pitch", 0, "speech pitch [0-2]")
	flags.Bool("ephemeral", false, "keep caches in memory only")
	flags.Bool("debug", false, "verbose logging")
	flags.StringP("style", "s", "auto", "glamour style name or JSON path")
	flags.UintP("width", "w", 0, "word-wrap at width (0 uses the terminal width)")

	// Config bindings
	_ = viper.BindPFlag("endpoint", flags.Lookup("endpoint"))
	_ = viper.BindPFlag("speech.engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("speech.lang", flags.Lookup("lang"))
	_ = viper.BindPFlag("speech.voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("speech.rate", flags.Lookup("rate"))
	_ = viper.BindPFlag("speech.pitch", flags.Lookup("pitch"))
	_ = viper.BindPFlag("ephemeral", flags.Lookup("ephemeral"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("style", flags.Lookup("style"))
	_ = viper.BindPFlag("width", flags.Lookup("width"))

	setDefaults()

	rootCmd.AddCommand(serveCmd, chatCmd, speakCmd, voicesCmd, cacheCmd, configCmd, manCmd)
}

func setDefaults() {
	viper.SetDefault("listen", "127.0.0.1:3000")
	viper.SetDefault("endpoint", "http://127.0.0.1:3000/api/chat")
	viper.SetDefault("style", "auto")
	viper.SetDefault("width", 0)

	viper.SetDefault("chat.model", "")
	viper.SetDefault("chat.temperature", chat.DefaultTemperature)
	viper.SetDefault("chat.target_lang", chat.DefaultTargetLang)

	viper.SetDefault("speech.enabled", true)
	viper.SetDefault("speech.engine", "espeak")
	viper.SetDefault("speech.fallback", "")
	viper.SetDefault("speech.max_failures", engines.DefaultMaxFailures)
	viper.SetDefault("speech.lang", speech.DefaultLanguage)
	viper.SetDefault("speech.voice", "")
	viper.SetDefault("speech.rate", 1.0)
	viper.SetDefault("speech.pitch", 1.0)
	viper.SetDefault("speech.espeak.binary", "espeak-ng")
	viper.SetDefault("speech.espeak.wpm", 175)
	viper.SetDefault("speech.gtts.language", "en")
	viper.SetDefault("speech.gtts.requests_per_minute", 50)

	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.max_size", 50)
	viper.SetDefault("cache.compression", 3)
	viper.SetDefault("cache.version", offline.DefaultVersion)

	viper.SetDefault("server.public_dir", "")
	viper.SetDefault("server.requests_per_minute", 60)
	viper.SetDefault("server.burst", 10)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "always")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "always")}, dirs...)
	}

	if c := os.Getenv("ALWAYS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("always")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("always")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "always.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}
