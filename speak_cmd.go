package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fabaro/always/internal/speech"
)

var speakCmd = &cobra.Command{
	Use:   "speak [TEXT]",
	Short: "Read text aloud",
	Long: paragraph(fmt.Sprintf(
		"\n%s text from the arguments or standard input with the configured engine, language and voice. Markdown is read as plain text.",
		keyword("Speak"),
	)),
	Example: paragraph("always speak \"Halo, apa kabar?\"\necho \"Hello there\" | always speak --lang en-US\nalways speak --engine gtts --rate 1.25 < notes.md"),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := speakText(args, os.Stdin)
		if err != nil {
			return err
		}

		engine, closeEngine, err := cfg.newEngine()
		if err != nil {
			return err
		}
		defer closeEngine() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		speaker := speech.NewSpeaker(engine)
		if err := speaker.Speak(ctx, cfg.speechRequest(text)); err != nil {
			return err
		}
		speaker.Wait()
		if ctx.Err() != nil {
			log.Debug("Speech interrupted")
		}
		return nil
	},
}

// speakText joins args, or reads stdin when there are none and it is not a
// terminal.
func speakText(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(stdin.Fd())) {
		return "", errors.New("nothing to speak: pass TEXT or pipe it in")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read stdin: %w", err)
	}
	return string(data), nil
}
