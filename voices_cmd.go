package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabaro/always/internal/speech"
)

var voicesCmd = &cobra.Command{
	Use:     "voices",
	Short:   "List the voices of the speech engine",
	Long:    paragraph(fmt.Sprintf("\nList the voices offered by the configured engine. The voice %s would pick for --lang and --voice is marked.", keyword("speak"))),
	Example: paragraph("always voices\nalways voices --engine gtts --lang en-GB"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, closeEngine, err := cfg.newEngine()
		if err != nil {
			return err
		}
		defer closeEngine() //nolint:errcheck

		voices, err := engine.Voices(cmd.Context())
		if err != nil {
			return fmt.Errorf("unable to list %s voices: %w", engine.Name(), err)
		}
		return printVoices(os.Stdout, voices, cfg.Speech.Lang, cfg.Speech.Voice)
	},
}

func printVoices(w io.Writer, voices []speech.VoiceDescriptor, tag, name string) error {
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, faint("No voices available."))
		return err
	}
	selected, ok := speech.SelectVoice(voices, tag, name)
	var b strings.Builder
	for _, v := range voices {
		mark := "  "
		if ok && v == selected {
			mark = keyword("* ")
		}
		fmt.Fprintf(&b, "%s%-32s %-8s %s\n", mark, v.Name, v.LanguageTag, faint(speech.LanguageName(v.LanguageTag)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
