package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fabaro/always/internal/chat"
	"github.com/fabaro/always/internal/history"
	"github.com/fabaro/always/internal/offline"
	"github.com/fabaro/always/internal/render"
	"github.com/fabaro/always/internal/speech"
)

// modelOptions are the models offered by /model.
var modelOptions = []string{
	"meta-llama/llama-3.1-8b-instruct:free",
	"meta-llama/llama-3.1-70b-instruct",
	"openai/gpt-4o-mini",
	"qwen/qwen-2.5-14b-instruct",
}

const (
	emptyReply   = "Maaf, aku sedang kesulitan menjawab. Coba lagi ya."
	networkReply = "Terjadi gangguan jaringan. Coba lagi ya."
	disclaimer   = "Disclaimer: Ini bukan pengganti konselor profesional. Jika kamu dalam kondisi darurat, hubungi layanan darurat setempat."
	exportName   = "fabaro-always-chat.txt"
)

var slashCommands = []string{
	"/clear", "/copy", "/exit", "/export", "/help", "/lang", "/model", "/mute",
	"/pitch", "/quit", "/rate", "/stop", "/temp", "/voice", "/voices",
}

const chatHelp = `/voice NAME   speak with NAME (empty resets)
/voices       list voices
/lang TAG     reply and speak in TAG, e.g. en-US
/model [ID]   show or set the model
/temp N       set temperature (0-2)
/rate N       set speech rate (0-10]
/pitch N      set speech pitch [0-2]
/mute         toggle speaking replies
/stop         stop speaking
/copy         copy the last reply
/export [F]   write the transcript to F
/clear        start over
/quit         leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk with FABARO ALWAYS",
	Long: paragraph(fmt.Sprintf(
		"\n%s with the companion in your terminal. Replies are spoken aloud unless muted. Static assets are kept for offline use; the transcript is saved between sessions.",
		keyword("Chat"),
	)),
	Example: paragraph("always chat\nalways chat --engine gtts --lang en-US\nalways chat --endpoint https://always.example/api/chat"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		storage, err := cfg.openStorage()
		if err != nil {
			return err
		}
		defer storage.Close() //nolint:errcheck

		origin, err := cfg.origin()
		if err != nil {
			return err
		}
		router := offline.NewRouter(storage, http.DefaultTransport)
		if err := prepareOffline(ctx, router, storage, origin, cfg.manifest()); err != nil {
			log.Warn("Offline assets unavailable", "error", err)
		}
		httpClient := &http.Client{Transport: router, Timeout: 90 * time.Second}

		histPath, err := history.DefaultPath()
		if err != nil {
			return fmt.Errorf("could not find data directory: %w", err)
		}

		style := cfg.Style
		isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
		if !isTerminal && !cmd.Flags().Changed("style") {
			style = "notty"
		}
		width := int(cfg.Width) //nolint:gosec
		if width == 0 {
			width = render.TerminalWidth(os.Stdout)
		}
		rdr, err := render.New(width, style)
		if err != nil {
			return err
		}

		s := &session{
			out:        os.Stdout,
			client:     chat.NewClient(cfg.Endpoint, httpClient),
			history:    history.New(histPath),
			render:     rdr,
			targetLang: cfg.Chat.TargetLang,
			voice:      cfg.speechRequest(""),
			muted:      !cfg.Speech.Enabled,
			copy:       clipboard.WriteAll,
		}
		if cfg.Speech.Enabled {
			engine, closeEngine, err := cfg.newEngine()
			if err != nil {
				log.Warn("Speech disabled", "engine", cfg.Speech.Engine, "error", err)
				fmt.Fprintln(s.out, rdr.Hint("Suara nonaktif: "+err.Error()))
				s.muted = true
			} else {
				defer closeEngine() //nolint:errcheck
				s.speaker = speech.NewSpeaker(engine)
			}
		}

		if name := fetchAppName(ctx, httpClient, origin); name != "" {
			log.Debug("Loaded app manifest", "name", name)
		}
		if term.IsTerminal(int(os.Stdin.Fd())) && isTerminal {
			return s.runTerminal(ctx)
		}
		return s.run(ctx, os.Stdin)
	},
}

// prepareOffline makes the manifest version the active store, installing
// it first when missing. A failed install activates the highest existing
// version instead.
func prepareOffline(ctx context.Context, router *offline.Router, storage offline.Storage, origin *url.URL, m offline.Manifest) error {
	if storage.Has(m.Version) {
		return router.Activate(ctx, m.Version)
	}
	if err := router.Install(ctx, origin, m); err != nil {
		names, nerr := storage.Names()
		if latest := offline.LatestVersion(names); nerr == nil && latest != "" {
			if aerr := router.Activate(ctx, latest); aerr != nil {
				return errors.Join(err, aerr)
			}
		}
		return err
	}
	return router.Activate(ctx, m.Version)
}

// fetchAppName reads the web manifest through the router, from the store
// when it has been installed.
func fetchAppName(ctx context.Context, c *http.Client, origin *url.URL) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin.JoinPath("/manifest.json").String(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/manifest+json, application/json")
	resp, err := c.Do(req)
	if err != nil {
		log.Debug("Manifest unavailable", "error", err)
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck

	var m struct {
		Name string `json:"name"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&m) != nil {
		return ""
	}
	return m.Name
}

// session is one interactive chat.
type session struct {
	out     io.Writer
	client  *chat.Client
	history *history.Store
	render  *render.Renderer
	speaker *speech.Speaker
	copy    func(string) error

	messages    []chat.Message
	model       string
	temperature *float64
	targetLang  string
	voice       speech.SpeechRequest
	muted       bool
}

// prompter reads one line of input. liner.State satisfies it.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// scanPrompter reads lines from a pipe or file.
type scanPrompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

func newScanPrompter(in io.Reader, out io.Writer) *scanPrompter {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), chat.MaxRequestBody)
	return &scanPrompter{sc: sc, out: out}
}

func (p *scanPrompter) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.sc.Text(), nil
}

// run reads input from in until EOF or /quit.
func (s *session) run(ctx context.Context, in io.Reader) error {
	return s.loop(ctx, newScanPrompter(in, s.out))
}

// runTerminal reads input with line editing and history.
func (s *session) runTerminal(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close() //nolint:errcheck
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		var out []string
		for _, c := range slashCommands {
			if strings.HasPrefix(c, in) {
				out = append(out, c)
			}
		}
		return out
	})
	return s.loop(ctx, line)
}

func (s *session) loop(ctx context.Context, p prompter) error {
	msgs, err := s.history.Load()
	if err != nil {
		return err
	}
	s.messages = msgs
	log.Debug("Loaded history", "path", s.history.Path(), "messages", len(msgs))
	defer s.stopSpeaking()

	fmt.Fprintln(s.out, s.render.Header())
	for _, m := range s.messages {
		fmt.Fprintln(s.out, s.render.Message(m))
	}
	fmt.Fprintln(s.out, s.render.Hint(disclaimer))
	fmt.Fprintln(s.out, s.render.Hint("Ketik /help untuk perintah."))

	h, _ := p.(interface{ AppendHistory(string) })
	for ctx.Err() == nil {
		input, err := p.Prompt("› ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if h != nil {
			h.AppendHistory(input)
		}
		if strings.HasPrefix(input, "/") {
			if s.command(ctx, input) {
				return nil
			}
			continue
		}
		s.send(ctx, input)
	}
	return nil
}

func (s *session) send(ctx context.Context, text string) {
	user := chat.Message{Role: chat.RoleUser, Content: text}
	s.record(user)
	fmt.Fprintln(s.out, s.render.Message(user))
	fmt.Fprintln(s.out, s.render.Typing())

	reply, err := s.client.Send(ctx, chat.Request{
		Messages:    s.messages,
		Model:       s.model,
		Temperature: s.temperature,
		TargetLang:  s.targetLang,
	})
	if err != nil {
		log.Error("Chat request failed", "error", err)
		fmt.Fprintln(s.out, s.render.Error(err.Error()))
		s.appendReply(networkReply)
		return
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReply
	}
	s.appendReply(reply)
	s.speak(ctx, reply)
}

func (s *session) appendReply(content string) {
	m := chat.Message{Role: chat.RoleAssistant, Content: content}
	s.record(m)
	fmt.Fprintln(s.out, s.render.Message(m))
}

// record appends m to the saved transcript. When the file cannot be
// written the message is kept in memory only.
func (s *session) record(m chat.Message) {
	msgs, err := s.history.Append(m)
	if err != nil {
		log.Error("Could not save history", "path", s.history.Path(), "error", err)
		s.messages = append(s.messages, m)
		return
	}
	s.messages = msgs
}

func (s *session) speak(ctx context.Context, text string) {
	if s.muted || s.speaker == nil {
		return
	}
	req := s.voice
	req.Text = text
	if err := s.speaker.Speak(ctx, req); err != nil {
		fmt.Fprintln(s.out, s.render.Hint("Tidak bisa bersuara: "+err.Error()))
	}
}

func (s *session) stopSpeaking() {
	if s.speaker != nil {
		s.speaker.Cancel()
	}
}

func (s *session) lastReply() string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == chat.RoleAssistant {
			return s.messages[i].Content
		}
	}
	return ""
}

// command runs a slash command and reports whether the session should end.
func (s *session) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	say := func(format string, args ...any) {
		fmt.Fprintln(s.out, s.render.Hint(fmt.Sprintf(format, args...)))
	}
	fail := func(err error) {
		fmt.Fprintln(s.out, s.render.Error(err.Error()))
	}

	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return true

	case "/help":
		say("%s", chatHelp)

	case "/clear":
		msgs, err := s.history.Reset()
		if err != nil {
			fail(err)
			return false
		}
		s.messages = msgs
		for _, m := range msgs {
			fmt.Fprintln(s.out, s.render.Message(m))
		}

	case "/mute":
		s.muted = !s.muted
		if s.muted {
			s.stopSpeaking()
			say("Suara dimatikan.")
		} else {
			say("Suara dinyalakan.")
		}

	case "/stop":
		s.stopSpeaking()

	case "/voices":
		voices, err := s.voices(ctx)
		if err != nil {
			fail(err)
			return false
		}
		selected, _ := speech.SelectVoice(voices, s.voice.LanguageTag, s.voice.VoiceName)
		for _, v := range voices {
			mark := "  "
			if v == selected {
				mark = "* "
			}
			fmt.Fprintf(s.out, "%s%-32s %s\n", mark, v.Name, faint(v.LanguageTag))
		}

	case "/voice":
		if arg == "" {
			s.voice.VoiceName = ""
			say("Memakai suara otomatis.")
			return false
		}
		voices, err := s.voices(ctx)
		if err != nil {
			fail(err)
			return false
		}
		if !slices.ContainsFunc(voices, func(v speech.VoiceDescriptor) bool { return strings.EqualFold(v.Name, arg) }) {
			if hints := speech.SuggestVoices(voices, arg, 3); len(hints) > 0 {
				say("Suara %q tidak ada. Mungkin: %s", arg, strings.Join(hints, ", "))
			} else {
				say("Suara %q tidak ada.", arg)
			}
			return false
		}
		s.voice.VoiceName = arg
		say("Suara: %s", arg)

	case "/lang":
		if err := speech.ValidateLanguageTag(arg); err != nil {
			fail(err)
			return false
		}
		s.voice.LanguageTag = arg
		s.targetLang = arg
		say("Bahasa: %s (%s)", arg, speech.LanguageName(arg))

	case "/model":
		if arg == "" {
			for _, m := range modelOptions {
				mark := "  "
				if m == s.model {
					mark = "* "
				}
				fmt.Fprintln(s.out, mark+m)
			}
			return false
		}
		s.model = arg
		say("Model: %s", arg)

	case "/temp":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || v < 0 || v > 2 {
			fail(errors.New("temperature must be a number between 0 and 2"))
			return false
		}
		s.temperature = &v
		say("Temperature: %.2f", v)

	case "/rate", "/pitch":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fail(fmt.Errorf("%s needs a number", name))
			return false
		}
		req := s.voice
		if name == "/rate" {
			req.Rate = v
		} else {
			req.Pitch = v
		}
		req.Text = "-"
		if err := speech.ValidateRequest(req); err != nil {
			fail(err)
			return false
		}
		s.voice = req
		s.voice.Text = ""
		say("Rate %.2f, pitch %.2f", s.voice.Rate, s.voice.Pitch)

	case "/copy":
		reply := s.lastReply()
		if reply == "" {
			say("Belum ada jawaban.")
			return false
		}
		if err := s.copy(reply); err != nil {
			fail(err)
			return false
		}
		say("Disalin.")

	case "/export":
		path := arg
		if path == "" {
			path = exportName
		}
		if err := exportTranscript(path, s.messages); err != nil {
			fail(err)
			return false
		}
		say("Disimpan ke %s", path)

	default:
		say("Perintah tidak dikenal: %s (coba /help)", name)
	}
	return false
}

func (s *session) voices(ctx context.Context) ([]speech.VoiceDescriptor, error) {
	if s.speaker == nil {
		return nil, errors.New("speech is not available")
	}
	return s.speaker.Engine().Voices(ctx)
}

func exportTranscript(path string, msgs []chat.Message) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("unable to create file: %w", err)
	}
	if err := history.Export(f, msgs); err != nil {
		_ = f.Close()
		return fmt.Errorf("unable to write file: %w", err)
	}
	return f.Close()
}
