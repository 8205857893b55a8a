// Package render draws chat messages as terminal bubbles.
package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/fabaro/always/internal/chat"
)

const (
	defaultWidth = 80
	maxWidth     = 120
)

var (
	brand = lipgloss.AdaptiveColor{Light: "#4F46E5", Dark: "#818CF8"}
	muted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#52525B"}
	red   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}

	bubble = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)

	userBubble      = bubble.BorderForeground(brand)
	assistantBubble = bubble.BorderForeground(muted)
	errorBubble     = bubble.BorderForeground(red).Foreground(red)

	labelStyle  = lipgloss.NewStyle().Foreground(brand).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(muted).Italic(true)
	headerStyle = lipgloss.NewStyle().Foreground(brand).Bold(true)
)

// TerminalWidth returns the width of f when it is a terminal, capped at
// 120 columns, or 80 otherwise.
func TerminalWidth(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return min(w, maxWidth)
}

// ValidateStyle checks that style is a built-in glamour style or an
// existing JSON file.
func ValidateStyle(style string) error {
	if style == "" || style == styles.AutoStyle || styles.DefaultStyles[style] != nil {
		return nil
	}
	if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("specified style does not exist: %s", style)
	} else if err != nil {
		return fmt.Errorf("unable to stat file: %w", err)
	}
	return nil
}

func glamourStyle(style string) glamour.TermRendererOption {
	switch {
	case style == "" || style == styles.AutoStyle:
		return glamour.WithAutoStyle()
	case styles.DefaultStyles[style] != nil:
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithStylesFromJSONFile(style)
	}
}

// Renderer formats messages for a terminal of a fixed width.
type Renderer struct {
	width  int
	inner  int
	md     *glamour.TermRenderer
	header string
}

// New returns a Renderer for width columns using a glamour style name or
// JSON path.
func New(width int, style string) (*Renderer, error) {
	if width <= 0 {
		width = defaultWidth
	}
	// Bubbles take 85% of the line; border and padding take four columns.
	inner := max(width*85/100-4, 10)

	md, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamourStyle(style),
		glamour.WithWordWrap(inner),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create renderer: %w", err)
	}
	return &Renderer{width: width, inner: inner, md: md}, nil
}

// Width returns the line width the renderer lays out for.
func (r *Renderer) Width() int { return r.width }

// Header returns the title block shown when a session starts.
func (r *Renderer) Header() string {
	title := headerStyle.Render("FABARO ALWAYS")
	sub := hintStyle.Render("Teman curhat yang empatik & menjaga privasi")
	return lipgloss.JoinVertical(lipgloss.Left, title, sub) + "\n"
}

// Message renders m as a bubble: user messages right-aligned as plain
// wrapped text, assistant messages left-aligned as markdown.
func (r *Renderer) Message(m chat.Message) string {
	switch m.Role {
	case chat.RoleUser:
		body := wordwrap.String(strings.TrimSpace(m.Content), r.inner)
		return lipgloss.PlaceHorizontal(r.width, lipgloss.Right, userBubble.Render(body))
	case chat.RoleAssistant:
		label := labelStyle.Render("FABARO")
		return lipgloss.JoinVertical(lipgloss.Left, label, assistantBubble.Render(r.markdown(m.Content)))
	default:
		return hintStyle.Render(wordwrap.String(m.Content, r.width))
	}
}

// Error renders an error bubble.
func (r *Renderer) Error(msg string) string {
	return errorBubble.Render(wordwrap.String(msg, r.inner))
}

// Hint renders a dim one-line note.
func (r *Renderer) Hint(msg string) string {
	return hintStyle.Render(msg)
}

// Typing is shown while a reply is pending.
func (r *Renderer) Typing() string {
	return hintStyle.Render("Mengetik…")
}

func (r *Renderer) markdown(content string) string {
	out, err := r.md.Render(content)
	if err != nil {
		return wordwrap.String(content, r.inner)
	}
	return strings.Trim(out, "\n")
}
