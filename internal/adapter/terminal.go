package adapter

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Nell373/linebot-ai/internal/reply"

	"charm.land/lipgloss/v2"
)

// TerminalRenderer draws replies as boxed cards with numbered buttons.
type TerminalRenderer struct {
	textStyle   lipgloss.Style
	titleStyle  lipgloss.Style
	lineStyle   lipgloss.Style
	buttonStyle lipgloss.Style
	cardStyle   lipgloss.Style
}

func NewTerminalRenderer() *TerminalRenderer {
	purple := lipgloss.Color("99")
	return &TerminalRenderer{
		textStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		titleStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		lineStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		buttonStyle: lipgloss.NewStyle().Foreground(purple),
		cardStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1),
	}
}

func (t *TerminalRenderer) Render(r *reply.Reply) string {
	if r == nil {
		return ""
	}
	var sections []string
	if r.Text != "" {
		sections = append(sections, t.textStyle.Render(r.Text))
	}
	if c := r.Card; c != nil {
		parts := []string{t.titleStyle.Render(c.Title)}
		for _, l := range c.Lines {
			parts = append(parts, t.lineStyle.Render(l))
		}
		if len(c.Buttons) > 0 {
			parts = append(parts, "")
			for i, b := range c.Buttons {
				parts = append(parts, t.buttonStyle.Render(fmt.Sprintf("[%d] %s", i+1, b.Label)))
			}
		}
		sections = append(sections, t.cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// TerminalAdapter prints replies and remembers the last buttons shown to
// each user so a typed number can press one.
type TerminalAdapter struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *TerminalRenderer
	buttons  map[string][]reply.Button
}

func NewTerminalAdapter(out io.Writer) *TerminalAdapter {
	return &TerminalAdapter{
		out:      out,
		renderer: NewTerminalRenderer(),
		buttons:  make(map[string][]reply.Button),
	}
}

func (a *TerminalAdapter) Name() string {
	return "cli"
}

func (a *TerminalAdapter) Send(ctx context.Context, to Target, r *reply.Reply) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r == nil {
		return nil
	}
	a.buttons[to.UserID] = r.Buttons()
	_, err := fmt.Fprintln(a.out, a.renderer.Render(r))
	return err
}

// Press maps "3" to the payload of the third button last shown to userID.
func (a *TerminalAdapter) Press(userID, input string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	buttons := a.buttons[userID]
	if n > len(buttons) {
		return "", false
	}
	return buttons[n-1].Data, true
}

func (a *TerminalAdapter) Health(ctx context.Context) error {
	return nil
}
