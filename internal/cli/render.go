package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"minichat/internal/view"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	ownNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor)

	otherNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)
)

// RenderSnapshot dibuja la lista de mensajes de la vista.
func RenderSnapshot(snap view.Snapshot) string {
	var b strings.Builder

	welcome := "Welcome"
	if snap.Identity != nil && snap.Identity.Email != "" {
		welcome = "Welcome, " + sanitize(snap.Identity.Email)
	}
	b.WriteString(titleStyle.Render(welcome))
	b.WriteString("\n")

	switch {
	case snap.Loading:
		b.WriteString(mutedStyle.Render("Loading messages..."))
		b.WriteString("\n")
	case len(snap.Entries) == 0:
		b.WriteString(mutedStyle.Render("No messages yet. Be the first to post!"))
		b.WriteString("\n")
	default:
		for _, e := range snap.Entries {
			nameStyle := otherNameStyle
			if snap.Identity != nil && e.Message.UserID == snap.Identity.ID {
				nameStyle = ownNameStyle
			}
			fmt.Fprintf(&b, "%s %s %s\n",
				mutedStyle.Render(e.Message.CreatedAt.Local().Format("15:04")),
				nameStyle.Render(sanitize(e.DisplayName)+":"),
				sanitize(e.Message.Content),
			)
		}
	}

	if snap.Err != nil {
		b.WriteString(errorStyle.Render(sanitize(snap.Err.Error())))
		b.WriteString("\n")
	}
	return b.String()
}

// listPrinter escribe la lista solo cuando cambia lo que se ve: los renders
// que solo tocan el borrador o el indicador de carga no imprimen nada.
type listPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func newListPrinter(out io.Writer) *listPrinter {
	return &listPrinter{out: out}
}

func (p *listPrinter) Print(snap view.Snapshot) {
	if snap.Loading {
		return
	}
	rendered := RenderSnapshot(snap)
	p.mu.Lock()
	defer p.mu.Unlock()
	if rendered == p.last {
		return
	}
	p.last = rendered
	fmt.Fprint(p.out, rendered)
}

// sanitize quita secuencias de escape y caracteres de control del texto que
// escriben otros usuarios; los saltos de linea pasan a espacios.
func sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return r
		case r == '\n' || r == '\r':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, ansi.Strip(text))
}
