package cmds

import (
	"io"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/mattn/go-isatty"
)

var (
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	systemLabelStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#AFAFAF"))
	metaStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func roleLabel(role conversation.Role, styled bool) string {
	label := role.String() + ":"
	if !styled {
		return label
	}
	switch role {
	case conversation.RoleUser:
		return userLabelStyle.Render(label)
	case conversation.RoleAssistant:
		return assistantLabelStyle.Render(label)
	default:
		return systemLabelStyle.Render(label)
	}
}

// renderMarkdown styles model output for a terminal and leaves it untouched
// otherwise.
func renderMarkdown(text string, styled bool) string {
	if !styled {
		return text
	}
	out, err := glamour.Render(text, "dark")
	if err != nil {
		return text
	}
	return out
}

func renderMeta(s string, styled bool) string {
	if !styled {
		return s
	}
	return metaStyle.Render(s)
}
