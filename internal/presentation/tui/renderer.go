package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)

	return func(markdown string) (string, error) {
		if r == nil {
			return markdown, nil
		}
		return r.Render(markdown)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// HistoryMarkdown describes a session snapshot as markdown.
func HistoryMarkdown(snap *domain.Snapshot) (string, error) {
	s, err := snap.Session()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session `%s`\n\n", snap.SessionID)
	if !snap.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "Last saved %s.\n\n", snap.UpdatedAt.Format(time.RFC3339))
	}
	if s.Empty() {
		sb.WriteString("_No image._\n")
		return sb.String(), nil
	}

	st := s.State()
	fmt.Fprintf(&sb, "| Versions | Pointer | Undo | Redo |\n|---|---|---|---|\n| %d | %d | %s | %s |\n\n",
		st.StackSize, st.Pointer, yesNo(st.UndoPossible), yesNo(st.RedoPossible))

	sb.WriteString("## History\n\n")
	for i, id := range s.History {
		marker := ""
		switch {
		case i == s.Pointer:
			marker = " **(current)**"
		case i > s.Pointer:
			marker = " _(redo)_"
		}
		if id == s.OriginID && i == 0 {
			marker += " _(origin)_"
		}
		fmt.Fprintf(&sb, "%d. `%s`%s\n", i, id, marker)
	}
	return sb.String(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
