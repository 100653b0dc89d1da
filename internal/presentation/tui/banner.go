package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Strata banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   _____ _             _        ", "#818cf8"},
		{"  / ____| |           | |       ", "#a78bfa"},
		{" | (___ | |_ _ __ __ _| |_ __ _ ", "#c084fc"},
		{"  \\___ \\| __| '__/ _` | __/ _` |", "#e879f9"},
		{"  ____) | |_| | | (_| | || (_| |", "#f472b6"},
		{" |_____/ \\__|_|  \\__,_|\\__\\__,_|", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String("v"+strings.TrimSpace(version)).Faint())
}
