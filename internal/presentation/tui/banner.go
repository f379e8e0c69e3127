package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the simulator banner to w.
func PrintBanner(w io.Writer, flowName string) {
	out := termenv.NewOutput(w)
	// Indigo to pink, one step per line.
	lines := []struct{ text, color string }{
		{"             _ _  __ _               ", "#818cf8"},
		{"   ___ __ _ | | |/ _| | _____      __", "#a78bfa"},
		{"  / __/ _` || | | |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{" | (_| (_| || | |  _| | (_) \\ V  V / ", "#e879f9"},
		{"  \\___\\__,_||_|_|_| |_|\\___/ \\_/\\_/  ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
	if flowName != "" {
		fmt.Fprintln(w, out.String("  flow: "+flowName).Faint())
	}
	fmt.Fprintln(w, out.String("  type to speak as the caller; /hangup ends the call").Faint())
	fmt.Fprintln(w)
}
