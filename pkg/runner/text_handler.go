package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/callflow/pkg/domain"
)

// TextHandler plays a call in a terminal. The caller types each utterance
// and the agent's lines are printed under a coloured speaker label.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	interactive bool
	trace       bool
	out         *termenv.Output

	lines   chan line
	started bool
}

type line struct {
	text string
	err  error
}

// TextHandlerOption configures a TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer renders agent lines (markdown, for instance)
// before printing them.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithColorProfile forces a colour profile; termenv.Ascii disables colour.
func WithColorProfile(p termenv.Profile) TextHandlerOption {
	return func(h *TextHandler) {
		h.out = termenv.NewOutput(h.Writer, termenv.WithProfile(p))
	}
}

// WithNodeTrace prints a line whenever the call moves to another node.
func WithNodeTrace(on bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.trace = on
	}
}

// NewTextHandler reads utterances from r and prints the call to w. Nil
// arguments default to stdin and stdout.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader:      bufio.NewReader(r),
		Writer:      w,
		interactive: isTerminal(r),
		out:         termenv.NewOutput(w),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Interactive reports whether a person is typing.
func (h *TextHandler) Interactive() bool {
	return h.interactive
}

// readLines feeds h.lines so Input can give up on a silent caller. The
// goroutine outlives a cancelled Input; the next Input picks up its line.
func (h *TextHandler) readLines() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.lines <- line{text: text}
		}
		switch {
		case errors.Is(err, io.EOF):
			close(h.lines)
			return
		case err != nil:
			h.lines <- line{err: err}
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) paint(s, color string) string {
	return h.out.String(s).Foreground(h.out.Color(color)).Bold().String()
}

func (h *TextHandler) faint(s string) string {
	return h.out.String(s).Faint().String()
}

func (h *TextHandler) Output(ctx context.Context, res *domain.TurnResult) error {
	if res == nil {
		return nil
	}
	if h.trace && res.Moved {
		fmt.Fprintln(h.Writer, h.faint(fmt.Sprintf("[node] %s -> %s", res.PreviousNodeID, res.NodeID)))
	}
	if res.Digits != "" {
		fmt.Fprintf(h.Writer, "%s %s\n", h.paint("[dtmf]", "#f59e0b"), res.Digits)
	}
	if res.Reply == "" {
		return nil
	}

	reply := res.Reply
	if h.Renderer != nil {
		if rendered, err := h.Renderer(reply); err == nil {
			reply = strings.TrimSpace(rendered)
		}
	}
	speaker := h.paint("Agent:", "#818cf8")
	if res.Degraded {
		speaker += h.faint(" (fallback)")
	}
	fmt.Fprintf(h.Writer, "%s %s\n", speaker, reply)
	return nil
}

// Input prompts and waits for the next utterance. Lines the sanitizer
// rejects are reported and the prompt repeats.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	if !h.started {
		h.started = true
		h.lines = make(chan line)
		go h.readLines()
	}

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		fmt.Fprint(h.Writer, h.paint("You: ", "#34d399"))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case l, ok := <-h.lines:
			if !ok {
				return "", io.EOF
			}
			if l.err != nil {
				return "", l.err
			}
			utterance, err := SanitizeInput(l.text)
			if err != nil {
				_ = h.SystemOutput(ctx, "input ignored: "+err.Error())
				continue
			}
			return utterance, nil
		}
	}
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	fmt.Fprintln(h.Writer, h.faint("[system] "+msg))
	return nil
}
