package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
)

// Call is the slice of a live call the simulator drives.
type Call interface {
	ID() string
	Open(ctx context.Context) (*domain.TurnResult, error)
	HandleTurn(ctx context.Context, utterance string) (*domain.TurnResult, error)
	DeliverWebhook(body []byte) error
	End(ctx context.Context, reason string) error
	Session() *domain.CallSession
}

// Runner plays one call against an IOHandler: the handler stands in for
// the speech-to-text side and the agent's lines are printed instead of
// played.
type Runner struct {
	Handler        IOHandler
	Logger         *slog.Logger
	SilenceTimeout time.Duration
	SkipGreeting   bool
}

// NewRunner creates a Runner reading stdin and writing stdout.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	return r
}

// Run executes the call loop until the call ends, input is exhausted or
// ctx is cancelled. The call is always ended before Run returns.
func (r *Runner) Run(ctx context.Context, call Call) error {
	log := r.Logger.With("call_id", call.ID())

	if !r.SkipGreeting {
		res, err := call.Open(ctx)
		if err != nil {
			return r.stop(ctx, call, err)
		}
		if err := r.Handler.Output(ctx, res); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if res != nil && res.Ended {
			return r.ended(ctx, call)
		}
	}

	for {
		input, err := r.read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return r.hangup(ctx, call, "hangup")
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				_ = r.Handler.SystemOutput(ctx, "caller went silent")
				return r.hangup(ctx, call, "silence")
			case ctx.Err() != nil:
				return r.hangup(ctx, call, "interrupted")
			}
			return r.stop(ctx, call, fmt.Errorf("input error: %w", err))
		}
		if input == "" {
			continue
		}

		handled, err := r.command(ctx, call, input)
		if err != nil {
			return err
		}
		if handled {
			if call.Session().Ended() {
				return r.ended(ctx, call)
			}
			continue
		}

		log.Debug("caller", "utterance", input)
		res, err := call.HandleTurn(ctx, input)
		if err != nil {
			return r.stop(ctx, call, err)
		}
		if err := r.Handler.Output(ctx, res); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if res.Ended {
			return r.ended(ctx, call)
		}
	}
}

func (r *Runner) read(ctx context.Context) (string, error) {
	if r.SilenceTimeout <= 0 {
		return r.Handler.Input(ctx)
	}
	inputCtx, cancel := context.WithTimeout(ctx, r.SilenceTimeout)
	defer cancel()
	return r.Handler.Input(inputCtx)
}

// command handles simulator directives. It reports whether input was one.
func (r *Runner) command(ctx context.Context, call Call, input string) (bool, error) {
	switch {
	case input == "exit" || input == "quit" || input == "/hangup":
		if err := call.End(context.WithoutCancel(ctx), "hangup"); err != nil {
			return true, fmt.Errorf("end call: %w", err)
		}
		return true, nil
	case strings.HasPrefix(input, "/webhook"):
		body := strings.TrimSpace(strings.TrimPrefix(input, "/webhook"))
		if body == "" {
			return true, r.Handler.SystemOutput(ctx, "usage: /webhook <json body>")
		}
		if err := call.DeliverWebhook([]byte(body)); err != nil {
			return true, r.Handler.SystemOutput(ctx, "webhook rejected: "+err.Error())
		}
		return true, r.Handler.SystemOutput(ctx, "webhook queued for the next turn")
	case input == "/vars":
		data, err := json.Marshal(call.Session().Variables)
		if err != nil {
			return true, err
		}
		return true, r.Handler.SystemOutput(ctx, string(data))
	case input == "/node":
		return true, r.Handler.SystemOutput(ctx, "current node: "+call.Session().CurrentNodeID)
	}
	return false, nil
}

func (r *Runner) hangup(ctx context.Context, call Call, reason string) error {
	if err := call.End(context.WithoutCancel(ctx), reason); err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	return r.ended(ctx, call)
}

func (r *Runner) ended(ctx context.Context, call Call) error {
	s := call.Session()
	msg := "call ended"
	if s.EndReason != "" {
		msg += " (" + s.EndReason + ")"
	}
	return r.Handler.SystemOutput(context.WithoutCancel(ctx), msg)
}

// stop maps a turn error onto the loop's exit.
func (r *Runner) stop(ctx context.Context, call Call, err error) error {
	switch {
	case errors.Is(err, domain.ErrCallEnded):
		return r.ended(ctx, call)
	case ctx.Err() != nil:
		return r.hangup(ctx, call, "interrupted")
	}
	_ = call.End(context.WithoutCancel(ctx), "error")
	return err
}
