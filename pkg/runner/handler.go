package runner

import (
	"context"

	"github.com/aretw0/callflow/pkg/domain"
)

// IOHandler defines how the simulator talks to whoever plays the caller.
// This allows switching between Text (terminal) and JSON (scripted) modes.
type IOHandler interface {
	// Output presents what the agent said (or dialled) during a turn.
	Output(ctx context.Context, res *domain.TurnResult) error

	// Input reads the next final caller utterance.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (call ended, webhook queued).
	// This is distinct from the agent's speech.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms agent text before it is printed.
type ContentRenderer func(string) (string, error)
