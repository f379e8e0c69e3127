package callflow

import (
	"context"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/runner"
)

// Simulate plays callID in the simulator: r supplies the caller's side
// and shows the agent's. The call has ended when Simulate returns.
func (e *Engine) Simulate(ctx context.Context, callID string, vars domain.Variables, r *runner.Runner) error {
	c, err := e.runtime.StartCall(ctx, callID, vars)
	if err != nil {
		return err
	}
	return r.Run(ctx, c)
}
