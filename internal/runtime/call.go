package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/callflow/internal/interrupt"
	"github.com/aretw0/callflow/internal/latency"
	"github.com/aretw0/callflow/pkg/domain"
)

// Call drives the state machine of one live call. Turns are serialized;
// the barge-in side channel runs concurrently and only buffers what it
// said, so the session is mutated by the turn pipeline alone.
type Call struct {
	engine *Engine
	id     string
	logger *slog.Logger

	// ctx is cancelled when the call ends; in-flight work is discarded.
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	turnMu   sync.Mutex
	failures int

	mu            sync.RWMutex
	sess          *domain.CallSession
	pending       [][]byte
	interjections []domain.HistoryEntry
}

func newCall(e *Engine, sess *domain.CallSession) *Call {
	ctx, cancel := context.WithCancel(context.Background())
	return &Call{
		engine: e,
		id:     sess.ID,
		logger: e.logger.With("call_id", sess.ID),
		ctx:    ctx,
		cancel: cancel,
		sess:   sess,
	}
}

// ID returns the call id.
func (c *Call) ID() string {
	return c.id
}

// Session returns a copy of the last committed session.
func (c *Call) Session() *domain.CallSession {
	return c.snapshot().Clone()
}

// Done is closed when the call ends.
func (c *Call) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Call) snapshot() *domain.CallSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// bind derives a context that is also cancelled when the call ends.
func (c *Call) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(c.ctx, func() {
		cancel(domain.ErrCallEnded)
	})
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// Open speaks the start node. It is a no-op returning nil for a call that
// already has history, such as a resumed call.
func (c *Call) Open(ctx context.Context) (*domain.TurnResult, error) {
	return c.run(ctx, "", true)
}

// HandleTurn runs one conversational turn for a final user utterance.
func (c *Call) HandleTurn(ctx context.Context, utterance string) (*domain.TurnResult, error) {
	return c.run(ctx, utterance, false)
}

// DeliverWebhook queues an asynchronously received webhook response. It is
// unwrapped during the extraction step of the next turn.
func (c *Call) DeliverWebhook(body []byte) error {
	if c.ctx.Err() != nil {
		return domain.ErrCallEnded
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, slices.Clone(body))
	return nil
}

func (c *Call) takePending() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}

func (c *Call) requeue(bodies [][]byte) {
	if len(bodies) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(bodies, c.pending...)
}

// Monitor watches interim transcripts of the current utterance and lets the
// barge-in monitor cut in. It returns when partials closes, ctx is done or
// the call ends. Without a monitor the partials are drained.
func (c *Call) Monitor(ctx context.Context, partials <-chan interrupt.Partial) {
	ctx, stop := c.bind(ctx)
	defer stop()

	m := c.engine.svc.Monitor
	if m == nil {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-partials:
				if !ok {
					return
				}
			}
		}
	}
	m.Watch(ctx, partials, c)
}

// Goal returns the rendered content of the current node.
func (c *Call) Goal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	node, ok := c.engine.svc.Graph.Node(c.sess.CurrentNodeID)
	if !ok {
		return ""
	}
	return Render(node.Content(), c.sess.Variables)
}

// Speak synthesizes an interjection and buffers it for the next commit.
func (c *Call) Speak(ctx context.Context, text string, words int) error {
	if c.ctx.Err() != nil {
		return domain.ErrCallEnded
	}
	ctx, stop := c.bind(ctx)
	defer stop()

	if _, err := c.say(ctx, text, nil); err != nil && !errors.Is(err, errNoSpeech) {
		return err
	}

	e := c.engine
	c.mu.Lock()
	nodeID := c.sess.CurrentNodeID
	c.interjections = append(c.interjections, domain.HistoryEntry{
		Role:         domain.RoleAgent,
		Text:         text,
		NodeID:       nodeID,
		Timestamp:    e.now(),
		Interjection: true,
	})
	c.mu.Unlock()

	c.logger.Info("interjection", "node_id", nodeID, "words", words)
	if e.hooks.OnInterjection != nil {
		e.hooks.OnInterjection(ctx, &domain.InterjectionEvent{
			EventBase: e.event(domain.EventInterjection, c.id),
			NodeID:    nodeID,
			Text:      text,
			WordCount: words,
		})
	}
	return nil
}

// End terminates the call, cancelling any in-flight turn, and flushes the
// final snapshot. Ending an ended call is a no-op.
func (c *Call) End(ctx context.Context, reason string) error {
	c.cancel()
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	cur := c.snapshot()
	if cur.Ended() {
		c.finish(ctx, cur)
		return nil
	}

	next := cur.Clone()
	next.Status = domain.CallEnded
	next.EndReason = reason
	next.UpdatedAt = c.engine.now()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.engine.saveTimeout)
	defer cancel()
	err := c.engine.svc.Sessions.Save(saveCtx, c.id, next)

	c.mu.Lock()
	c.sess = next
	c.mu.Unlock()
	c.finish(ctx, next)

	if err != nil {
		return fmt.Errorf("flush call %s: %w", c.id, err)
	}
	return nil
}

func (c *Call) finish(ctx context.Context, sess *domain.CallSession) {
	c.once.Do(func() {
		c.cancel()
		c.engine.forget(c.id)
		c.logger.Info("call ended", "node_id", sess.CurrentNodeID, "reason", sess.EndReason, "turns", sess.Turns)
		if h := c.engine.hooks.OnCallEnd; h != nil {
			h(ctx, &domain.CallEvent{
				EventBase: c.engine.event(domain.EventCallEnd, c.id),
				NodeID:    sess.CurrentNodeID,
				Reason:    sess.EndReason,
			})
		}
	})
}

// run is the turn pipeline: decide, degrade on failure, speak, then commit
// unless the call ended meanwhile. Deciding and speaking share the turn
// timeout.
func (c *Call) run(parent context.Context, utterance string, opening bool) (*domain.TurnResult, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	prev := c.snapshot()
	if prev.Ended() || c.ctx.Err() != nil {
		return nil, domain.ErrCallEnded
	}
	if opening && len(prev.History) > 0 {
		return nil, nil
	}

	ctx, stop := c.bind(parent)
	defer stop()

	e := c.engine
	// The reply must start playing within the turn timeout, whatever the
	// decision and the tts failover cost.
	speechCtx, cancelSpeech := context.WithTimeout(ctx, e.turnTimeout)
	defer cancelSpeech()
	started := e.now()
	turn := prev.Turns
	if !opening {
		turn++
	}
	tr := e.svc.Latency.Start(c.id, turn)

	var pending [][]byte
	if !opening {
		pending = c.takePending()
	}

	var out *outcome
	var err error
	if opening {
		out, err = c.open(ctx, prev)
	} else {
		out, err = c.decide(ctx, prev, utterance, pending)
	}
	if ctx.Err() != nil {
		return nil, c.discard(ctx, pending)
	}
	if err != nil {
		c.requeue(pending)
		out = c.degrade(prev, utterance, opening, err)
	} else {
		c.failures = 0
	}

	tr.Mark(latency.FirstSentence)
	audio, serr := c.say(speechCtx, out.reply, tr)
	if ctx.Err() != nil {
		return nil, c.discard(ctx, nil)
	}
	speechFailed := serr != nil && !errors.Is(serr, errNoSpeech)
	if speechFailed {
		c.logger.Error("reply not spoken", "node_id", out.nodeID(), "err", serr)
		if !out.degraded {
			c.failures++
		}
		if c.failures >= e.maxFailures && out.endReason == "" {
			out.endReason = "speech_unavailable"
		}
	}

	next := c.commit(ctx, out, opening)

	result := &domain.TurnResult{
		CallID:         c.id,
		Turn:           next.Turns,
		PreviousNodeID: prev.CurrentNodeID,
		NodeID:         next.CurrentNodeID,
		Reply:          out.reply,
		Audio:          audio,
		Digits:         out.digits,
		Moved:          out.moved,
		Ended:          next.Ended(),
		Degraded:       out.degraded || speechFailed,
		Changed:        out.changed,
	}
	tr.Finish("node_id", result.NodeID, "moved", result.Moved, "degraded", result.Degraded)

	c.emit(ctx, prev, next, out, result, e.now().Sub(started))
	if next.Ended() {
		c.finish(ctx, next)
	}
	return result, nil
}

// discard drops an aborted turn. Nothing is written once cancellation
// is observed.
func (c *Call) discard(ctx context.Context, pending [][]byte) error {
	c.requeue(pending)
	if errors.Is(context.Cause(ctx), domain.ErrCallEnded) {
		c.logger.Info("turn discarded, call ended")
		return domain.ErrCallEnded
	}
	c.logger.Info("turn discarded", "err", ctx.Err())
	return ctx.Err()
}

// degrade replaces a failed turn with a canned line. Partial extraction is
// dropped; only the utterance and the spoken line are kept.
func (c *Call) degrade(prev *domain.CallSession, utterance string, opening bool, cause error) *outcome {
	e := c.engine
	next := prev.Clone()
	out := &outcome{next: next, userIdx: len(next.History), degraded: true}
	if node, ok := e.svc.Graph.Node(prev.CurrentNodeID); ok {
		out.from, out.to = node, node
	}
	if !opening {
		next.Append(domain.HistoryEntry{Role: domain.RoleUser, Text: utterance, NodeID: prev.CurrentNodeID, Timestamp: e.now()})
	}

	c.failures++
	switch {
	case errors.Is(cause, domain.ErrNodeNotFound):
		out.reply, out.endReason = e.lines.Closing, "missing_node"
	case c.failures >= e.maxFailures:
		out.reply, out.endReason = e.lines.Closing, "consecutive_failures"
	case errors.Is(cause, context.DeadlineExceeded):
		out.reply = e.lines.Stall
	default:
		out.reply = e.lines.Fallback
	}
	c.logger.Warn("turn degraded",
		"node_id", prev.CurrentNodeID,
		"failures", c.failures,
		"end_reason", out.endReason,
		"err", cause,
	)
	return out
}

// commit folds the outcome into the session, persists it and publishes it.
func (c *Call) commit(ctx context.Context, out *outcome, opening bool) *domain.CallSession {
	e := c.engine
	next := out.next

	c.mu.Lock()
	said := c.interjections
	c.interjections = nil
	c.mu.Unlock()
	if len(said) > 0 {
		next.History = slices.Insert(next.History, out.userIdx, said...)
	}

	if out.reply != "" {
		next.Append(domain.HistoryEntry{
			Role:      domain.RoleAgent,
			Text:      out.reply,
			NodeID:    out.nodeID(),
			Timestamp: e.now(),
		})
	}
	if !opening {
		next.Turns++
	}
	next.UpdatedAt = e.now()

	if out.endReason == "" && out.to != nil && out.to.IsTerminal() {
		out.endReason = "completed"
	}
	if out.endReason != "" {
		next.Status = domain.CallEnded
		next.EndReason = out.endReason
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.saveTimeout)
	defer cancel()
	if err := e.svc.Sessions.Save(saveCtx, c.id, next); err != nil {
		c.logger.Error("failed to persist call snapshot", "turn", next.Turns, "err", err)
	}

	c.mu.Lock()
	c.sess = next
	c.mu.Unlock()
	return next
}

func (c *Call) emit(ctx context.Context, prev, next *domain.CallSession, out *outcome, result *domain.TurnResult, took time.Duration) {
	h := c.engine.hooks
	for _, ev := range out.webhooks {
		if h.OnWebhookCall != nil {
			h.OnWebhookCall(ctx, ev)
		}
	}
	if out.moved {
		if out.from != nil && h.OnNodeLeave != nil {
			h.OnNodeLeave(ctx, c.nodeEvent(domain.EventNodeLeave, out.from))
		}
		if h.OnNodeEnter != nil {
			h.OnNodeEnter(ctx, c.nodeEvent(domain.EventNodeEnter, out.to))
		}
	}
	if h.OnTurnComplete != nil {
		h.OnTurnComplete(ctx, &domain.TurnEvent{
			EventBase: c.engine.event(domain.EventTurnComplete, c.id),
			Result:    result,
			Diff:      domain.Diff(prev, next),
			Duration:  took,
		})
	}
}

func (c *Call) nodeEvent(t domain.EventType, n *domain.Node) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: c.engine.event(t, c.id),
		NodeID:    n.ID,
		NodeKind:  n.Kind,
	}
}
