package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/extractor"
	"github.com/aretw0/callflow/internal/prompt"
	"github.com/aretw0/callflow/internal/specialist"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// outcome is what a turn decided, before it is spoken and committed.
type outcome struct {
	next    *domain.CallSession
	userIdx int

	from, to *domain.Node
	moved    bool
	reason   evaluator.Reason

	reply    string
	digits   string
	changed  []string
	results  []domain.SpecialistResult
	webhooks []*domain.WebhookEvent

	degraded  bool
	endReason string
}

// nodeID is the node the reply is attributed to.
func (o *outcome) nodeID() string {
	if o.to != nil {
		return o.to.ID
	}
	return o.next.CurrentNodeID
}

// open renders the start node as the first agent utterance.
func (c *Call) open(ctx context.Context, prev *domain.CallSession) (out *outcome, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.engine.decideBudget())
	defer cancel()
	defer c.recoverTurn(&out, &err)

	node, ok := c.engine.svc.Graph.Node(prev.CurrentNodeID)
	if !ok {
		return nil, fmt.Errorf("start node %q: %w", prev.CurrentNodeID, domain.ErrNodeNotFound)
	}
	next := prev.Clone()
	out = &outcome{next: next, userIdx: len(next.History), to: node, moved: true, digits: node.Digits()}
	out.reply, out.results, err = c.compose(ctx, node, next, "", nil, false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decide runs extraction, evaluation and reply generation on a private
// copy of the session. It gets the turn budget minus the speech reserve.
func (c *Call) decide(ctx context.Context, prev *domain.CallSession, utterance string, pending [][]byte) (out *outcome, err error) {
	e := c.engine
	ctx, cancel := context.WithTimeout(ctx, e.decideBudget())
	defer cancel()
	defer c.recoverTurn(&out, &err)

	g := e.svc.Graph
	node, ok := g.Node(prev.CurrentNodeID)
	if !ok {
		return nil, fmt.Errorf("current node %q: %w", prev.CurrentNodeID, domain.ErrNodeNotFound)
	}

	next := prev.Clone()
	prior := next.RecentTurns(e.contextTurns)
	out = &outcome{next: next, userIdx: len(next.History), from: node, to: node}
	next.Append(domain.HistoryEntry{
		Role:      domain.RoleUser,
		Text:      utterance,
		NodeID:    node.ID,
		Timestamp: e.now(),
	})

	before := next.Variables.Clone()
	speech := e.svc.Extractor.FromSpeech(ctx, node, utterance, prior, next.Variables)
	extractor.Apply(next.Variables, speech.Updates)
	out.webhooks = c.extractWebhooks(ctx, node, next, pending)
	out.changed = domain.ChangedKeys(domain.DiffVariables(before, next.Variables))
	if len(out.changed) > 0 {
		c.logger.Debug("variables changed", "node_id", node.ID, "changed", out.changed)
	}

	d := e.svc.Evaluator.Evaluate(ctx, node, utterance, prior, next.Variables)
	out.reason = d.Reason
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case d.Matched():
		target, ok := g.Node(d.Target(node))
		if !ok {
			return nil, fmt.Errorf("transition target %q: %w", d.Target(node), domain.ErrNodeNotFound)
		}
		out.to, out.moved, out.digits = target, true, target.Digits()
		next.CurrentNodeID = target.ID
		c.logger.Debug("transition", "from", node.ID, "to", target.ID, "reason", d.Reason)
		out.reply, out.results, err = c.compose(ctx, target, next, utterance, prior, false)

	case missingReprompt(node, next.Variables) != "":
		out.reply = Render(missingReprompt(node, next.Variables), next.Variables)
		c.logger.Debug("reprompting for mandatory variable", "node_id", node.ID, "reason", d.Reason)

	default:
		c.logger.Debug("no transition matched, continuing", "node_id", node.ID, "reason", d.Reason)
		out.reply, out.results, err = c.compose(ctx, node, next, utterance, prior, true)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Call) recoverTurn(out **outcome, err *error) {
	if r := recover(); r != nil {
		c.logger.Error("turn panicked", "panic", r, "stack", string(debug.Stack()))
		*out = nil
		*err = fmt.Errorf("turn panic: %v", r)
	}
}

// compose produces the reply for node. Static content is rendered as-is on
// entry; prompt content, and any node the caller did not move on from, is a
// goal for generation. A static node falls back to its own text when
// generation fails, which re-asks the question.
func (c *Call) compose(ctx context.Context, node *domain.Node, sess *domain.CallSession, utterance string, prior []domain.HistoryEntry, stayed bool) (string, []domain.SpecialistResult, error) {
	e := c.engine
	goal := Render(node.Content(), sess.Variables)
	static := node.Mode() == domain.ModeStatic

	if static && !stayed {
		return goal, nil, nil
	}
	if goal == "" {
		return "", nil, fmt.Errorf("node %s has no content to continue from", node.ID)
	}

	if node.RequiresSpecialistTeam && e.svc.Team != nil {
		reply, err := e.svc.Team.Respond(ctx, specialist.Input{
			Node:      node,
			Utterance: utterance,
			Recent:    prior,
			Vars:      sess.Variables,
		}, goal)
		if err == nil && strings.TrimSpace(reply.Text) != "" {
			return strings.TrimSpace(reply.Text), reply.Results, nil
		}
		return c.fallbackText(ctx, node, goal, static, err)
	}

	if e.svc.LLM == nil {
		return goal, nil, nil
	}
	text, err := e.svc.LLM.Complete(ctx, ports.CompletionRequest{
		System:      prompt.Goal(e.persona, goal, stayed),
		Messages:    prompt.Messages(prior, utterance),
		MaxTokens:   120,
		Temperature: 0.4,
	})
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil, nil
	}
	return c.fallbackText(ctx, node, goal, static, err)
}

func (c *Call) fallbackText(ctx context.Context, node *domain.Node, goal string, static bool, err error) (string, []domain.SpecialistResult, error) {
	if err == nil {
		err = errors.New("empty reply")
	}
	if static && ctx.Err() == nil {
		c.logger.Warn("generation failed, repeating node content", "node_id", node.ID, "err", err)
		return goal, nil, nil
	}
	return "", nil, fmt.Errorf("generate reply for %s: %w", node.ID, err)
}

// extractWebhooks calls the node integration and unwraps queued payloads.
// A failing source leaves its variables unset and the turn continues.
func (c *Call) extractWebhooks(ctx context.Context, node *domain.Node, sess *domain.CallSession, pending [][]byte) []*domain.WebhookEvent {
	e := c.engine
	var events []*domain.WebhookEvent

	if node.Webhook != nil && node.Webhook.Name != "" {
		ev := &domain.WebhookEvent{
			EventBase: e.event(domain.EventWebhookCall, c.id),
			NodeID:    node.ID,
			Name:      node.Webhook.Name,
		}
		updates, err := e.svc.Extractor.CallWebhook(ctx, node, sess.Variables)
		if err != nil {
			ev.IsError = true
			c.logger.Warn("webhook failed, variables left unset", "node_id", node.ID, "webhook", node.Webhook.Name, "err", err)
		} else {
			ev.Updates = updates
			extractor.Apply(sess.Variables, updates)
		}
		events = append(events, ev)
	}

	for _, body := range pending {
		ev := &domain.WebhookEvent{
			EventBase: e.event(domain.EventWebhookCall, c.id),
			NodeID:    node.ID,
			Name:      "delivered",
		}
		updates, err := extractor.ParseWebhookResponse(body)
		if err != nil {
			c.logger.Warn("skipping webhook payload", "node_id", node.ID, "malformed", extractor.IsMalformed(err), "err", err)
		}
		if updates == nil {
			ev.IsError = true
		} else {
			ev.Updates = updates
			extractor.Apply(sess.Variables, updates)
		}
		events = append(events, ev)
	}
	return events
}

// missingReprompt returns the reprompt of the first mandatory variable of
// node that is still missing.
func missingReprompt(node *domain.Node, vars domain.Variables) string {
	for _, spec := range node.ExtractVariables {
		if spec.Mandatory && spec.Reprompt != "" && !vars.Present(spec.Name) {
			return spec.Reprompt
		}
	}
	return ""
}
