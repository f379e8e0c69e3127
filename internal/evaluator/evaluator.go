// Package evaluator decides which transition a user utterance fires.
//
// Evaluation is layered: deterministic variable gates first, then a
// deterministic refusal and scheduling guard, then semantic classification
// of the remaining conditions. Transition order is a priority list.
package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// NoMatch is returned when no transition is satisfied.
const NoMatch = ports.NoMatch

// Reason explains a Decision.
type Reason string

const (
	ReasonMatched    Reason = "matched"
	ReasonAgreement  Reason = "agreement"
	ReasonNoMatch    Reason = "no_match"
	ReasonNoEdges    Reason = "no_transitions"
	ReasonGated      Reason = "gated"
	ReasonSuppressed Reason = "suppressed"
	ReasonClassifier Reason = "classifier_error"
)

// Decision is the outcome of evaluating one utterance.
type Decision struct {
	// Index is the position in the node's transition list, or NoMatch.
	Index  int
	Reason Reason
	Err    error
}

// Matched reports whether a transition fired.
func (d Decision) Matched() bool {
	return d.Index != NoMatch
}

// Target returns the destination node id for a matched decision.
func (d Decision) Target(node *domain.Node) string {
	if !d.Matched() {
		return ""
	}
	return node.Transitions[d.Index].TargetNodeID
}

// Evaluator selects the transition for the latest utterance.
type Evaluator struct {
	classifier   ports.ConditionClassifier
	contextTurns int
	timeout      time.Duration
	logger       *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithContextTurns sets how many prior history entries the classifier sees.
func WithContextTurns(n int) Option {
	return func(e *Evaluator) {
		e.contextTurns = n
	}
}

// WithTimeout bounds the classifier call.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithLogger configures the evaluator logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// New creates an Evaluator backed by a semantic classifier.
func New(classifier ports.ConditionClassifier, opts ...Option) *Evaluator {
	e := &Evaluator{
		classifier:   classifier,
		contextTurns: 2,
		timeout:      1500 * time.Millisecond,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides the transition for utterance on node.
// prior holds the history before the utterance; vars the current variables.
// A classifier failure is reported in Decision.Err and treated as no match,
// unless the utterance is a bare agreement and an agreement condition is open.
func (e *Evaluator) Evaluate(ctx context.Context, node *domain.Node, utterance string, prior []domain.HistoryEntry, vars domain.Variables) Decision {
	if len(node.Transitions) == 0 {
		return Decision{Index: NoMatch, Reason: ReasonNoEdges}
	}

	eligible := make([]int, 0, len(node.Transitions))
	for i, t := range node.Transitions {
		if gateOpen(t, vars) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return Decision{Index: NoMatch, Reason: ReasonGated}
	}

	eligible = e.guard(node, utterance, vars, eligible)
	if len(eligible) == 0 {
		return Decision{Index: NoMatch, Reason: ReasonSuppressed}
	}

	conditions := make([]string, len(eligible))
	for i, idx := range eligible {
		conditions[i] = node.Transitions[idx].Condition
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	got, err := e.classifier.Classify(cctx, ports.ClassifyRequest{
		Utterance:  utterance,
		Conditions: conditions,
		Context:    tail(prior, e.contextTurns),
	})
	if err != nil {
		e.logger.Warn("condition classification failed", "node_id", node.ID, "err", err)
		return e.agreementFallback(node, utterance, eligible, Decision{Index: NoMatch, Reason: ReasonClassifier, Err: err})
	}
	if got < 0 || got >= len(eligible) {
		return Decision{Index: NoMatch, Reason: ReasonNoMatch}
	}
	return Decision{Index: eligible[got], Reason: ReasonMatched}
}

// guard removes conditions that must not fire for this utterance regardless
// of what the classifier says.
func (e *Evaluator) guard(node *domain.Node, utterance string, vars domain.Variables, eligible []int) []int {
	refusal := IsRefusal(utterance)
	scheduling := IsSchedulingCommitment(utterance) && pendingQuestion(node, vars)
	if !refusal && !scheduling {
		return eligible
	}

	kept := eligible[:0:0]
	for _, idx := range eligible {
		cond := node.Transitions[idx].Condition
		if refusal && RequestsInformation(cond) {
			continue
		}
		if scheduling && IsSchedulingCondition(cond) {
			continue
		}
		kept = append(kept, idx)
	}
	if len(kept) < len(eligible) {
		e.logger.Debug("transitions suppressed by guard",
			"node_id", node.ID,
			"refusal", refusal,
			"scheduling", scheduling,
			"kept", len(kept),
		)
	}
	return kept
}

// agreementFallback lets a plain agreement phrase satisfy the first
// agreement condition while the classifier is unavailable. A no-match
// answer from a working classifier always stands.
func (e *Evaluator) agreementFallback(node *domain.Node, utterance string, eligible []int, miss Decision) Decision {
	if !IsAgreement(utterance) {
		return miss
	}
	for _, idx := range eligible {
		if IsAgreementCondition(node.Transitions[idx].Condition) {
			return Decision{Index: idx, Reason: ReasonAgreement, Err: miss.Err}
		}
	}
	return miss
}

func gateOpen(t domain.Transition, vars domain.Variables) bool {
	for _, name := range t.RequiredVariables {
		if !vars.Present(name) {
			return false
		}
	}
	return true
}

// pendingQuestion reports whether the node still waits for a mandatory answer.
func pendingQuestion(node *domain.Node, vars domain.Variables) bool {
	for _, v := range node.ExtractVariables {
		if v.Mandatory && !vars.Present(v.Name) {
			return true
		}
	}
	return false
}

func tail(h []domain.HistoryEntry, n int) []domain.HistoryEntry {
	if n <= 0 || len(h) == 0 {
		return nil
	}
	if n > len(h) {
		n = len(h)
	}
	return h[len(h)-n:]
}
