package dsl

import "github.com/aretw0/callflow/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node domain.Node
}

func (n *NodeBuilder) setKind(kind domain.NodeKind) {
	if n.node.Kind == kind {
		return
	}
	n.node.Kind = kind
	n.node.Conversation, n.node.Script, n.node.PressDigit, n.node.Ending = nil, nil, nil, nil
	switch kind {
	case domain.KindConversation:
		n.node.Conversation = &domain.ConversationData{Mode: domain.ModeStatic}
	case domain.KindScript:
		n.node.Script = &domain.ScriptData{}
	case domain.KindPressDigit:
		n.node.PressDigit = &domain.PressDigitData{}
	case domain.KindEnding:
		n.node.Ending = &domain.EndingData{}
	}
}

// Say sets the text (or goal) of the node.
func (n *NodeBuilder) Say(content string) *NodeBuilder {
	switch n.node.Kind {
	case domain.KindConversation:
		n.node.Conversation.Content = content
	case domain.KindScript:
		n.node.Script.Content = content
	case domain.KindPressDigit:
		n.node.PressDigit.Content = content
	case domain.KindEnding:
		n.node.Ending.Content = content
	}
	return n
}

// Branch adds a transition taken when the caller's utterance satisfies
// condition. Branches are evaluated in the order they are added.
func (n *NodeBuilder) Branch(condition, target string) *NodeBuilder {
	n.node.Transitions = append(n.node.Transitions, domain.Transition{
		Condition:    condition,
		TargetNodeID: target,
	})
	return n
}

// Requires gates the last added branch on variables being present.
func (n *NodeBuilder) Requires(vars ...string) *NodeBuilder {
	if len(n.node.Transitions) == 0 {
		return n
	}
	t := &n.node.Transitions[len(n.node.Transitions)-1]
	t.RequiredVariables = append(t.RequiredVariables, vars...)
	return n
}

// Extract captures a variable from what the caller says.
func (n *NodeBuilder) Extract(name, hint string) *NodeBuilder {
	n.node.ExtractVariables = append(n.node.ExtractVariables, domain.VariableSpec{
		Name:           name,
		ExtractionHint: hint,
	})
	return n
}

// Mandatory captures a variable the call cannot move on without; reprompt
// is asked while it is missing.
func (n *NodeBuilder) Mandatory(name, hint, reprompt string) *NodeBuilder {
	n.node.ExtractVariables = append(n.node.ExtractVariables, domain.VariableSpec{
		Name:           name,
		ExtractionHint: hint,
		Mandatory:      true,
		Reprompt:       reprompt,
	})
	return n
}

// Webhook calls the named integration during extraction, sending vars.
func (n *NodeBuilder) Webhook(name string, vars ...string) *NodeBuilder {
	n.node.Webhook = &domain.WebhookRef{Name: name, SendVariables: vars}
	return n
}

// Specialists routes reply generation through the specialist team.
func (n *NodeBuilder) Specialists() *NodeBuilder {
	n.node.RequiresSpecialistTeam = true
	return n
}

// Build returns a copy of the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	node := n.node
	node.Transitions = append([]domain.Transition(nil), n.node.Transitions...)
	node.ExtractVariables = append([]domain.VariableSpec(nil), n.node.ExtractVariables...)
	if c := n.node.Conversation; c != nil {
		cp := *c
		node.Conversation = &cp
	}
	if s := n.node.Script; s != nil {
		cp := *s
		node.Script = &cp
	}
	if p := n.node.PressDigit; p != nil {
		cp := *p
		node.PressDigit = &cp
	}
	if e := n.node.Ending; e != nil {
		cp := *e
		node.Ending = &cp
	}
	return node
}
