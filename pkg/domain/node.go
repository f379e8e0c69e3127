package domain

// NodeKind is the discriminant of the Node tagged union.
type NodeKind string

const (
	// KindConversation speaks either static text or a reply generated from a goal.
	KindConversation NodeKind = "conversation"
	// KindScript speaks its content verbatim.
	KindScript NodeKind = "script"
	// KindPressDigit sends DTMF digits to the far end (IVR navigation).
	KindPressDigit NodeKind = "press_digit"
	// KindEnding speaks a farewell and terminates the call.
	KindEnding NodeKind = "ending"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindConversation, KindScript, KindPressDigit, KindEnding:
		return true
	}
	return false
}

// ContentMode tells how a node's content becomes the agent reply.
type ContentMode string

const (
	// ModeStatic renders the content template as-is.
	ModeStatic ContentMode = "static"
	// ModePrompt treats the content as a goal for the language model.
	ModePrompt ContentMode = "prompt"
)

// Node represents one state in the conversation flow.
// Exactly one of the variant pointers is set, selected by Kind.
type Node struct {
	ID   string   `json:"id" yaml:"id"`
	Kind NodeKind `json:"type" yaml:"type"`

	// Transitions are evaluated top to bottom; the first satisfied one wins.
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`

	ExtractVariables []VariableSpec `json:"extract_variables,omitempty" yaml:"extract_variables,omitempty"`

	// RequiresSpecialistTeam routes reply generation through the concurrent specialist pipeline.
	RequiresSpecialistTeam bool `json:"requires_specialist_team,omitempty" yaml:"requires_specialist_team,omitempty"`

	// Webhook is the integration called during extraction, if any.
	Webhook *WebhookRef `json:"webhook,omitempty" yaml:"webhook,omitempty"`

	Conversation *ConversationData `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	Script       *ScriptData       `json:"script,omitempty" yaml:"script,omitempty"`
	PressDigit   *PressDigitData   `json:"press_digit,omitempty" yaml:"press_digit,omitempty"`
	Ending       *EndingData       `json:"ending,omitempty" yaml:"ending,omitempty"`
}

// ConversationData is the variant payload of a conversation node.
type ConversationData struct {
	Mode    ContentMode `json:"mode" yaml:"mode"`
	Content string      `json:"content" yaml:"content"`
}

// ScriptData is the variant payload of a script node.
type ScriptData struct {
	Content string `json:"content" yaml:"content"`
}

// PressDigitData is the variant payload of a press_digit node.
type PressDigitData struct {
	Digits  string `json:"digits" yaml:"digits"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// EndingData is the variant payload of an ending node.
type EndingData struct {
	Content string `json:"content" yaml:"content"`
}

// WebhookRef names an external integration and the session variables sent to it.
type WebhookRef struct {
	Name          string   `json:"name" yaml:"name"`
	SendVariables []string `json:"send_variables,omitempty" yaml:"send_variables,omitempty"`
}

// Content returns the template text or goal of the active variant.
func (n *Node) Content() string {
	switch n.Kind {
	case KindConversation:
		if n.Conversation != nil {
			return n.Conversation.Content
		}
	case KindScript:
		if n.Script != nil {
			return n.Script.Content
		}
	case KindPressDigit:
		if n.PressDigit != nil {
			return n.PressDigit.Content
		}
	case KindEnding:
		if n.Ending != nil {
			return n.Ending.Content
		}
	}
	return ""
}

// Mode returns how the content is turned into speech.
// Only conversation nodes may generate; every other kind is static.
func (n *Node) Mode() ContentMode {
	if n.Kind == KindConversation && n.Conversation != nil && n.Conversation.Mode == ModePrompt {
		return ModePrompt
	}
	return ModeStatic
}

// IsTerminal reports whether reaching this node ends the call.
func (n *Node) IsTerminal() bool {
	return n.Kind == KindEnding
}

// Digits returns the DTMF sequence of a press_digit node.
func (n *Node) Digits() string {
	if n.Kind == KindPressDigit && n.PressDigit != nil {
		return n.PressDigit.Digits
	}
	return ""
}

// Variable returns the extraction spec with the given name.
func (n *Node) Variable(name string) (VariableSpec, bool) {
	for _, v := range n.ExtractVariables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableSpec{}, false
}
