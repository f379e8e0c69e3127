package domain

// Transition is a conditionally fired edge between two nodes.
type Transition struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Condition is a natural-language predicate over the user's latest utterance.
	// It is evaluated semantically, never by keyword.
	Condition string `json:"condition" yaml:"condition"`

	TargetNodeID string `json:"nextNode" yaml:"nextNode"`

	// RequiredVariables gate the transition: it is eligible only when every
	// named session variable holds a present value.
	RequiredVariables []string `json:"check_variables,omitempty" yaml:"check_variables,omitempty"`
}

// Gated reports whether the transition carries a variable gate.
func (t Transition) Gated() bool {
	return len(t.RequiredVariables) > 0
}

// VariableSpec describes one value the agent tries to capture on a node.
type VariableSpec struct {
	Name           string `json:"name" yaml:"name"`
	ExtractionHint string `json:"extraction_hint,omitempty" yaml:"extraction_hint,omitempty"`
	Mandatory      bool   `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
	// Reprompt is asked when a mandatory variable could not be captured.
	Reprompt string `json:"prompt_message,omitempty" yaml:"prompt_message,omitempty"`
}
