package loam

// NodeMetadata is the frontmatter of a node document. The markdown body
// becomes the node content.
type NodeMetadata struct {
	ID                     string             `json:"id" mapstructure:"id"`
	Type                   string             `json:"type" mapstructure:"type"`
	Mode                   string             `json:"mode,omitempty" mapstructure:"mode"`
	Digits                 string             `json:"digits,omitempty" mapstructure:"digits"`
	Transitions            []LoaderTransition `json:"transitions" mapstructure:"transitions"`
	ExtractVariables       []LoaderVariable   `json:"extract_variables,omitempty" mapstructure:"extract_variables"`
	RequiresSpecialistTeam bool               `json:"requires_specialist_team,omitempty" mapstructure:"requires_specialist_team"`
	Webhook                *LoaderWebhook     `json:"webhook,omitempty" mapstructure:"webhook"`
}

// LoaderTransition accepts the canonical nextNode key and the shorter "to".
type LoaderTransition struct {
	ID             string   `json:"id,omitempty" mapstructure:"id"`
	Condition      string   `json:"condition" mapstructure:"condition"`
	NextNode       string   `json:"nextNode,omitempty" mapstructure:"nextNode"`
	To             string   `json:"to,omitempty" mapstructure:"to"`
	CheckVariables []string `json:"check_variables,omitempty" mapstructure:"check_variables"`
}

type LoaderVariable struct {
	Name           string `json:"name" mapstructure:"name"`
	ExtractionHint string `json:"extraction_hint,omitempty" mapstructure:"extraction_hint"`
	Mandatory      bool   `json:"mandatory,omitempty" mapstructure:"mandatory"`
	PromptMessage  string `json:"prompt_message,omitempty" mapstructure:"prompt_message"`
}

type LoaderWebhook struct {
	Name          string   `json:"name" mapstructure:"name"`
	SendVariables []string `json:"send_variables,omitempty" mapstructure:"send_variables"`
}
