package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ParseError reports a node definition that could not be compiled.
type ParseError struct {
	NodeID string
	Err    error
}

func (e *ParseError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("parse node: %v", e.Err)
	}
	return fmt.Sprintf("parse node %q: %v", e.NodeID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser is responsible for converting raw bytes into a Node.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes one node definition. JSON and YAML are both accepted:
//
//	{id, type, data: {mode, content, digits, transitions, extract_variables,
//	 requires_specialist_team, webhook}}
//
// The type field selects which variant of domain.Node is populated.
func (p *Parser) Parse(data []byte) (*domain.Node, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Err: err}
	}
	if raw == nil {
		return nil, &ParseError{Err: errors.New("empty definition")}
	}
	return p.decode(raw)
}

func (p *Parser) decode(raw map[string]any) (*domain.Node, error) {
	var w wireNode
	if err := decodeInto(raw, &w); err != nil {
		id, _ := raw["id"].(string)
		return nil, &ParseError{NodeID: id, Err: err}
	}
	if w.ID == "" {
		return nil, &ParseError{Err: errors.New("node missing id")}
	}
	n, err := w.toDomain()
	if err != nil {
		return nil, &ParseError{NodeID: w.ID, Err: err}
	}
	return n, nil
}

// ParseFlow decodes a complete flow document. Two shapes are accepted: a
// bare list of nodes, or {start, nodes}. When start is absent the first
// node is the entry point.
func (p *Parser) ParseFlow(data []byte) (string, []domain.Node, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("parse flow: %w", err)
	}

	var start string
	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		start, _ = v["start"].(string)
		list, ok := v["nodes"].([]any)
		if !ok {
			return "", nil, errors.New("parse flow: document has no nodes list")
		}
		items = list
	default:
		return "", nil, fmt.Errorf("parse flow: unexpected document type %T", doc)
	}

	var errs []error
	nodes := make([]domain.Node, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("node at position %d is %T, not an object", i, item))
			continue
		}
		n, err := p.decode(m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		nodes = append(nodes, *n)
	}
	if err := errors.Join(errs...); err != nil {
		return "", nil, err
	}
	if start == "" && len(nodes) > 0 {
		start = nodes[0].ID
	}
	return start, nodes, nil
}

func decodeInto(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// wireNode mirrors the external flow definition format.
type wireNode struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Data wireData `json:"data"`
}

type wireData struct {
	Mode                   string              `json:"mode,omitempty"`
	Content                string              `json:"content,omitempty"`
	Digits                 string              `json:"digits,omitempty"`
	Transitions            []domain.Transition `json:"transitions,omitempty"`
	ExtractVariables       []wireVariable      `json:"extract_variables,omitempty"`
	RequiresSpecialistTeam bool                `json:"requires_specialist_team,omitempty"`
	Webhook                *domain.WebhookRef  `json:"webhook,omitempty"`
}

type wireVariable struct {
	Name           string `json:"name"`
	ExtractionHint string `json:"extraction_hint,omitempty"`
	Mandatory      bool   `json:"mandatory,omitempty"`
	PromptMessage  string `json:"prompt_message,omitempty"`
}

func (w wireNode) toDomain() (*domain.Node, error) {
	kind := domain.NodeKind(strings.ToLower(strings.TrimSpace(w.Type)))
	if kind == "" {
		kind = domain.KindConversation
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown node type %q", w.Type)
	}

	n := &domain.Node{
		ID:                     w.ID,
		Kind:                   kind,
		Transitions:            w.Data.Transitions,
		RequiresSpecialistTeam: w.Data.RequiresSpecialistTeam,
		Webhook:                w.Data.Webhook,
	}
	for i, t := range n.Transitions {
		if t.TargetNodeID == "" {
			return nil, fmt.Errorf("transition %d has no nextNode", i)
		}
	}
	for _, v := range w.Data.ExtractVariables {
		if v.Name == "" {
			return nil, errors.New("extract_variables entry without name")
		}
		n.ExtractVariables = append(n.ExtractVariables, domain.VariableSpec{
			Name:           v.Name,
			ExtractionHint: v.ExtractionHint,
			Mandatory:      v.Mandatory,
			Reprompt:       v.PromptMessage,
		})
	}
	if n.Webhook != nil && n.Webhook.Name == "" {
		return nil, errors.New("webhook without name")
	}

	switch kind {
	case domain.KindConversation:
		mode := domain.ContentMode(strings.ToLower(w.Data.Mode))
		switch mode {
		case "":
			mode = domain.ModeStatic
		case domain.ModeStatic, domain.ModePrompt:
		default:
			return nil, fmt.Errorf("unknown conversation mode %q", w.Data.Mode)
		}
		n.Conversation = &domain.ConversationData{Mode: mode, Content: w.Data.Content}
	case domain.KindScript:
		n.Script = &domain.ScriptData{Content: w.Data.Content}
	case domain.KindPressDigit:
		if w.Data.Digits == "" {
			return nil, errors.New("press_digit node without digits")
		}
		n.PressDigit = &domain.PressDigitData{Digits: w.Data.Digits, Content: w.Data.Content}
	case domain.KindEnding:
		if len(n.Transitions) > 0 {
			return nil, errors.New("ending node cannot declare transitions")
		}
		n.Ending = &domain.EndingData{Content: w.Data.Content}
	}
	return n, nil
}

func fromDomain(n *domain.Node) wireNode {
	w := wireNode{
		ID:   n.ID,
		Type: string(n.Kind),
		Data: wireData{
			Content:                n.Content(),
			Digits:                 n.Digits(),
			Transitions:            n.Transitions,
			RequiresSpecialistTeam: n.RequiresSpecialistTeam,
			Webhook:                n.Webhook,
		},
	}
	if n.Kind == domain.KindConversation {
		w.Data.Mode = string(n.Mode())
	}
	for _, v := range n.ExtractVariables {
		w.Data.ExtractVariables = append(w.Data.ExtractVariables, wireVariable{
			Name:           v.Name,
			ExtractionHint: v.ExtractionHint,
			Mandatory:      v.Mandatory,
			PromptMessage:  v.Reprompt,
		})
	}
	return w
}
