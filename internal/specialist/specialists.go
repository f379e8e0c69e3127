package specialist

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Intent labels what the caller is trying to do.
type Intent struct {
	llm ports.LLM
}

// NewIntent creates the intent specialist.
func NewIntent(llm ports.LLM) *Intent {
	return &Intent{llm: llm}
}

func (s *Intent) Kind() domain.SpecialistKind { return domain.SpecialistIntent }

func (s *Intent) Analyze(ctx context.Context, in Input) (string, error) {
	out, err := s.llm.Complete(ctx, ports.CompletionRequest{
		System:    "Name the caller's intent in at most six words. No punctuation.",
		Messages:  []ports.Message{{Role: "user", Content: in.Utterance}},
		MaxTokens: 16,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrSkipped
	}
	return out, nil
}

// Styles is the fixed communication-style taxonomy.
var Styles = []string{"analytical", "amiable", "driver", "expressive"}

// Style classifies how the caller communicates.
type Style struct {
	llm ports.LLM
}

// NewStyle creates the communication-style specialist.
func NewStyle(llm ports.LLM) *Style {
	return &Style{llm: llm}
}

func (s *Style) Kind() domain.SpecialistKind { return domain.SpecialistStyle }

func (s *Style) Analyze(ctx context.Context, in Input) (string, error) {
	out, err := s.llm.Complete(ctx, ports.CompletionRequest{
		System: "Classify the caller's communication style as exactly one word from: " +
			strings.Join(Styles, ", ") + ".",
		Messages:  []ports.Message{{Role: "user", Content: in.Utterance}},
		MaxTokens: 4,
	})
	if err != nil {
		return "", err
	}
	word := strings.ToLower(strings.Trim(strings.TrimSpace(out), ".!\"'"))
	for _, st := range Styles {
		if word == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("style %q outside taxonomy", out)
}

// Objection is one entry of the tactic taxonomy.
type Objection struct {
	Name    string
	Pattern *regexp.Regexp
	Tactic  string
}

// DefaultObjections is the built-in objection taxonomy.
var DefaultObjections = []Objection{
	{
		Name:    "price",
		Pattern: regexp.MustCompile(`(?i)\b(too expensive|expensive|cost|price|afford|money|cheaper)\b`),
		Tactic:  "acknowledge the concern, then reframe around value and break the cost down",
	},
	{
		Name:    "timing",
		Pattern: regexp.MustCompile(`(?i)\b(not now|busy|bad time|call (me )?back|later)\b`),
		Tactic:  "respect their time and offer a specific short follow-up slot",
	},
	{
		Name:    "trust",
		Pattern: regexp.MustCompile(`(?i)\b(scam|how did you get my number|who gave you|spam|legit)\b`),
		Tactic:  "be transparent about who you are and why you are calling",
	},
	{
		Name:    "competitor",
		Pattern: regexp.MustCompile(`(?i)\b(already have|already use|using another|other company|current provider)\b`),
		Tactic:  "acknowledge their choice and ask what they would improve about it",
	},
	{
		Name:    "authority",
		Pattern: regexp.MustCompile(`(?i)\b(my (wife|husband|partner|boss|manager)|talk to my|not my decision)\b`),
		Tactic:  "offer to include the decision maker in a follow-up",
	},
	{
		Name:    "need",
		Pattern: regexp.MustCompile(`(?i)\b(not interested|don't need|do not need|no need)\b`),
		Tactic:  "ask one light discovery question before accepting the no",
	},
}

// Tactic matches the utterance against an objection taxonomy.
type Tactic struct {
	objections []Objection
}

// NewTactic creates the tactic specialist. Nil uses DefaultObjections.
func NewTactic(objections []Objection) *Tactic {
	if objections == nil {
		objections = DefaultObjections
	}
	return &Tactic{objections: objections}
}

func (s *Tactic) Kind() domain.SpecialistKind { return domain.SpecialistTactic }

func (s *Tactic) Analyze(ctx context.Context, in Input) (string, error) {
	for _, o := range s.objections {
		if o.Pattern.MatchString(in.Utterance) {
			return o.Name + " objection: " + o.Tactic, nil
		}
	}
	return "", ErrSkipped
}

// Knowledge looks up facts for factual questions.
type Knowledge struct {
	kb    ports.KnowledgeBase
	limit int
}

// NewKnowledge creates the knowledge lookup specialist.
func NewKnowledge(kb ports.KnowledgeBase) *Knowledge {
	return &Knowledge{kb: kb, limit: 2}
}

func (s *Knowledge) Kind() domain.SpecialistKind { return domain.SpecialistKnowledge }

func (s *Knowledge) Analyze(ctx context.Context, in Input) (string, error) {
	if !IsFactualQuestion(in.Utterance) {
		return "", ErrSkipped
	}
	hits, err := s.kb.Search(ctx, in.Utterance, s.limit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", ErrSkipped
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, strings.TrimSpace(h.Text))
	}
	return strings.Join(parts, " | "), nil
}

var (
	questionStart = regexp.MustCompile(`^(what|when|where|which|who|why|how|is|are|does|do|can|could|will|would|should|did)\b`)
	chitChat      = map[string]bool{
		"how are you": true, "how's it going": true, "what's up": true, "who is this": true,
		"who's this": true, "is this a robot": true, "are you a robot": true, "can you hear me": true,
	}
)

// IsFactualQuestion is the cheap pre-filter in front of knowledge lookup.
// Acknowledgements and small talk never reach the knowledge base.
func IsFactualQuestion(utterance string) bool {
	u := strings.ToLower(strings.TrimSpace(utterance))
	u = strings.TrimRight(u, "?!. ")
	if chitChat[u] {
		return false
	}
	if len(strings.Fields(u)) < 3 {
		return false
	}
	return questionStart.MatchString(u) || strings.HasSuffix(strings.TrimSpace(utterance), "?")
}

// Default returns the four standard specialists. kb may be nil, in which
// case knowledge lookup is left out.
func Default(llm ports.LLM, kb ports.KnowledgeBase) []Specialist {
	team := []Specialist{NewIntent(llm), NewStyle(llm), NewTactic(nil)}
	if kb != nil {
		team = append(team, NewKnowledge(kb))
	}
	return team
}
