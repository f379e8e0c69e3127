// Package prompt builds the model requests used to generate agent speech.
package prompt

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Persona is the fixed framing of every generated reply.
type Persona struct {
	AgentName string
	Company   string
	// Style is free-form guidance such as "warm, concise".
	Style string
}

func (p Persona) intro() string {
	var b strings.Builder
	b.WriteString("You are a phone agent")
	if p.AgentName != "" {
		fmt.Fprintf(&b, " named %s", p.AgentName)
	}
	if p.Company != "" {
		fmt.Fprintf(&b, " calling on behalf of %s", p.Company)
	}
	b.WriteString(". Speak in short, natural sentences suitable for text to speech. Never use lists or markdown.")
	if p.Style != "" {
		fmt.Fprintf(&b, " Style: %s.", p.Style)
	}
	return b.String()
}

// Goal asks for a reply that advances the node goal.
// stayed tells the model the caller's message did not move the conversation
// forward, so it should acknowledge it and steer back to the goal.
func Goal(p Persona, goal string, stayed bool) string {
	var b strings.Builder
	b.WriteString(p.intro())
	fmt.Fprintf(&b, "\n\nYour goal right now: %s\n", goal)
	if stayed {
		b.WriteString("The caller's last message did not answer you. Briefly acknowledge what they said, then steer back to your goal.\n")
	}
	b.WriteString("Reply with one or two sentences.")
	return b.String()
}

// Synthesis asks for a reply informed by specialist notes.
func Synthesis(p Persona, goal string, notes []domain.SpecialistResult) string {
	var b strings.Builder
	b.WriteString(Goal(p, goal, false))
	b.WriteString("\n\nAnalyst notes about the caller's last message:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s: %s\n", n.Kind, n.Value)
	}
	b.WriteString("Use the notes that help; ignore the rest.")
	return b.String()
}

// Interjection asks for a short polite interruption.
func Interjection(p Persona, goal string) string {
	return p.intro() + "\n\nThe caller has been talking for a while and is drifting. " +
		"Write ONE short sentence (under 15 words) that politely cuts in and steers back to: " + goal
}

// Messages turns history plus the latest utterance into chat messages.
func Messages(recent []domain.HistoryEntry, utterance string) []ports.Message {
	msgs := make([]ports.Message, 0, len(recent)+1)
	for _, h := range recent {
		msgs = append(msgs, ports.Message{Role: role(h.Role), Content: h.Text})
	}
	if strings.TrimSpace(utterance) != "" {
		msgs = append(msgs, ports.Message{Role: "user", Content: utterance})
	}
	return msgs
}

func role(r domain.Role) string {
	if r == domain.RoleAgent {
		return "assistant"
	}
	return "user"
}
