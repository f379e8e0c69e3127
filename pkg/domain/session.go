package domain

import "time"

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// CallStatus is the lifecycle state of a call session.
type CallStatus string

const (
	CallActive CallStatus = "active"
	CallEnded  CallStatus = "ended"
)

// HistoryEntry is one utterance in the conversation.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`

	// Interjection marks agent speech produced by the barge-in monitor.
	Interjection bool `json:"interjection,omitempty"`
}

// CallSession is the unit of ownership for one live call.
// It is mutated only by the orchestrator driving that call.
type CallSession struct {
	ID            string         `json:"id"`
	CurrentNodeID string         `json:"current_node_id"`
	History       []HistoryEntry `json:"history"`
	Variables     Variables      `json:"variables"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Status        CallStatus     `json:"status"`
	EndReason     string         `json:"end_reason,omitempty"`

	// Turns counts committed user turns.
	Turns int `json:"turns"`
}

// NewCallSession creates a clean session positioned at the start node.
func NewCallSession(id, startNodeID string, now time.Time) *CallSession {
	return &CallSession{
		ID:            id,
		CurrentNodeID: startNodeID,
		History:       []HistoryEntry{},
		Variables:     make(Variables),
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        CallActive,
	}
}

// Append adds an entry to the history. History is append-only.
func (s *CallSession) Append(e HistoryEntry) {
	s.History = append(s.History, e)
}

// Ended reports whether the call is over.
func (s *CallSession) Ended() bool {
	return s.Status == CallEnded
}

// Clone returns a deep copy of the session.
func (s *CallSession) Clone() *CallSession {
	c := *s
	c.History = make([]HistoryEntry, len(s.History))
	copy(c.History, s.History)
	if s.Variables != nil {
		c.Variables = s.Variables.Clone()
	} else {
		c.Variables = make(Variables)
	}
	return &c
}

// RecentTurns returns at most the last n history entries.
func (s *CallSession) RecentTurns(n int) []HistoryEntry {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	out := make([]HistoryEntry, n)
	copy(out, s.History[len(s.History)-n:])
	return out
}

// LastAgentEntry returns the most recent agent utterance, which tells the
// evaluator what was asked.
func (s *CallSession) LastAgentEntry() (HistoryEntry, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAgent {
			return s.History[i], true
		}
	}
	return HistoryEntry{}, false
}
