package domain

import (
	"reflect"
	"sort"
)

// SessionDiff represents the changes a turn made to a call session.
type SessionDiff struct {
	CallID string `json:"call_id"`

	CurrentNodeID *string     `json:"current_node_id,omitempty"`
	Status        *CallStatus `json:"status,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]any `json:"variables,omitempty"`

	// Appended holds the history entries added since the old snapshot.
	Appended []HistoryEntry `json:"appended,omitempty"`
}

// Diff calculates the difference between two snapshots of the same call.
// If oldSession is nil, the whole newSession is reported.
func Diff(oldSession, newSession *CallSession) *SessionDiff {
	if newSession == nil {
		return nil
	}

	diff := &SessionDiff{CallID: newSession.ID}

	if oldSession == nil || oldSession.CurrentNodeID != newSession.CurrentNodeID {
		diff.CurrentNodeID = &newSession.CurrentNodeID
	}
	if oldSession == nil || oldSession.Status != newSession.Status {
		diff.Status = &newSession.Status
	}

	var oldVars Variables
	var oldLen int
	if oldSession != nil {
		oldVars = oldSession.Variables
		oldLen = len(oldSession.History)
	}
	diff.Variables = DiffVariables(oldVars, newSession.Variables)

	// History is append-only.
	if len(newSession.History) > oldLen {
		diff.Appended = newSession.History[oldLen:]
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// DiffVariables returns added or modified keys with their new value and
// deleted keys with nil. It returns nil when nothing changed.
func DiffVariables(oldVars, newVars Variables) map[string]any {
	delta := make(map[string]any)

	for k, newVal := range newVars {
		oldVal, exists := oldVars[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}
	for k := range oldVars {
		if _, exists := newVars[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// ChangedKeys returns the sorted keys of a variables delta.
func ChangedKeys(delta map[string]any) []string {
	if len(delta) == 0 {
		return nil
	}
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		len(d.Variables) == 0 &&
		len(d.Appended) == 0
}
