package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDiff(t *testing.T) {
	now := time.Date(2025, 11, 3, 11, 30, 0, 0, time.UTC)
	entry := HistoryEntry{Role: RoleUser, Text: "yeah that's me", NodeID: "greet", Timestamp: now}

	tests := []struct {
		name     string
		old      *CallSession
		new      *CallSession
		wantDiff *SessionDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &CallSession{
				ID:            "call-1",
				CurrentNodeID: "greet",
				Status:        CallActive,
				Variables:     Variables{"name": "Ana"},
			},
			wantDiff: &SessionDiff{
				CallID:        "call-1",
				CurrentNodeID: &[]string{"greet"}[0],
				Variables:     map[string]any{"name": "Ana"},
			},
		},
		{
			name: "No Changes",
			old: &CallSession{
				ID: "call-1", CurrentNodeID: "greet", Status: CallActive,
				Variables: Variables{"name": "Ana"},
			},
			new: &CallSession{
				ID: "call-1", CurrentNodeID: "greet", Status: CallActive,
				Variables: Variables{"name": "Ana"},
			},
			wantDiff: nil,
		},
		{
			name: "Move And Append",
			old: &CallSession{
				ID: "call-1", CurrentNodeID: "greet", Status: CallActive,
			},
			new: &CallSession{
				ID: "call-1", CurrentNodeID: "qualify", Status: CallActive,
				History: []HistoryEntry{entry},
			},
			wantDiff: &SessionDiff{
				CallID:        "call-1",
				CurrentNodeID: &[]string{"qualify"}[0],
				Appended:      []HistoryEntry{entry},
			},
		},
		{
			name: "Variable Deletion",
			old: &CallSession{
				ID: "call-1", Variables: Variables{"a": "1", "b": "2"},
			},
			new: &CallSession{
				ID: "call-1", Variables: Variables{"a": "1"},
			},
			wantDiff: &SessionDiff{
				CallID:    "call-1",
				Variables: map[string]any{"b": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Diff() = nil, want %v", tt.wantDiff)
			}
			if got.CallID != tt.wantDiff.CallID {
				t.Errorf("Diff().CallID = %v, want %v", got.CallID, tt.wantDiff.CallID)
			}
			if !reflect.DeepEqual(got.Variables, tt.wantDiff.Variables) {
				t.Errorf("Diff().Variables = %v, want %v", got.Variables, tt.wantDiff.Variables)
			}
			if !reflect.DeepEqual(got.Appended, tt.wantDiff.Appended) {
				t.Errorf("Diff().Appended = %v, want %v", got.Appended, tt.wantDiff.Appended)
			}
			if !equalPtr(got.CurrentNodeID, tt.wantDiff.CurrentNodeID) {
				t.Errorf("Diff().CurrentNodeID = %v, want %v", got.CurrentNodeID, tt.wantDiff.CurrentNodeID)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Deletions as Null", func(t *testing.T) {
		s1 := &CallSession{ID: "c", Variables: Variables{"a": "x", "b": "y"}}
		s2 := &CallSession{ID: "c", Variables: Variables{"a": "x"}}
		diff := Diff(s1, s2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
	})
}

func TestChangedKeys(t *testing.T) {
	got := ChangedKeys(map[string]any{"zip": "1", "age": 3.0, "name": nil})
	want := []string{"age", "name", "zip"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedKeys() = %v, want %v", got, want)
	}
	if ChangedKeys(nil) != nil {
		t.Error("ChangedKeys(nil) should be nil")
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
