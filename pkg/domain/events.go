package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCallStart    EventType = "call_start"
	EventCallEnd      EventType = "call_end"
	EventNodeEnter    EventType = "node_enter"
	EventNodeLeave    EventType = "node_leave"
	EventTurnComplete EventType = "turn_complete"
	EventInterjection EventType = "interjection"
	EventWebhookCall  EventType = "webhook_call"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
}

// CallEvent marks the start or end of a call.
type CallEvent struct {
	EventBase
	NodeID string `json:"node_id"`
	Reason string `json:"reason,omitempty"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeKind NodeKind `json:"node_kind"`
}

// TurnEvent is emitted after a turn is committed.
type TurnEvent struct {
	EventBase
	Result   *TurnResult   `json:"result"`
	Diff     *SessionDiff  `json:"diff,omitempty"`
	Duration time.Duration `json:"duration"`
}

// InterjectionEvent is emitted when the barge-in monitor speaks.
type InterjectionEvent struct {
	EventBase
	NodeID    string `json:"node_id"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// WebhookEvent represents one integration call made during extraction.
type WebhookEvent struct {
	EventBase
	NodeID  string         `json:"node_id"`
	Name    string         `json:"name"`
	Updates map[string]any `json:"updates,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnCallStart    func(context.Context, *CallEvent)
	OnCallEnd      func(context.Context, *CallEvent)
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnNodeLeave    func(context.Context, *NodeEvent)
	OnTurnComplete func(context.Context, *TurnEvent)
	OnInterjection func(context.Context, *InterjectionEvent)
	OnWebhookCall  func(context.Context, *WebhookEvent)
}
