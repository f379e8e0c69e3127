package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// Event is one server-sent event for a call.
type Event struct {
	Name string
	Data []byte
}

// StreamManager fans call events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Event]struct{} // callID -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a listener for callID. The returned func unsubscribes
// and closes the channel.
func (sm *StreamManager) Subscribe(callID string) (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, 16)
	if _, ok := sm.subscribers[callID]; !ok {
		sm.subscribers[callID] = make(map[chan<- Event]struct{})
	}
	sm.subscribers[callID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[callID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, callID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers returns how many listeners callID has.
func (sm *StreamManager) Subscribers(callID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[callID])
}

// Broadcast delivers ev to every subscriber of callID, dropping it for
// subscribers whose buffer is full.
func (sm *StreamManager) Broadcast(callID string, ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[callID] {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "call_id", callID, "event", ev.Name)
		}
	}
}

func (sm *StreamManager) publish(callID, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		sm.logger.Error("SSE: encode event", "call_id", callID, "event", name, "err", err)
		return
	}
	sm.Broadcast(callID, Event{Name: name, Data: data})
}

// Hooks returns lifecycle hooks that publish turn diffs, interjections and
// call end to subscribers. Merge them with the engine's other hooks.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			if e.Diff == nil || e.Diff.IsEmpty() {
				return
			}
			sm.publish(e.CallID, "diff", e.Diff)
		},
		OnInterjection: func(ctx context.Context, e *domain.InterjectionEvent) {
			sm.publish(e.CallID, "interjection", e)
		},
		OnCallEnd: func(ctx context.Context, e *domain.CallEvent) {
			sm.publish(e.CallID, "end", e)
		},
	}
}

// SubscribeEvents handles GET /calls/{callID}/events (SSE). The optional
// watch query (node,status,variables,history) filters diff events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	callID := chi.URLParam(r, "callID")

	var watch []string
	if q := r.URL.Query().Get("watch"); q != "" {
		for _, f := range strings.Split(q, ",") {
			watch = append(watch, strings.TrimSpace(f))
		}
	}

	ch, cancel := s.Streams.Subscribe(callID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE: subscribed", "call_id", callID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE: client disconnected", "call_id", callID)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Name == "diff" && !wanted(ev.Data, watch) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
			if ev.Name == "end" {
				return
			}
		}
	}
}

// wanted reports whether a diff touches any watched field.
func wanted(data []byte, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	var diff domain.SessionDiff
	if err := json.Unmarshal(data, &diff); err != nil {
		return true
	}
	for _, field := range watch {
		switch field {
		case "node":
			if diff.CurrentNodeID != nil {
				return true
			}
		case "status":
			if diff.Status != nil {
				return true
			}
		case "variables":
			if len(diff.Variables) > 0 {
				return true
			}
		case "history":
			if len(diff.Appended) > 0 {
				return true
			}
		}
	}
	return false
}
