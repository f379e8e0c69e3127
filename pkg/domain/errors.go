package domain

import "errors"

// ErrSessionNotFound is returned when a call ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNodeNotFound is returned when a node id is not part of the flow.
var ErrNodeNotFound = errors.New("node not found")

// ErrInvalidFlow is returned when a flow definition cannot form a graph.
var ErrInvalidFlow = errors.New("invalid flow")

// ErrCallEnded is returned when a turn is submitted to a call that is over.
var ErrCallEnded = errors.New("call ended")
