package domain

// TurnResult is what one conversational turn produced.
type TurnResult struct {
	CallID         string `json:"call_id"`
	Turn           int    `json:"turn"`
	PreviousNodeID string `json:"previous_node_id"`
	NodeID         string `json:"node_id"`

	Reply string `json:"reply"`
	// Audio is telephony-ready audio for Reply, empty when synthesis failed.
	Audio []byte `json:"-"`
	// Digits holds DTMF to send when the destination is a press_digit node.
	Digits string `json:"digits,omitempty"`

	// Moved is false when no transition matched and the call stayed put.
	Moved bool `json:"moved"`
	Ended bool `json:"ended"`
	// Degraded is set when a failure was replaced by a fallback reply.
	Degraded bool `json:"degraded,omitempty"`

	Changed []string `json:"changed,omitempty"`
}
