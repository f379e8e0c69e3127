package domain

import "time"

// SpecialistKind names one sub-analysis of the specialist team.
type SpecialistKind string

const (
	SpecialistIntent    SpecialistKind = "intent"
	SpecialistStyle     SpecialistKind = "communicationStyle"
	SpecialistTactic    SpecialistKind = "tactic"
	SpecialistKnowledge SpecialistKind = "knowledgeLookup"
)

// SpecialistResult is the output of one sub-analysis, scoped to one turn.
type SpecialistResult struct {
	Kind    SpecialistKind `json:"kind"`
	Value   string         `json:"value"`
	Latency time.Duration  `json:"latency"`
}

// LatencyMs returns the latency in milliseconds.
func (r SpecialistResult) LatencyMs() int64 {
	return r.Latency.Milliseconds()
}
