/*
Package domain contains the core domain models of the call session orchestrator.

It defines the conversation flow graph, the per-call session snapshot and the
small value types exchanged between the turn pipeline stages. This package is
kept pure and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - FlowGraph: the immutable node graph a call walks through.
  - Node: one state of the graph, a tagged union over conversation, script, press_digit and ending.
  - Transition: a semantic condition plus an optional deterministic variable gate.
  - CallSession: the mutable snapshot owned by exactly one live call.
  - TurnResult: what one conversational turn produced (reply, audio, destination).
*/
package domain
