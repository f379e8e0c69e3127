/*
Package callflow orchestrates real-time outbound voice calls driven by a
declarative conversation flow.

A flow is a graph of nodes (conversation, script, press_digit, ending) with
natural-language transition conditions. For every final caller utterance
the engine extracts variables, evaluates transitions, generates the next
line (optionally through a parallel specialist team) and speaks it through
a pool of TTS backends, all under a per-turn latency budget. The call
session is the single source of truth and is only mutated by the turn
pipeline.

# Usage

Build the services once from configuration and create the engine:

	cfg, err := config.Load("callflow.yaml")
	if err != nil {
		log.Fatal(err)
	}
	svc, err := callflow.BuildServices(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	engine, err := callflow.New(svc, callflow.EngineOptions(cfg)...)
	if err != nil {
		log.Fatal(err)
	}

	opening, err := engine.Start(ctx, "call-42", domain.Variables{"name": "Ana"})
	// ...speak opening, then for each final transcript:
	res, err := engine.Turn(ctx, "call-42", "yes, that's me")

Tests and embedders can assemble Services by hand instead, injecting any
ports implementation (LLM, classifier, speech backend, session store).

# Layout

  - pkg/domain: the flow graph, call session and events.
  - pkg/ports: the driven interfaces the engine depends on.
  - internal/runtime: the per-call state machine and turn pipeline.
  - pkg/adapters/http: health, metrics and call control over HTTP.
  - pkg/runner: the terminal and JSON Lines simulator.
*/
package callflow
