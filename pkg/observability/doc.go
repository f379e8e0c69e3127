/*
Package observability turns orchestrator lifecycle events into structured
log lines and Prometheus metrics.

Hooks returns a domain.LifecycleHooks that can be handed to the engine
directly or combined with application hooks through Merge.
*/
package observability
