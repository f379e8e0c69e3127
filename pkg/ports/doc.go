/*
Package ports defines the driven ports (interfaces) of the call session orchestrator.

These interfaces decouple the turn pipeline from the language model, speech
synthesis, webhook integrations, knowledge retrieval and persistence, so every
stage can be driven by deterministic stubs in tests.

# Key Interfaces

  - GraphLoader: loads raw node definitions (e.g., from Loam or Memory).
  - SessionStore: persists call session snapshots.
  - CallLocker: coordinates ownership of a call across replicas.
  - LLM and ConditionClassifier: text generation and semantic condition matching.
  - SpeechBackend: synthesis and health probing of one TTS endpoint.
  - WebhookCaller and KnowledgeBase: external integrations used while extracting and answering.
*/
package ports
