/*
Package session owns access to stored call snapshots.

A Manager runs every read and write of one call under that call's lock, so
the turn pipeline, the HTTP surface and the CLI never interleave writes to
the same call. In a single process a mutex per call is enough; replicas
sharing a redis store also take a ports.CallLocker lock that expires on its
own if the owner dies.

Storage is delegated to a ports.SessionStore: memory, redis, or either one
wrapped by the persistence middleware (PII masking, encryption at rest).
*/
package session
