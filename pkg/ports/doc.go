/*
Package ports defines the driven ports (interfaces) of the strata core.

These interfaces decouple the session stack and the transform orchestrator from
external implementations, allowing them to work with various storage backends and
executors.

# Key Interfaces

  - SnapshotStore: Persists and loads the versioned snapshot of a session.
  - VersionStore: Stores the image array behind each version identifier.
  - Executor: Performs a named transform on a stored version, producing a new one.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
*/
package ports
