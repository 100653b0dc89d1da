/*
Package domain contains the core domain models of the strata editing session.

It defines the version history of a session and the rules that keep it consistent.
This package is kept pure and free of I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - VersionID: Opaque token naming one immutable stored image array.
  - Session: The linear edit timeline (History), the active position (Pointer) and the
    upload the session was seeded from (OriginID).
  - Snapshot: The versioned, persisted form of a Session.
  - Operation: A named transform with its parameter record, forwarded to the executor.
*/
package domain
