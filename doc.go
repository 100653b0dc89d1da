/*
Package strata keeps the edit history of image sessions.

Every session is a stack of immutable image versions with a pointer to the
active one. Applying a transform asks an external operation executor to derive
a new version from the active one and pushes the result, discarding any redo
branch. Undo and redo only move the pointer. Each committed change is written
to a snapshot first, so a restarted process resumes exactly where it stopped.

# Architecture

The packages follow a hexagonal layout:

  - pkg/domain holds the session value, its transitions and the error taxonomy.
  - pkg/ports declares the storage, executor and locking contracts.
  - pkg/adapters implements them (file, memory, redis, badger, HTTP executor,
    external command operations).
  - pkg/stack, pkg/session, pkg/render and pkg/transform are the services.
  - pkg/registry runs operations in-process when no remote executor is used.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/strata"
	)

	func main() {
		eng, err := strata.New("./data", strata.WithExecutorURL("http://localhost:9000"))
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		if _, err := eng.Open(ctx, "default", "upload-id"); err != nil {
			log.Fatal(err)
		}
		res, err := eng.Apply(ctx, "default", "blur", map[string]any{"radius": 3})
		if err != nil {
			log.Fatal(err)
		}
		log.Println("new version:", res.OutputID)
	}

The same engine is served over HTTP by "strata serve" and as an MCP server by
"strata mcp".
*/
package strata
