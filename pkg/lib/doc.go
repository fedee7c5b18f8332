// Package lib provides a Go SDK for running the labshot pipeline programmatically.
//
// This package allows applications to submit batches, process their tasks and
// compose reports without shelling out to the labshot CLI binary. It is useful
// for scripting, automation, and building tools on top of labshot.
//
// # Quick Start
//
// Create a client, submit a batch and drain its tasks:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Submit a batch.
//	batch, err := client.Submit(ctx, lib.BatchSpec{
//	    Theme: lib.ThemeIDLE,
//	    Tasks: []lib.TaskSpec{
//	        {Kind: lib.TaskCodeExecution, Language: "python", Source: `print("hi")`},
//	    },
//	})
//
//	// Process every pending task in this process.
//	client.ProcessAll(ctx)
//
//	// Compose the final report.
//	report, err := client.Compose(ctx, lib.ComposeOpts{BatchID: batch.ID})
//
// # Engines
//
// The SDK supports two engine types:
//
//   - [EngineDocker]: Real Docker containers. Requires a reachable Docker
//     daemon. Task panes are rasterized with headless Chrome.
//   - [EngineFake]: In-memory fake engine for unit testing. No real
//     infrastructure needed, rasterization is faked too. Set [Config].Engine
//     to [EngineFake] to use it.
//
// # Storage
//
// All state lives in a SQLite database and a filesystem artifact store under
// the data directory (default ~/.labshot). Batches submitted through the SDK
// are visible to the CLI and the HTTP server pointed at the same directory.
package lib
