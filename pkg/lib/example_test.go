package lib_test

import (
	"context"
	"fmt"
	"os"

	"github.com/labshot/labshot/pkg/lib"
)

// This example shows how to create a client using the fake engine for testing.
func Example_testing() {
	ctx := context.Background()

	// Use a temp directory and fake engine for testing.
	dir, err := os.MkdirTemp("", "labshot-example-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DataDir: dir,
		Engine:  lib.EngineFake,
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	// Submit a batch.
	batch, err := client.Submit(ctx, lib.BatchSpec{
		ID:    "example-batch",
		Theme: lib.ThemeIDLE,
		Tasks: []lib.TaskSpec{
			{ID: "t1", Kind: lib.TaskCodeExecution, Language: "python", Source: `print("hi")`},
		},
	})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Submitted: %s (%d tasks)\n", batch.ID, len(batch.TaskIDs))

	// Output:
	// Submitted: example-batch (1 tasks)
}

// This example shows the full pipeline: submit, process, compose.
func Example_pipeline() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "labshot-example-pipeline-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DataDir: dir,
		Engine:  lib.EngineFake,
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	// Submit.
	batch, err := client.Submit(ctx, lib.BatchSpec{
		ID:    "hw-1",
		Theme: lib.ThemeIDLE,
		Tasks: []lib.TaskSpec{
			{ID: "t1", Kind: lib.TaskCodeExecution, Language: "python", Source: `print("hi")`},
		},
	})
	if err != nil {
		panic(err)
	}

	// Process every pending task in this process.
	processed, err := client.ProcessAll(ctx)
	if err != nil {
		panic(err)
	}

	// Check the final state.
	st, err := client.Status(ctx, batch.ID)
	if err != nil {
		panic(err)
	}

	// Compose the report.
	report, err := client.Compose(ctx, lib.ComposeOpts{BatchID: batch.ID})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Processed: %d\n", processed)
	fmt.Printf("Status: %s\n", st.Status)
	fmt.Printf("Artifacts: %d\n", len(st.Tasks[0].Result.ArtifactIDs))
	fmt.Printf("Report ref set: %v\n", report.Ref != "")

	// Output:
	// Processed: 1
	// Status: completed
	// Artifacts: 2
	// Report ref set: true
}
