package compose_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage/memory"
)

func newTestService(t *testing.T) (*compose.Service, *memory.Repository, *artifact.Store) {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	store, err := artifact.NewStore(artifact.StoreConfig{RootDir: t.TempDir()})
	require.NoError(t, err)

	service, err := compose.NewService(compose.ServiceConfig{
		Repository: repo,
		Store:      store,
	})
	require.NoError(t, err)

	return service, repo, store
}

// seedBatch stores a batch whose tasks already are in a terminal state.
func seedBatch(t *testing.T, repo *memory.Repository, tasks []model.Task) model.Batch {
	t.Helper()

	now := time.Now().UTC()
	batch := model.Batch{
		ID:               "b1",
		Theme:            model.ThemeIDLE,
		DefaultInsertion: model.InsertionBelowQuestion,
		CreatedAt:        now,
	}
	for i := range tasks {
		tasks[i].BatchID = batch.ID
		tasks[i].Theme = batch.Theme
		tasks[i].CreatedAt = now
		tasks[i].UpdatedAt = now
		batch.TaskIDs = append(batch.TaskIDs, tasks[i].ID)
	}

	require.NoError(t, repo.CreateBatch(context.TODO(), batch, tasks))
	return batch
}

func completedTask(id, question string, insertion model.Insertion, result model.TaskResult) model.Task {
	return model.Task{
		ID:        id,
		Kind:      model.TaskKindCodeExecution,
		Language:  "python",
		Source:    "print(1)",
		Question:  question,
		Insertion: insertion,
		Status:    model.TaskStatusCompleted,
		Result:    &result,
	}
}

func TestServiceCompose(t *testing.T) {
	document := "Homework 3\n\nExercise 1: Write a program that prints the answer.\nUse any language you like.\n\nExercise 2: Explain your solution.\n"

	tests := map[string]struct {
		tasks     []model.Task
		artifacts map[string][]model.Artifact
		req       compose.ComposeRequest
		expErr    error
		check     func(t *testing.T, content string)
	}{
		"A task anchored below its question should land after the question paragraph.": {
			tasks: []model.Task{
				completedTask("t1", "Write a program that prints the answer", model.InsertionBelowQuestion, model.TaskResult{Caption: "My program"}),
			},
			artifacts: map[string][]model.Artifact{
				"t1": {{ID: "a1", Kind: model.ArtifactKindCode, Label: "main.py", Ref: "b1/t1/000.png"}},
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document},
			check: func(t *testing.T, content string) {
				idx := strings.Index(content, "Use any language you like.")
				require.GreaterOrEqual(t, idx, 0)
				after := content[idx:]
				assert.Contains(t, after, "My program\n[image: b1/t1/000.png] main.py\n")
				// Inserted before the next exercise, not at the bottom.
				assert.Less(t, strings.Index(after, "[image:"), strings.Index(after, "Exercise 2"))
				assert.NotContains(t, content, "Results\n=======")
			},
		},

		"A bottom of page task should land under the results heading.": {
			tasks: []model.Task{
				completedTask("t1", "", model.InsertionBottomOfPage, model.TaskResult{Caption: "My program"}),
			},
			artifacts: map[string][]model.Artifact{
				"t1": {{ID: "a1", Kind: model.ArtifactKindCode, Label: "main.py", Ref: "b1/t1/000.png"}},
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document},
			check: func(t *testing.T, content string) {
				idx := strings.Index(content, "Results\n=======")
				require.GreaterOrEqual(t, idx, 0)
				assert.Contains(t, content[idx:], "[image: b1/t1/000.png] main.py")
			},
		},

		"A below question task whose anchor is missing should fall back to the bottom.": {
			tasks: []model.Task{
				completedTask("t1", "This question is nowhere in the document", model.InsertionBelowQuestion, model.TaskResult{Caption: "My program"}),
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document},
			check: func(t *testing.T, content string) {
				idx := strings.Index(content, "Results\n=======")
				require.GreaterOrEqual(t, idx, 0)
				assert.Contains(t, content[idx:], "My program")
			},
		},

		"A failed task in the ordering should render a placeholder.": {
			tasks: []model.Task{
				{ID: "t1", Kind: model.TaskKindCodeExecution, Insertion: model.InsertionBottomOfPage, Status: model.TaskStatusFailed, FailureReason: "execution crashed"},
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document},
			check: func(t *testing.T, content string) {
				assert.Contains(t, content, "[task failed: execution crashed]")
			},
		},

		"An answer task should splice the answer text.": {
			tasks: []model.Task{
				{
					ID: "t1", Kind: model.TaskKindAnswerRequest,
					Question: "Explain your solution", Insertion: model.InsertionBelowQuestion,
					Status: model.TaskStatusCompleted,
					Result: &model.TaskResult{Answer: "The program computes the answer iteratively."},
				},
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document},
			check: func(t *testing.T, content string) {
				idx := strings.Index(content, "Exercise 2")
				require.GreaterOrEqual(t, idx, 0)
				assert.Contains(t, content[idx:], "The program computes the answer iteratively.")
			},
		},

		"Completed tasks left out of the ordering should be appended after it.": {
			tasks: []model.Task{
				completedTask("t1", "", model.InsertionBottomOfPage, model.TaskResult{Caption: "First"}),
				completedTask("t2", "", model.InsertionBottomOfPage, model.TaskResult{Caption: "Second"}),
				{ID: "t3", Kind: model.TaskKindCodeExecution, Insertion: model.InsertionBottomOfPage, Status: model.TaskStatusFailed, FailureReason: "boom"},
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document, Ordering: []string{"t2"}},
			check: func(t *testing.T, content string) {
				// t2 explicitly ordered, t1 appended as leftover, failed t3 skipped.
				assert.Less(t, strings.Index(content, "Second"), strings.Index(content, "First"))
				assert.NotContains(t, content, "boom")
			},
		},

		"Two tasks sharing an anchor should stack in explicit ordering order.": {
			tasks: []model.Task{
				completedTask("tA", "Write a program that prints the answer", model.InsertionBelowQuestion, model.TaskResult{Caption: "Block A"}),
				completedTask("tB", "Write a program that prints the answer", model.InsertionBelowQuestion, model.TaskResult{Caption: "Block B"}),
			},
			req: compose.ComposeRequest{BatchID: "b1", Document: document, Ordering: []string{"tB", "tA"}},
			check: func(t *testing.T, content string) {
				idx := strings.Index(content, "Use any language you like.")
				require.GreaterOrEqual(t, idx, 0)
				after := content[idx:]
				// Both blocks under the shared anchor, B before A per the
				// caller's ordering, and before the next exercise.
				assert.Less(t, strings.Index(after, "Block B"), strings.Index(after, "Block A"))
				assert.Less(t, strings.Index(after, "Block A"), strings.Index(after, "Exercise 2"))
				assert.NotContains(t, content, "Results\n=======")
			},
		},

		"An ordering that references an unknown task should fail.": {
			tasks: []model.Task{
				completedTask("t1", "", model.InsertionBottomOfPage, model.TaskResult{Caption: "First"}),
			},
			req:    compose.ComposeRequest{BatchID: "b1", Document: document, Ordering: []string{"nope"}},
			expErr: model.ErrNotValid,
		},

		"A batch with tasks still in flight should not compose.": {
			tasks: []model.Task{
				{ID: "t1", Kind: model.TaskKindCodeExecution, Insertion: model.InsertionBottomOfPage, Status: model.TaskStatusPending},
			},
			req:    compose.ComposeRequest{BatchID: "b1", Document: document},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			service, repo, store := newTestService(t)

			seedBatch(t, repo, test.tasks)
			for taskID, artifacts := range test.artifacts {
				require.NoError(t, repo.CreateArtifacts(context.TODO(), taskID, artifacts))
			}

			report, err := service.Compose(context.TODO(), test.req)

			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)

			stored, err := store.Read(report.Ref)
			require.NoError(t, err)
			assert.Equal(t, report.Content, stored)

			test.check(t, string(report.Content))
		})
	}
}

func TestServiceComposeDeterministic(t *testing.T) {
	require := require.New(t)

	service, repo, _ := newTestService(t)

	seedBatch(t, repo, []model.Task{
		completedTask("t1", "Write a program", model.InsertionBelowQuestion, model.TaskResult{Caption: "My program"}),
		completedTask("t2", "", model.InsertionBottomOfPage, model.TaskResult{Caption: "Extra"}),
	})

	req := compose.ComposeRequest{BatchID: "b1", Document: "Exercise: Write a program.\n"}

	first, err := service.Compose(context.TODO(), req)
	require.NoError(err)

	second, err := service.Compose(context.TODO(), req)
	require.NoError(err)

	require.Equal(first.Content, second.Content)
	require.Equal(first.Ref, second.Ref)
}

func TestServiceComposeMissingBatch(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Compose(context.TODO(), compose.ComposeRequest{BatchID: "missing", Document: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
