package process_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	answerfake "github.com/labshot/labshot/internal/answer/fake"
	"github.com/labshot/labshot/internal/app/process"
	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/render"
	renderfake "github.com/labshot/labshot/internal/render/fake"
	sandboxfake "github.com/labshot/labshot/internal/sandbox/fake"
	"github.com/labshot/labshot/internal/storage/memory"
	"github.com/labshot/labshot/internal/storage/storagemock"
)

type testDeps struct {
	repo      *memory.Repository
	engine    *sandboxfake.Engine
	store     *artifact.Store
	generator *answerfake.Generator
	service   *process.Service
}

func newTestService(t *testing.T, withGenerator bool) testDeps {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	engine, err := sandboxfake.NewEngine(sandboxfake.EngineConfig{})
	require.NoError(t, err)

	store, err := artifact.NewStore(artifact.StoreConfig{RootDir: t.TempDir()})
	require.NoError(t, err)

	renderer, err := render.NewService(render.ServiceConfig{
		Store:      store,
		Rasterizer: renderfake.NewRasterizer(),
	})
	require.NoError(t, err)

	cfg := process.ServiceConfig{
		Repository: repo,
		Engine:     engine,
		Renderer:   renderer,
	}

	var generator *answerfake.Generator
	if withGenerator {
		generator = answerfake.NewGenerator()
		cfg.Generator = generator
	}

	service, err := process.NewService(cfg)
	require.NoError(t, err)

	return testDeps{repo: repo, engine: engine, store: store, generator: generator, service: service}
}

func seedTask(t *testing.T, deps testDeps, task model.Task) {
	t.Helper()

	now := time.Now().UTC()
	task.Status = model.TaskStatusPending
	task.CreatedAt = now
	task.UpdatedAt = now

	batch := model.Batch{
		ID:               task.BatchID,
		Theme:            task.Theme,
		DefaultInsertion: model.InsertionBelowQuestion,
		TaskIDs:          []string{task.ID},
		CreatedAt:        now,
	}

	require.NoError(t, deps.repo.CreateBatch(context.TODO(), batch, []model.Task{task}))
}

func TestServiceProcessNextEmptyQueue(t *testing.T) {
	deps := newTestService(t, false)

	processed, err := deps.service.ProcessNext(context.TODO())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestServiceProcessNextCodeExecution(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	deps.engine.ScriptResult("print('hi')", model.ExecutionResult{
		Status: model.ExecStatusCompleted,
		Stdout: "hi\n",
	})

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindCodeExecution,
		Language: "python",
		Source:   "print('hi')",
		Theme:    model.ThemeIDLE,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, task.Status)
	require.NotNil(task.Result)
	assert.Equal("hi\n", task.Result.Stdout)
	assert.Len(task.Result.ArtifactIDs, 2)
	assert.Equal("Program and output (python)", task.Result.Caption)

	artifacts, err := deps.repo.ListTaskArtifacts(ctx, "t1")
	require.NoError(err)
	require.Len(artifacts, 2)
	assert.Equal(model.ArtifactKindCode, artifacts[0].Kind)
	assert.Equal(model.ArtifactKindTerminal, artifacts[1].Kind)
}

func TestServiceProcessNextCrashedRunStillCompletes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	deps.engine.ScriptResult("boom()", model.ExecutionResult{
		Status:   model.ExecStatusCrashed,
		Stderr:   "NameError: name 'boom' is not defined\n",
		ExitCode: 1,
	})

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindCodeExecution,
		Language: "python",
		Source:   "boom()",
		Theme:    model.ThemeIDLE,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, task.Status)
	require.NotNil(task.Result)
	assert.Equal(1, task.Result.ExitCode)
	assert.Contains(task.Result.Stderr, "NameError")
}

func TestServiceProcessNextScreenshotOnly(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindScreenshotOnly,
		Language: "javascript",
		Source:   "console.log(1)",
		Theme:    model.ThemeVSCode,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	assert.Equal(0, deps.engine.RunCount())

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, task.Status)
	require.NotNil(task.Result)
	assert.Len(task.Result.ArtifactIDs, 1)
}

func TestServiceProcessNextAnswerRequest(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, true)
	deps.generator.Script("What is a pointer?", "A pointer stores the address of a value.")

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindAnswerRequest,
		Question: "What is a pointer?",
		Theme:    model.ThemeNotepad,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, task.Status)
	require.NotNil(task.Result)
	assert.Equal("A pointer stores the address of a value.", task.Result.Answer)
	assert.Empty(task.Result.ArtifactIDs)
}

func TestServiceProcessNextAnswerRequestWithoutGenerator(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindAnswerRequest,
		Question: "What is a pointer?",
		Theme:    model.ThemeNotepad,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusFailed, task.Status)
	assert.Contains(task.FailureReason, "no answer generator")
}

func TestServiceProcessNextGeneratorFailureFailsTask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, true)
	deps.generator.Fail(fmt.Errorf("rate limited"))

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindAnswerRequest,
		Question: "What is a pointer?",
		Theme:    model.ThemeNotepad,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusFailed, task.Status)
	assert.Contains(task.FailureReason, "rate limited")
}

func TestServiceProcessNextCaptionFailureDoesNotFailTask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, true)
	deps.generator.Fail(fmt.Errorf("rate limited"))

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindCodeExecution,
		Language: "python",
		Source:   "print('hi')",
		Theme:    model.ThemeIDLE,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, task.Status)
	require.NotNil(task.Result)
	assert.Equal("Program and output (python)", task.Result.Caption)
}

func TestServiceProcessNextRenderFailureKeepsExecResult(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	// Occupying the task's first artifact slot makes the write-once store
	// reject the render.
	_, err := deps.store.Write("b1", "t1", 0, ".png", []byte("occupied"))
	require.NoError(err)

	deps.engine.ScriptResult("print('hi')", model.ExecutionResult{
		Status: model.ExecStatusCompleted,
		Stdout: "hi\n",
	})

	seedTask(t, deps, model.Task{
		ID:       "t1",
		BatchID:  "b1",
		Kind:     model.TaskKindCodeExecution,
		Language: "python",
		Source:   "print('hi')",
		Theme:    model.ThemeIDLE,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusFailed, task.Status)
	assert.Contains(task.FailureReason, "could not render artifacts")
	require.NotNil(task.Result)
	assert.Equal("hi\n", task.Result.Stdout)
}

func TestServiceProcessNextUnsafeSourceFailsTaskOnly(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	now := time.Now().UTC()
	tasks := []model.Task{
		{
			ID: "t1", BatchID: "b1", Kind: model.TaskKindCodeExecution,
			Language: "python", Source: "print(2 + 2)", Theme: model.ThemeIDLE,
			Status: model.TaskStatusPending, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "t2", BatchID: "b1", Kind: model.TaskKindCodeExecution,
			Language: "python", Source: "import socket\nsocket.socket()", Theme: model.ThemeIDLE,
			Status: model.TaskStatusPending, CreatedAt: now, UpdatedAt: now,
		},
	}
	batch := model.Batch{
		ID: "b1", Theme: model.ThemeIDLE, DefaultInsertion: model.InsertionBelowQuestion,
		TaskIDs: []string{"t1", "t2"}, CreatedAt: now,
	}
	require.NoError(deps.repo.CreateBatch(ctx, batch, tasks))

	for i := 0; i < 2; i++ {
		processed, err := deps.service.ProcessNext(ctx)
		require.NoError(err)
		assert.True(processed)
	}

	// The denylisted task fails on its own, its sibling completes.
	clean, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusCompleted, clean.Status)

	rejected, err := deps.repo.GetTask(ctx, "t2")
	require.NoError(err)
	assert.Equal(model.TaskStatusFailed, rejected.Status)
	assert.Contains(rejected.FailureReason, "socket")

	// Only the clean task reached the engine.
	assert.Equal(1, deps.engine.RunCount())
}

func TestServiceProcessNextShutdownStillRecordsOutcome(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo := &storagemock.Repository{}
	task := &model.Task{
		ID: "t1", BatchID: "b1", Kind: model.TaskKindAnswerRequest,
		Question: "Why?", Theme: model.ThemeIDLE, Status: model.TaskStatusRunning,
	}
	repo.On("ClaimNextTask", mock.Anything).Return(task, nil)
	// The failure must be recorded on a live context even though the run
	// context is already cancelled, otherwise the task stays running forever.
	repo.On("FailTask",
		mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }),
		"t1", mock.Anything, mock.Anything,
	).Return(nil)

	engine, err := sandboxfake.NewEngine(sandboxfake.EngineConfig{})
	require.NoError(err)
	store, err := artifact.NewStore(artifact.StoreConfig{RootDir: t.TempDir()})
	require.NoError(err)
	renderer, err := render.NewService(render.ServiceConfig{
		Store:      store,
		Rasterizer: renderfake.NewRasterizer(),
	})
	require.NoError(err)

	service, err := process.NewService(process.ServiceConfig{
		Repository: repo,
		Engine:     engine,
		Renderer:   renderer,
	})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)
	repo.AssertExpectations(t)
}

func TestServiceProcessNextUnknownKindFails(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	deps := newTestService(t, false)

	seedTask(t, deps, model.Task{
		ID:      "t1",
		BatchID: "b1",
		Kind:    model.TaskKind("mystery"),
		Theme:   model.ThemeIDLE,
	})

	processed, err := deps.service.ProcessNext(ctx)
	require.NoError(err)
	assert.True(processed)

	task, err := deps.repo.GetTask(ctx, "t1")
	require.NoError(err)
	assert.Equal(model.TaskStatusFailed, task.Status)
	assert.Contains(task.FailureReason, "unknown task kind")
}
