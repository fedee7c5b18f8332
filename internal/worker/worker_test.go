package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labshot/labshot/internal/app/process"
	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/render"
	renderfake "github.com/labshot/labshot/internal/render/fake"
	sandboxfake "github.com/labshot/labshot/internal/sandbox/fake"
	"github.com/labshot/labshot/internal/storage/memory"
	"github.com/labshot/labshot/internal/worker"
)

func TestPoolDrainsQueue(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.TODO()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	engine, err := sandboxfake.NewEngine(sandboxfake.EngineConfig{})
	require.NoError(err)

	store, err := artifact.NewStore(artifact.StoreConfig{RootDir: t.TempDir()})
	require.NoError(err)

	renderer, err := render.NewService(render.ServiceConfig{
		Store:      store,
		Rasterizer: renderfake.NewRasterizer(),
	})
	require.NoError(err)

	processSvc, err := process.NewService(process.ServiceConfig{
		Repository: repo,
		Engine:     engine,
		Renderer:   renderer,
	})
	require.NoError(err)

	now := time.Now().UTC()
	batch := model.Batch{
		ID:               "b1",
		Theme:            model.ThemeIDLE,
		DefaultInsertion: model.InsertionBelowQuestion,
		CreatedAt:        now,
	}
	var tasks []model.Task
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		batch.TaskIDs = append(batch.TaskIDs, id)
		tasks = append(tasks, model.Task{
			ID:        id,
			BatchID:   batch.ID,
			Kind:      model.TaskKindCodeExecution,
			Language:  "python",
			Source:    "print('" + id + "')",
			Theme:     model.ThemeIDLE,
			Insertion: model.InsertionBelowQuestion,
			Status:    model.TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	require.NoError(repo.CreateBatch(ctx, batch, tasks))

	pool, err := worker.NewPool(worker.PoolConfig{
		Process:      processSvc,
		Workers:      3,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = pool.Run(runCtx)
		close(done)
	}()

	require.Eventually(func() bool {
		listed, err := repo.ListBatchTasks(ctx, "b1")
		if err != nil {
			return false
		}
		return model.AggregateStatus(listed) != model.BatchStatusPending
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}

	listed, err := repo.ListBatchTasks(ctx, "b1")
	require.NoError(err)
	for _, task := range listed {
		assert.Equal(model.TaskStatusCompleted, task.Status)
	}
	assert.Equal(5, engine.RunCount())
}
