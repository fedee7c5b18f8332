package status_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage/storagemock"
)

func TestServiceStatus(t *testing.T) {
	tests := map[string]struct {
		tasks        []model.Task
		expAggregate model.BatchStatus
		expCounts    [4]int
	}{
		"A batch with work left should be pending.": {
			tasks: []model.Task{
				{ID: "t1", Status: model.TaskStatusCompleted},
				{ID: "t2", Status: model.TaskStatusRunning},
				{ID: "t3", Status: model.TaskStatusPending},
			},
			expAggregate: model.BatchStatusPending,
			expCounts:    [4]int{1, 1, 1, 0},
		},

		"A finished batch with failures should be failed.": {
			tasks: []model.Task{
				{ID: "t1", Status: model.TaskStatusCompleted},
				{ID: "t2", Status: model.TaskStatusFailed},
			},
			expAggregate: model.BatchStatusFailed,
			expCounts:    [4]int{0, 0, 1, 1},
		},

		"A fully completed batch should be completed.": {
			tasks: []model.Task{
				{ID: "t1", Status: model.TaskStatusCompleted},
				{ID: "t2", Status: model.TaskStatusCompleted},
			},
			expAggregate: model.BatchStatusCompleted,
			expCounts:    [4]int{0, 0, 2, 0},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := &storagemock.Repository{}
			repo.On("GetBatch", mock.Anything, "b1").Return(&model.Batch{ID: "b1"}, nil)
			repo.On("ListBatchTasks", mock.Anything, "b1").Return(test.tasks, nil)

			service, err := status.NewService(status.ServiceConfig{Repository: repo})
			require.NoError(err)

			st, err := service.Status(context.TODO(), "b1")
			require.NoError(err)

			assert.Equal(test.expAggregate, st.Aggregate)
			assert.Equal(test.expCounts[0], st.Pending)
			assert.Equal(test.expCounts[1], st.Running)
			assert.Equal(test.expCounts[2], st.Completed)
			assert.Equal(test.expCounts[3], st.Failed)
			assert.Len(st.Tasks, len(test.tasks))
		})
	}
}

func TestServiceStatusMissingBatch(t *testing.T) {
	repo := &storagemock.Repository{}
	repo.On("GetBatch", mock.Anything, "missing").Return(nil, model.ErrNotFound)

	service, err := status.NewService(status.ServiceConfig{Repository: repo})
	require.NoError(t, err)

	_, err = service.Status(context.TODO(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestServiceList(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo := &storagemock.Repository{}
	repo.On("ListBatches", mock.Anything).Return([]model.Batch{{ID: "b2"}, {ID: "b1"}}, nil)
	repo.On("GetBatch", mock.Anything, "b1").Return(&model.Batch{ID: "b1"}, nil)
	repo.On("GetBatch", mock.Anything, "b2").Return(&model.Batch{ID: "b2"}, nil)
	repo.On("ListBatchTasks", mock.Anything, "b1").Return([]model.Task{{ID: "t1", Status: model.TaskStatusCompleted}}, nil)
	repo.On("ListBatchTasks", mock.Anything, "b2").Return([]model.Task{{ID: "t2", Status: model.TaskStatusPending}}, nil)

	service, err := status.NewService(status.ServiceConfig{Repository: repo})
	require.NoError(err)

	statuses, err := service.List(context.TODO())
	require.NoError(err)
	require.Len(statuses, 2)
	assert.Equal("b2", statuses[0].Batch.ID)
	assert.Equal(model.BatchStatusPending, statuses[0].Aggregate)
	assert.Equal("b1", statuses[1].Batch.ID)
	assert.Equal(model.BatchStatusCompleted, statuses[1].Aggregate)
}
