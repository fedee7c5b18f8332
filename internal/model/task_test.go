package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labshot/labshot/internal/model"
)

func TestTaskValidate(t *testing.T) {
	tests := map[string]struct {
		task   model.Task
		expErr bool
	}{
		"A valid code execution task should not fail": {
			task: model.Task{
				ID:     "t1",
				Kind:   model.TaskKindCodeExecution,
				Source: "print(2+2)",
			},
			expErr: false,
		},

		"A code execution task without source should fail": {
			task: model.Task{
				ID:   "t1",
				Kind: model.TaskKindCodeExecution,
			},
			expErr: true,
		},

		"A screenshot only task without source should fail": {
			task: model.Task{
				ID:   "t1",
				Kind: model.TaskKindScreenshotOnly,
			},
			expErr: true,
		},

		"An answer task without question should fail": {
			task: model.Task{
				ID:   "t1",
				Kind: model.TaskKindAnswerRequest,
			},
			expErr: true,
		},

		"An answer task with question should not fail": {
			task: model.Task{
				ID:       "t1",
				Kind:     model.TaskKindAnswerRequest,
				Question: "What is a pointer?",
			},
			expErr: false,
		},

		"A project task without files should fail": {
			task: model.Task{
				ID:   "t1",
				Kind: model.TaskKindProjectMultiFile,
			},
			expErr: true,
		},

		"A missing ID should fail": {
			task: model.Task{
				Kind:   model.TaskKindCodeExecution,
				Source: "print(2+2)",
			},
			expErr: true,
		},

		"An unknown kind should fail": {
			task: model.Task{
				ID:     "t1",
				Kind:   model.TaskKind("make_coffee"),
				Source: "print(2+2)",
			},
			expErr: true,
		},

		"An unknown insertion should fail": {
			task: model.Task{
				ID:        "t1",
				Kind:      model.TaskKindCodeExecution,
				Source:    "print(2+2)",
				Insertion: model.Insertion("sideways"),
			},
			expErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.task.Validate()

			if tt.expErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrNotValid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := map[string]struct {
		from model.TaskStatus
		to   model.TaskStatus
		exp  bool
	}{
		"Pending to running is legal":        {from: model.TaskStatusPending, to: model.TaskStatusRunning, exp: true},
		"Running to completed is legal":      {from: model.TaskStatusRunning, to: model.TaskStatusCompleted, exp: true},
		"Running to failed is legal":         {from: model.TaskStatusRunning, to: model.TaskStatusFailed, exp: true},
		"Pending to completed is illegal":    {from: model.TaskStatusPending, to: model.TaskStatusCompleted, exp: false},
		"Completed to running is illegal":    {from: model.TaskStatusCompleted, to: model.TaskStatusRunning, exp: false},
		"Failed to running is illegal":       {from: model.TaskStatusFailed, to: model.TaskStatusRunning, exp: false},
		"Completed to failed is illegal":     {from: model.TaskStatusCompleted, to: model.TaskStatusFailed, exp: false},
		"Running to pending is illegal":      {from: model.TaskStatusRunning, to: model.TaskStatusPending, exp: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.exp, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTaskKindNeedsExecution(t *testing.T) {
	assert.True(t, model.TaskKindCodeExecution.NeedsExecution())
	assert.True(t, model.TaskKindProjectMultiFile.NeedsExecution())
	assert.False(t, model.TaskKindAnswerRequest.NeedsExecution())
	assert.False(t, model.TaskKindScreenshotOnly.NeedsExecution())
}
