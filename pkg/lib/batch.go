package lib

import (
	"context"
	"fmt"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/model"
)

// Submit validates the batch shape and persists it with all tasks pending.
//
// Source safety screening happens per task during processing: a denylisted
// task fails on its own while its siblings proceed. The returned batch
// carries the assigned batch and task IDs.
func (c *Client) Submit(ctx context.Context, spec BatchSpec) (*Batch, error) {
	req := submit.SubmitRequest{
		BatchID:          spec.ID,
		OwnerRef:         spec.OwnerRef,
		Theme:            string(spec.Theme),
		DefaultInsertion: model.Insertion(spec.DefaultInsertion),
	}
	for _, ts := range spec.Tasks {
		req.Tasks = append(req.Tasks, submit.TaskRequest{
			ID:        ts.ID,
			Kind:      model.TaskKind(ts.Kind),
			Language:  ts.Language,
			Source:    ts.Source,
			Question:  ts.Question,
			Files:     ts.Files,
			Routes:    ts.Routes,
			Insertion: model.Insertion(ts.Insertion),
		})
	}

	batch, err := c.submit.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not submit batch: %w", err)
	}

	result := newBatch(*batch)
	return &result, nil
}

// Cancel marks a batch cancelled and fails all its pending tasks. Running
// tasks finish normally. Cancelling an already cancelled batch is a noop.
func (c *Client) Cancel(ctx context.Context, batchID string) error {
	if err := c.submit.Cancel(ctx, batchID); err != nil {
		return fmt.Errorf("could not cancel batch: %w", err)
	}
	return nil
}

// Status returns the batch and the state of all its tasks.
func (c *Client) Status(ctx context.Context, batchID string) (*BatchStatus, error) {
	st, err := c.status.Status(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("could not get batch status: %w", err)
	}

	result := newBatchStatus(*st)
	return &result, nil
}

// List returns the status of every known batch, most recent first.
func (c *Client) List(ctx context.Context) ([]BatchStatus, error) {
	statuses, err := c.status.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list batches: %w", err)
	}

	result := make([]BatchStatus, 0, len(statuses))
	for _, st := range statuses {
		result = append(result, newBatchStatus(st))
	}

	return result, nil
}

// ProcessNext claims and runs a single pending task. It returns false when no
// task was pending. Task failures are recorded on the task and do not surface
// as errors here.
func (c *Client) ProcessNext(ctx context.Context) (bool, error) {
	return c.process.ProcessNext(ctx)
}

// ProcessAll runs pending tasks in this process until the queue is empty, and
// returns how many tasks it processed.
func (c *Client) ProcessAll(ctx context.Context) (int, error) {
	processed := 0
	for {
		ok, err := c.process.ProcessNext(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
}

// ComposeOpts configures a report composition.
type ComposeOpts struct {
	BatchID string
	// Document is the base text results are spliced into. May be empty.
	Document string
	// Ordering lists task IDs in the order their results should appear.
	// Tasks left out keep their submission order after the listed ones.
	Ordering []string
}

// Compose builds the final report for a finished batch and persists it to the
// artifact store. Composing the same batch with the same inputs returns the
// same report reference.
func (c *Client) Compose(ctx context.Context, opts ComposeOpts) (*Report, error) {
	report, err := c.compose.Compose(ctx, compose.ComposeRequest{
		BatchID:  opts.BatchID,
		Document: opts.Document,
		Ordering: opts.Ordering,
	})
	if err != nil {
		return nil, fmt.Errorf("could not compose report: %w", err)
	}

	return &Report{Ref: report.Ref, Content: report.Content}, nil
}

// ReadArtifact returns the bytes stored under an artifact reference, as found
// in task results and composed reports.
func (c *Client) ReadArtifact(ref string) ([]byte, error) {
	data, err := c.store.Read(ref)
	if err != nil {
		return nil, fmt.Errorf("could not read artifact: %w", err)
	}
	return data, nil
}

func newBatchStatus(st status.BatchStatus) BatchStatus {
	result := BatchStatus{
		Batch:     newBatch(st.Batch),
		Status:    string(st.Aggregate),
		Pending:   st.Pending,
		Running:   st.Running,
		Completed: st.Completed,
		Failed:    st.Failed,
	}
	for _, task := range st.Tasks {
		result.Tasks = append(result.Tasks, newTask(task))
	}

	return result
}
