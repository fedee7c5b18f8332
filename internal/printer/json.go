package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/model"
)

// JSONPrinter prints batch information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a batch in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Theme     string    `json:"theme"`
	Status    string    `json:"status"`
	Tasks     int       `json:"tasks"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
}

// statusOutput represents the full batch status output.
type statusOutput struct {
	ID          string       `json:"id"`
	OwnerRef    string       `json:"owner_ref,omitempty"`
	Theme       string       `json:"theme"`
	Status      string       `json:"status"`
	Pending     int          `json:"pending"`
	Running     int          `json:"running"`
	Completed   int          `json:"completed"`
	Failed      int          `json:"failed"`
	CreatedAt   time.Time    `json:"created_at"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
	Tasks       []taskOutput `json:"tasks"`
}

// taskOutput represents a single task inside the status output.
type taskOutput struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Result        *model.TaskResult `json:"result,omitempty"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintBatchList prints batches in JSON format with a subset of fields.
func (j *JSONPrinter) PrintBatchList(batches []status.BatchStatus) error {
	items := make([]listItem, 0, len(batches))
	for _, b := range batches {
		items = append(items, listItem{
			ID:        b.Batch.ID,
			Theme:     string(b.Batch.Theme),
			Status:    string(b.Aggregate),
			Tasks:     len(b.Tasks),
			Completed: b.Completed,
			Failed:    b.Failed,
			CreatedAt: b.Batch.CreatedAt,
		})
	}

	return j.print(items)
}

// PrintBatchStatus prints the full batch status in JSON format.
func (j *JSONPrinter) PrintBatchStatus(batch status.BatchStatus) error {
	out := statusOutput{
		ID:          batch.Batch.ID,
		OwnerRef:    batch.Batch.OwnerRef,
		Theme:       string(batch.Batch.Theme),
		Status:      string(batch.Aggregate),
		Pending:     batch.Pending,
		Running:     batch.Running,
		Completed:   batch.Completed,
		Failed:      batch.Failed,
		CreatedAt:   batch.Batch.CreatedAt,
		CancelledAt: batch.Batch.CancelledAt,
	}
	for _, task := range batch.Tasks {
		out.Tasks = append(out.Tasks, taskOutput{
			ID:            task.ID,
			Kind:          string(task.Kind),
			Status:        string(task.Status),
			FailureReason: task.FailureReason,
			Result:        task.Result,
		})
	}

	return j.print(out)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.print(messageOutput{Message: msg})
}

func (j *JSONPrinter) print(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
