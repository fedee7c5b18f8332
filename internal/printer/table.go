package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/labshot/labshot/internal/app/status"
)

// TablePrinter prints batch information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintBatchList prints batches in a table format.
func (t *TablePrinter) PrintBatchList(batches []status.BatchStatus) error {
	if len(batches) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "BATCH\tTHEME\tSTATUS\tTASKS\tCOMPLETED\tFAILED\tCREATED")

	// Print rows.
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			b.Batch.ID,
			b.Batch.Theme,
			b.Aggregate,
			len(b.Tasks),
			b.Completed,
			b.Failed,
			TimeAgo(b.Batch.CreatedAt),
		)
	}

	return nil
}

// PrintBatchStatus prints detailed batch status with one row per task.
func (t *TablePrinter) PrintBatchStatus(batch status.BatchStatus) error {
	fmt.Fprintf(t.writer, "Batch:      %s\n", batch.Batch.ID)
	fmt.Fprintf(t.writer, "Theme:      %s\n", batch.Batch.Theme)
	fmt.Fprintf(t.writer, "Status:     %s\n", batch.Aggregate)
	fmt.Fprintf(t.writer, "Tasks:      %d pending, %d running, %d completed, %d failed\n",
		batch.Pending, batch.Running, batch.Completed, batch.Failed)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(batch.Batch.CreatedAt))

	if batch.Batch.CancelledAt != nil {
		fmt.Fprintf(t.writer, "Cancelled:  %s\n", FormatTimestamp(*batch.Batch.CancelledAt))
	}

	if len(batch.Tasks) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "TASK\tKIND\tSTATUS\tARTIFACTS\tDETAIL")

	for _, task := range batch.Tasks {
		artifacts := 0
		detail := task.FailureReason
		if task.Result != nil {
			artifacts = len(task.Result.ArtifactIDs)
			if detail == "" {
				detail = task.Result.Caption
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", task.ID, task.Kind, task.Status, artifacts, detail)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
