package printer

import "github.com/labshot/labshot/internal/app/status"

// Printer knows how to print batch information in different formats.
type Printer interface {
	PrintBatchList(batches []status.BatchStatus) error
	PrintBatchStatus(batch status.BatchStatus) error
	PrintMessage(msg string) error
}
