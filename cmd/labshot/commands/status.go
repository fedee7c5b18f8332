package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/printer"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	batchID string
	format  string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Get detailed status of a batch.")
	c.Cmd.Arg("batch-id", "Batch ID.").Required().StringVar(&c.batchID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := newRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := status.NewService(status.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	batch, err := svc.Status(ctx, c.batchID)
	if err != nil {
		return fmt.Errorf("could not get batch status: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintBatchStatus(*batch); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
