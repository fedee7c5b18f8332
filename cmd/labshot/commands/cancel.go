package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/printer"
)

type CancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	batchID string
}

// NewCancelCommand returns the cancel command.
func NewCancelCommand(rootCmd *RootCommand, app *kingpin.Application) *CancelCommand {
	c := &CancelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("cancel", "Cancel all pending tasks of a batch.")
	c.Cmd.Arg("batch-id", "Batch ID.").Required().StringVar(&c.batchID)

	return c
}

func (c CancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c CancelCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := newRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	if err := svc.Cancel(ctx, c.batchID); err != nil {
		return fmt.Errorf("could not cancel batch: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	return p.PrintMessage(fmt.Sprintf("Batch %s cancelled", c.batchID))
}
