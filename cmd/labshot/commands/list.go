package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/printer"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all batches.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
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

	batches, err := svc.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list batches: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintBatchList(batches); err != nil {
		return fmt.Errorf("could not print batches: %w", err)
	}

	return nil
}
