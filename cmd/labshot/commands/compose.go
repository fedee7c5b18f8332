package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/printer"
)

type ComposeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	batchID      string
	documentPath string
	outPath      string
	ordering     []string
}

// NewComposeCommand returns the compose command.
func NewComposeCommand(rootCmd *RootCommand, app *kingpin.Application) *ComposeCommand {
	c := &ComposeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("compose", "Compose the report for a finished batch.")
	c.Cmd.Arg("batch-id", "Batch ID.").Required().StringVar(&c.batchID)
	c.Cmd.Flag("document", "Path to the base document to splice results into.").StringVar(&c.documentPath)
	c.Cmd.Flag("out", "Path to write the composed report to (defaults to stdout).").Short('o').StringVar(&c.outPath)
	c.Cmd.Flag("ordering", "Task IDs in the order their results should appear (repeatable).").StringsVar(&c.ordering)

	return c
}

func (c ComposeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ComposeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var document string
	if c.documentPath != "" {
		raw, err := os.ReadFile(c.documentPath)
		if err != nil {
			return fmt.Errorf("could not read document: %w", err)
		}
		document = string(raw)
	}

	repo, err := newRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	store, err := newArtifactStore(c.rootCmd)
	if err != nil {
		return err
	}

	svc, err := compose.NewService(compose.ServiceConfig{
		Repository: repo,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	report, err := svc.Compose(ctx, compose.ComposeRequest{
		BatchID:  c.batchID,
		Document: document,
		Ordering: c.ordering,
	})
	if err != nil {
		return fmt.Errorf("could not compose report: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if c.outPath != "" {
		if err := os.WriteFile(c.outPath, report.Content, 0o644); err != nil {
			return fmt.Errorf("could not write report: %w", err)
		}
		return p.PrintMessage(fmt.Sprintf("Report written to %s (%s)", c.outPath, printer.FormatBytes(int64(len(report.Content)))))
	}

	fmt.Fprint(c.rootCmd.Stdout, string(report.Content))
	return nil
}
