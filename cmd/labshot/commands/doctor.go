package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/labshot/labshot/internal/model"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	engine string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks for the sandbox engine.")
	c.Cmd.Flag("engine", "Engine to check (docker, fake).").Default(EngineDocker).EnumVar(&c.engine, EngineDocker, EngineFake)

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	out := c.rootCmd.Stdout

	engine, err := newEngine(c.engine, logger)
	if err != nil {
		return err
	}

	results := engine.Check(ctx)

	totalErrors := 0
	totalWarnings := 0

	fmt.Fprintf(out, "Checking %s engine...\n", c.engine)
	for _, r := range results {
		icon := getStatusIcon(r.Status)
		fmt.Fprintf(out, "  %s %-20s %s\n", icon, r.ID, r.Message)

		switch r.Status {
		case model.CheckStatusError:
			totalErrors++
		case model.CheckStatusWarning:
			totalWarnings++
		}
	}

	// Summary.
	fmt.Fprintln(out)
	if totalErrors == 0 && totalWarnings == 0 {
		fmt.Fprintln(out, "All checks passed!")
	} else {
		var summary []string
		if totalErrors > 0 {
			summary = append(summary, fmt.Sprintf("%d error(s)", totalErrors))
		}
		if totalWarnings > 0 {
			summary = append(summary, fmt.Sprintf("%d warning(s)", totalWarnings))
		}
		fmt.Fprintf(out, "%s\n", strings.Join(summary, ", "))
	}

	if totalErrors > 0 {
		return fmt.Errorf("preflight checks failed with %d error(s)", totalErrors)
	}

	return nil
}

func getStatusIcon(status model.CheckStatus) string {
	switch status {
	case model.CheckStatusOK:
		return "OK"
	case model.CheckStatusWarning:
		return "!!"
	case model.CheckStatusError:
		return "XX"
	default:
		return "??"
	}
}
