package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/app/process"
	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/printer"
	"github.com/labshot/labshot/internal/render"
	"github.com/labshot/labshot/internal/validate"
)

// batchManifest is the YAML manifest accepted by the run command.
type batchManifest struct {
	BatchID          string         `yaml:"batch_id"`
	OwnerRef         string         `yaml:"owner_ref"`
	Theme            string         `yaml:"theme"`
	DefaultInsertion string         `yaml:"default_insertion"`
	Tasks            []taskManifest `yaml:"tasks"`
}

type taskManifest struct {
	ID        string            `yaml:"id"`
	Kind      string            `yaml:"kind"`
	Language  string            `yaml:"language"`
	Source    string            `yaml:"source"`
	Question  string            `yaml:"question"`
	Files     map[string]string `yaml:"files"`
	Routes    []string          `yaml:"routes"`
	Insertion string            `yaml:"insertion"`
}

// toSubmitRequest maps the manifest to a submission request.
func (m batchManifest) toSubmitRequest() submit.SubmitRequest {
	req := submit.SubmitRequest{
		BatchID:          m.BatchID,
		OwnerRef:         m.OwnerRef,
		Theme:            m.Theme,
		DefaultInsertion: model.Insertion(m.DefaultInsertion),
	}
	for _, tm := range m.Tasks {
		req.Tasks = append(req.Tasks, submit.TaskRequest{
			ID:        tm.ID,
			Kind:      model.TaskKind(tm.Kind),
			Language:  tm.Language,
			Source:    tm.Source,
			Question:  tm.Question,
			Files:     tm.Files,
			Routes:    tm.Routes,
			Insertion: model.Insertion(tm.Insertion),
		})
	}

	return req
}

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	manifestPath string
	documentPath string
	outPath      string
	engine       string
	openAI       openAIFlags
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Submit a batch manifest, process every task and compose the report.")
	c.Cmd.Arg("manifest", "Path to the batch manifest (YAML).").Required().StringVar(&c.manifestPath)
	c.Cmd.Flag("document", "Path to the base document to splice results into.").StringVar(&c.documentPath)
	c.Cmd.Flag("out", "Path to write the composed report to (defaults to stdout).").Short('o').StringVar(&c.outPath)
	c.Cmd.Flag("engine", "Sandbox engine (docker, fake).").Default(EngineDocker).EnumVar(&c.engine, EngineDocker, EngineFake)
	registerOpenAIFlags(c.Cmd, &c.openAI)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Load manifest.
	raw, err := os.ReadFile(c.manifestPath)
	if err != nil {
		return fmt.Errorf("could not read manifest: %w", err)
	}

	var manifest batchManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("could not parse manifest: %w", err)
	}

	var document string
	if c.documentPath != "" {
		raw, err := os.ReadFile(c.documentPath)
		if err != nil {
			return fmt.Errorf("could not read document: %w", err)
		}
		document = string(raw)
	}

	// Storage and artifact store.
	repo, err := newRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Recover tasks stranded as running by a previous interrupted run.
	if _, err := repo.RequeueRunningTasks(ctx); err != nil {
		return fmt.Errorf("could not requeue stranded tasks: %w", err)
	}

	store, err := newArtifactStore(c.rootCmd)
	if err != nil {
		return err
	}

	// Sandbox engine and renderer.
	engine, err := newEngine(c.engine, logger)
	if err != nil {
		return err
	}

	rasterizer, err := render.NewChromeRasterizer(render.ChromeRasterizerConfig{})
	if err != nil {
		return fmt.Errorf("could not create rasterizer: %w", err)
	}

	renderer, err := render.NewService(render.ServiceConfig{
		Store:      store,
		Rasterizer: rasterizer,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create renderer: %w", err)
	}

	generator, err := newGenerator(c.openAI, logger)
	if err != nil {
		return err
	}

	// Application services.
	validator, err := validate.NewValidator(validate.ValidatorConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create validator: %w", err)
	}

	submitSvc, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create submit service: %w", err)
	}

	processSvc, err := process.NewService(process.ServiceConfig{
		Repository: repo,
		Engine:     engine,
		Renderer:   renderer,
		Validator:  validator,
		Generator:  generator,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create process service: %w", err)
	}

	composeSvc, err := compose.NewService(compose.ServiceConfig{
		Repository: repo,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create compose service: %w", err)
	}

	// Submit the batch.
	batch, err := submitSvc.Submit(ctx, manifest.toSubmitRequest())
	if err != nil {
		return fmt.Errorf("could not submit batch: %w", err)
	}
	logger.Infof("Submitted batch %s with %d tasks", batch.ID, len(batch.TaskIDs))

	// Drain the queue in-process.
	for {
		processed, err := processSvc.ProcessNext(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("could not process task: %w", err)
		}
		if !processed {
			break
		}
	}

	// Compose the report.
	report, err := composeSvc.Compose(ctx, compose.ComposeRequest{
		BatchID:  batch.ID,
		Document: document,
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
