package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/app/process"
	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/render"
	"github.com/labshot/labshot/internal/server"
	"github.com/labshot/labshot/internal/validate"
	"github.com/labshot/labshot/internal/worker"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr   string
	engine       string
	workers      int
	pollInterval time.Duration
	openAI       openAIFlags
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the HTTP API and the task worker pool.")
	c.Cmd.Flag("listen", "HTTP listen address.").Default(":8080").StringVar(&c.listenAddr)
	c.Cmd.Flag("engine", "Sandbox engine (docker, fake).").Default(EngineDocker).EnumVar(&c.engine, EngineDocker, EngineFake)
	c.Cmd.Flag("workers", "Number of concurrent task workers.").Default("3").IntVar(&c.workers)
	c.Cmd.Flag("poll-interval", "Idle worker poll interval.").Default("500ms").DurationVar(&c.pollInterval)
	registerOpenAIFlags(c.Cmd, &c.openAI)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Storage and artifact store.
	repo, err := newRepository(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Recover tasks stranded as running by a previous shutdown before the
	// workers start claiming.
	requeued, err := repo.RequeueRunningTasks(ctx)
	if err != nil {
		return fmt.Errorf("could not requeue stranded tasks: %w", err)
	}
	if requeued > 0 {
		logger.Warningf("Requeued %d tasks stranded by a previous shutdown", requeued)
	}

	store, err := newArtifactStore(c.rootCmd)
	if err != nil {
		return err
	}

	// Sandbox engine.
	engine, err := newEngine(c.engine, logger)
	if err != nil {
		return err
	}

	// Renderer (headless Chrome rasterizer).
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

	// Optional answer generator.
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

	statusSvc, err := status.NewService(status.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create status service: %w", err)
	}

	composeSvc, err := compose.NewService(compose.ServiceConfig{
		Repository: repo,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create compose service: %w", err)
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

	pool, err := worker.NewPool(worker.PoolConfig{
		Process:      processSvc,
		Workers:      c.workers,
		PollInterval: c.pollInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("could not create worker pool: %w", err)
	}

	srv, err := server.New(server.ServerConfig{
		Submit:  submitSvc,
		Status:  statusSvc,
		Compose: composeSvc,
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	var g run.Group

	// HTTP server.
	{
		g.Add(
			func() error {
				return srv.ListenAndServe(c.listenAddr)
			},
			func(_ error) {
				_ = srv.Shutdown(context.Background())
			},
		)
	}

	// Worker pool.
	{
		poolCtx, poolCancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				return pool.Run(poolCtx)
			},
			func(_ error) {
				poolCancel()
			},
		)
	}

	// Context cancellation (from parent signal handling).
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				<-ctx.Done()
				return ctx.Err()
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
