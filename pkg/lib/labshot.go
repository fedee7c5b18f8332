package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/labshot/labshot/internal/answer"
	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/app/process"
	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/conventions"
	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/render"
	renderfake "github.com/labshot/labshot/internal/render/fake"
	"github.com/labshot/labshot/internal/sandbox"
	"github.com/labshot/labshot/internal/sandbox/docker"
	sandboxfake "github.com/labshot/labshot/internal/sandbox/fake"
	"github.com/labshot/labshot/internal/storage/sqlite"
	"github.com/labshot/labshot/internal/validate"
)

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults. At minimum, an empty
// Config{} will use ~/.labshot/labshot.db for storage and the Docker engine.
type Config struct {
	// DBPath is the SQLite database path.
	// Default: ~/.labshot/labshot.db.
	DBPath string

	// DataDir is the base directory for labshot data (database, artifacts).
	// Default: ~/.labshot.
	DataDir string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// Engine selects the sandbox engine.
	// Default: [EngineDocker].
	//
	// Set this to [EngineFake] to test without real infrastructure. The fake
	// engine also switches rasterization to a fake, so no Chrome is needed.
	Engine EngineType

	// OpenAIAPIKey enables answer generation for answer request tasks.
	// When empty (default) answer request tasks fail.
	OpenAIAPIKey string

	// OpenAIBaseURL overrides the OpenAI API base URL.
	OpenAIBaseURL string

	// OpenAIModel overrides the model used for answer generation.
	OpenAIModel string
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Engine == "" {
		c.Engine = EngineDocker
	}

	return nil
}

// Client is the main SDK entry point for running the pipeline programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	store   *artifact.Store
	submit  *submit.Service
	status  *status.Service
	process *process.Service
	compose *compose.Service
	logger  log.Logger
	closeFn func() error
}

// New creates a new SDK client backed by a SQLite database.
//
// The caller must call [Client.Close] when done to release the database
// connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	// Recover tasks stranded as running by a previous process.
	if _, err := repo.RequeueRunningTasks(ctx); err != nil {
		return nil, fmt.Errorf("could not requeue stranded tasks: %w", err)
	}

	store, err := artifact.NewStore(artifact.StoreConfig{
		RootDir: conventions.ArtifactsPath(cfg.DataDir),
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create artifact store: %w", err)
	}

	engine, rasterizer, err := newEngineAndRasterizer(cfg)
	if err != nil {
		return nil, err
	}

	renderer, err := render.NewService(render.ServiceConfig{
		Store:      store,
		Rasterizer: rasterizer,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create renderer: %w", err)
	}

	var generator answer.Generator
	if cfg.OpenAIAPIKey != "" {
		generator, err = answer.NewOpenAIGenerator(answer.OpenAIGeneratorConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create answer generator: %w", err)
		}
	}

	validator, err := validate.NewValidator(validate.ValidatorConfig{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create validator: %w", err)
	}

	submitSvc, err := submit.NewService(submit.ServiceConfig{
		Repository: repo,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create submit service: %w", err)
	}

	statusSvc, err := status.NewService(status.ServiceConfig{
		Repository: repo,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create status service: %w", err)
	}

	processSvc, err := process.NewService(process.ServiceConfig{
		Repository: repo,
		Engine:     engine,
		Renderer:   renderer,
		Validator:  validator,
		Generator:  generator,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create process service: %w", err)
	}

	composeSvc, err := compose.NewService(compose.ServiceConfig{
		Repository: repo,
		Store:      store,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create compose service: %w", err)
	}

	return &Client{
		store:   store,
		submit:  submitSvc,
		status:  statusSvc,
		process: processSvc,
		compose: composeSvc,
		logger:  cfg.Logger,
		closeFn: repo.Close,
	}, nil
}

func newEngineAndRasterizer(cfg Config) (sandbox.Engine, render.Rasterizer, error) {
	switch cfg.Engine {
	case EngineFake:
		engine, err := sandboxfake.NewEngine(sandboxfake.EngineConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create fake engine: %w", err)
		}
		return engine, renderfake.NewRasterizer(), nil

	case EngineDocker:
		engine, err := docker.NewEngine(docker.EngineConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create docker engine: %w", err)
		}
		rasterizer, err := render.NewChromeRasterizer(render.ChromeRasterizerConfig{})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create rasterizer: %w", err)
		}
		return engine, rasterizer, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine type %q", cfg.Engine)
	}
}

// Close releases the client's resources.
func (c *Client) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}
