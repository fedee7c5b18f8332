package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/labshot/labshot/internal/answer"
	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/conventions"
	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/sandbox"
	"github.com/labshot/labshot/internal/sandbox/docker"
	sandboxfake "github.com/labshot/labshot/internal/sandbox/fake"
	"github.com/labshot/labshot/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	// EngineDocker runs tasks in Docker containers.
	EngineDocker = "docker"
	// EngineFake runs tasks against the in-memory fake engine.
	EngineFake = "fake"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	DBPath     string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory for the database and rendered artifacts.").Envar("LABSHOT_DATA_DIR").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("db-path", "Path to the SQLite database file (defaults to <data-dir>/"+conventions.DBFile+").").Envar("LABSHOT_DB_PATH").StringVar(&c.DBPath)

	return c
}

// dbPath resolves the effective database path.
func (c *RootCommand) dbPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return conventions.DBPath(c.DataDir)
}

// newRepository opens the SQLite repository shared by all commands.
func newRepository(ctx context.Context, rootCmd *RootCommand) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: rootCmd.dbPath(),
		Logger: rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	return repo, nil
}

// newArtifactStore opens the filesystem artifact store under the data dir.
func newArtifactStore(rootCmd *RootCommand) (*artifact.Store, error) {
	store, err := artifact.NewStore(artifact.StoreConfig{
		RootDir: conventions.ArtifactsPath(rootCmd.DataDir),
		Logger:  rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create artifact store: %w", err)
	}

	return store, nil
}

// newEngine creates the sandbox engine selected by name.
func newEngine(engineType string, logger log.Logger) (sandbox.Engine, error) {
	switch engineType {
	case EngineDocker:
		engine, err := docker.NewEngine(docker.EngineConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create docker engine: %w", err)
		}
		return engine, nil
	case EngineFake:
		engine, err := sandboxfake.NewEngine(sandboxfake.EngineConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create fake engine: %w", err)
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown engine type %q", engineType)
	}
}

// openAIFlags holds the answer generator flags shared by serve and run.
type openAIFlags struct {
	apiKey  string
	baseURL string
	model   string
}

func registerOpenAIFlags(cmd *kingpin.CmdClause, flags *openAIFlags) {
	cmd.Flag("openai-api-key", "OpenAI API key for answer generation (empty disables it).").Envar("LABSHOT_OPENAI_API_KEY").StringVar(&flags.apiKey)
	cmd.Flag("openai-base-url", "OpenAI API base URL override.").Envar("LABSHOT_OPENAI_BASE_URL").StringVar(&flags.baseURL)
	cmd.Flag("openai-model", "OpenAI model for answer generation.").Envar("LABSHOT_OPENAI_MODEL").StringVar(&flags.model)
}

// newGenerator creates the answer generator, or nil when no API key is set.
func newGenerator(flags openAIFlags, logger log.Logger) (answer.Generator, error) {
	if flags.apiKey == "" {
		return nil, nil
	}

	gen, err := answer.NewOpenAIGenerator(answer.OpenAIGeneratorConfig{
		APIKey:  flags.apiKey,
		BaseURL: flags.baseURL,
		Model:   flags.model,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create answer generator: %w", err)
	}

	return gen, nil
}
