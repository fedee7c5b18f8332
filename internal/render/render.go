package render

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
)

// Request carries everything needed to render the artifacts of one task.
type Request struct {
	BatchID string
	TaskID  string
	Kind    model.TaskKind
	Theme   model.Theme
	Source  string
	Files   map[string]string
	Routes  []string
	Result  *model.ExecutionResult
}

func (r Request) validate() error {
	if r.BatchID == "" || r.TaskID == "" {
		return fmt.Errorf("batch and task IDs are required")
	}

	if _, err := specFor(r.Theme); err != nil {
		return err
	}

	return nil
}

// ServiceConfig is the configuration of Service.
type ServiceConfig struct {
	Store      *artifact.Store
	Rasterizer Rasterizer
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}

	if c.Rasterizer == nil {
		return fmt.Errorf("rasterizer is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"service": "render.Service"})

	return nil
}

// Service renders the artifacts of a task: themed code panes, a terminal
// pane with the captured output, and browser panes for served routes.
type Service struct {
	store      *artifact.Store
	rasterizer Rasterizer
	logger     log.Logger
}

// NewService returns a new render Service.
func NewService(config ServiceConfig) (*Service, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		store:      config.Store,
		rasterizer: config.Rasterizer,
		logger:     config.Logger,
	}, nil
}

// Render produces and persists the artifacts of a task. Artifacts come back
// in presentation order: code panes first, then terminal, then browser.
func (s *Service) Render(ctx context.Context, req Request) ([]model.Artifact, error) {
	err := req.validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotValid, err)
	}

	spec, err := specFor(req.Theme)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotValid, err)
	}

	panes, err := s.buildPanes(req, spec)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"batch-id": req.BatchID, "task-id": req.TaskID})

	artifacts := make([]model.Artifact, 0, len(panes))
	for i, pane := range panes {
		png, err := s.rasterizer.Rasterize(ctx, pane.html)
		if err != nil {
			return nil, fmt.Errorf("could not rasterize %q pane: %w", pane.label, err)
		}

		ref, err := s.store.Write(req.BatchID, req.TaskID, i, ".png", png)
		if err != nil {
			return nil, fmt.Errorf("could not store %q pane: %w", pane.label, err)
		}

		artifacts = append(artifacts, model.Artifact{
			ID:         ulid.Make().String(),
			Kind:       pane.kind,
			Theme:      req.Theme,
			Label:      pane.label,
			Ref:        ref,
			SourceText: pane.source,
			CreatedAt:  time.Now().UTC(),
		})
		logger.Debugf("Rendered %s pane %q", pane.kind, pane.label)
	}

	logger.Infof("Rendered %d artifacts", len(artifacts))

	return artifacts, nil
}

type pane struct {
	kind   model.ArtifactKind
	label  string
	html   string
	source string
}

func (s *Service) buildPanes(req Request, spec themeSpec) ([]pane, error) {
	var panes []pane

	codePanes, err := s.buildCodePanes(req, spec)
	if err != nil {
		return nil, err
	}
	panes = append(panes, codePanes...)

	if req.Result != nil && req.Kind != model.TaskKindScreenshotOnly && req.Theme != model.ThemeHTML {
		output := terminalTranscript(req.Result)
		html, err := terminalPaneHTML(output, spec)
		if err != nil {
			return nil, fmt.Errorf("could not build terminal pane: %w", err)
		}
		panes = append(panes, pane{kind: model.ArtifactKindTerminal, label: "terminal", html: html, source: output})
	}

	browserPanes, err := s.buildBrowserPanes(req)
	if err != nil {
		return nil, err
	}
	panes = append(panes, browserPanes...)

	if len(panes) == 0 {
		return nil, fmt.Errorf("%w: nothing to render", model.ErrNotValid)
	}

	return panes, nil
}

func (s *Service) buildCodePanes(req Request, spec themeSpec) ([]pane, error) {
	language := req.Theme.Language()

	if len(req.Files) == 0 {
		filename := defaultFilename(language)
		html, err := codePaneHTML(req.Source, language, filename, spec)
		if err != nil {
			return nil, fmt.Errorf("could not build code pane: %w", err)
		}
		return []pane{{kind: model.ArtifactKindCode, label: filename, html: html, source: req.Source}}, nil
	}

	// Multi file projects get one pane per file, sorted for stable order.
	names := make([]string, 0, len(req.Files))
	for name := range req.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	panes := make([]pane, 0, len(names))
	for _, name := range names {
		html, err := codePaneHTML(req.Files[name], language, name, spec)
		if err != nil {
			return nil, fmt.Errorf("could not build code pane for %q: %w", name, err)
		}
		panes = append(panes, pane{kind: model.ArtifactKindCode, label: name, html: html, source: req.Files[name]})
	}

	return panes, nil
}

func (s *Service) buildBrowserPanes(req Request) ([]pane, error) {
	// HTML tasks screenshot the page itself, no server involved.
	if req.Theme == model.ThemeHTML {
		source := req.Source
		if source == "" && len(req.Files) > 0 {
			for _, name := range []string{"index.html", "main.html"} {
				if content, ok := req.Files[name]; ok {
					source = content
					break
				}
			}
		}
		if source == "" {
			return nil, nil
		}

		html, err := browserPaneHTML(source, "file:///index.html")
		if err != nil {
			return nil, fmt.Errorf("could not build browser pane: %w", err)
		}
		return []pane{{kind: model.ArtifactKindBrowser, label: "index.html", html: html, source: source}}, nil
	}

	if len(req.Routes) == 0 || req.Result == nil {
		return nil, nil
	}

	// Sandboxes run with networking disabled, so routes are presented with
	// the program's captured output as the page body.
	panes := make([]pane, 0, len(req.Routes))
	for _, route := range req.Routes {
		url := "http://localhost:3000" + route
		html, err := browserPaneHTML(req.Result.Stdout, url)
		if err != nil {
			return nil, fmt.Errorf("could not build browser pane for %q: %w", route, err)
		}
		panes = append(panes, pane{kind: model.ArtifactKindBrowser, label: route, html: html, source: req.Result.Stdout})
	}

	return panes, nil
}

func terminalTranscript(result *model.ExecutionResult) string {
	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += result.Stderr
	}

	if result.Status == model.ExecStatusTimedOut {
		if output != "" {
			output += "\n"
		}
		output += "[process timed out]"
	}

	return output
}

func defaultFilename(language string) string {
	switch language {
	case "python":
		return "main.py"
	case "c":
		return "main.c"
	case "java":
		return "Main.java"
	case "javascript":
		return "main.js"
	case "html":
		return "index.html"
	default:
		return "main.txt"
	}
}
