package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// runtime describes how one language runs inside a container.
type runtime struct {
	Image    string
	Filename string
	// Command receives the entry filename and returns the container command.
	Command func(filename string) []string
}

var runtimes = map[string]runtime{
	"python": {
		Image:    "python:3.12-slim",
		Filename: "main.py",
		Command:  func(f string) []string { return []string{"python3", f} },
	},
	"c": {
		Image:    "gcc:13",
		Filename: "main.c",
		Command: func(f string) []string {
			return []string{"sh", "-c", fmt.Sprintf("gcc %s -o /tmp/a.out && /tmp/a.out", f)}
		},
	},
	"java": {
		Image:    "eclipse-temurin:21",
		Filename: "Main.java",
		Command: func(f string) []string {
			class := strings.TrimSuffix(f, ".java")
			return []string{"sh", "-c", fmt.Sprintf("javac -d /tmp %s && java -cp /tmp %s", f, class)}
		},
	},
	"javascript": {
		Image:    "node:20-alpine",
		Filename: "main.js",
		Command:  func(f string) []string { return []string{"node", f} },
	},
}

var runtimeAliases = map[string]string{
	"node":  "javascript",
	"react": "javascript",
}

var javaClassRe = regexp.MustCompile(`public\s+class\s+([A-Za-z_][A-Za-z0-9_]*)`)

// EngineConfig is the configuration for the Docker engine.
type EngineConfig struct {
	Client DockerClient
	// Images overrides the default image per language.
	Images map[string]string
	// TeardownTimeout bounds container removal after a run.
	TeardownTimeout time.Duration
	Logger          log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Client == nil {
		// Create a default Docker client.
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Docker"})
	return nil
}

// Engine is the Docker implementation of sandbox.Engine. Every run gets a
// fresh container with no network, capped memory/CPU/PIDs, dropped
// capabilities and a non-root user; the container is force-removed whether
// the run completed, crashed or timed out.
type Engine struct {
	client          DockerClient
	images          map[string]string
	teardownTimeout time.Duration
	logger          log.Logger
}

// NewEngine creates a new Docker engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		client:          cfg.Client,
		images:          cfg.Images,
		teardownTimeout: cfg.TeardownTimeout,
		logger:          cfg.Logger,
	}, nil
}

// Check performs preflight checks against the Docker daemon.
func (e *Engine) Check(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{}

	_, err := e.client.Ping(ctx)
	if err != nil {
		results = append(results, model.CheckResult{
			ID:      "docker_daemon",
			Message: fmt.Sprintf("Docker daemon not reachable: %s", err),
			Status:  model.CheckStatusError,
		})
		return results
	}
	results = append(results, model.CheckResult{
		ID:      "docker_daemon",
		Message: "Docker daemon reachable",
		Status:  model.CheckStatusOK,
	})

	for lang := range runtimes {
		results = append(results, model.CheckResult{
			ID:      "image_" + lang,
			Message: fmt.Sprintf("%s runs on %s", lang, e.imageFor(lang)),
			Status:  model.CheckStatusOK,
		})
	}

	return results
}

// Run executes one spec in a disposable container.
func (e *Engine) Run(ctx context.Context, spec model.RunSpec) (result *model.ExecutionResult, err error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	limits := spec.Limits.WithDefaults()

	rt, err := e.runtimeFor(spec.Language)
	if err != nil {
		return nil, err
	}

	entry := entryFilename(spec, rt)
	img := e.imageFor(canonicalLanguage(spec.Language))

	id := ulid.Make().String()
	containerName := fmt.Sprintf("labshot-%s", strings.ToLower(id))

	// Pull failures are not fatal, the image may already be local.
	if pullResp, pullErr := e.client.ImagePull(ctx, img, image.PullOptions{}); pullErr != nil {
		e.logger.Warningf("Could not pull image %s: %v", img, pullErr)
	} else {
		_, _ = io.Copy(io.Discard, pullResp)
		pullResp.Close()
	}

	pids := int64(limits.PIDsLimit)
	containerConfig := &container.Config{
		Image:           img,
		Cmd:             rt.Command(entry),
		WorkingDir:      "/workspace",
		User:            "nobody",
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:    int64(limits.MemoryMB) * 1024 * 1024,
			NanoCPUs:  int64(limits.CPUs * 1e9),
			PidsLimit: &pids,
		},
		CapDrop:     strslice.StrSlice{"ALL"},
		SecurityOpt: []string{"no-new-privileges:true"},
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("could not create container: %w", err)
	}
	containerID := resp.ID

	// Teardown is unconditional and must never wedge the worker: failures are
	// logged, not returned.
	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.Background(), e.teardownTimeout)
		defer cancel()
		if rmErr := e.client.ContainerRemove(teardownCtx, containerID, container.RemoveOptions{Force: true}); rmErr != nil {
			e.logger.Errorf("Could not remove container %s: %v", containerName, rmErr)
		}
	}()

	workspace, err := workspaceTar(spec, entry)
	if err != nil {
		return nil, fmt.Errorf("could not build workspace archive: %w", err)
	}
	if err := e.client.CopyToContainer(ctx, containerID, "/", workspace, container.CopyToContainerOptions{}); err != nil {
		return nil, fmt.Errorf("could not copy sources into container: %w", err)
	}

	start := time.Now()
	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("could not start container: %w", err)
	}
	e.logger.Debugf("Started container %s for %s run", containerName, spec.Language)

	status := model.ExecStatusCompleted
	exitCode := 0

	waitCh, waitErrCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	timer := time.NewTimer(limits.Timeout)
	defer timer.Stop()

	select {
	case waitResp := <-waitCh:
		exitCode = int(waitResp.StatusCode)
		if exitCode != 0 {
			status = model.ExecStatusCrashed
		}
	case waitErr := <-waitErrCh:
		return nil, fmt.Errorf("could not wait for container: %w", waitErr)
	case <-timer.C:
		e.logger.Infof("Run hit %s wall-clock limit, killing container %s", limits.Timeout, containerName)
		if killErr := e.client.ContainerKill(ctx, containerID, "SIGKILL"); killErr != nil {
			e.logger.Errorf("Could not kill container %s: %v", containerName, killErr)
		}
		status = model.ExecStatusTimedOut
		exitCode = model.TimeoutExitCode
	case <-ctx.Done():
		if killErr := e.client.ContainerKill(context.WithoutCancel(ctx), containerID, "SIGKILL"); killErr != nil {
			e.logger.Errorf("Could not kill container %s: %v", containerName, killErr)
		}
		return nil, ctx.Err()
	}
	duration := time.Since(start)

	stdout, stderr, err := e.collectLogs(ctx, containerID, limits.OutputLimitBytes)
	if err != nil {
		// A timed out run may have unreadable logs, the result still stands.
		e.logger.Warningf("Could not collect logs from container %s: %v", containerName, err)
	}

	return &model.ExecutionResult{
		Status:   status,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// collectLogs demultiplexes the container's stdout/stderr into capped buffers.
func (e *Engine) collectLogs(ctx context.Context, containerID string, limit int) (stdout, stderr string, err error) {
	logsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	reader, err := e.client.ContainerLogs(logsCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("could not get container logs: %w", err)
	}
	defer reader.Close()

	outBuf := newCappedBuffer(limit)
	errBuf := newCappedBuffer(limit)
	if _, err := stdcopy.StdCopy(outBuf, errBuf, reader); err != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("could not demultiplex logs: %w", err)
	}

	return outBuf.String(), errBuf.String(), nil
}

func (e *Engine) runtimeFor(language string) (runtime, error) {
	rt, ok := runtimes[canonicalLanguage(language)]
	if !ok {
		return runtime{}, fmt.Errorf("no runtime for language %q: %w", language, model.ErrNotValid)
	}
	return rt, nil
}

func (e *Engine) imageFor(language string) string {
	if img, ok := e.images[language]; ok {
		return img
	}
	return runtimes[language].Image
}

func canonicalLanguage(language string) string {
	if alias, ok := runtimeAliases[language]; ok {
		return alias
	}
	return language
}

// entryFilename picks the workspace file the runtime command runs. Java
// sources are named after their public class so javac accepts them.
func entryFilename(spec model.RunSpec, rt runtime) string {
	if canonicalLanguage(spec.Language) == "java" {
		if m := javaClassRe.FindStringSubmatch(spec.Source); m != nil {
			return m[1] + ".java"
		}
	}
	if spec.Source == "" && len(spec.Files) > 0 {
		for _, candidate := range []string{"server.js", "main.js", "main.py", "index.js"} {
			if _, ok := spec.Files[candidate]; ok {
				return candidate
			}
		}
	}
	return rt.Filename
}

// workspaceTar archives the source and extra files under /workspace.
func workspaceTar(spec model.RunSpec, entry string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	now := time.Now()
	if err := tw.WriteHeader(&tar.Header{
		Name:     "workspace/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  now,
	}); err != nil {
		return nil, err
	}

	writeFile := func(name, content string) error {
		if err := tw.WriteHeader(&tar.Header{
			Name:    "workspace/" + name,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: now,
		}); err != nil {
			return err
		}
		_, err := tw.Write([]byte(content))
		return err
	}

	if spec.Source != "" {
		if err := writeFile(entry, spec.Source); err != nil {
			return nil, err
		}
	}
	for name, content := range spec.Files {
		if name == entry && spec.Source != "" {
			continue
		}
		if err := writeFile(name, content); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// cappedBuffer accepts writes forever but retains only the first limit bytes,
// so a runaway process cannot balloon worker memory.
type cappedBuffer struct {
	limit     int
	buf       bytes.Buffer
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remain := b.limit - b.buf.Len()
	if remain <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remain {
		b.buf.Write(p[:remain])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + model.TruncationMarker
	}
	return b.buf.String()
}
