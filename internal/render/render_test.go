package render_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/render"
	"github.com/labshot/labshot/internal/render/fake"
)

func newTestService(t *testing.T) (*render.Service, *artifact.Store, *fake.Rasterizer) {
	t.Helper()

	store, err := artifact.NewStore(artifact.StoreConfig{RootDir: t.TempDir()})
	require.NoError(t, err)

	rasterizer := fake.NewRasterizer()
	service, err := render.NewService(render.ServiceConfig{
		Store:      store,
		Rasterizer: rasterizer,
	})
	require.NoError(t, err)

	return service, store, rasterizer
}

func TestServiceRender(t *testing.T) {
	okResult := &model.ExecutionResult{
		Status: model.ExecStatusCompleted,
		Stdout: "hello\n",
	}

	tests := map[string]struct {
		req        render.Request
		expKinds   []model.ArtifactKind
		expLabels  []string
		expErr     bool
		expInPages []string
	}{
		"A code execution task should produce a code pane and a terminal pane.": {
			req: render.Request{
				BatchID: "batch1",
				TaskID:  "task1",
				Kind:    model.TaskKindCodeExecution,
				Theme:   model.ThemeIDLE,
				Source:  "print('hello')",
				Result:  okResult,
			},
			expKinds:   []model.ArtifactKind{model.ArtifactKindCode, model.ArtifactKindTerminal},
			expLabels:  []string{"main.py", "terminal"},
			expInPages: []string{"print", "hello"},
		},

		"A screenshot only task should produce a single code pane.": {
			req: render.Request{
				BatchID: "batch1",
				TaskID:  "task1",
				Kind:    model.TaskKindScreenshotOnly,
				Theme:   model.ThemeVSCode,
				Source:  "console.log(42)",
			},
			expKinds:  []model.ArtifactKind{model.ArtifactKindCode},
			expLabels: []string{"main.js"},
		},

		"An HTML task should produce a code pane and a browser pane, without terminal.": {
			req: render.Request{
				BatchID: "batch1",
				TaskID:  "task1",
				Kind:    model.TaskKindCodeExecution,
				Theme:   model.ThemeHTML,
				Source:  "<html><body><h1>Hi</h1></body></html>",
				Result:  okResult,
			},
			expKinds:   []model.ArtifactKind{model.ArtifactKindCode, model.ArtifactKindBrowser},
			expLabels:  []string{"index.html", "index.html"},
			expInPages: []string{"<h1>Hi</h1>"},
		},

		"A multi file project should produce per file panes in sorted order plus terminal and routes.": {
			req: render.Request{
				BatchID: "batch1",
				TaskID:  "task1",
				Kind:    model.TaskKindProjectMultiFile,
				Theme:   model.ThemeNode,
				Files: map[string]string{
					"server.js": "const x = 1",
					"app.js":    "const y = 2",
				},
				Routes: []string{"/"},
				Result: okResult,
			},
			expKinds:  []model.ArtifactKind{model.ArtifactKindCode, model.ArtifactKindCode, model.ArtifactKindTerminal, model.ArtifactKindBrowser},
			expLabels: []string{"app.js", "server.js", "terminal", "/"},
		},

		"A request with an unknown theme should fail.": {
			req: render.Request{
				BatchID: "batch1",
				TaskID:  "task1",
				Kind:    model.TaskKindCodeExecution,
				Theme:   model.Theme("emacs"),
				Source:  "x",
			},
			expErr: true,
		},

		"A request without IDs should fail.": {
			req: render.Request{
				Kind:   model.TaskKindCodeExecution,
				Theme:  model.ThemeIDLE,
				Source: "x",
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			service, store, rasterizer := newTestService(t)

			artifacts, err := service.Render(context.TODO(), test.req)

			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			gotKinds := make([]model.ArtifactKind, 0, len(artifacts))
			gotLabels := make([]string, 0, len(artifacts))
			for _, a := range artifacts {
				gotKinds = append(gotKinds, a.Kind)
				gotLabels = append(gotLabels, a.Label)
				assert.NotEmpty(a.ID)
				assert.Equal(test.req.Theme, a.Theme)

				data, err := store.Read(a.Ref)
				require.NoError(err)
				assert.NotEmpty(data)
			}
			assert.Equal(test.expKinds, gotKinds)
			assert.Equal(test.expLabels, gotLabels)

			pages := rasterizer.Pages()
			require.Len(pages, len(artifacts))
			all := ""
			for _, p := range pages {
				all += p
			}
			for _, substr := range test.expInPages {
				assert.Contains(all, substr)
			}
		})
	}
}

func TestServiceRenderDeterministic(t *testing.T) {
	require := require.New(t)

	req := render.Request{
		BatchID: "batch1",
		TaskID:  "task1",
		Kind:    model.TaskKindCodeExecution,
		Theme:   model.ThemeVSCode,
		Source:  "const answer = 42\nconsole.log(answer)",
		Result: &model.ExecutionResult{
			Status: model.ExecStatusCompleted,
			Stdout: "42\n",
		},
	}

	service1, store1, _ := newTestService(t)
	service2, store2, _ := newTestService(t)

	first, err := service1.Render(context.TODO(), req)
	require.NoError(err)
	second, err := service2.Render(context.TODO(), req)
	require.NoError(err)

	require.Len(second, len(first))
	for i := range first {
		data1, err := store1.Read(first[i].Ref)
		require.NoError(err)
		data2, err := store2.Read(second[i].Ref)
		require.NoError(err)
		require.Equal(data1, data2)
	}
}

func TestServiceRenderWriteOnce(t *testing.T) {
	require := require.New(t)

	req := render.Request{
		BatchID: "batch1",
		TaskID:  "task1",
		Kind:    model.TaskKindScreenshotOnly,
		Theme:   model.ThemeNotepad,
		Source:  "print(1)",
	}

	service, _, _ := newTestService(t)

	_, err := service.Render(context.TODO(), req)
	require.NoError(err)

	_, err = service.Render(context.TODO(), req)
	require.ErrorIs(err, model.ErrAlreadyExists)
}
