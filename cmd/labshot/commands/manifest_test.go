package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/model"
)

func TestBatchManifest(t *testing.T) {
	tests := map[string]struct {
		manifest string
		expReq   submit.SubmitRequest
		expErr   bool
	}{
		"A full manifest should map every field": {
			manifest: `
batch_id: hw-1
owner_ref: student-7
theme: vscode
default_insertion: bottom_of_page
tasks:
  - id: t1
    kind: code_execution
    language: python
    source: |
      print("hi")
  - id: t2
    kind: project_multi_file
    files:
      app.js: console.log("a")
    routes:
      - /
    insertion: below_question
`,
			expReq: submit.SubmitRequest{
				BatchID:          "hw-1",
				OwnerRef:         "student-7",
				Theme:            "vscode",
				DefaultInsertion: model.InsertionBottomOfPage,
				Tasks: []submit.TaskRequest{
					{
						ID:       "t1",
						Kind:     model.TaskKindCodeExecution,
						Language: "python",
						Source:   "print(\"hi\")\n",
					},
					{
						ID:        "t2",
						Kind:      model.TaskKindProjectMultiFile,
						Files:     map[string]string{"app.js": `console.log("a")`},
						Routes:    []string{"/"},
						Insertion: model.InsertionBelowQuestion,
					},
				},
			},
		},

		"Broken YAML should fail": {
			manifest: `tasks: [`,
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var m batchManifest
			err := yaml.Unmarshal([]byte(test.manifest), &m)

			if test.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expReq, m.toSubmitRequest())
		})
	}
}
