package validate_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/validate"
)

func TestValidatorValidate(t *testing.T) {
	tests := map[string]struct {
		source    string
		language  string
		expErr    bool
		expReason string
	}{
		"Plain python should pass": {
			source:   "print(2+2)",
			language: "python",
		},

		"Python file handling should pass": {
			source:   "with open('data.txt') as f:\n    print(f.read())",
			language: "python",
		},

		"Python os.system should be rejected": {
			source:    "import os\nos.system('rm -rf /')",
			language:  "python",
			expErr:    true,
			expReason: "os.system",
		},

		"Python subprocess import should be rejected": {
			source:    "import subprocess\nsubprocess.run(['ls'])",
			language:  "python",
			expErr:    true,
			expReason: "subprocess",
		},

		"Python socket import should be rejected": {
			source:    "import socket\ns = socket.socket()",
			language:  "python",
			expErr:    true,
			expReason: "socket",
		},

		"Python requests import should be rejected": {
			source:    "import requests\nrequests.get('http://example.com')",
			language:  "python",
			expErr:    true,
			expReason: "network",
		},

		"Python eval should be rejected": {
			source:    "eval('2+2')",
			language:  "python",
			expErr:    true,
			expReason: "eval",
		},

		"Python dynamic import should be rejected": {
			source:    "__import__('os')",
			language:  "python",
			expErr:    true,
			expReason: "dynamic imports",
		},

		"Python reading /etc should be rejected": {
			source:    "print(open('/etc/passwd').read())",
			language:  "python",
			expErr:    true,
			expReason: "system files",
		},

		"Plain C should pass": {
			source:   "#include <stdio.h>\nint main(){printf(\"hi\");return 0;}",
			language: "c",
		},

		"C system call should be rejected": {
			source:    "#include <stdlib.h>\nint main(){system(\"ls\");}",
			language:  "c",
			expErr:    true,
			expReason: "system",
		},

		"C fork should be rejected": {
			source:    "int main(){fork();}",
			language:  "c",
			expErr:    true,
			expReason: "fork",
		},

		"C socket include should be rejected": {
			source:    "#include <sys/socket.h>\nint main(){}",
			language:  "c",
			expErr:    true,
			expReason: "network",
		},

		"Plain Java should pass": {
			source:   "public class Main { public static void main(String[] a){ System.out.println(42); } }",
			language: "java",
		},

		"Java Runtime exec should be rejected": {
			source:    "Runtime.getRuntime().exec(\"ls\");",
			language:  "java",
			expErr:    true,
			expReason: "Runtime",
		},

		"Java net import should be rejected": {
			source:    "import java.net.Socket;",
			language:  "java",
			expErr:    true,
			expReason: "java.net",
		},

		"Node express app should pass": {
			source:   "const express = require('express');\nconst app = express();\napp.listen(3000);",
			language: "node",
		},

		"Node child_process should be rejected": {
			source:    "const cp = require('child_process');\ncp.execSync('ls');",
			language:  "node",
			expErr:    true,
			expReason: "child_process",
		},

		"React source maps onto javascript rules": {
			source:    "eval('alert(1)')",
			language:  "react",
			expErr:    true,
			expReason: "eval",
		},

		"Plain HTML should pass": {
			source:   "<!doctype html><html><body><h1>Hi</h1></body></html>",
			language: "html",
		},

		"HTML fetch should be rejected": {
			source:    "<script>fetch('http://evil.example')</script>",
			language:  "html",
			expErr:    true,
			expReason: "fetch",
		},

		"Empty source should be rejected": {
			source:   "",
			language: "python",
			expErr:   true,
		},

		"Null bytes should be rejected": {
			source:   "print('hi')\x00",
			language: "python",
			expErr:   true,
		},

		"Oversized source should be rejected": {
			source:   strings.Repeat("a", model.MaxSourceLength+1),
			language: "python",
			expErr:   true,
		},

		"Unsupported language should be rejected": {
			source:   "puts 'hi'",
			language: "ruby",
			expErr:   true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := validate.NewValidator(validate.ValidatorConfig{})
			require.NoError(t, err)

			err = v.Validate(tt.source, tt.language)

			if tt.expErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrRejected))
				if tt.expReason != "" {
					assert.Contains(t, err.Error(), tt.expReason)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
