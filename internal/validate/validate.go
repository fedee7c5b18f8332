// Package validate implements the static denylist screen that runs before any
// code is scheduled. It is a fast-fail convenience, not a security boundary:
// the sandbox engine's isolation is what actually contains the code.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
)

type rule struct {
	re     *regexp.Regexp
	reason string
}

func mustRule(expr, reason string) rule {
	return rule{re: regexp.MustCompile(expr), reason: reason}
}

// Denylists calibrated per language. Semantic analysis is out of scope, false
// negatives are acceptable.
var languageRules = map[string][]rule{
	"python": {
		mustRule(`(?i)\bos\.system\s*\(`, "process execution (os.system) is not allowed"),
		mustRule(`(?i)\bimport\s+subprocess\b`, "process execution (subprocess) is not allowed"),
		mustRule(`(?i)\bsubprocess\.`, "process execution (subprocess) is not allowed"),
		mustRule(`(?i)\bimport\s+socket\b`, "network access (socket) is not allowed"),
		mustRule(`(?i)\bimport\s+(urllib|requests|http\.client|httpx|aiohttp)\b`, "network access is not allowed"),
		mustRule(`(?i)\beval\s*\(`, "dynamic evaluation (eval) is not allowed"),
		mustRule(`(?i)\bexec\s*\(`, "dynamic evaluation (exec) is not allowed"),
		mustRule(`(?i)__import__\s*\(`, "dynamic imports are not allowed"),
		mustRule(`(?i)\bcompile\s*\(`, "dynamic compilation is not allowed"),
		mustRule(`(?i)\bimport\s+ctypes\b`, "native code loading (ctypes) is not allowed"),
		mustRule(`(?i)\bshutil\.rmtree\s*\(`, "recursive filesystem removal is not allowed"),
		mustRule(`open\s*\(\s*['"]/(etc|proc|sys)/`, "reading system files is not allowed"),
	},
	"c": {
		mustRule(`\bsystem\s*\(`, "process execution (system) is not allowed"),
		mustRule(`\bpopen\s*\(`, "process execution (popen) is not allowed"),
		mustRule(`\b(fork|vfork)\s*\(`, "process spawning (fork) is not allowed"),
		mustRule(`\bexec[lv][pe]?\s*\(`, "process execution (exec*) is not allowed"),
		mustRule(`\bsocket\s*\(`, "network access (socket) is not allowed"),
		mustRule(`#\s*include\s*<sys/socket\.h>`, "network access (sys/socket.h) is not allowed"),
		mustRule(`\b(remove|unlink)\s*\(`, "filesystem removal is not allowed"),
	},
	"java": {
		mustRule(`Runtime\s*\.\s*getRuntime\s*\(`, "process execution (Runtime) is not allowed"),
		mustRule(`\bProcessBuilder\b`, "process execution (ProcessBuilder) is not allowed"),
		mustRule(`\bimport\s+java\.net\b`, "network access (java.net) is not allowed"),
		mustRule(`\bjava\.net\.(Socket|URL|URLConnection|HttpURLConnection)\b`, "network access (java.net) is not allowed"),
		mustRule(`\bFiles\s*\.\s*delete`, "filesystem removal is not allowed"),
		mustRule(`\bimport\s+java\.lang\.reflect\b`, "reflection is not allowed"),
	},
	"javascript": {
		mustRule(`(?i)require\s*\(\s*['"]child_process['"]`, "process execution (child_process) is not allowed"),
		mustRule(`(?i)from\s+['"]child_process['"]`, "process execution (child_process) is not allowed"),
		mustRule(`(?i)require\s*\(\s*['"](net|dgram|tls)['"]`, "raw network access is not allowed"),
		mustRule(`(?i)\beval\s*\(`, "dynamic evaluation (eval) is not allowed"),
		mustRule(`(?i)new\s+Function\s*\(`, "dynamic evaluation (Function) is not allowed"),
		mustRule(`(?i)fs\.(unlink|rmdir|rm)\b`, "filesystem removal is not allowed"),
	},
	"html": {
		mustRule(`(?i)\bfetch\s*\(`, "network access (fetch) is not allowed"),
		mustRule(`(?i)\bXMLHttpRequest\b`, "network access (XMLHttpRequest) is not allowed"),
		mustRule(`(?i)new\s+WebSocket\s*\(`, "network access (WebSocket) is not allowed"),
		mustRule(`(?i)\beval\s*\(`, "dynamic evaluation (eval) is not allowed"),
		mustRule(`(?i)document\.cookie`, "cookie access is not allowed"),
		mustRule(`(?i)<script[^>]+src\s*=\s*['"]https?:`, "remote scripts are not allowed"),
	},
}

// languageAliases maps submitted language names onto rule sets.
var languageAliases = map[string]string{
	"node":  "javascript",
	"react": "javascript",
}

// ValidatorConfig is the configuration for the validator.
type ValidatorConfig struct {
	Logger log.Logger
}

func (c *ValidatorConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "validate.Validator"})
	return nil
}

// Validator screens submitted source against per-language denylists. It has
// no side effects and performs no semantic analysis.
type Validator struct {
	logger log.Logger
}

// NewValidator creates a new validator.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Validator{logger: cfg.Logger}, nil
}

// Validate returns nil when the source passes the screen, or an error wrapping
// model.ErrRejected carrying the first matching rejection reason.
func (v *Validator) Validate(source, language string) error {
	if source == "" {
		return fmt.Errorf("source is empty: %w", model.ErrRejected)
	}
	if len(source) > model.MaxSourceLength {
		return fmt.Errorf("source exceeds %d bytes: %w", model.MaxSourceLength, model.ErrRejected)
	}
	if strings.ContainsRune(source, '\x00') {
		return fmt.Errorf("source contains null bytes: %w", model.ErrRejected)
	}

	if alias, ok := languageAliases[language]; ok {
		language = alias
	}

	rules, ok := languageRules[language]
	if !ok {
		return fmt.Errorf("unsupported language %q: %w", language, model.ErrRejected)
	}

	for _, r := range rules {
		if r.re.MatchString(source) {
			v.logger.Debugf("Rejected %s source: %s", language, r.reason)
			return fmt.Errorf("%s: %w", r.reason, model.ErrRejected)
		}
	}

	return nil
}
