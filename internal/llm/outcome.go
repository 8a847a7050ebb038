package llm

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Kind classifies the result of a single attempt
type Kind int

const (
	Success Kind = iota
	TransientFailure
	PermanentFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case TransientFailure:
		return "transient"
	case PermanentFailure:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one request to the service.
// Text is set on success, Detail on failure.
type Outcome struct {
	Kind    Kind
	Target  string
	Text    string
	Detail  string
	Status  int // HTTP status, 0 if no response was received
	Elapsed time.Duration
}

// OK reports whether the attempt produced text
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// maxDiagnosticBytes bounds unstructured error bodies kept for logs
const maxDiagnosticBytes = 200

// truncateDiagnostic shortens raw bodies (HTML error pages and the like)
// without splitting a UTF-8 sequence.
func truncateDiagnostic(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxDiagnosticBytes {
		return body
	}
	cut := maxDiagnosticBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// Timeouts picks a deadline per target
type Timeouts struct {
	Default   time.Duration
	PerTarget map[string]time.Duration
}

// For returns the deadline for target, or the default for unknown targets
func (t Timeouts) For(target string) time.Duration {
	if d, ok := t.PerTarget[target]; ok && d > 0 {
		return d
	}
	return t.Default
}

// ModelMap translates target names into the backend's model names
type ModelMap map[string]string

// Resolve returns the backend model for target, or target itself
func (m ModelMap) Resolve(target string) string {
	if name, ok := m[target]; ok && name != "" {
		return name
	}
	return target
}
