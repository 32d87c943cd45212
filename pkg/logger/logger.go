// Package logger provides leveled, component-scoped logging for landscape-mcp.
//
// All output goes to stderr: stdout is reserved for the MCP stdio wire, so
// anything printed there would corrupt the JSON-RPC stream. Each line carries
// a timestamp, level, component, message, and optional structured fields.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

var (
	mu    sync.Mutex
	level = INFO
	out   io.Writer = os.Stderr
)

// SetLevel sets the minimum severity that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log output (testing).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func logCF(l Level, component, msg string, fields map[string]any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteString(" [")
	b.WriteString(l.String())
	b.WriteString("] [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(out, b.String())
}

// DebugCF logs at DEBUG with a component and structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	logCF(DEBUG, component, msg, fields)
}

// InfoCF logs at INFO with a component and structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	logCF(INFO, component, msg, fields)
}

// WarnCF logs at WARN with a component and structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	logCF(WARN, component, msg, fields)
}

// ErrorCF logs at ERROR with a component and structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	logCF(ERROR, component, msg, fields)
}
