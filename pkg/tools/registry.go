package tools

import (
	"context"
	"time"

	"github.com/landscape-community/landscape-mcp/pkg/logger"
)

// Invocation describes one completed tool execution, for observers
// (metrics, audit trail). Arguments are not included; observers that need
// them subscribe at the transport layer.
type Invocation struct {
	Tool      string
	Status    Status
	ErrorKind ErrorKind // empty on ok
	Duration  time.Duration
}

// Registry holds the registered tools and dispatches invocations by name.
// Registration happens once at startup; Execute is safe for concurrent use
// because tools share no mutable state.
type Registry struct {
	tools    map[string]Tool
	order    []string
	observer func(Invocation)
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice replaces the
// earlier tool.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// SetObserver installs a hook called after every Execute. Must be set
// before serving starts.
func (r *Registry) SetObserver(fn func(Invocation)) {
	r.observer = fn
}

// Definitions returns the discovery metadata in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return defs
}

// Execute dispatches one invocation. An unknown tool name is an
// invalid_argument error; everything else is the tool's own Response.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Response {
	start := time.Now()

	t, ok := r.tools[name]
	var resp Response
	if !ok {
		resp = Errorf(KindInvalidArgument, "unknown tool: %s", name)
	} else {
		if args == nil {
			args = map[string]any{}
		}
		resp = t.Execute(ctx, args)
	}

	elapsed := time.Since(start)
	if resp.Status == StatusError {
		logger.WarnCF("tools", "Tool invocation failed", map[string]any{
			"tool": name,
			"kind": resp.Error.Kind,
		})
	}
	if r.observer != nil {
		inv := Invocation{Tool: name, Status: resp.Status, Duration: elapsed}
		if resp.Error != nil {
			inv.ErrorKind = resp.Error.Kind
		}
		r.observer(inv)
	}
	return resp
}
