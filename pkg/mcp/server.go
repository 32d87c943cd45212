// landscape-mcp - MCP server for Canonical Landscape
// License: MIT

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/landscape-community/landscape-mcp/pkg/logger"
	"github.com/landscape-community/landscape-mcp/pkg/prompts"
	"github.com/landscape-community/landscape-mcp/pkg/resources"
	"github.com/landscape-community/landscape-mcp/pkg/tools"
)

const (
	// ProtocolVersion is the MCP spec version this server supports.
	ProtocolVersion = "2024-11-05"
	ServerName      = "landscape-mcp"
	ServerVersion   = "1.0.0"
)

// EventFunc observes prompt renders and resource reads. Tool calls are
// observed through the registry's own observer hook.
type EventFunc func(event, name string, err error, elapsed time.Duration)

// Server implements a stdio-based MCP server that exposes the Landscape
// tool registry plus prompt and resource providers.
type Server struct {
	registry  *tools.Registry
	prompts   *prompts.Provider
	resources *resources.Provider
	observer  EventFunc
	in        io.Reader
	out       io.Writer
	mu        sync.Mutex // serializes writes to stdout
}

// NewServer creates an MCP server backed by the given providers.
// It reads JSON-RPC from stdin and writes responses to stdout.
func NewServer(registry *tools.Registry, pp *prompts.Provider, rp *resources.Provider) *Server {
	return &Server{
		registry:  registry,
		prompts:   pp,
		resources: rp,
		in:        os.Stdin,
		out:       os.Stdout,
	}
}

// NewServerWithIO creates an MCP server with custom I/O (for testing).
func NewServerWithIO(registry *tools.Registry, pp *prompts.Provider, rp *resources.Provider, in io.Reader, out io.Writer) *Server {
	s := NewServer(registry, pp, rp)
	s.in = in
	s.out = out
	return s
}

// SetObserver installs a hook fired after each prompt render and
// resource read.
func (s *Server) SetObserver(fn EventFunc) {
	s.observer = fn
}

// Serve runs the MCP server loop, reading requests until EOF or ctx cancellation.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	// MCP messages can be large (tool results), increase buffer.
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrParse, "parse error: "+err.Error())
			continue
		}

		s.HandleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read error: %w", err)
	}
	return nil
}

// HandleRequest dispatches a single JSON-RPC request. Exported so the
// HTTP gateway can reuse the same dispatch table for POSTed messages.
func (s *Server) HandleRequest(ctx context.Context, req *Request) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "notifications/initialized":
		// Client ack — nothing to do.
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	case "prompts/list":
		s.handlePromptsList(req)
	case "prompts/get":
		s.handlePromptsGet(ctx, req)
	case "resources/list":
		s.handleResourcesList(req)
	case "resources/templates/list":
		s.handleResourceTemplatesList(req)
	case "resources/read":
		s.handleResourcesRead(ctx, req)
	case "ping":
		s.sendResult(req.ID, map[string]any{})
	default:
		// Unknown method — if it has an ID it expects a response.
		if req.ID != nil {
			s.sendError(req.ID, ErrNotFound, "method not found: "+req.Method)
		}
		// Notifications (no ID) are silently ignored per spec.
	}
}

// ── Method handlers ────────────────────────────────────────────────

func (s *Server) handleInitialize(req *Request) {
	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapability{
			Tools:     &ToolsCapability{ListChanged: false},
			Prompts:   &PromptsCapability{ListChanged: false},
			Resources: &ResourcesCapability{},
		},
		ServerInfo: EntityInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleToolsList(req *Request) {
	defs := s.registry.Definitions()

	mcpTools := make([]ToolInfo, 0, len(defs))
	for _, d := range defs {
		// Parameters() output already follows JSON Schema, which is
		// exactly what MCP's inputSchema expects.
		inputSchema := d.InputSchema
		if inputSchema == nil {
			inputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		mcpTools = append(mcpTools, ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: inputSchema,
		})
	}

	s.sendResult(req.ID, ToolsListResult{Tools: mcpTools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) {
	var params ToolCallParams
	if !s.decodeParams(req, &params) {
		return
	}

	if params.Name == "" {
		s.sendError(req.ID, ErrInvalidReq, "tool name is required")
		return
	}

	logger.InfoCF("mcp", "Tool call",
		map[string]any{"tool": params.Name})

	// Execute via the registry. Every outcome, including tool-level
	// failure, is a well-formed envelope carried as a text block.
	result := s.registry.Execute(ctx, params.Name, params.Arguments)

	text, err := json.Marshal(result)
	if err != nil {
		s.sendError(req.ID, ErrInternal, "failed to encode tool result")
		return
	}

	mcpResult := ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: string(text)}},
		IsError: result.Status == tools.StatusError,
	}
	s.sendResult(req.ID, mcpResult)
}

func (s *Server) handlePromptsList(req *Request) {
	list := s.prompts.List()

	infos := make([]PromptInfo, 0, len(list))
	for _, p := range list {
		args := make([]PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		infos = append(infos, PromptInfo{
			Name:        p.Name,
			Description: p.Description,
			Arguments:   args,
		})
	}

	s.sendResult(req.ID, PromptsListResult{Prompts: infos})
}

func (s *Server) handlePromptsGet(ctx context.Context, req *Request) {
	var params PromptGetParams
	if !s.decodeParams(req, &params) {
		return
	}

	if params.Name == "" {
		s.sendError(req.ID, ErrInvalidReq, "prompt name is required")
		return
	}

	start := time.Now()
	result, err := s.prompts.Get(ctx, params.Name, params.Arguments)
	s.observe("prompt.get", params.Name, err, time.Since(start))
	if err != nil {
		s.sendError(req.ID, ErrInvalidReq, err.Error())
		return
	}

	messages := make([]PromptMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, PromptMessage{
			Role:    m.Role,
			Content: ContentBlock{Type: m.Content.Type, Text: m.Content.Text},
		})
	}

	s.sendResult(req.ID, PromptGetResult{
		Description: result.Description,
		Messages:    messages,
	})
}

func (s *Server) handleResourcesList(req *Request) {
	list := s.resources.List()

	infos := make([]ResourceInfo, 0, len(list))
	for _, r := range list {
		infos = append(infos, ResourceInfo{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MimeType,
		})
	}

	s.sendResult(req.ID, ResourcesListResult{Resources: infos})
}

func (s *Server) handleResourceTemplatesList(req *Request) {
	list := s.resources.Templates()

	infos := make([]ResourceTemplateInfo, 0, len(list))
	for _, t := range list {
		infos = append(infos, ResourceTemplateInfo{
			URITemplate: t.URITemplate,
			Name:        t.Name,
			Description: t.Description,
		})
	}

	s.sendResult(req.ID, ResourceTemplatesListResult{ResourceTemplates: infos})
}

func (s *Server) handleResourcesRead(ctx context.Context, req *Request) {
	var params ResourceReadParams
	if !s.decodeParams(req, &params) {
		return
	}

	if params.URI == "" {
		s.sendError(req.ID, ErrInvalidReq, "resource uri is required")
		return
	}

	logger.InfoCF("mcp", "Resource read",
		map[string]any{"uri": params.URI})

	start := time.Now()
	text, err := s.resources.Read(ctx, params.URI)
	s.observe("resource.read", params.URI, err, time.Since(start))
	if err != nil {
		s.sendError(req.ID, ErrInvalidReq, err.Error())
		return
	}

	s.sendResult(req.ID, ResourceReadResult{
		Contents: []ResourceContents{{
			URI:      params.URI,
			MimeType: "application/json",
			Text:     text,
		}},
	})
}

// ── Wire helpers ───────────────────────────────────────────────────

// decodeParams re-marshals req.Params into the typed params struct.
// Sends the JSON-RPC error itself and returns false on failure.
func (s *Server) decodeParams(req *Request, out any) bool {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		s.sendError(req.ID, ErrInternal, "failed to marshal params")
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.sendError(req.ID, ErrInvalidReq, "invalid params: "+err.Error())
		return false
	}
	return true
}

func (s *Server) observe(event, name string, err error, elapsed time.Duration) {
	if s.observer != nil {
		s.observer(event, name, err, elapsed)
	}
}

func (s *Server) sendResult(id any, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.writeJSON(resp)
}

func (s *Server) sendError(id any, code int, message string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
	s.writeJSON(resp)
}

func (s *Server) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// Last-resort: log and drop.
		logger.ErrorCF("mcp", "Failed to marshal response",
			map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// MCP stdio transport: one JSON object per line.
	_, _ = s.out.Write(data)
	_, _ = s.out.Write([]byte("\n"))
}
