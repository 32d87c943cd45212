// landscape-mcp - MCP server for Canonical Landscape
// License: MIT

// Package gateway serves the MCP protocol over HTTP with Server-Sent
// Events, following the MCP SSE transport convention: clients open a
// long-lived GET /sse stream, receive an endpoint event naming their
// session's message URL, and POST JSON-RPC requests there. Responses
// travel back over the SSE stream.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/logger"
	"github.com/landscape-community/landscape-mcp/pkg/mcp"
	"github.com/landscape-community/landscape-mcp/pkg/observe"
	"github.com/landscape-community/landscape-mcp/pkg/prompts"
	"github.com/landscape-community/landscape-mcp/pkg/resources"
	"github.com/landscape-community/landscape-mcp/pkg/tools"
)

const keepaliveInterval = 15 * time.Second

// session is one connected SSE client: a dedicated dispatch server
// whose output lines are forwarded over the event stream.
type session struct {
	id   string
	srv  *mcp.Server
	out  chan []byte
	done chan struct{}
}

// Gateway is the HTTP/SSE front end.
type Gateway struct {
	cfg       config.HTTP
	registry  *tools.Registry
	prompts   *prompts.Provider
	resources *resources.Provider
	metrics   *observe.Metrics
	events    mcp.EventFunc

	mu       sync.RWMutex
	sessions map[string]*session

	httpSrv *http.Server
	baseCtx context.Context
}

// New creates a gateway serving the given providers.
func New(cfg config.HTTP, reg *tools.Registry, pp *prompts.Provider, rp *resources.Provider, m *observe.Metrics) *Gateway {
	return &Gateway{
		cfg:       cfg,
		registry:  reg,
		prompts:   pp,
		resources: rp,
		metrics:   m,
		sessions:  make(map[string]*session),
	}
}

// SetObserver installs a hook fired after prompt renders and resource
// reads on every session's dispatch server.
func (g *Gateway) SetObserver(fn mcp.EventFunc) {
	g.events = fn
}

// buildMux creates the HTTP mux with gateway routes.
func (g *Gateway) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc("/sse", g.handleSSE)
	mux.HandleFunc("/messages", g.handleMessages)
	mux.HandleFunc("/health", g.handleHealth)
	if g.metrics != nil {
		mux.Handle("/metrics", observe.Handler(g.metrics.Registry))
	}
	return mux
}

// Start runs the HTTP server until ctx is cancelled or Serve fails.
func (g *Gateway) Start(ctx context.Context) error {
	g.baseCtx = ctx
	addr := net.JoinHostPort(g.cfg.Host, fmt.Sprintf("%d", g.cfg.Port))

	g.httpSrv = &http.Server{
		Addr:    addr,
		Handler: g.buildMux(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	logger.InfoCF("gateway", "HTTP gateway starting",
		map[string]any{"addr": addr})

	err := g.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the gateway, closing active SSE sessions.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	for _, s := range g.sessions {
		close(s.done)
	}
	g.sessions = make(map[string]*session)
	g.mu.Unlock()

	if g.httpSrv != nil {
		return g.httpSrv.Shutdown(ctx)
	}
	return nil
}

// ── Handlers ───────────────────────────────────────────────────────

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Landscape MCP HTTP Server",
		"version": mcp.ServerVersion,
		"endpoints": map[string]string{
			"sse":      "/sse",
			"messages": "/messages",
			"health":   "/health",
			"metrics":  "/metrics",
		},
		"mcp_version": mcp.ProtocolVersion,
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	active := len(g.sessions)
	g.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"server":       mcp.ServerName,
		"version":      mcp.ServerVersion,
		"sse_sessions": active,
	})
}

// handleSSE opens the event stream and holds it until the client
// disconnects or the server shuts down.
func (g *Gateway) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := g.newSession()
	defer g.dropSession(sess.id)

	if g.metrics != nil {
		g.metrics.SSESessions.Inc()
		defer g.metrics.SSESessions.Dec()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// First event tells the client where to POST its messages.
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.id)
	flusher.Flush()

	logger.InfoCF("gateway", "SSE session opened",
		map[string]any{"session": sess.id, "remote": r.RemoteAddr})

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.InfoCF("gateway", "SSE session closed",
				map[string]any{"session": sess.id})
			return
		case <-sess.done:
			return
		case <-keepalive.C:
			// Comment line keeps intermediaries from timing out the stream.
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, open := <-sess.out:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
			if g.metrics != nil {
				g.metrics.SSEMessagesSent.Inc()
			}
		}
	}
}

// handleMessages accepts a JSON-RPC request for an open session and
// dispatches it asynchronously. The response arrives on the SSE stream.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "session_id is required"})
		return
	}

	g.mu.RLock()
	sess := g.sessions[sessionID]
	g.mu.RUnlock()
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session: " + sessionID})
		return
	}

	var req mcp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON-RPC request: " + err.Error()})
		return
	}

	// Dispatch on the server's base context: the POST returns before
	// the handler finishes, so the request context is unusable here.
	ctx := g.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go sess.srv.HandleRequest(ctx, &req)

	w.WriteHeader(http.StatusAccepted)
}

// ── Sessions ───────────────────────────────────────────────────────

func (g *Gateway) newSession() *session {
	sess := &session{
		id:   uuid.NewString(),
		out:  make(chan []byte, 32),
		done: make(chan struct{}),
	}
	// Each session gets its own dispatch server writing to the
	// session channel. Input is unused: requests arrive via POST.
	sess.srv = mcp.NewServerWithIO(g.registry, g.prompts, g.resources,
		bytes.NewReader(nil), &sessionWriter{sess: sess})
	if g.events != nil {
		sess.srv.SetObserver(g.events)
	}

	g.mu.Lock()
	g.sessions[sess.id] = sess
	g.mu.Unlock()
	return sess
}

func (g *Gateway) dropSession(id string) {
	g.mu.Lock()
	delete(g.sessions, id)
	g.mu.Unlock()
}

// sessionWriter forwards newline-delimited JSON from the dispatch
// server to the session's SSE channel, one message per line.
type sessionWriter struct {
	sess *session
	buf  bytes.Buffer
}

func (sw *sessionWriter) Write(p []byte) (int, error) {
	sw.buf.Write(p)
	for {
		line, err := sw.buf.ReadBytes('\n')
		if err != nil {
			// Partial line, stash it back for the next write.
			sw.buf.Write(line)
			break
		}
		msg := bytes.TrimRight(line, "\n")
		if len(msg) == 0 {
			continue
		}
		out := make([]byte, len(msg))
		copy(out, msg)
		select {
		case <-sw.sess.done:
		case sw.sess.out <- out:
		default:
			logger.WarnCF("gateway", "SSE session buffer full, dropping message",
				map[string]any{"session": sw.sess.id})
		}
	}
	return len(p), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
