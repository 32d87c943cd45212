package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
	"github.com/landscape-community/landscape-mcp/pkg/mcp"
	"github.com/landscape-community/landscape-mcp/pkg/observe"
	"github.com/landscape-community/landscape-mcp/pkg/prompts"
	"github.com/landscape-community/landscape-mcp/pkg/resources"
	"github.com/landscape-community/landscape-mcp/pkg/tools"
)

type stubClient struct{}

func (stubClient) GetComputers(_ context.Context, query string, limit int) ([]landscape.Computer, error) {
	return []landscape.Computer{{ID: 1, Hostname: "web-01"}}, nil
}

func (stubClient) GetPackages(_ context.Context, search, query string, limit int) ([]landscape.Package, error) {
	return nil, nil
}

func (stubClient) GetActivities(_ context.Context, query string, limit, offset int) ([]landscape.Activity, error) {
	return nil, nil
}

func (stubClient) GetAlerts(_ context.Context) ([]landscape.Alert, error) {
	return nil, nil
}

func (stubClient) GetNotPingingComputers(_ context.Context, sinceMinutes, limit int) ([]landscape.Computer, error) {
	return nil, nil
}

func newTestGateway() *Gateway {
	defaults := config.Defaults{ComputerLimit: 25, PackageLimit: 50, ActivityLimit: 3, OfflineMinutes: 60, FetchCap: 1000}
	client := stubClient{}

	reg := tools.NewRegistry()
	tools.RegisterLandscapeTools(reg, tools.Deps{Client: client, Defaults: defaults})

	return New(
		config.HTTP{Host: "127.0.0.1", Port: 0},
		reg,
		prompts.NewProvider(client, defaults),
		resources.NewProvider(client, defaults),
		observe.NewMetrics(),
	)
}

func TestRootInfo(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.buildMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["name"] != "Landscape MCP HTTP Server" {
		t.Errorf("name = %v", info["name"])
	}
	endpoints, ok := info["endpoints"].(map[string]any)
	if !ok || endpoints["sse"] != "/sse" {
		t.Errorf("endpoints = %v", info["endpoints"])
	}
}

func TestHealth(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.buildMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)

	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["sse_sessions"] != float64(0) {
		t.Errorf("sse_sessions = %v, want 0", body["sse_sessions"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.buildMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)

	if !strings.Contains(buf.String(), "landscape_mcp_tool_calls_total") {
		t.Error("expected tool call counter in exposition output")
	}
}

func TestMessages_MissingSession(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.buildMux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/messages", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /messages: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMessages_UnknownSession(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.buildMux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/messages?session_id=nope", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /messages: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSSE_EndToEnd(t *testing.T) {
	g := newTestGateway()
	srv := httptest.NewServer(g.buildMux())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	lines := sseLines(bufio.NewReader(resp.Body))

	event, data := readEvent(t, lines)
	if event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", event)
	}
	if !strings.HasPrefix(data, "/messages?session_id=") {
		t.Fatalf("endpoint data = %q", data)
	}

	// POST a tools/list request to the advertised endpoint.
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	postResp, err := http.Post(srv.URL+data, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST message: %v", err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", postResp.StatusCode)
	}

	event, data = readEvent(t, lines)
	if event != "message" {
		t.Fatalf("event = %q, want message", event)
	}

	var rpcResp mcp.Response
	if err := json.Unmarshal([]byte(data), &rpcResp); err != nil {
		t.Fatalf("unmarshal response %q: %v", data, err)
	}
	if rpcResp.Error != nil {
		t.Fatalf("unexpected JSON-RPC error: %+v", rpcResp.Error)
	}

	raw, _ := json.Marshal(rpcResp.Result)
	var result mcp.ToolsListResult
	json.Unmarshal(raw, &result)
	if len(result.Tools) != 6 {
		t.Errorf("tools count = %d, want 6", len(result.Tools))
	}
}

// sseLines pumps stream lines into a channel so reads can be bounded
// by a deadline.
func sseLines(r *bufio.Reader) <-chan string {
	lines := make(chan string, 16)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()
	return lines
}

// readEvent reads the next SSE event, skipping keepalive comments.
func readEvent(t *testing.T, lines <-chan string) (event, data string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for SSE event")
		case line, ok := <-lines:
			if !ok {
				t.Fatal("SSE stream closed")
			}
			switch {
			case strings.HasPrefix(line, ":"):
				// keepalive comment
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}
}
