package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
)

type stubClient struct {
	lastComputersQuery  string
	lastActivitiesQuery string
}

func (s *stubClient) GetComputers(_ context.Context, query string, limit int) ([]landscape.Computer, error) {
	s.lastComputersQuery = query
	if query != "" && !strings.HasPrefix(query, "tag:") {
		// hostname resolution
		return []landscape.Computer{{ID: 7, Hostname: query}}, nil
	}
	return []landscape.Computer{
		{ID: 1, Hostname: "web-01"},
		{ID: 2, Hostname: "db-01"},
	}, nil
}

func (s *stubClient) GetPackages(_ context.Context, search, query string, limit int) ([]landscape.Package, error) {
	return []landscape.Package{
		{Name: "openssl", Status: "security-update-available"},
		{Name: "vim", Status: "installed"},
	}, nil
}

func (s *stubClient) GetActivities(_ context.Context, query string, limit, offset int) ([]landscape.Activity, error) {
	s.lastActivitiesQuery = query
	return []landscape.Activity{{ID: 10, Type: "package_install"}}, nil
}

func (s *stubClient) GetAlerts(_ context.Context) ([]landscape.Alert, error) {
	return []landscape.Alert{
		{Severity: "critical"},
		{Severity: "warning"},
	}, nil
}

func (s *stubClient) GetNotPingingComputers(_ context.Context, sinceMinutes, limit int) ([]landscape.Computer, error) {
	return []landscape.Computer{{ID: 2, Hostname: "db-01"}}, nil
}

func newTestProvider() (*Provider, *stubClient) {
	client := &stubClient{}
	return NewProvider(client, config.Defaults{OfflineMinutes: 60, FetchCap: 1000}), client
}

func TestListShapes(t *testing.T) {
	p, _ := newTestProvider()

	if got := len(p.List()); got != 6 {
		t.Fatalf("resources = %d, want 6", got)
	}
	if got := len(p.Templates()); got != 2 {
		t.Fatalf("templates = %d, want 2", got)
	}
}

func TestRead_InfrastructureSummary(t *testing.T) {
	p, _ := newTestProvider()

	text, err := p.Read(context.Background(), "landscape://infrastructure/summary")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var summary map[string]any
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary["total_machines"] != float64(2) {
		t.Errorf("total_machines = %v, want 2", summary["total_machines"])
	}
	if summary["offline_count"] != float64(1) || summary["online_count"] != float64(1) {
		t.Errorf("counts = %v/%v", summary["online_count"], summary["offline_count"])
	}
	if summary["critical_alerts"] != float64(1) || summary["warning_alerts"] != float64(1) {
		t.Errorf("alert counts = %v/%v", summary["critical_alerts"], summary["warning_alerts"])
	}
}

func TestRead_StaticBeatsTemplate(t *testing.T) {
	p, client := newTestProvider()

	// landscape://computers/online is a static resource, not a tag lookup.
	if _, err := p.Read(context.Background(), "landscape://computers/online"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if strings.HasPrefix(client.lastComputersQuery, "tag:online") {
		t.Error("static URI routed to the tag template")
	}
}

func TestRead_ComputersByTag(t *testing.T) {
	p, client := newTestProvider()

	text, err := p.Read(context.Background(), "landscape://computers/production")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if client.lastComputersQuery != "tag:production" {
		t.Errorf("query = %q, want tag:production", client.lastComputersQuery)
	}
	if !strings.Contains(text, `"tag": "production"`) {
		t.Errorf("text = %s", text)
	}
}

func TestRead_ActivitiesForHost(t *testing.T) {
	p, client := newTestProvider()

	if _, err := p.Read(context.Background(), "landscape://activities/web-09"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if client.lastActivitiesQuery != "computer:id:7" {
		t.Errorf("activities query = %q, want computer:id:7", client.lastActivitiesQuery)
	}
}

func TestRead_SecurityUpdates(t *testing.T) {
	p, _ := newTestProvider()

	text, err := p.Read(context.Background(), "landscape://packages/security-updates")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1 (only the security-status package)", body["count"])
	}
}

func TestRead_UnknownURI(t *testing.T) {
	p, _ := newTestProvider()

	if _, err := p.Read(context.Background(), "landscape://nope"); err == nil {
		t.Error("expected error for unknown URI")
	}
	if _, err := p.Read(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("expected error for foreign scheme")
	}
}
