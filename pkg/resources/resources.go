// Package resources exposes read-only Landscape data as MCP resources under
// the landscape:// URI scheme.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
)

// Resource is the discovery shape for one static resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Template is the discovery shape for one parameterized resource URI.
type Template struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Provider serves landscape:// resources.
type Provider struct {
	client   landscape.Client
	defaults config.Defaults
}

// NewProvider creates a resource provider backed by the given client.
func NewProvider(client landscape.Client, defaults config.Defaults) *Provider {
	return &Provider{client: client, defaults: defaults}
}

// List returns the static resources.
func (p *Provider) List() []Resource {
	return []Resource{
		{
			URI:         "landscape://infrastructure/summary",
			Name:        "Infrastructure Summary",
			Description: "Real-time overview of all managed systems, their status, and key metrics",
			MimeType:    "application/json",
		},
		{
			URI:         "landscape://alerts/active",
			Name:        "Active Alerts",
			Description: "Current system alerts with severity levels and affected hosts",
			MimeType:    "application/json",
		},
		{
			URI:         "landscape://computers/online",
			Name:        "Online Computers",
			Description: "List of all currently online managed systems",
			MimeType:    "application/json",
		},
		{
			URI:         "landscape://computers/offline",
			Name:        "Offline Computers",
			Description: "List of systems currently offline (not pinging)",
			MimeType:    "application/json",
		},
		{
			URI:         "landscape://activities/recent",
			Name:        "Recent Activities",
			Description: "Recent system activities and audit log entries (last 50 activities)",
			MimeType:    "application/json",
		},
		{
			URI:         "landscape://packages/security-updates",
			Name:        "Security Updates Available",
			Description: "Packages with available security updates across infrastructure",
			MimeType:    "application/json",
		},
	}
}

// Templates returns the parameterized resource URIs.
func (p *Provider) Templates() []Template {
	return []Template{
		{
			URITemplate: "landscape://computers/{tag}",
			Name:        "Computers by Tag",
			Description: "Filter computers by infrastructure tag (e.g. production, staging, database-tier)",
		},
		{
			URITemplate: "landscape://activities/{hostname}",
			Name:        "Machine Activity Log",
			Description: "Activity history for a specific machine",
		},
	}
}

// Read resolves a resource URI to its JSON contents. Static URIs are
// checked before template expansion, so landscape://computers/online never
// resolves as a tag lookup.
func (p *Provider) Read(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "landscape://infrastructure/summary":
		return p.infrastructureSummary(ctx)
	case "landscape://alerts/active":
		return p.activeAlerts(ctx)
	case "landscape://computers/online":
		return p.onlineComputers(ctx)
	case "landscape://computers/offline":
		return p.offlineComputers(ctx)
	case "landscape://activities/recent":
		return p.recentActivities(ctx)
	case "landscape://packages/security-updates":
		return p.securityUpdates(ctx)
	}

	if tag, ok := strings.CutPrefix(uri, "landscape://computers/"); ok && tag != "" {
		return p.computersByTag(ctx, tag)
	}
	if hostname, ok := strings.CutPrefix(uri, "landscape://activities/"); ok && hostname != "" {
		return p.activitiesForHost(ctx, hostname)
	}

	return "", fmt.Errorf("unknown resource URI: %s", uri)
}

func render(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render resource: %w", err)
	}
	return string(data), nil
}

func (p *Provider) infrastructureSummary(ctx context.Context) (string, error) {
	computers, err := p.client.GetComputers(ctx, "", p.defaults.FetchCap)
	if err != nil {
		return "", err
	}
	alerts, err := p.client.GetAlerts(ctx)
	if err != nil {
		return "", err
	}
	offline, err := p.client.GetNotPingingComputers(ctx, p.defaults.OfflineMinutes, p.defaults.FetchCap)
	if err != nil {
		return "", err
	}

	critical, warning := 0, 0
	for _, a := range alerts {
		switch a.Severity {
		case "critical":
			critical++
		case "warning":
			warning++
		}
	}

	return render(map[string]any{
		"total_machines":  len(computers),
		"online_count":    len(computers) - len(offline),
		"offline_count":   len(offline),
		"active_alerts":   len(alerts),
		"critical_alerts": critical,
		"warning_alerts":  warning,
	})
}

func (p *Provider) activeAlerts(ctx context.Context) (string, error) {
	alerts, err := p.client.GetAlerts(ctx)
	if err != nil {
		return "", err
	}
	return render(map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (p *Provider) onlineComputers(ctx context.Context) (string, error) {
	computers, err := p.client.GetComputers(ctx, "", p.defaults.FetchCap)
	if err != nil {
		return "", err
	}
	offline, err := p.client.GetNotPingingComputers(ctx, p.defaults.OfflineMinutes, p.defaults.FetchCap)
	if err != nil {
		return "", err
	}

	offlineIDs := make(map[int]struct{}, len(offline))
	for _, c := range offline {
		offlineIDs[c.ID] = struct{}{}
	}
	online := make([]landscape.Computer, 0, len(computers))
	for _, c := range computers {
		if _, off := offlineIDs[c.ID]; !off {
			online = append(online, c)
		}
	}
	return render(map[string]any{"online_computers": online, "count": len(online)})
}

func (p *Provider) offlineComputers(ctx context.Context) (string, error) {
	offline, err := p.client.GetNotPingingComputers(ctx, p.defaults.OfflineMinutes, p.defaults.FetchCap)
	if err != nil {
		return "", err
	}
	return render(map[string]any{"offline_computers": offline, "count": len(offline)})
}

func (p *Provider) recentActivities(ctx context.Context) (string, error) {
	activities, err := p.client.GetActivities(ctx, "", 50, 0)
	if err != nil {
		return "", err
	}
	return render(map[string]any{"recent_activities": activities, "count": len(activities)})
}

func (p *Provider) securityUpdates(ctx context.Context) (string, error) {
	packages, err := p.client.GetPackages(ctx, "", "tag:ALL", p.defaults.FetchCap)
	if err != nil {
		return "", err
	}
	updates := make([]landscape.Package, 0)
	for _, pkg := range packages {
		if strings.Contains(strings.ToLower(pkg.Status), "security") ||
			strings.Contains(strings.ToLower(pkg.Summary), "security") {
			updates = append(updates, pkg)
		}
	}
	return render(map[string]any{"security_updates": updates, "count": len(updates)})
}

func (p *Provider) computersByTag(ctx context.Context, tag string) (string, error) {
	computers, err := p.client.GetComputers(ctx, "tag:"+tag, p.defaults.FetchCap)
	if err != nil {
		return "", err
	}
	return render(map[string]any{"tag": tag, "computers": computers, "count": len(computers)})
}

func (p *Provider) activitiesForHost(ctx context.Context, hostname string) (string, error) {
	computers, err := p.client.GetComputers(ctx, hostname, 1)
	if err != nil {
		return "", err
	}
	if len(computers) == 0 {
		return "", fmt.Errorf("computer not found: %s", hostname)
	}
	activities, err := p.client.GetActivities(ctx, "computer:id:"+strconv.Itoa(computers[0].ID), 50, 0)
	if err != nil {
		return "", err
	}
	return render(map[string]any{"hostname": hostname, "activities": activities, "count": len(activities)})
}
