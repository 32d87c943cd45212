// Package landscape provides a typed client for the Canonical Landscape API.
//
// Only the read-only operations consumed by the MCP tools are implemented:
// computers, packages, activities, alerts, and not-pinging computers.
// Requests are signed with the Landscape HMAC-SHA256 scheme (signature
// version 2); credentials come from the config, never from package state.
package landscape

import (
	"context"
	"time"
)

// Client is the consumed surface of the Landscape API. Tool dispatch,
// prompts, and resources all depend on this interface, so tests can swap in
// counting stubs.
type Client interface {
	// GetComputers lists computers matching the server-side query string.
	GetComputers(ctx context.Context, query string, limit int) ([]Computer, error)

	// GetPackages searches packages by name substring, optionally scoped by
	// a server-side query (e.g. "id:707" for one computer).
	GetPackages(ctx context.Context, search, query string, limit int) ([]Package, error)

	// GetActivities fetches the activity log, optionally filtered by query.
	GetActivities(ctx context.Context, query string, limit, offset int) ([]Activity, error)

	// GetAlerts fetches the currently active alerts.
	GetAlerts(ctx context.Context) ([]Alert, error)

	// GetNotPingingComputers lists computers that have not pinged for at
	// least sinceMinutes.
	GetNotPingingComputers(ctx context.Context, sinceMinutes, limit int) ([]Computer, error)
}

// Computer is one managed machine.
type Computer struct {
	ID           int               `json:"id"`
	Title        string            `json:"title"`
	Hostname     string            `json:"hostname"`
	Distribution string            `json:"distribution"`
	AccessGroup  string            `json:"access_group"`
	Tags         []string          `json:"tags"`
	LastPingTime time.Time         `json:"last_ping_time"`
	NeedsReboot  bool              `json:"reboot_required_flag"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// Package is one package record, optionally scoped to a computer.
type Package struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	Summary    string `json:"summary"`
	Status     string `json:"status,omitempty"`
	ComputerID int    `json:"computer_id,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
}

// Activity is one entry in the activity/audit log.
type Activity struct {
	ID           int       `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"activity_status"`
	Summary      string    `json:"summary"`
	CreationTime time.Time `json:"creation_time"`
	Hostname     string    `json:"hostname,omitempty"`
}

// Alert is one active alert.
type Alert struct {
	ComputerID int       `json:"computer_id"`
	Hostname   string    `json:"hostname"`
	Type       string    `json:"alert_type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Field implements query.Record for Computer.
func (c Computer) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "hostname":
		return c.Hostname, true
	case "title":
		return c.Title, true
	case "distribution":
		return c.Distribution, true
	case "access-group":
		return c.AccessGroup, true
	case "tag":
		return c.Tags, true
	case "needs:reboot":
		return c.NeedsReboot, true
	case "last-ping-time", "created-after":
		return c.LastPingTime, true
	default:
		if v, ok := c.Annotations[name]; ok {
			return v, true
		}
		return nil, false
	}
}

// Field implements query.Record for Package.
func (p Package) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, true
	case "name":
		return p.Name, true
	case "version":
		return p.Version, true
	case "status":
		return p.Status, true
	case "hostname":
		return p.Hostname, true
	default:
		return nil, false
	}
}

// Field implements query.Record for Activity.
func (a Activity) Field(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "type":
		return a.Type, true
	case "status":
		return a.Status, true
	case "summary":
		return a.Summary, true
	case "hostname":
		return a.Hostname, true
	case "created-after":
		return a.CreationTime, true
	default:
		return nil, false
	}
}

// Field implements query.Record for Alert.
func (a Alert) Field(name string) (any, bool) {
	switch name {
	case "computer-id":
		return a.ComputerID, true
	case "hostname":
		return a.Hostname, true
	case "type":
		return a.Type, true
	case "severity":
		return a.Severity, true
	case "message":
		return a.Message, true
	case "created-after":
		return a.Timestamp, true
	default:
		return nil, false
	}
}
