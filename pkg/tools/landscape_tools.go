package tools

import (
	"context"
	"strconv"
	"time"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
	"github.com/landscape-community/landscape-mcp/pkg/query"
)

// Deps bundles what every landscape tool needs. Constructed once at startup
// and shared read-only across invocations.
type Deps struct {
	Client   landscape.Client
	Defaults config.Defaults
	Parser   *query.Parser
	Now      func() time.Time
}

// RegisterLandscapeTools registers the six landscape query tools.
func RegisterLandscapeTools(reg *Registry, d Deps) {
	if d.Parser == nil {
		d.Parser = query.NewParser(query.DefaultFields(), query.DefaultFreeTextField)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	reg.Register(&queryComputersTool{d})
	reg.Register(&queryPackagesTool{d})
	reg.Register(&queryActivitiesTool{d})
	reg.Register(&queryAlertsTool{d})
	reg.Register(&queryOfflineTool{d})
	reg.Register(&fastPackageLookupTool{d})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

// resolveComputer finds exactly one computer by hostname. The bool result is
// false when no computer matches.
func resolveComputer(ctx context.Context, c landscape.Client, hostname string) (landscape.Computer, bool, error) {
	computers, err := c.GetComputers(ctx, hostname, 1)
	if err != nil {
		return landscape.Computer{}, false, err
	}
	if len(computers) == 0 {
		return landscape.Computer{}, false, nil
	}
	return computers[0], true, nil
}

// ------------------------------------------------------------------
// query_computers
// ------------------------------------------------------------------

type queryComputersTool struct{ d Deps }

func (t *queryComputersTool) Name() string { return "query_computers" }

func (t *queryComputersTool) Description() string {
	return "Query computers by tag, hostname, distribution, or reboot status"
}

func (t *queryComputersTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Filter, e.g. tag:production, needs:reboot:true, or a bare hostname",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max results",
			},
		},
	}
}

func (t *queryComputersTool) Execute(ctx context.Context, args map[string]any) Response {
	if err := checkKnownArgs(args, "query", "limit"); err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	filterText, _, err := stringArg(args, "query")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	limit, ok, err := intArg(args, "limit")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok {
		limit = t.d.Defaults.ComputerLimit
	}
	if limit <= 0 {
		return Errorf(KindInvalidArgument, "limit must be positive, got %d", limit)
	}

	q, err := t.d.Parser.Parse(filterText)
	if err != nil {
		return Errorf(KindParseError, "%v", err)
	}

	// Fetch up to the server-side cap, filter locally, then truncate:
	// "the first N matching", never an under-filled page.
	computers, err := t.d.Client.GetComputers(ctx, "", t.d.Defaults.FetchCap)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}

	records := make([]query.Record, len(computers))
	for i, c := range computers {
		records[i] = c
	}
	matched := q.Evaluate(records)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	payload := make([]map[string]any, 0, len(matched))
	for _, r := range matched {
		c := r.(landscape.Computer)
		payload = append(payload, map[string]any{
			"id":             c.ID,
			"hostname":       c.Hostname,
			"distribution":   c.Distribution,
			"last_ping_time": formatTime(c.LastPingTime),
			"tags":           c.Tags,
		})
	}
	return OK(payload)
}

// ------------------------------------------------------------------
// query_packages
// ------------------------------------------------------------------

type queryPackagesTool struct{ d Deps }

func (t *queryPackagesTool) Name() string { return "query_packages" }

func (t *queryPackagesTool) Description() string {
	return "Search packages by name substring across the fleet"
}

func (t *queryPackagesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"search": map[string]any{
				"type":        "string",
				"description": "Package name substring",
			},
			"hostname": map[string]any{
				"type":        "string",
				"description": "Restrict the search to one computer",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max results",
			},
		},
		"required": []string{"search"},
	}
}

func (t *queryPackagesTool) Execute(ctx context.Context, args map[string]any) Response {
	if err := checkKnownArgs(args, "search", "hostname", "limit"); err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	search, ok, err := stringArg(args, "search")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok || search == "" {
		return Errorf(KindInvalidArgument, "argument %q is required", "search")
	}
	hostname, _, err := stringArg(args, "hostname")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	limit, ok, err := intArg(args, "limit")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok {
		limit = t.d.Defaults.PackageLimit
	}
	if limit <= 0 {
		return Errorf(KindInvalidArgument, "limit must be positive, got %d", limit)
	}

	serverQuery := "tag:ALL"
	if hostname != "" {
		computer, found, err := resolveComputer(ctx, t.d.Client, hostname)
		if err != nil {
			return Errorf(KindUpstreamError, "%v", err)
		}
		if !found {
			return Errorf(KindInvalidArgument, "computer not found: %s", hostname)
		}
		serverQuery = "id:" + formatID(computer.ID)
	}

	packages, err := t.d.Client.GetPackages(ctx, search, serverQuery, limit)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}

	payload := make([]map[string]any, 0, len(packages))
	for _, p := range packages {
		payload = append(payload, map[string]any{
			"name":        p.Name,
			"version":     p.Version,
			"computer_id": p.ComputerID,
			"hostname":    p.Hostname,
			"summary":     p.Summary,
		})
	}
	return OK(payload)
}

// ------------------------------------------------------------------
// query_activities
// ------------------------------------------------------------------

type queryActivitiesTool struct{ d Deps }

func (t *queryActivitiesTool) Name() string { return "query_activities" }

func (t *queryActivitiesTool) Description() string {
	return "Fetch the activity/audit log, optionally scoped to one computer"
}

func (t *queryActivitiesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hostname": map[string]any{
				"type":        "string",
				"description": "Only activities for this computer",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Filter, e.g. status:succeeded or created-after:2026-01-20",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Max results",
			},
		},
	}
}

func (t *queryActivitiesTool) Execute(ctx context.Context, args map[string]any) Response {
	if err := checkKnownArgs(args, "hostname", "query", "limit"); err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	hostname, _, err := stringArg(args, "hostname")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	filterText, _, err := stringArg(args, "query")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	limit, ok, err := intArg(args, "limit")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok {
		limit = t.d.Defaults.ActivityLimit
	}
	if limit <= 0 {
		return Errorf(KindInvalidArgument, "limit must be positive, got %d", limit)
	}

	q, err := t.d.Parser.Parse(filterText)
	if err != nil {
		return Errorf(KindParseError, "%v", err)
	}

	// Hostname scoping happens server-side via computer:id, which keeps the
	// fetch small; the filter clauses are applied locally afterwards.
	serverQuery := ""
	if hostname != "" {
		computer, found, err := resolveComputer(ctx, t.d.Client, hostname)
		if err != nil {
			return Errorf(KindUpstreamError, "%v", err)
		}
		if !found {
			return Errorf(KindInvalidArgument, "computer not found: %s", hostname)
		}
		serverQuery = "computer:id:" + formatID(computer.ID)
	}

	activities, err := t.d.Client.GetActivities(ctx, serverQuery, t.d.Defaults.FetchCap, 0)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}

	records := make([]query.Record, len(activities))
	for i, a := range activities {
		records[i] = a
	}
	matched := q.Evaluate(records)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	payload := make([]map[string]any, 0, len(matched))
	for _, r := range matched {
		a := r.(landscape.Activity)
		payload = append(payload, map[string]any{
			"id":        a.ID,
			"type":      a.Type,
			"status":    a.Status,
			"summary":   a.Summary,
			"timestamp": formatTime(a.CreationTime),
		})
	}
	return OK(payload)
}

// ------------------------------------------------------------------
// query_alerts
// ------------------------------------------------------------------

type queryAlertsTool struct{ d Deps }

func (t *queryAlertsTool) Name() string { return "query_alerts" }

func (t *queryAlertsTool) Description() string {
	return "Fetch the currently active alerts"
}

func (t *queryAlertsTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *queryAlertsTool) Execute(ctx context.Context, args map[string]any) Response {
	if err := checkKnownArgs(args); err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}

	alerts, err := t.d.Client.GetAlerts(ctx)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}

	payload := make([]map[string]any, 0, len(alerts))
	for _, a := range alerts {
		payload = append(payload, map[string]any{
			"computer_id": a.ComputerID,
			"hostname":    a.Hostname,
			"alert_type":  a.Type,
			"severity":    a.Severity,
			"message":     a.Message,
		})
	}
	return OK(payload)
}

// ------------------------------------------------------------------
// query_offline
// ------------------------------------------------------------------

type queryOfflineTool struct{ d Deps }

func (t *queryOfflineTool) Name() string { return "query_offline" }

func (t *queryOfflineTool) Description() string {
	return "List computers whose last ping is older than the given threshold"
}

func (t *queryOfflineTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"since_minutes": map[string]any{
				"type":        "integer",
				"description": "Minimum minutes offline",
			},
		},
		"required": []string{"since_minutes"},
	}
}

func (t *queryOfflineTool) Execute(ctx context.Context, args map[string]any) Response {
	if err := checkKnownArgs(args, "since_minutes"); err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	sinceMinutes, ok, err := intArg(args, "since_minutes")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok {
		return Errorf(KindInvalidArgument, "argument %q is required", "since_minutes")
	}
	if sinceMinutes <= 0 {
		return Errorf(KindInvalidArgument, "since_minutes must be positive, got %d", sinceMinutes)
	}

	computers, err := t.d.Client.GetComputers(ctx, "", t.d.Defaults.FetchCap)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}

	now := t.d.Now()
	payload := make([]map[string]any, 0)
	for _, c := range computers {
		// A computer that has never pinged is offline by definition; the
		// duration is unknowable, reported as -1.
		offlineMinutes := -1
		if !c.LastPingTime.IsZero() {
			offlineMinutes = int(now.Sub(c.LastPingTime).Minutes())
			if offlineMinutes < sinceMinutes {
				continue
			}
		}
		payload = append(payload, map[string]any{
			"id":                       c.ID,
			"hostname":                 c.Hostname,
			"last_ping_time":           formatTime(c.LastPingTime),
			"offline_duration_minutes": offlineMinutes,
		})
	}
	return OK(payload)
}

// ------------------------------------------------------------------
// fast_package_lookup
// ------------------------------------------------------------------

type fastPackageLookupTool struct{ d Deps }

func (t *fastPackageLookupTool) Name() string { return "fast_package_lookup" }

func (t *fastPackageLookupTool) Description() string {
	return "Targeted package lookup on one computer"
}

func (t *fastPackageLookupTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hostname": map[string]any{
				"type":        "string",
				"description": "Computer hostname",
			},
			"package": map[string]any{
				"type":        "string",
				"description": "Package name",
			},
		},
		"required": []string{"hostname", "package"},
	}
}

func (t *fastPackageLookupTool) Execute(ctx context.Context, args map[string]any) Response {
	if err := checkKnownArgs(args, "hostname", "package"); err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	hostname, ok, err := stringArg(args, "hostname")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok || hostname == "" {
		return Errorf(KindInvalidArgument, "argument %q is required", "hostname")
	}
	pkgName, ok, err := stringArg(args, "package")
	if err != nil {
		return Errorf(KindInvalidArgument, "%v", err)
	}
	if !ok || pkgName == "" {
		return Errorf(KindInvalidArgument, "argument %q is required", "package")
	}

	computer, found, err := resolveComputer(ctx, t.d.Client, hostname)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}
	if !found {
		return Errorf(KindInvalidArgument, "computer not found: %s", hostname)
	}

	packages, err := t.d.Client.GetPackages(ctx, pkgName, "id:"+formatID(computer.ID), 1)
	if err != nil {
		return Errorf(KindUpstreamError, "%v", err)
	}

	// Absence is an expected, informative outcome — a successful response,
	// not an error.
	if len(packages) == 0 {
		return OK([]map[string]any{{
			"hostname": hostname,
			"package":  pkgName,
			"status":   "not_installed",
		}})
	}

	p := packages[0]
	return OK([]map[string]any{{
		"hostname": hostname,
		"package":  p.Name,
		"version":  p.Version,
		"summary":  p.Summary,
	}})
}

func formatID(id int) string {
	return strconv.Itoa(id)
}
