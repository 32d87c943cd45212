// Package prompts provides the guided infrastructure-analysis prompts.
// Each prompt gathers live context from the Landscape API and renders the
// analysis brief for the calling assistant. A failed context fetch degrades
// into an inline note in the prompt text — it never fails the prompt.
package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
)

// Argument describes one prompt argument.
type Argument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Prompt is the discovery shape for one prompt.
type Prompt struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Arguments   []Argument `json:"arguments,omitempty"`
}

// Content is a text content block.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is one prompt message.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Result is the rendered prompt.
type Result struct {
	Description string    `json:"description,omitempty"`
	Messages    []Message `json:"messages"`
}

// Provider renders prompts by name.
type Provider struct {
	client   landscape.Client
	defaults config.Defaults
}

// NewProvider creates a prompt provider backed by the given client.
func NewProvider(client landscape.Client, defaults config.Defaults) *Provider {
	return &Provider{client: client, defaults: defaults}
}

// List returns the available prompts.
func (p *Provider) List() []Prompt {
	return []Prompt{
		{
			Name:        "system_health_check",
			Description: "Comprehensive infrastructure health analysis with recommendations",
			Arguments: []Argument{
				{Name: "environment", Description: "Infrastructure environment filter (production/staging/development/all)"},
				{Name: "severity", Description: "Alert severity filter (critical/warning/all)"},
			},
		},
		{
			Name:        "package_audit",
			Description: "Audit packages across infrastructure for security updates and compliance",
			Arguments: []Argument{
				{Name: "package_name", Description: "Specific package name to audit, or 'all' for all packages"},
				{Name: "severity", Description: "Filter by CVE severity level (critical/high/medium/all)"},
			},
		},
		{
			Name:        "incident_investigation",
			Description: "Investigate system incidents using activity logs and audit trails",
			Arguments: []Argument{
				{Name: "hostname", Description: "Affected machine hostname to investigate"},
				{Name: "timeframe", Description: "Hours to look back in activity logs (default: 24)"},
			},
		},
		{
			Name:        "capacity_planning",
			Description: "Analyze infrastructure capacity and growth trends for resource planning",
			Arguments: []Argument{
				{Name: "tag", Description: "Infrastructure segment/tag to analyze (e.g. production, database-tier)"},
			},
		},
		{
			Name:        "compliance_report",
			Description: "Generate compliance status report for audits and documentation",
			Arguments: []Argument{
				{Name: "standard", Description: "Compliance standard (SOC2/ISO27001/PCI-DSS/all)"},
			},
		},
	}
}

// Get renders the named prompt. Unknown names are an error; data-fetch
// failures are not.
func (p *Provider) Get(ctx context.Context, name string, args map[string]string) (Result, error) {
	if args == nil {
		args = map[string]string{}
	}
	switch name {
	case "system_health_check":
		return p.systemHealthCheck(ctx, args), nil
	case "package_audit":
		return p.packageAudit(ctx, args), nil
	case "incident_investigation":
		return p.incidentInvestigation(ctx, args), nil
	case "capacity_planning":
		return p.capacityPlanning(ctx, args), nil
	case "compliance_report":
		return p.complianceReport(ctx, args), nil
	default:
		return Result{}, fmt.Errorf("unknown prompt: %s", name)
	}
}

func argOr(args map[string]string, key, fallback string) string {
	if v := args[key]; v != "" {
		return v
	}
	return fallback
}

// contextJSON renders fetched records as a JSON blob for prompt inlining;
// a fetch error becomes an inline note.
func contextJSON(v any, err error) string {
	if err != nil {
		return "Error fetching data: " + err.Error()
	}
	data, merr := json.Marshal(v)
	if merr != nil || string(data) == "null" {
		return "{}"
	}
	return string(data)
}

func userMessage(text string) Result {
	return Result{Messages: []Message{{
		Role:    "user",
		Content: Content{Type: "text", Text: text},
	}}}
}

func (p *Provider) systemHealthCheck(ctx context.Context, args map[string]string) Result {
	environment := argOr(args, "environment", "all")
	severity := argOr(args, "severity", "all")

	computerQuery := ""
	if environment != "all" {
		computerQuery = "tag:" + environment
	}
	computers, cerr := p.client.GetComputers(ctx, computerQuery, 100)
	alerts, aerr := p.client.GetAlerts(ctx)
	offline, oerr := p.client.GetNotPingingComputers(ctx, p.defaults.OfflineMinutes, 25)

	text := fmt.Sprintf(`Analyze the health of the %s infrastructure and provide detailed recommendations.

Focus on these areas:
1. **Machines Needing Reboot**: Identify systems requiring kernel updates or service restarts
2. **Active Alerts**: Review current system alerts (filtering by %s severity if specified)
3. **Offline Systems**: Check for machines offline for more than %d minutes
4. **Package Updates**: Assess overall patch/update status
5. **Infrastructure Overview**: Provide summary of total systems and their status

Current Infrastructure Data:
- Computers: %s
- Alerts: %s
- Offline Systems: %s

Provide:
- Executive summary of infrastructure health
- Critical issues requiring immediate attention
- Medium-priority items for next maintenance window
- Long-term optimization recommendations
- Risk assessment and mitigation strategies`,
		environment, severity, p.defaults.OfflineMinutes,
		contextJSON(computers, cerr), contextJSON(alerts, aerr), contextJSON(offline, oerr))

	return userMessage(text)
}

func (p *Provider) packageAudit(ctx context.Context, args map[string]string) Result {
	packageName := argOr(args, "package_name", "all")
	severity := argOr(args, "severity", "all")

	searchTerm := packageName
	if packageName == "all" {
		searchTerm = "all"
	}
	packages, perr := p.client.GetPackages(ctx, searchTerm, "tag:ALL", 100)

	text := fmt.Sprintf(`Conduct a comprehensive security audit of installed packages in the infrastructure.

Scope:
- Package: %s
- CVE Severity: %s

Package Inventory Data:
%s

Analysis Tasks:
1. **Security Updates Available**: Identify packages with available security updates
2. **CVE Impact**: List any known CVEs affecting installed versions
3. **Deprecation Status**: Check for deprecated or EOL packages
4. **Compliance**: Verify package versions align with organizational standards
5. **Risk Assessment**: Evaluate risk of current package versions

Deliverables:
- List of packages needing security updates (by criticality)
- Estimated impact of upgrades
- Recommended remediation timeline
- Rollback considerations
- Testing recommendations before deployment`,
		packageName, severity, contextJSON(packages, perr))

	return userMessage(text)
}

func (p *Provider) incidentInvestigation(ctx context.Context, args map[string]string) Result {
	hostname := argOr(args, "hostname", "all systems")
	timeframe := argOr(args, "timeframe", "24")
	if _, err := strconv.Atoi(timeframe); err != nil {
		timeframe = "24"
	}

	serverQuery := ""
	if hostname != "all systems" {
		if computers, err := p.client.GetComputers(ctx, hostname, 1); err == nil && len(computers) > 0 {
			serverQuery = "computer:id:" + strconv.Itoa(computers[0].ID)
		}
	}
	activities, aerr := p.client.GetActivities(ctx, serverQuery, 50, 0)

	text := fmt.Sprintf(`Investigate system incident(s) using activity logs and audit trails.

Incident Scope:
- Target: %s
- Timeframe: Last %s hours
- Activity Logs:
%s

Investigation Framework:
1. **Timeline Reconstruction**: Build chronological sequence of events
2. **Root Cause Analysis**: Identify what triggered the incident
3. **Impact Assessment**: Determine affected systems and scope
4. **Correlation Analysis**: Connect related events across systems
5. **Pattern Detection**: Identify if part of larger issue

Report Should Include:
- Detailed incident timeline with key events
- Root cause analysis with evidence
- Systems and services affected
- Data or security implications
- Corrective actions taken
- Preventive measures for future incidents
- Recommended monitoring/alerting improvements`,
		hostname, timeframe, contextJSON(activities, aerr))

	return userMessage(text)
}

func (p *Provider) capacityPlanning(ctx context.Context, args map[string]string) Result {
	tag := argOr(args, "tag", "all infrastructure")

	computerQuery := ""
	if tag != "all infrastructure" {
		computerQuery = "tag:" + tag
	}
	computers, cerr := p.client.GetComputers(ctx, computerQuery, 100)

	text := fmt.Sprintf(`Analyze infrastructure capacity and forecast growth trends for resource planning.

Infrastructure Segment: %s

Current Resource Inventory:
%s

Analysis Areas:
1. **Current Utilization**: Assess current resource usage and capacity
2. **Growth Trends**: Analyze historical usage patterns (if available)
3. **Headroom Analysis**: Calculate available capacity for future workloads
4. **Scaling Recommendations**: Suggest when/how to add capacity
5. **Cost Optimization**: Identify cost-saving opportunities
6. **Technology Refresh**: Assess need for system upgrades

Capacity Report Should Provide:
- Current resource summary (CPUs, memory, storage, systems)
- Utilization metrics and trends
- Projected capacity needs for next 6, 12, and 24 months
- Recommended scaling strategy
- Timeline and cost estimates for expansion
- Risk assessment for capacity constraints
- Recommendations for load balancing or consolidation`,
		tag, contextJSON(computers, cerr))

	return userMessage(text)
}

func (p *Provider) complianceReport(ctx context.Context, args map[string]string) Result {
	standard := argOr(args, "standard", "all")

	computers, cerr := p.client.GetComputers(ctx, "", 100)
	alerts, aerr := p.client.GetAlerts(ctx)

	text := fmt.Sprintf(`Generate compliance status report for audits and regulatory documentation.

Compliance Standard(s): %s

Infrastructure Baseline:
- Systems: %s
- Alerts/Issues: %s

Compliance Evaluation:
1. **Patch Management**: Verify systems are current with security updates
2. **System Hardening**: Check for security baselines and hardening
3. **Vulnerability Status**: Assess current vulnerability posture
4. **Monitoring & Logging**: Verify adequate audit logging is enabled
5. **Access Control**: Review system access policies and configurations
6. **Documentation**: Ensure security policies and procedures are documented

Compliance Report Structure:
- Executive Summary
- Compliance Status (Compliant/Non-Compliant/Partial)
- Current State Assessment
- Identified Gaps (if any)
- Remediation Plan and Timeline
- Risk Mitigation Strategies
- Evidence and Documentation Trail
- Recommended Ongoing Monitoring`,
		standard, contextJSON(computers, cerr), contextJSON(alerts, aerr))

	return userMessage(text)
}
