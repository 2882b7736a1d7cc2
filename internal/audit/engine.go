package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/metrics"
	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// sensitivePorts are the service ports flagged when open to 0.0.0.0/0.
var sensitivePorts = []int{22, 3389, 1521, 3306, 5432, 27017}

// sensitivePortNames label the port findings.
var sensitivePortNames = map[int]string{
	22:    "SSH",
	3389:  "RDP",
	1521:  "Oracle DB",
	3306:  "MySQL",
	5432:  "PostgreSQL",
	27017: "MongoDB",
}

// Engine streams a snapshot through the rule set.
type Engine struct {
	store store.Store
	log   logger.Logger
}

// NewEngine creates an audit engine.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s, log: logger.New("audit")}
}

// Run applies every rule to the snapshot and returns grouped findings.
// Cancellation between chunks yields the partial-free empty report.
func (e *Engine) Run(ctx context.Context, snapshotID string) (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("audit").Observe(time.Since(start).Seconds())
	}()

	// Relation pre-pass: which resources sit in an NSG, which volumes are
	// attached.
	nsgMembers := make(map[string]bool)
	nsgRelations, err := e.store.ListRelations(ctx, snapshotID, []models.RelationType{models.RelationNSGMember})
	if err != nil {
		return nil, err
	}
	for _, relation := range nsgRelations {
		nsgMembers[relation.FromResourceID] = true
	}

	attachedVolumes := make(map[string]bool)
	volumeRelations, err := e.store.ListRelations(ctx, snapshotID, []models.RelationType{models.RelationVolumeAttached})
	if err != nil {
		return nil, err
	}
	for _, relation := range volumeRelations {
		attachedVolumes[relation.ToResourceID] = true
	}

	var findings []Finding
	var instanceRefs []models.ResourceRef

	cursor := ""
	for {
		if ctx.Err() != nil {
			return &Report{GroupedFindings: []GroupedFinding{}}, nil
		}
		page, err := e.store.ListResources(ctx, store.ResourceQuery{
			SnapshotID: snapshotID,
			Cursor:     cursor,
			Limit:      auditChunkSize,
		})
		if err != nil {
			return nil, err
		}
		for i := range page.Resources {
			resource := &page.Resources[i]
			findings = append(findings, e.evaluateResource(resource, nsgMembers, attachedVolumes)...)
			if resource.ResourceType == "compute/instance" {
				instanceRefs = append(instanceRefs, resource.Ref())
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	userDataFindings, err := e.auditUserData(ctx, instanceRefs)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return &Report{GroupedFindings: []GroupedFinding{}}, nil
	}
	findings = append(findings, userDataFindings...)

	report := groupFindings(findings)
	for _, group := range report.GroupedFindings {
		metrics.FindingsTotal.WithLabelValues(string(group.Severity)).Add(float64(group.Count))
	}
	e.log.Info("audit complete",
		logger.String("snapshot_id", snapshotID),
		logger.Int("findings", report.Summary.Total),
		logger.Int("groups", len(report.GroupedFindings)))
	return report, nil
}

// evaluateResource applies the per-type rules to one resource.
func (e *Engine) evaluateResource(resource *models.Resource, nsgMembers, attachedVolumes map[string]bool) []Finding {
	var findings []Finding
	ref := resource.Ref()
	raw := resource.RawData

	emit := func(severity Severity, title, detail string) {
		findings = append(findings, Finding{Severity: severity, Title: title, Detail: detail, Resource: ref})
	}

	switch resource.ResourceType {
	case "network/security-list":
		findings = append(findings, auditSecurityList(resource)...)

	case "network/subnet":
		if prohibit, hasFlag := raw["prohibitInternetIngress"].(bool); hasFlag && !prohibit {
			emit(SeverityHigh, "Public subnet detected", "subnet permits internet ingress")
		}

	case "storage/volume", "storage/boot-volume":
		if kmsKey, _ := raw["kmsKeyId"].(string); kmsKey == "" {
			emit(SeverityHigh, "Volume not encrypted with customer-managed key", "no kmsKeyId set")
		}
		if resource.ResourceType == "storage/volume" && !attachedVolumes[resource.ID] {
			emit(SeverityMedium, "Unattached block volume", "volume has no attachment")
		}

	case "storage/bucket":
		if access, _ := raw["publicAccessType"].(string); access != "" && access != "NoPublicAccess" {
			emit(SeverityCritical, "Publicly accessible bucket", fmt.Sprintf("publicAccessType=%s", access))
		}

	case "compute/instance":
		if !nsgMembers[resource.ID] {
			emit(SeverityMedium, "Instance without Network Security Group", "instance has no NSG membership")
		}
		if resource.LifecycleState == "STOPPED" {
			emit(SeverityLow, "Stopped instance detected", "instance is stopped")
		}

	case "iam/policy":
		findings = append(findings, auditPolicy(resource)...)
	}

	switch resource.LifecycleState {
	case "FAILED", "TERMINATING":
		emit(SeverityMedium, "Resource in FAILED or TERMINATING state",
			fmt.Sprintf("lifecycleState=%s", resource.LifecycleState))
	}

	return findings
}

// auditSecurityList flags world-open ingress: all protocols, or TCP hitting
// a sensitive port.
func auditSecurityList(resource *models.Resource) []Finding {
	var findings []Finding
	ref := resource.Ref()
	rules, _ := resource.RawData["ingressSecurityRules"].([]interface{})
	for _, ruleValue := range rules {
		rule, ok := ruleValue.(map[string]interface{})
		if !ok {
			continue
		}
		source, _ := rule["source"].(string)
		if source != "0.0.0.0/0" {
			continue
		}
		protocol, _ := rule["protocol"].(string)
		if protocol == "all" {
			findings = append(findings, Finding{
				Severity: SeverityHigh,
				Title:    "Ingress rule allows all protocols from 0.0.0.0/0",
				Detail:   "world-open rule admits every protocol",
				Resource: ref,
			})
			continue
		}
		if protocol != "6" {
			continue
		}
		min, max := tcpPortRange(rule)
		for _, port := range sensitivePorts {
			if port >= min && port <= max {
				findings = append(findings, Finding{
					Severity: SeverityCritical,
					Title:    fmt.Sprintf("Open ingress on port %d from 0.0.0.0/0", port),
					Detail:   fmt.Sprintf("%s exposed to the internet", sensitivePortNames[port]),
					Resource: ref,
				})
			}
		}
	}
	return findings
}

// tcpPortRange extracts the destination port range of a TCP rule; a missing
// range spans every port.
func tcpPortRange(rule map[string]interface{}) (int, int) {
	options, ok := rule["tcpOptions"].(map[string]interface{})
	if !ok {
		return 1, 65535
	}
	portRange, ok := options["destinationPortRange"].(map[string]interface{})
	if !ok {
		return 1, 65535
	}
	min, minOK := portRange["min"].(float64)
	max, maxOK := portRange["max"].(float64)
	if !minOK || !maxOK {
		return 1, 65535
	}
	return int(min), int(max)
}

// auditPolicy flags tenancy-wide manage grants. The broad-manage rule
// matches only statements the all-resources rule did not.
func auditPolicy(resource *models.Resource) []Finding {
	var findings []Finding
	ref := resource.Ref()
	statements, _ := resource.RawData["statements"].([]interface{})
	for _, statementValue := range statements {
		statement, ok := statementValue.(string)
		if !ok {
			continue
		}
		lowered := strings.ToLower(statement)
		if strings.Contains(lowered, "manage all-resources in tenancy") {
			findings = append(findings, Finding{
				Severity: SeverityHigh,
				Title:    "Overly broad policy — manage all-resources in tenancy",
				Detail:   statement,
				Resource: ref,
			})
			continue
		}
		if strings.Contains(lowered, "manage") && strings.Contains(lowered, "in tenancy") {
			findings = append(findings, Finding{
				Severity: SeverityMedium,
				Title:    "Broad \"manage\" policy at tenancy level",
				Detail:   statement,
				Resource: ref,
			})
		}
	}
	return findings
}

// ruleTexts provides the description and recommendation per finding title.
// Port findings share one template.
var ruleTexts = map[string]ruleText{
	"Ingress rule allows all protocols from 0.0.0.0/0": {
		"A security list admits every protocol from any source address.",
		"Restrict the rule to the protocols and sources the workload needs.",
	},
	"Public subnet detected": {
		"The subnet allows internet ingress at the VCN level.",
		"Use private subnets and reach them through load balancers or bastions.",
	},
	"Volume not encrypted with customer-managed key": {
		"The volume is encrypted only with an Oracle-managed key.",
		"Assign a customer-managed KMS key to the volume.",
	},
	"Publicly accessible bucket": {
		"The bucket grants anonymous read access.",
		"Set publicAccessType to NoPublicAccess and use pre-authenticated requests.",
	},
	"Instance without Network Security Group": {
		"The instance relies on subnet security lists alone.",
		"Attach a network security group scoped to the instance's role.",
	},
	"Overly broad policy — manage all-resources in tenancy": {
		"A policy grants manage on all resources across the tenancy.",
		"Scope the grant to specific resource families and compartments.",
	},
	"Broad \"manage\" policy at tenancy level": {
		"A policy grants manage at tenancy scope.",
		"Prefer compartment-scoped grants.",
	},
	"Stopped instance detected": {
		"The instance is stopped but still provisioned.",
		"Terminate instances that are no longer needed.",
	},
	"Unattached block volume": {
		"The volume is not attached to any instance.",
		"Delete or archive unattached volumes.",
	},
	"Resource in FAILED or TERMINATING state": {
		"The resource is in a failed or terminating lifecycle state.",
		"Investigate and clean up the resource.",
	},
	"Hardcoded password in instance userData": {
		"Instance user data embeds a literal password.",
		"Load secrets from a vault at boot instead of embedding them.",
	},
	"Potential API key or token in instance userData": {
		"Instance user data embeds what looks like an API key or token.",
		"Rotate the credential and load it from a vault at boot.",
	},
	"Insecure HTTP URL in instance userData": {
		"Instance user data fetches resources over plaintext HTTP.",
		"Use HTTPS for every remote fetch in boot scripts.",
	},
	"Security controls disabled in instance userData": {
		"Instance user data disables SELinux or flushes firewall rules.",
		"Keep host security controls enabled; scope exceptions narrowly.",
	},
}

func textFor(title string) ruleText {
	if text, exists := ruleTexts[title]; exists {
		return text
	}
	if strings.HasPrefix(title, "Open ingress on port ") {
		return ruleText{
			"A security list admits TCP from any source address on a sensitive service port.",
			"Restrict the source CIDR to known networks or move the service behind a bastion.",
		}
	}
	return ruleText{}
}

// groupFindings aggregates by (severity, title), ordered severity ascending
// then count descending. Grouping is stable under input permutation.
func groupFindings(findings []Finding) *Report {
	type key struct {
		severity Severity
		title    string
	}
	groups := make(map[key]*GroupedFinding)
	summary := Summary{}

	for _, finding := range findings {
		k := key{finding.Severity, finding.Title}
		group, exists := groups[k]
		if !exists {
			text := textFor(finding.Title)
			group = &GroupedFinding{
				Severity:       finding.Severity,
				Title:          finding.Title,
				Description:    text.description,
				Recommendation: text.recommendation,
				Framework:      cisMap[finding.Title],
			}
			groups[k] = group
		}
		group.Count++
		group.Resources = append(group.Resources, finding.Resource)

		switch finding.Severity {
		case SeverityCritical:
			summary.Critical++
		case SeverityHigh:
			summary.High++
		case SeverityMedium:
			summary.Medium++
		case SeverityLow:
			summary.Low++
		}
		summary.Total++
	}

	out := make([]GroupedFinding, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group.Resources, func(i, j int) bool { return group.Resources[i].ID < group.Resources[j].ID })
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri < rj
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Title < out[j].Title
	})
	return &Report{GroupedFindings: out, Summary: summary}
}
