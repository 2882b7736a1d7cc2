// Package audit applies the security rule set to a snapshot, grouping
// findings by severity and title with CIS framework mapping, and runs the
// tag-compliance pass. Resources are streamed in bounded chunks; the full
// snapshot is never materialised.
package audit

import (
	"github.com/catherinevee/cloudlens/internal/models"
)

// auditChunkSize bounds how many resources one streaming page carries.
const auditChunkSize = 5000

// MaxMissingTagResources caps the non-compliant resource list of a tag
// report; the overflow is truncated silently.
const MaxMissingTagResources = 500

// Severity of a finding. The set is closed and ordered: CRITICAL sorts
// first.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// severityRank orders severities for grouping output.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Finding is one rule hit against one resource.
type Finding struct {
	Severity Severity           `json:"severity"`
	Title    string             `json:"title"`
	Detail   string             `json:"detail,omitempty"`
	Resource models.ResourceRef `json:"resource"`
}

// GroupedFinding aggregates findings sharing (severity, title).
type GroupedFinding struct {
	Severity       Severity             `json:"severity"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Recommendation string               `json:"recommendation"`
	Count          int                  `json:"count"`
	Resources      []models.ResourceRef `json:"resources"`
	Framework      string               `json:"framework,omitempty"`
}

// Summary carries per-severity counters over all findings.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Report is the audit output.
type Report struct {
	GroupedFindings []GroupedFinding `json:"groupedFindings"`
	Summary         Summary          `json:"summary"`
}

// TagReport is the tag-compliance output. Percentage is rounded to two
// decimals.
type TagReport struct {
	RequiredTags       []string             `json:"requiredTags"`
	TotalResources     int                  `json:"totalResources"`
	CompliantResources int                  `json:"compliantResources"`
	Percentage         float64              `json:"percentage"`
	TagCounts          map[string]int       `json:"tagCounts"`
	NonCompliant       []models.ResourceRef `json:"nonCompliant"`
}

// ruleText carries the description and recommendation of one rule, keyed by
// title.
type ruleText struct {
	description    string
	recommendation string
}

// cisMap is the closed CIS-benchmark mapping, keyed by finding title.
var cisMap = map[string]string{
	"Open ingress on port 22 from 0.0.0.0/0":                "CIS 5.1.1",
	"Open ingress on port 3389 from 0.0.0.0/0":              "CIS 5.1.2",
	"Ingress rule allows all protocols from 0.0.0.0/0":      "CIS 5.1.3",
	"Public subnet detected":                                "CIS 5.3",
	"Volume not encrypted with customer-managed key":        "CIS 2.8",
	"Publicly accessible bucket":                            "CIS 2.1.2",
	"Overly broad policy — manage all-resources in tenancy": "CIS 1.2",
	"Broad \"manage\" policy at tenancy level":              "CIS 1.3",
}
