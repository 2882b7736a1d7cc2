// Package reachability answers "what is reachable from where" against one
// snapshot. It evaluates per-hop admissibility of a flow across subnets,
// route tables, security lists, NSGs, and gateways; it does not simulate
// stateful firewalls or asymmetric routing.
package reachability

import (
	"fmt"
)

// Status is the admissibility of one hop or link.
type Status string

const (
	StatusAllow   Status = "ALLOW"
	StatusDeny    Status = "DENY"
	StatusUnknown Status = "UNKNOWN"
)

// Verdict is the top-level reachability outcome.
type Verdict string

const (
	VerdictReachable Verdict = "REACHABLE"
	VerdictBlocked   Verdict = "BLOCKED"
	VerdictPartial   Verdict = "PARTIAL"
	VerdictUnknown   Verdict = "UNKNOWN"
)

// HopType tags the kind of node a hop represents. The set is closed.
type HopType string

const (
	HopSource       HopType = "SRC"
	HopSubnet       HopType = "SUB"
	HopRouteTable   HopType = "RT"
	HopSecurityList HopType = "SL"
	HopNSG          HopType = "NSG"
	HopGateway      HopType = "GW"
	HopDestination  HopType = "DST"
	HopNetwork      HopType = "NET"
)

// Hop is one evaluated node in the walk. Field names are a stable contract
// with renderers.
type Hop struct {
	ID           string                 `json:"id"`
	Type         HopType                `json:"type"`
	Label        string                 `json:"label"`
	ResourceType string                 `json:"resourceType,omitempty"`
	OCID         string                 `json:"ocid,omitempty"`
	Status       Status                 `json:"status"`
	Details      string                 `json:"details,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Link connects two hops. Its status is derived from the endpoint hops:
// DENY if either endpoint denies, UNKNOWN if any endpoint is unknown and
// none denies, ALLOW otherwise.
type Link struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Status Status `json:"status"`
	Label  string `json:"label,omitempty"`
}

// Result is the analyser output. Hops appear in walk order; links reference
// only hops already present.
type Result struct {
	Hops          []Hop   `json:"hops"`
	Links         []Link  `json:"links"`
	Verdict       Verdict `json:"verdict"`
	VerdictDetail string  `json:"verdictDetail"`
}

// Request selects the analysis mode by which endpoints are present: both
// (pair), source only (fan-out), destination only (fan-in). DestinationIP
// may be the literal "internet" or "0.0.0.0/0". Protocol is a decimal
// protocol number as a string ("6" TCP, "17" UDP, "1" ICMP); empty means
// any. Port 0 means unset.
type Request struct {
	SnapshotID    string `json:"snapshotId"`
	SourceIP      string `json:"sourceIp,omitempty"`
	DestinationIP string `json:"destinationIp,omitempty"`
	Protocol      string `json:"protocol,omitempty"`
	Port          int    `json:"port,omitempty"`
}

// walk accumulates hops and links with canonical sequential ids.
type walk struct {
	hops    []Hop
	links   []Link
	byID    map[string]int
	linkSeq int
}

func newWalk() *walk {
	return &walk{byID: make(map[string]int)}
}

// addHop appends a hop with the next canonical id and returns the id.
func (w *walk) addHop(hopType HopType, label, resourceType, ocid string, status Status, details string) string {
	id := fmt.Sprintf("hop-%d", len(w.hops))
	w.addHopWithID(id, hopType, label, resourceType, ocid, status, details)
	return id
}

// addHopWithID appends a hop under a caller-chosen id. Re-adding an existing
// id is a no-op returning the id (used to deduplicate gateway nodes in
// fan-out mode).
func (w *walk) addHopWithID(id string, hopType HopType, label, resourceType, ocid string, status Status, details string) string {
	if _, exists := w.byID[id]; exists {
		return id
	}
	w.byID[id] = len(w.hops)
	w.hops = append(w.hops, Hop{
		ID:           id,
		Type:         hopType,
		Label:        label,
		ResourceType: resourceType,
		OCID:         ocid,
		Status:       status,
		Details:      details,
	})
	return id
}

// setMetadata attaches metadata to an existing hop.
func (w *walk) setMetadata(id string, metadata map[string]interface{}) {
	if index, exists := w.byID[id]; exists {
		w.hops[index].Metadata = metadata
	}
}

// link connects two existing hops; its status follows from the endpoints.
func (w *walk) link(sourceID, targetID, label string) {
	sourceIdx, sourceOK := w.byID[sourceID]
	targetIdx, targetOK := w.byID[targetID]
	if !sourceOK || !targetOK {
		return
	}
	status := StatusAllow
	sourceStatus := w.hops[sourceIdx].Status
	targetStatus := w.hops[targetIdx].Status
	switch {
	case sourceStatus == StatusDeny || targetStatus == StatusDeny:
		status = StatusDeny
	case sourceStatus == StatusUnknown || targetStatus == StatusUnknown:
		status = StatusUnknown
	}
	w.links = append(w.links, Link{
		ID:     fmt.Sprintf("link-%d", w.linkSeq),
		Source: sourceID,
		Target: targetID,
		Status: status,
		Label:  label,
	})
	w.linkSeq++
}

// result materialises the walk with the given verdict.
func (w *walk) result(verdict Verdict, detail string) *Result {
	hops := w.hops
	if hops == nil {
		hops = []Hop{}
	}
	links := w.links
	if links == nil {
		links = []Link{}
	}
	return &Result{Hops: hops, Links: links, Verdict: verdict, VerdictDetail: detail}
}
