package reachability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/metrics"
	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/netcalc"
	"github.com/catherinevee/cloudlens/internal/store"
)

// internetProbeIP is the representative external address routed toward when
// the destination is "internet".
const internetProbeIP = "8.8.8.8"

// networkResourceTypes is the preload set: everything the walk can touch.
var networkResourceTypes = []string{
	"network/vcn",
	"network/subnet",
	"network/route-table",
	"network/security-list",
	"network/nsg",
	"network/internet-gateway",
	"network/nat-gateway",
	"network/service-gateway",
	"network/drg",
	"network/drg-attachment",
	"network/local-peering-gateway",
}

// Analyzer evaluates reachability questions against one snapshot at a time.
// All per-analysis state lives on the run, never on the Analyzer.
type Analyzer struct {
	store store.Store
	log   logger.Logger
}

// NewAnalyzer creates a reachability analyzer.
func NewAnalyzer(s store.Store) *Analyzer {
	return &Analyzer{store: s, log: logger.New("reachability")}
}

// netIndex is the preloaded network resource map for one analysis.
type netIndex struct {
	byOCID         map[string]*models.Resource
	subnets        []*models.Resource
	nsgs           []*models.Resource
	drgAttachments []*models.Resource
}

// Analyze dispatches on which endpoints the request carries: both → pair,
// source only → fan-out, destination only → fan-in. Rule and reference
// failures surface as hop statuses, never as errors.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("reachability").Observe(time.Since(start).Seconds())
	}()

	if req.SourceIP == "" && req.DestinationIP == "" {
		return newWalk().result(VerdictUnknown,
			"provide a source IP, a destination IP, or both to analyse reachability"), nil
	}

	idx, err := a.preload(ctx, req.SnapshotID)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return newWalk().result(VerdictUnknown, "analysis cancelled"), nil
	}

	switch {
	case req.SourceIP != "" && req.DestinationIP != "":
		return a.analyzePair(ctx, idx, req), nil
	case req.SourceIP != "":
		return a.analyzeFanOut(ctx, idx, req), nil
	default:
		return a.analyzeFanIn(ctx, idx, req), nil
	}
}

// preload loads every network resource of the snapshot into a map keyed by
// OCID. Pages are bounded and cancellation is honoured between pages.
func (a *Analyzer) preload(ctx context.Context, snapshotID string) (*netIndex, error) {
	idx := &netIndex{byOCID: make(map[string]*models.Resource)}
	cursor := ""
	for {
		if ctx.Err() != nil {
			return idx, nil
		}
		page, err := a.store.ListResources(ctx, store.ResourceQuery{
			SnapshotID: snapshotID,
			Types:      networkResourceTypes,
			Cursor:     cursor,
			Limit:      1000,
		})
		if err != nil {
			return nil, err
		}
		for i := range page.Resources {
			resource := &page.Resources[i]
			idx.byOCID[resource.OCID] = resource
			switch resource.ResourceType {
			case "network/subnet":
				idx.subnets = append(idx.subnets, resource)
			case "network/nsg":
				idx.nsgs = append(idx.nsgs, resource)
			case "network/drg-attachment":
				idx.drgAttachments = append(idx.drgAttachments, resource)
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	sort.Slice(idx.subnets, func(i, j int) bool { return idx.subnets[i].OCID < idx.subnets[j].OCID })
	sort.Slice(idx.nsgs, func(i, j int) bool { return idx.nsgs[i].OCID < idx.nsgs[j].OCID })
	sort.Slice(idx.drgAttachments, func(i, j int) bool { return idx.drgAttachments[i].OCID < idx.drgAttachments[j].OCID })
	return idx, nil
}

// findSubnetContaining returns the first subnet (by OCID order) whose CIDR
// contains ip, optionally restricted to one VCN.
func (idx *netIndex) findSubnetContaining(ip, vcnOCID string) *models.Resource {
	for _, subnet := range idx.subnets {
		if vcnOCID != "" {
			if subnetVCN, _ := subnet.RawData["vcnId"].(string); subnetVCN != vcnOCID {
				continue
			}
		}
		if cidr, _ := subnet.RawData["cidrBlock"].(string); cidr != "" && netcalc.IPInCIDR(ip, cidr) {
			return subnet
		}
	}
	return nil
}

// routeTableFor resolves the subnet's route table: explicit on the subnet,
// else the VCN default. Returns the referenced OCID too so a dangling
// reference can surface as UNKNOWN.
func (idx *netIndex) routeTableFor(subnet *models.Resource) (*models.Resource, string) {
	if routeTableID, _ := subnet.RawData["routeTableId"].(string); routeTableID != "" {
		return idx.byOCID[routeTableID], routeTableID
	}
	vcnOCID, _ := subnet.RawData["vcnId"].(string)
	if vcn := idx.byOCID[vcnOCID]; vcn != nil {
		if defaultID, _ := vcn.RawData["defaultRouteTableId"].(string); defaultID != "" {
			return idx.byOCID[defaultID], defaultID
		}
	}
	return nil, ""
}

// routeRules extracts the rule objects of a route table.
func routeRules(routeTable *models.Resource) []map[string]interface{} {
	raw, _ := routeTable.RawData["routeRules"].([]interface{})
	rules := make([]map[string]interface{}, 0, len(raw))
	for _, ruleValue := range raw {
		if rule, ok := ruleValue.(map[string]interface{}); ok {
			rules = append(rules, rule)
		}
	}
	return rules
}

// matchRoute runs longest-prefix match over the table for ip.
func matchRoute(routeTable *models.Resource, ip string) map[string]interface{} {
	rules := routeRules(routeTable)
	destinations := make([]string, len(rules))
	for i, rule := range rules {
		destinations[i], _ = rule["destination"].(string)
	}
	index := netcalc.LongestPrefixMatch(ip, destinations)
	if index < 0 {
		return nil
	}
	return rules[index]
}

func subnetLabel(subnet *models.Resource) string {
	cidr, _ := subnet.RawData["cidrBlock"].(string)
	name := subnet.DisplayName
	if name == "" {
		name = "subnet"
	}
	if cidr == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, cidr)
}

func gatewayLabel(gateway *models.Resource) string {
	if gateway.DisplayName != "" {
		return gateway.DisplayName
	}
	switch gateway.ResourceType {
	case "network/internet-gateway":
		return "Internet Gateway"
	case "network/nat-gateway":
		return "NAT Gateway"
	case "network/service-gateway":
		return "Service Gateway"
	case "network/drg":
		return "DRG"
	case "network/local-peering-gateway":
		return "Local Peering Gateway"
	}
	return "Gateway"
}

// isInternetDestination recognises the literal internet destinations.
func isInternetDestination(destination string) bool {
	return destination == "internet" || destination == "0.0.0.0/0"
}
