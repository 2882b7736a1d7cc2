package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// exposureMemberTypes are the non-instance workloads pulled into the
// EXPOSURE view when they sit in an exposed subnet.
var exposureMemberTypes = []string{
	"database/db-system",
	"database/autonomous-database",
	"container/cluster",
	"container/node-pool",
	"container/container-instance",
	"serverless/application",
	"serverless/api-gateway",
}

// buildExposure renders the verified internet-exposure surface: subnets
// with a route to an active IGW or unblocked NAT, the VCNs and gateways
// carrying them, public load balancers, and the workloads placed inside
// exposed subnets.
func (b *Builder) buildExposure(ctx context.Context, snapshotID string, compartments []string) (*Result, error) {
	fabricTypes := []string{
		"network/vcn", "network/subnet", "network/route-table",
		"network/internet-gateway", "network/nat-gateway", "network/service-gateway",
		"network/load-balancer",
	}
	fabric, err := b.loadFull(ctx, store.ResourceQuery{
		SnapshotID:     snapshotID,
		Types:          fabricTypes,
		CompartmentIDs: compartments,
	})
	if err != nil {
		return nil, err
	}

	byOCID := make(map[string]*models.Resource, len(fabric))
	idByOCID := make(map[string]string, len(fabric))
	for i := range fabric {
		resource := &fabric[i]
		byOCID[resource.OCID] = resource
		idByOCID[resource.OCID] = resource.ID
	}

	routedTo := make(map[string]bool)
	for i := range fabric {
		resource := &fabric[i]
		if resource.ResourceType != "network/route-table" {
			continue
		}
		rules, _ := resource.RawData["routeRules"].([]interface{})
		for _, ruleValue := range rules {
			if rule, ok := ruleValue.(map[string]interface{}); ok {
				if entityID, _ := rule["networkEntityId"].(string); entityID != "" {
					routedTo[entityID] = true
				}
			}
		}
	}

	igwActive := func(ocid string) bool {
		gateway := byOCID[ocid]
		if gateway == nil || gateway.ResourceType != "network/internet-gateway" {
			return false
		}
		enabled, hasFlag := gateway.RawData["isEnabled"].(bool)
		return !hasFlag || enabled
	}
	natActive := func(ocid string) bool {
		gateway := byOCID[ocid]
		if gateway == nil || gateway.ResourceType != "network/nat-gateway" {
			return false
		}
		blocked, _ := gateway.RawData["blockTraffic"].(bool)
		return !blocked
	}

	// A subnet is exposed when its route table (explicit or VCN default)
	// routes to an active IGW or an unblocked NAT.
	exposedSubnets := make(map[string]*models.Resource) // keyed by subnet OCID
	for i := range fabric {
		subnet := &fabric[i]
		if subnet.ResourceType != "network/subnet" {
			continue
		}
		routeTableID, _ := subnet.RawData["routeTableId"].(string)
		if routeTableID == "" {
			vcnID, _ := subnet.RawData["vcnId"].(string)
			if vcn := byOCID[vcnID]; vcn != nil {
				routeTableID, _ = vcn.RawData["defaultRouteTableId"].(string)
			}
		}
		routeTable := byOCID[routeTableID]
		if routeTable == nil {
			continue
		}
		rules, _ := routeTable.RawData["routeRules"].([]interface{})
		for _, ruleValue := range rules {
			rule, ok := ruleValue.(map[string]interface{})
			if !ok {
				continue
			}
			entityID, _ := rule["networkEntityId"].(string)
			if igwActive(entityID) || natActive(entityID) {
				exposedSubnets[subnet.OCID] = subnet
				break
			}
		}
	}

	nodes := make([]Node, 0)
	nodeIDs := make(map[string]bool)
	selectedIDs := make([]string, 0)
	addResource := func(resource *models.Resource, parentID string) {
		if nodeIDs[resource.ID] {
			return
		}
		node := refNode(resource.Ref())
		node.ParentID = parentID
		nodes = append(nodes, node)
		nodeIDs[resource.ID] = true
		selectedIDs = append(selectedIDs, resource.ID)
	}

	// VCNs carrying exposed subnets or active gateways.
	exposedVCNs := make(map[string]bool)
	for _, subnet := range exposedSubnets {
		if vcnID, _ := subnet.RawData["vcnId"].(string); vcnID != "" {
			exposedVCNs[vcnID] = true
		}
	}
	internetTargets := make([]string, 0)
	oracleTargets := make([]string, 0)
	for i := range fabric {
		resource := &fabric[i]
		raw := resource.RawData
		switch resource.ResourceType {
		case "network/internet-gateway":
			if igwActive(resource.OCID) {
				if vcnID, _ := raw["vcnId"].(string); vcnID != "" {
					exposedVCNs[vcnID] = true
				}
				internetTargets = append(internetTargets, resource.ID)
			}
		case "network/nat-gateway":
			if natActive(resource.OCID) {
				if vcnID, _ := raw["vcnId"].(string); vcnID != "" {
					exposedVCNs[vcnID] = true
				}
				internetTargets = append(internetTargets, resource.ID)
			}
		case "network/service-gateway":
			blocked, _ := raw["blockTraffic"].(bool)
			if !blocked && routedTo[resource.OCID] {
				oracleTargets = append(oracleTargets, resource.ID)
			}
		case "network/load-balancer":
			if private, hasFlag := raw["isPrivate"].(bool); hasFlag && !private {
				internetTargets = append(internetTargets, resource.ID)
			}
		}
	}

	for i := range fabric {
		resource := &fabric[i]
		if resource.ResourceType == "network/vcn" && exposedVCNs[resource.OCID] {
			addResource(resource, "")
		}
	}
	subnetOCIDs := make([]string, 0, len(exposedSubnets))
	for ocid := range exposedSubnets {
		subnetOCIDs = append(subnetOCIDs, ocid)
	}
	sort.Strings(subnetOCIDs)
	for _, ocid := range subnetOCIDs {
		subnet := exposedSubnets[ocid]
		vcnID, _ := subnet.RawData["vcnId"].(string)
		addResource(subnet, idByOCID[vcnID])
	}
	for i := range fabric {
		resource := &fabric[i]
		switch resource.ResourceType {
		case "network/internet-gateway", "network/nat-gateway", "network/service-gateway":
			isTarget := false
			for _, id := range append(internetTargets, oracleTargets...) {
				if id == resource.ID {
					isTarget = true
					break
				}
			}
			if isTarget {
				vcnID, _ := resource.RawData["vcnId"].(string)
				addResource(resource, idByOCID[vcnID])
			}
		case "network/load-balancer":
			if private, hasFlag := resource.RawData["isPrivate"].(bool); hasFlag && !private {
				addResource(resource, "")
			}
		}
	}

	// Instances inside exposed subnets, via their subnet-member relation.
	memberRelations, err := b.store.ListRelations(ctx, snapshotID, []models.RelationType{models.RelationSubnetMember})
	if err != nil {
		return nil, err
	}
	memberOf := make(map[string]string, len(memberRelations))
	for _, relation := range memberRelations {
		if _, exists := memberOf[relation.FromResourceID]; !exists {
			memberOf[relation.FromResourceID] = relation.ToResourceID
		}
	}
	exposedSubnetNodeIDs := make(map[string]bool, len(exposedSubnets))
	for _, subnet := range exposedSubnets {
		exposedSubnetNodeIDs[subnet.ID] = true
	}

	truncated := false
	exposedInstances := 0
	overflow := 0
	if err := b.streamRefs(ctx, store.ResourceQuery{
		SnapshotID:     snapshotID,
		Types:          []string{"compute/instance"},
		CompartmentIDs: compartments,
	}, func(ref models.ResourceRef) {
		subnetID, placed := memberOf[ref.ID]
		if !placed || !exposedSubnetNodeIDs[subnetID] {
			return
		}
		exposedInstances++
		if exposedInstances > MaxExposedInstances {
			overflow++
			return
		}
		node := refNode(ref)
		node.ParentID = subnetID
		nodes = append(nodes, node)
		nodeIDs[ref.ID] = true
		selectedIDs = append(selectedIDs, ref.ID)
	}); err != nil {
		return nil, err
	}
	if overflow > 0 {
		truncated = true
		nodes = append(nodes, Node{
			ID:       "instance-summary-exposed",
			Label:    fmt.Sprintf("%d more instances", overflow),
			Type:     "instanceSummaryNode",
			Metadata: map[string]interface{}{"instanceCount": overflow},
		})
	}

	// Non-instance workloads placed in exposed subnets by raw reference.
	members, err := b.loadFull(ctx, store.ResourceQuery{
		SnapshotID:     snapshotID,
		Types:          exposureMemberTypes,
		CompartmentIDs: compartments,
	})
	if err != nil {
		return nil, err
	}
	for i := range members {
		member := &members[i]
		subnetOCID := memberSubnetOCID(member.RawData)
		subnet := exposedSubnets[subnetOCID]
		if subnet == nil {
			continue
		}
		addResource(member, subnet.ID)
	}

	edges := make([]Edge, 0)
	if len(internetTargets) > 0 {
		nodes = append(nodes, Node{ID: internetNodeID, Label: "Internet", Type: "internetNode"})
		sort.Strings(internetTargets)
		for i, target := range internetTargets {
			edges = append(edges, Edge{
				ID:           fmt.Sprintf("edge-internet-%d", i),
				Source:       internetNodeID,
				Target:       target,
				RelationType: models.RelationRoutesVia,
				Animated:     true,
			})
		}
	}
	if len(oracleTargets) > 0 {
		nodes = append(nodes, Node{ID: oracleServicesNodeID, Label: "Oracle Services", Type: "oracleServicesNode"})
		sort.Strings(oracleTargets)
		for i, target := range oracleTargets {
			edges = append(edges, Edge{
				ID:           fmt.Sprintf("edge-oracle-%d", i),
				Source:       oracleServicesNodeID,
				Target:       target,
				RelationType: models.RelationRoutesVia,
				Animated:     true,
			})
		}
	}

	relations, err := b.store.RelationsAmong(ctx, snapshotID, selectedIDs)
	if err != nil {
		return nil, err
	}
	edges = append(edges, relationEdges(relations, nodeIDs, false)...)

	totalCount := len(selectedIDs) + overflow
	return &Result{Nodes: nodes, Edges: edges, TotalCount: totalCount, Truncated: truncated}, nil
}

// memberSubnetOCID extracts a workload's subnet reference: subnetId,
// subnetIds[0], vnics[0].subnetId, or the first placement config.
func memberSubnetOCID(raw map[string]interface{}) string {
	if subnetID, _ := raw["subnetId"].(string); subnetID != "" {
		return subnetID
	}
	if subnetIDs, ok := raw["subnetIds"].([]interface{}); ok && len(subnetIDs) > 0 {
		if subnetID, ok := subnetIDs[0].(string); ok {
			return subnetID
		}
	}
	if vnics, ok := raw["vnics"].([]interface{}); ok && len(vnics) > 0 {
		if vnic, ok := vnics[0].(map[string]interface{}); ok {
			if subnetID, _ := vnic["subnetId"].(string); subnetID != "" {
				return subnetID
			}
		}
	}
	if placements, ok := raw["placementConfigs"].([]interface{}); ok && len(placements) > 0 {
		if placement, ok := placements[0].(map[string]interface{}); ok {
			if subnetID, _ := placement["subnetId"].(string); subnetID != "" {
				return subnetID
			}
		}
	}
	return ""
}

// loadFull pages through full resources for a query.
func (b *Builder) loadFull(ctx context.Context, q store.ResourceQuery) ([]models.Resource, error) {
	q.Limit = 1000
	var out []models.Resource
	for {
		if err := ctx.Err(); err != nil {
			return out, nil
		}
		page, err := b.store.ListResources(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Resources...)
		if page.NextCursor == "" {
			return out, nil
		}
		q.Cursor = page.NextCursor
	}
}
