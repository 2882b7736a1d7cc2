package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// networkInfraTypes is the NETWORK view's infrastructure whitelist.
// Instances are counted separately and may collapse into summary nodes.
var networkInfraTypes = []string{
	"network/vcn",
	"network/subnet",
	"network/internet-gateway",
	"network/nat-gateway",
	"network/service-gateway",
	"network/drg",
	"network/drg-attachment",
	"network/local-peering-gateway",
	"network/route-table",
	"network/security-list",
	"network/nsg",
	"network/load-balancer",
	"container/cluster",
	"container/node-pool",
	"container/container-instance",
	"serverless/application",
	"serverless/api-gateway",
}

func (b *Builder) buildNetwork(ctx context.Context, snapshotID string, compartments []string) (*Result, error) {
	baseQuery := store.ResourceQuery{SnapshotID: snapshotID, CompartmentIDs: compartments}

	// Infrastructure refs plus a bare instance count decide the shape of
	// the view before any raw data is parsed.
	var infraRefs []models.ResourceRef
	infraQuery := baseQuery
	infraQuery.Types = networkInfraTypes
	if err := b.streamRefs(ctx, infraQuery, func(ref models.ResourceRef) {
		infraRefs = append(infraRefs, ref)
	}); err != nil {
		return nil, err
	}

	instanceQuery := baseQuery
	instanceQuery.Types = []string{"compute/instance"}
	instanceCount, err := b.store.CountResources(ctx, instanceQuery)
	if err != nil {
		return nil, err
	}

	totalCount := len(infraRefs) + instanceCount
	collapseInstances := totalCount > MaxTopologyNodes
	truncated := false

	// The priority table keeps the most important infrastructure when the
	// cap is exceeded by infrastructure alone.
	if len(infraRefs) > MaxTopologyNodes {
		sort.Slice(infraRefs, func(i, j int) bool {
			pi, pj := priorityFor(infraRefs[i].ResourceType), priorityFor(infraRefs[j].ResourceType)
			if pi != pj {
				return pi < pj
			}
			return infraRefs[i].ID < infraRefs[j].ID
		})
		infraRefs = infraRefs[:MaxTopologyNodes]
		truncated = true
	}

	selectedIDs := make([]string, 0, len(infraRefs))
	for _, ref := range infraRefs {
		selectedIDs = append(selectedIDs, ref.ID)
	}

	// Raw data only for selected rows, chunked below the parameter cap.
	infra, err := b.store.GetResourcesByIDs(ctx, snapshotID, selectedIDs)
	if err != nil {
		return nil, err
	}
	byOCID := make(map[string]*models.Resource, len(infra))
	idByOCID := make(map[string]string, len(infra))
	for i := range infra {
		resource := &infra[i]
		byOCID[resource.OCID] = resource
		idByOCID[resource.OCID] = resource.ID
	}

	// subnet-member relations place instances (and give subnets their VCN)
	// without loading instance raw data.
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

	nodeIDs := make(map[string]bool, len(infra))
	nodes := make([]Node, 0, len(infra))
	for i := range infra {
		resource := &infra[i]
		node := refNode(resource.Ref())
		node.ParentID = networkParent(resource, idByOCID)
		nodes = append(nodes, node)
		nodeIDs[node.ID] = true
	}

	if collapseInstances {
		summaryNodes, err := b.collapseInstanceNodes(ctx, instanceQuery, memberOf, nodeIDs)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, summaryNodes...)
	} else if instanceCount > 0 {
		if err := b.streamRefs(ctx, instanceQuery, func(ref models.ResourceRef) {
			node := refNode(ref)
			if subnetID, placed := memberOf[ref.ID]; placed && nodeIDs[subnetID] {
				node.ParentID = subnetID
			}
			nodes = append(nodes, node)
			nodeIDs[ref.ID] = true
			selectedIDs = append(selectedIDs, ref.ID)
		}); err != nil {
			return nil, err
		}
	}

	edges := make([]Edge, 0)

	// Synthetic external nodes appear only for verified exposure.
	internetTargets, oracleTargets := b.externalAttachments(infra, byOCID)
	if len(internetTargets) > 0 {
		nodes = append(nodes, Node{
			ID: internetNodeID, Label: "Internet", Type: "internetNode",
		})
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
		nodes = append(nodes, Node{
			ID: oracleServicesNodeID, Label: "Oracle Services", Type: "oracleServicesNode",
		})
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

	return &Result{Nodes: nodes, Edges: edges, TotalCount: totalCount, Truncated: truncated}, nil
}

// collapseInstanceNodes streams instance refs and buckets them per subnet,
// per VCN for instances whose subnet was truncated away, and one unplaced
// bucket for the rest.
func (b *Builder) collapseInstanceNodes(ctx context.Context, instanceQuery store.ResourceQuery, memberOf map[string]string, nodeIDs map[string]bool) ([]Node, error) {
	perSubnet := make(map[string]int)
	perVCN := make(map[string]int)
	unplaced := 0

	if err := b.streamRefs(ctx, instanceQuery, func(ref models.ResourceRef) {
		subnetID, placed := memberOf[ref.ID]
		if placed && nodeIDs[subnetID] {
			perSubnet[subnetID]++
			return
		}
		if placed {
			// The subnet itself carries a subnet-member edge to its VCN.
			if vcnID, known := memberOf[subnetID]; known && nodeIDs[vcnID] {
				perVCN[vcnID]++
				return
			}
		}
		unplaced++
	}); err != nil {
		return nil, err
	}

	parents := make([]string, 0, len(perSubnet)+len(perVCN))
	for parent := range perSubnet {
		parents = append(parents, parent)
	}
	for parent := range perVCN {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	nodes := make([]Node, 0, len(parents)+1)
	for _, parent := range parents {
		count, isSubnet := perSubnet[parent]
		if !isSubnet {
			count = perVCN[parent]
		}
		nodes = append(nodes, Node{
			ID:       "instance-summary-" + parent,
			Label:    fmt.Sprintf("%d instances", count),
			Type:     "instanceSummaryNode",
			ParentID: parent,
			Metadata: map[string]interface{}{"instanceCount": count},
		})
	}
	if unplaced > 0 {
		nodes = append(nodes, Node{
			ID:       "instance-summary-unplaced",
			Label:    fmt.Sprintf("%d instances", unplaced),
			Type:     "instanceSummaryNode",
			Metadata: map[string]interface{}{"instanceCount": unplaced},
		})
	}
	return nodes, nil
}

// networkParent derives the nesting parent of a node from its raw
// references: subnet→VCN, gateway→VCN, anything carrying a subnet or VCN
// reference nests under it.
func networkParent(resource *models.Resource, idByOCID map[string]string) string {
	raw := resource.RawData
	lookup := func(ocid string) string {
		if ocid == "" {
			return ""
		}
		return idByOCID[ocid]
	}

	switch resource.ResourceType {
	case "network/vcn":
		return ""
	case "network/subnet":
		vcnID, _ := raw["vcnId"].(string)
		return lookup(vcnID)
	}

	if subnetID, _ := raw["subnetId"].(string); subnetID != "" {
		if parent := lookup(subnetID); parent != "" {
			return parent
		}
	}
	if subnetIDs, ok := raw["subnetIds"].([]interface{}); ok && len(subnetIDs) > 0 {
		if subnetID, ok := subnetIDs[0].(string); ok {
			if parent := lookup(subnetID); parent != "" {
				return parent
			}
		}
	}
	if vnics, ok := raw["vnics"].([]interface{}); ok && len(vnics) > 0 {
		if vnic, ok := vnics[0].(map[string]interface{}); ok {
			if subnetID, _ := vnic["subnetId"].(string); subnetID != "" {
				if parent := lookup(subnetID); parent != "" {
					return parent
				}
			}
		}
	}
	if placements, ok := raw["placementConfigs"].([]interface{}); ok && len(placements) > 0 {
		if placement, ok := placements[0].(map[string]interface{}); ok {
			if subnetID, _ := placement["subnetId"].(string); subnetID != "" {
				if parent := lookup(subnetID); parent != "" {
					return parent
				}
			}
		}
	}
	if vcnID, _ := raw["vcnId"].(string); vcnID != "" {
		return lookup(vcnID)
	}
	return ""
}

// externalAttachments decides which loaded resources verifiably face the
// internet or the Oracle Services Network. A gateway counts as routed-to
// only when some route rule's networkEntityId names it.
func (b *Builder) externalAttachments(infra []models.Resource, byOCID map[string]*models.Resource) (internet []string, oracle []string) {
	routedTo := make(map[string]bool)
	for i := range infra {
		resource := &infra[i]
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

	for i := range infra {
		resource := &infra[i]
		raw := resource.RawData
		switch resource.ResourceType {
		case "network/internet-gateway":
			enabled, hasFlag := raw["isEnabled"].(bool)
			if (!hasFlag || enabled) && routedTo[resource.OCID] {
				internet = append(internet, resource.ID)
			}
		case "network/nat-gateway":
			if blocked, _ := raw["blockTraffic"].(bool); !blocked && routedTo[resource.OCID] {
				internet = append(internet, resource.ID)
			}
		case "network/load-balancer":
			if private, hasFlag := raw["isPrivate"].(bool); hasFlag && !private {
				internet = append(internet, resource.ID)
			}
		case "network/service-gateway":
			if blocked, _ := raw["blockTraffic"].(bool); !blocked && routedTo[resource.OCID] {
				oracle = append(oracle, resource.ID)
			}
		}
	}
	sort.Strings(internet)
	sort.Strings(oracle)
	return internet, oracle
}
