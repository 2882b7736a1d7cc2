package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// buildCompartment renders the compartment tree: one node per compartment
// carrying per-type resource counts, hierarchy edges, and aggregated
// cross-compartment dependency edges.
func (b *Builder) buildCompartment(ctx context.Context, snapshotID string, compartments []string) (*Result, error) {
	query := store.ResourceQuery{
		SnapshotID: snapshotID,
		Types:      []string{"iam/compartment"},
	}
	var refs []models.ResourceRef
	if err := b.streamRefs(ctx, query, func(ref models.ResourceRef) {
		refs = append(refs, ref)
	}); err != nil {
		return nil, err
	}

	// Scope to the requested subtree when a filter is present. The filter
	// names compartment OCIDs.
	if compartments != nil {
		scope := make(map[string]bool, len(compartments))
		for _, ocid := range compartments {
			scope[ocid] = true
		}
		filtered := refs[:0]
		for _, ref := range refs {
			if scope[ref.OCID] {
				filtered = append(filtered, ref)
			}
		}
		refs = filtered
	}

	counts, err := b.store.ResourceCountsByCompartment(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	truncated := false
	totalCount := len(refs)
	if len(refs) > MaxTopologyNodes {
		sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
		refs = refs[:MaxTopologyNodes]
		truncated = true
	}

	idByOCID := make(map[string]string, len(refs))
	compartmentOf := make(map[string]string, len(refs)) // node id -> own OCID
	nodes := make([]Node, 0, len(refs))
	nodeIDs := make(map[string]bool, len(refs))
	for _, ref := range refs {
		byType := counts[ref.OCID]
		total := 0
		resourceCounts := make(map[string]interface{}, len(byType))
		for resourceType, n := range byType {
			resourceCounts[resourceType] = n
			total += n
		}
		node := refNode(ref)
		node.Type = "compartmentNode"
		node.Metadata = map[string]interface{}{
			"resourceCounts": resourceCounts,
			"totalResources": total,
		}
		nodes = append(nodes, node)
		nodeIDs[node.ID] = true
		idByOCID[ref.OCID] = ref.ID
		compartmentOf[ref.ID] = ref.OCID
	}

	edges := make([]Edge, 0)
	// Parent hierarchy: a compartment's CompartmentID names its parent.
	for _, ref := range refs {
		if parentID, exists := idByOCID[ref.CompartmentID]; exists {
			edges = append(edges, Edge{
				ID:           fmt.Sprintf("edge-tree-%s", ref.ID),
				Source:       parentID,
				Target:       ref.ID,
				RelationType: models.RelationContains,
			})
		}
	}

	crossEdges, err := b.crossCompartmentEdges(ctx, snapshotID, idByOCID)
	if err != nil {
		return nil, err
	}
	edges = append(edges, crossEdges...)

	return &Result{Nodes: nodes, Edges: edges, TotalCount: totalCount, Truncated: truncated}, nil
}

// crossCompartmentEdges groups every non-hierarchy relation by the
// unordered pair of endpoint compartments and emits one aggregate edge per
// pair, labelled with the count and the dominant relation type.
func (b *Builder) crossCompartmentEdges(ctx context.Context, snapshotID string, idByOCID map[string]string) ([]Edge, error) {
	// Resource id -> compartment OCID, streamed without raw data.
	resourceCompartments := make(map[string]string)
	if err := b.streamRefs(ctx, store.ResourceQuery{SnapshotID: snapshotID}, func(ref models.ResourceRef) {
		if ref.CompartmentID != "" {
			resourceCompartments[ref.ID] = ref.CompartmentID
		}
	}); err != nil {
		return nil, err
	}

	relations, err := b.store.ListRelations(ctx, snapshotID, nil)
	if err != nil {
		return nil, err
	}

	type pairStats struct {
		count   int
		byType  map[models.RelationType]int
		from    string
		to      string
	}
	pairs := make(map[string]*pairStats)
	for _, relation := range relations {
		if models.HierarchyRelations[relation.RelationType] {
			continue
		}
		fromCompartment := resourceCompartments[relation.FromResourceID]
		toCompartment := resourceCompartments[relation.ToResourceID]
		if fromCompartment == "" || toCompartment == "" || fromCompartment == toCompartment {
			continue
		}
		fromNode, fromOK := idByOCID[fromCompartment]
		toNode, toOK := idByOCID[toCompartment]
		if !fromOK || !toOK {
			continue
		}
		// Unordered pair key keeps one aggregate edge per compartment pair.
		key := fromNode + "|" + toNode
		if toNode < fromNode {
			key = toNode + "|" + fromNode
		}
		stats, exists := pairs[key]
		if !exists {
			stats = &pairStats{byType: make(map[models.RelationType]int), from: fromNode, to: toNode}
			pairs[key] = stats
		}
		stats.count++
		stats.byType[relation.RelationType]++
	}

	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	edges := make([]Edge, 0, len(keys))
	for i, key := range keys {
		stats := pairs[key]
		topType := models.RelationType("")
		topCount := -1
		for relationType, n := range stats.byType {
			if n > topCount || (n == topCount && string(relationType) < string(topType)) {
				topType = relationType
				topCount = n
			}
		}
		edges = append(edges, Edge{
			ID:           fmt.Sprintf("edge-deps-%d", i),
			Source:       stats.from,
			Target:       stats.to,
			Label:        fmt.Sprintf("%d deps (%s)", stats.count, topType),
			RelationType: topType,
		})
	}
	return edges, nil
}
