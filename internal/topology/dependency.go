package topology

import (
	"context"
	"sort"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// dependencyTypes is the workload-centric whitelist of the DEPENDENCY view.
var dependencyTypes = []string{
	"compute/instance",
	"database/db-system",
	"database/autonomous-database",
	"network/load-balancer",
	"container/cluster",
	"container/node-pool",
	"container/container-instance",
	"serverless/application",
	"serverless/function",
	"serverless/api-gateway",
	"storage/volume",
	"storage/boot-volume",
	"storage/bucket",
	"security/vault",
	"security/key",
	"dns/zone",
	"iam/policy",
}

// buildDependency renders workload dependencies: whitelisted resources and
// every non-hierarchy relation among them. Over the cap, resources without
// any relation drop first.
func (b *Builder) buildDependency(ctx context.Context, snapshotID string, compartments []string) (*Result, error) {
	query := store.ResourceQuery{
		SnapshotID:     snapshotID,
		Types:          dependencyTypes,
		CompartmentIDs: compartments,
	}
	var refs []models.ResourceRef
	if err := b.streamRefs(ctx, query, func(ref models.ResourceRef) {
		refs = append(refs, ref)
	}); err != nil {
		return nil, err
	}

	relations, err := b.store.ListRelations(ctx, snapshotID, nil)
	if err != nil {
		return nil, err
	}

	totalCount := len(refs)
	truncated := false
	if len(refs) > MaxTopologyNodes {
		// Keep only resources that participate in at least one relation,
		// then cap.
		related := make(map[string]bool, len(relations))
		for _, relation := range relations {
			related[relation.FromResourceID] = true
			related[relation.ToResourceID] = true
		}
		kept := refs[:0]
		for _, ref := range refs {
			if related[ref.ID] {
				kept = append(kept, ref)
			}
		}
		refs = kept
		if len(refs) > MaxTopologyNodes {
			sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
			refs = refs[:MaxTopologyNodes]
		}
		truncated = true
	}

	nodes := make([]Node, 0, len(refs))
	nodeIDs := make(map[string]bool, len(refs))
	for _, ref := range refs {
		nodes = append(nodes, refNode(ref))
		nodeIDs[ref.ID] = true
	}

	edges := relationEdges(relations, nodeIDs, true)
	return &Result{Nodes: nodes, Edges: edges, TotalCount: totalCount, Truncated: truncated}, nil
}
