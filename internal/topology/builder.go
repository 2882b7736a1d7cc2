package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/catherinevee/cloudlens/internal/apperrors"
	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/metrics"
	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// Builder materialises topology views against one snapshot at a time. All
// per-build state is build-local.
type Builder struct {
	store store.Store
	log   logger.Logger
}

// NewBuilder creates a topology builder.
func NewBuilder(s store.Store) *Builder {
	return &Builder{store: s, log: logger.New("topology")}
}

// Build dispatches to the requested view. compartmentID optionally scopes
// the view to a compartment subtree.
func (b *Builder) Build(ctx context.Context, snapshotID, compartmentID string, view ViewType) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("topology").Observe(time.Since(start).Seconds())
	}()

	compartments, err := b.descendantCompartments(ctx, snapshotID, compartmentID)
	if err != nil {
		return nil, err
	}

	switch view {
	case ViewNetwork:
		return b.buildNetwork(ctx, snapshotID, compartments)
	case ViewCompartment:
		return b.buildCompartment(ctx, snapshotID, compartments)
	case ViewDependency:
		return b.buildDependency(ctx, snapshotID, compartments)
	case ViewExposure:
		return b.buildExposure(ctx, snapshotID, compartments)
	}
	return nil, apperrors.Newf(apperrors.ErrorTypeValidation, "unknown view type %q", view)
}

// descendantCompartments resolves the compartment filter: the compartment
// and every descendant, via BFS over the parent→children map built from the
// snapshot's compartments. Returns nil when no filter is requested.
func (b *Builder) descendantCompartments(ctx context.Context, snapshotID, compartmentID string) ([]string, error) {
	if compartmentID == "" {
		return nil, nil
	}

	children := make(map[string][]string)
	cursor := ""
	for {
		page, err := b.store.ListResourceRefs(ctx, store.ResourceQuery{
			SnapshotID: snapshotID,
			Types:      []string{"iam/compartment"},
			Cursor:     cursor,
			Limit:      1000,
		})
		if err != nil {
			return nil, err
		}
		for _, ref := range page.Refs {
			if ref.CompartmentID != "" {
				children[ref.CompartmentID] = append(children[ref.CompartmentID], ref.OCID)
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	out := []string{compartmentID}
	seen := map[string]bool{compartmentID: true}
	for queue := []string{compartmentID}; len(queue) > 0; {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}
	return out, nil
}

// streamRefs pages through every ref matching the query, invoking visit per
// ref. Cancellation is honoured between pages.
func (b *Builder) streamRefs(ctx context.Context, q store.ResourceQuery, visit func(models.ResourceRef)) error {
	q.Limit = 1000
	for {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.ErrorTypeCancelled, "topology build cancelled", err)
		}
		page, err := b.store.ListResourceRefs(ctx, q)
		if err != nil {
			return err
		}
		for _, ref := range page.Refs {
			visit(ref)
		}
		if page.NextCursor == "" {
			return nil
		}
		q.Cursor = page.NextCursor
	}
}

// relationEdges converts relations among selected node ids into edges.
// routes-via edges render animated.
func relationEdges(relations []models.ResourceRelation, nodeIDs map[string]bool, skipHierarchy bool) []Edge {
	edges := make([]Edge, 0, len(relations))
	for _, relation := range relations {
		if skipHierarchy && models.HierarchyRelations[relation.RelationType] {
			continue
		}
		if !nodeIDs[relation.FromResourceID] || !nodeIDs[relation.ToResourceID] {
			continue
		}
		edges = append(edges, Edge{
			ID:           fmt.Sprintf("edge-%s", relation.ID),
			Source:       relation.FromResourceID,
			Target:       relation.ToResourceID,
			RelationType: relation.RelationType,
			Animated:     relation.RelationType == models.RelationRoutesVia,
		})
	}
	return edges
}

// refNode builds a plain node from a ref. The node id is the resource id.
func refNode(ref models.ResourceRef) Node {
	label := ref.DisplayName
	if label == "" {
		label = ref.OCID
	}
	return Node{
		ID:           ref.ID,
		Label:        label,
		Type:         nodeTypeFor(ref.ResourceType),
		ResourceType: ref.ResourceType,
		OCID:         ref.OCID,
	}
}
