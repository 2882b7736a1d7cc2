package store

import (
	"context"
	"sort"
	"sync"

	"github.com/catherinevee/cloudlens/internal/apperrors"
	"github.com/catherinevee/cloudlens/internal/models"
)

// MemoryStore is an in-memory Store with the same selection and pagination
// semantics as the SQLite store. Used by tests and throwaway analyses.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]models.Snapshot
	resources map[string]models.Resource // by resource id
	relations map[string]models.ResourceRelation
	blobs     map[string]map[string]models.ResourceBlob // resourceID -> blobKey
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]models.Snapshot),
		resources: make(map[string]models.Resource),
		relations: make(map[string]models.ResourceRelation),
		blobs:     make(map[string]map[string]models.ResourceBlob),
	}
}

func (m *MemoryStore) CreateSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.snapshots[snapshot.ID]; exists {
		return apperrors.Newf(apperrors.ErrorTypeValidation, "snapshot %s already exists", snapshot.ID)
	}
	m.snapshots[snapshot.ID] = *snapshot
	return nil
}

func (m *MemoryStore) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, exists := m.snapshots[id]
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "snapshot %s not found", id)
	}
	return &snapshot, nil
}

func (m *MemoryStore) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Snapshot, 0, len(m.snapshots))
	for _, snapshot := range m.snapshots {
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportedAt.Before(out[j].ImportedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteSnapshot(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.snapshots[id]; !exists {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "snapshot %s not found", id)
	}
	delete(m.snapshots, id)
	for resourceID, resource := range m.resources {
		if resource.SnapshotID == id {
			delete(m.resources, resourceID)
			delete(m.blobs, resourceID)
		}
	}
	for relationID, relation := range m.relations {
		if relation.SnapshotID == id {
			delete(m.relations, relationID)
		}
	}
	return nil
}

func (m *MemoryStore) PutResources(ctx context.Context, resources []models.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, resource := range resources {
		m.resources[resource.ID] = resource
	}
	return nil
}

func (m *MemoryStore) PutRelations(ctx context.Context, relations []models.ResourceRelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, relation := range relations {
		m.relations[relation.ID] = relation
	}
	return nil
}

func (m *MemoryStore) PutBlobs(ctx context.Context, blobs []models.ResourceBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, blob := range blobs {
		byKey, exists := m.blobs[blob.ResourceID]
		if !exists {
			byKey = make(map[string]models.ResourceBlob)
			m.blobs[blob.ResourceID] = byKey
		}
		byKey[blob.BlobKey] = blob
	}
	return nil
}

// matchQuery applies every filter of q except cursor and limit.
func matchQuery(resource *models.Resource, q ResourceQuery) bool {
	if resource.SnapshotID != q.SnapshotID {
		return false
	}
	if len(q.Types) > 0 && !containsString(q.Types, resource.ResourceType) {
		return false
	}
	if len(q.CompartmentIDs) > 0 && !containsString(q.CompartmentIDs, resource.CompartmentID) {
		return false
	}
	if len(q.OCIDs) > 0 && !containsString(q.OCIDs, resource.OCID) {
		return false
	}
	if len(q.IDs) > 0 && !containsString(q.IDs, resource.ID) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}

// selectOrdered returns matching resources ordered by id, honouring cursor
// and limit, plus the next cursor ("" when exhausted).
func (m *MemoryStore) selectOrdered(q ResourceQuery) ([]models.Resource, string) {
	matched := make([]models.Resource, 0)
	for _, resource := range m.resources {
		resource := resource
		if matchQuery(&resource, q) {
			matched = append(matched, resource)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if q.Cursor != "" {
		start := sort.Search(len(matched), func(i int) bool { return matched[i].ID > q.Cursor })
		matched = matched[start:]
	}
	next := ""
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
		next = matched[len(matched)-1].ID
	}
	return matched, next
}

func (m *MemoryStore) CountResources(ctx context.Context, q ResourceQuery) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, resource := range m.resources {
		resource := resource
		if matchQuery(&resource, q) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListResources(ctx context.Context, q ResourceQuery) (*ResourcePage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resources, next := m.selectOrdered(q)
	return &ResourcePage{Resources: resources, NextCursor: next}, nil
}

func (m *MemoryStore) ListResourceRefs(ctx context.Context, q ResourceQuery) (*RefPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resources, next := m.selectOrdered(q)
	refs := make([]models.ResourceRef, 0, len(resources))
	for i := range resources {
		refs = append(refs, resources[i].Ref())
	}
	return &RefPage{Refs: refs, NextCursor: next}, nil
}

func (m *MemoryStore) GetResourcesByIDs(ctx context.Context, snapshotID string, ids []string) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(ids))
	for _, chunk := range ChunkIDs(ids, models.MaxInParameters) {
		page, err := m.ListResources(ctx, ResourceQuery{SnapshotID: snapshotID, IDs: chunk})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Resources...)
	}
	return out, nil
}

func (m *MemoryStore) GetResourcesByOCIDs(ctx context.Context, snapshotID string, ocids []string) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(ocids))
	for _, chunk := range ChunkIDs(ocids, models.MaxInParameters) {
		page, err := m.ListResources(ctx, ResourceQuery{SnapshotID: snapshotID, OCIDs: chunk})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Resources...)
	}
	return out, nil
}

func (m *MemoryStore) ListRelations(ctx context.Context, snapshotID string, types []models.RelationType) ([]models.ResourceRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	typeSet := make(map[models.RelationType]bool, len(types))
	for _, relationType := range types {
		typeSet[relationType] = true
	}
	out := make([]models.ResourceRelation, 0)
	for _, relation := range m.relations {
		if relation.SnapshotID != snapshotID {
			continue
		}
		if len(typeSet) > 0 && !typeSet[relation.RelationType] {
			continue
		}
		out = append(out, relation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) RelationsAmong(ctx context.Context, snapshotID string, resourceIDs []string) ([]models.ResourceRelation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idSet := make(map[string]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		idSet[id] = true
	}
	out := make([]models.ResourceRelation, 0)
	for _, relation := range m.relations {
		if relation.SnapshotID != snapshotID {
			continue
		}
		if idSet[relation.FromResourceID] && idSet[relation.ToResourceID] {
			out = append(out, relation)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetBlobs(ctx context.Context, resourceIDs []string, blobKey string) ([]models.ResourceBlob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ResourceBlob, 0)
	for _, chunk := range ChunkIDs(resourceIDs, models.MaxInParameters) {
		for _, resourceID := range chunk {
			if blob, exists := m.blobs[resourceID][blobKey]; exists {
				out = append(out, blob)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out, nil
}

func (m *MemoryStore) ResourceCountsByCompartment(ctx context.Context, snapshotID string) (map[string]map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]map[string]int)
	for _, resource := range m.resources {
		if resource.SnapshotID != snapshotID {
			continue
		}
		byType, exists := counts[resource.CompartmentID]
		if !exists {
			byType = make(map[string]int)
			counts[resource.CompartmentID] = byType
		}
		byType[resource.ResourceType]++
	}
	return counts, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
