// Package store defines the snapshot store contract shared by the ingestion
// pipeline and every analyser, plus its SQLite and in-memory
// implementations. The store is a keyed document store: selection by
// snapshot, type, id, ocid, and compartment, with cursor-paginated and
// parameter-limit-safe chunked reads.
package store

import (
	"context"

	"github.com/catherinevee/cloudlens/internal/models"
)

// ResourceQuery selects resources within one snapshot. Empty slices mean
// "no filter". Cursor is the opaque value returned by the previous page;
// Limit <= 0 means no pagination.
type ResourceQuery struct {
	SnapshotID     string
	Types          []string
	CompartmentIDs []string
	OCIDs          []string
	IDs            []string
	Cursor         string
	Limit          int
}

// ResourcePage is one page of full resources.
type ResourcePage struct {
	Resources  []models.Resource
	NextCursor string
}

// RefPage is one page of lightweight resource refs.
type RefPage struct {
	Refs       []models.ResourceRef
	NextCursor string
}

// Store is the snapshot document store. Implementations are safe for
// concurrent use; writes are serialised per snapshot by the callers
// (single-writer per snapshot, many concurrent readers).
type Store interface {
	CreateSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]models.Snapshot, error)
	// DeleteSnapshot removes the snapshot and cascades to its resources,
	// relations, and blobs.
	DeleteSnapshot(ctx context.Context, id string) error

	PutResources(ctx context.Context, resources []models.Resource) error
	PutRelations(ctx context.Context, relations []models.ResourceRelation) error
	PutBlobs(ctx context.Context, blobs []models.ResourceBlob) error

	CountResources(ctx context.Context, q ResourceQuery) (int, error)
	ListResources(ctx context.Context, q ResourceQuery) (*ResourcePage, error)
	ListResourceRefs(ctx context.Context, q ResourceQuery) (*RefPage, error)
	// GetResourcesByIDs and GetResourcesByOCIDs chunk their IN-lookups below
	// the parameter cap internally.
	GetResourcesByIDs(ctx context.Context, snapshotID string, ids []string) ([]models.Resource, error)
	GetResourcesByOCIDs(ctx context.Context, snapshotID string, ocids []string) ([]models.Resource, error)

	// ListRelations returns the snapshot's relations, optionally restricted
	// to the given types.
	ListRelations(ctx context.Context, snapshotID string, types []models.RelationType) ([]models.ResourceRelation, error)
	// RelationsAmong returns relations whose endpoints both fall inside the
	// given resource id set.
	RelationsAmong(ctx context.Context, snapshotID string, resourceIDs []string) ([]models.ResourceRelation, error)

	// GetBlobs streams the blobs with the given key owned by any of the
	// resource ids, chunked at the parameter cap.
	GetBlobs(ctx context.Context, resourceIDs []string, blobKey string) ([]models.ResourceBlob, error)

	// ResourceCountsByCompartment returns compartmentID -> resourceType -> n
	// for the whole snapshot. Resources without a compartment land under "".
	ResourceCountsByCompartment(ctx context.Context, snapshotID string) (map[string]map[string]int, error)

	Close() error
}

// ChunkIDs splits ids into slices of at most size elements. Used to keep
// every IN-selection below the store's parameter cap.
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = models.MaxInParameters
	}
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
