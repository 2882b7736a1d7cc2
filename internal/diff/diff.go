// Package diff computes the set difference between two snapshots: resources
// added, removed, and changed, with per-field change records over lifecycle
// state, tags, and raw-data leaves.
package diff

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/metrics"
	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

// Change is one field-level difference on a resource present in both
// snapshots.
type Change struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"oldValue"`
	NewValue interface{} `json:"newValue"`
}

// ChangedResource carries a resource's change set.
type ChangedResource struct {
	OCID         string   `json:"ocid"`
	ResourceType string   `json:"resourceType"`
	DisplayName  string   `json:"displayName,omitempty"`
	Changes      []Change `json:"changes"`
}

// Result is the diff output. Added and removed are keyed by OCID.
type Result struct {
	Added   []models.ResourceRef `json:"added"`
	Removed []models.ResourceRef `json:"removed"`
	Changed []ChangedResource    `json:"changed"`
}

// Differ compares two snapshots held in the same store.
type Differ struct {
	store store.Store
	log   logger.Logger
}

// NewDiffer creates a snapshot differ.
func NewDiffer(s store.Store) *Differ {
	return &Differ{store: s, log: logger.New("diff")}
}

// Diff computes added (in B, not A), removed (in A, not B), and changed
// resources by OCID.
func (d *Differ) Diff(ctx context.Context, snapshotA, snapshotB string) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("diff").Observe(time.Since(start).Seconds())
	}()

	before, err := d.loadByOCID(ctx, snapshotA)
	if err != nil {
		return nil, err
	}
	after, err := d.loadByOCID(ctx, snapshotB)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Added:   []models.ResourceRef{},
		Removed: []models.ResourceRef{},
		Changed: []ChangedResource{},
	}

	for ocid, resource := range after {
		if _, existed := before[ocid]; !existed {
			result.Added = append(result.Added, resource.Ref())
		}
	}
	for ocid, resource := range before {
		if _, exists := after[ocid]; !exists {
			result.Removed = append(result.Removed, resource.Ref())
		}
	}
	for ocid, old := range before {
		current, exists := after[ocid]
		if !exists {
			continue
		}
		changes := compareResources(old, current)
		if len(changes) > 0 {
			result.Changed = append(result.Changed, ChangedResource{
				OCID:         ocid,
				ResourceType: current.ResourceType,
				DisplayName:  current.DisplayName,
				Changes:      changes,
			})
		}
	}

	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].OCID < result.Added[j].OCID })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].OCID < result.Removed[j].OCID })
	sort.Slice(result.Changed, func(i, j int) bool { return result.Changed[i].OCID < result.Changed[j].OCID })
	return result, nil
}

func (d *Differ) loadByOCID(ctx context.Context, snapshotID string) (map[string]*models.Resource, error) {
	out := make(map[string]*models.Resource)
	cursor := ""
	for {
		page, err := d.store.ListResources(ctx, store.ResourceQuery{
			SnapshotID: snapshotID,
			Cursor:     cursor,
			Limit:      1000,
		})
		if err != nil {
			return nil, err
		}
		for i := range page.Resources {
			resource := page.Resources[i]
			out[resource.OCID] = &resource
		}
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// compareResources inspects the selected fields: lifecycleState, the tag
// maps, and raw-data leaves.
func compareResources(old, current *models.Resource) []Change {
	var changes []Change

	if old.LifecycleState != current.LifecycleState {
		changes = append(changes, Change{
			Field: "lifecycleState", OldValue: old.LifecycleState, NewValue: current.LifecycleState,
		})
	}
	if !reflect.DeepEqual(old.FreeformTags, current.FreeformTags) {
		changes = append(changes, Change{
			Field: "freeformTags", OldValue: old.FreeformTags, NewValue: current.FreeformTags,
		})
	}
	if !reflect.DeepEqual(old.DefinedTags, current.DefinedTags) {
		changes = append(changes, Change{
			Field: "definedTags", OldValue: old.DefinedTags, NewValue: current.DefinedTags,
		})
	}

	changes = append(changes, compareLeaves("rawData", old.RawData, current.RawData)...)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// compareLeaves walks two maps in parallel, descending into nested maps and
// treating primitives and arrays as leaves compared wholesale. Paths are
// dotted.
func compareLeaves(prefix string, old, current map[string]interface{}) []Change {
	var changes []Change

	keys := make(map[string]bool, len(old)+len(current))
	for key := range old {
		keys[key] = true
	}
	for key := range current {
		keys[key] = true
	}
	ordered := make([]string, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	for _, key := range ordered {
		path := fmt.Sprintf("%s.%s", prefix, key)
		oldValue, hadOld := old[key]
		newValue, hasNew := current[key]

		switch {
		case !hadOld:
			changes = append(changes, Change{Field: path, OldValue: nil, NewValue: newValue})
		case !hasNew:
			changes = append(changes, Change{Field: path, OldValue: oldValue, NewValue: nil})
		default:
			oldMap, oldIsMap := oldValue.(map[string]interface{})
			newMap, newIsMap := newValue.(map[string]interface{})
			if oldIsMap && newIsMap {
				changes = append(changes, compareLeaves(path, oldMap, newMap)...)
				continue
			}
			if !reflect.DeepEqual(oldValue, newValue) {
				changes = append(changes, Change{Field: path, OldValue: oldValue, NewValue: newValue})
			}
		}
	}
	return changes
}
