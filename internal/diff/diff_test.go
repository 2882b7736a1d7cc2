package diff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

func seedTwo(t *testing.T, a, b []models.Resource) store.Store {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateSnapshot(ctx, &models.Snapshot{ID: "snap-a", Name: "a", Owner: "tester"}))
	require.NoError(t, s.CreateSnapshot(ctx, &models.Snapshot{ID: "snap-b", Name: "b", Owner: "tester"}))
	require.NoError(t, s.PutResources(ctx, a))
	require.NoError(t, s.PutResources(ctx, b))
	return s
}

func diffResource(id, snapshotID, ocid, state string, raw map[string]interface{}) models.Resource {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return models.Resource{
		ID: id, SnapshotID: snapshotID, OCID: ocid, ResourceType: "compute/instance",
		LifecycleState: state, RawData: raw,
	}
}

func TestDiffAddedRemovedChanged(t *testing.T) {
	a := []models.Resource{
		diffResource("a-1", "snap-a", "ocid1.instance.oc1..keep", "RUNNING", map[string]interface{}{
			"shape": "VM.Standard3.Flex",
		}),
		diffResource("a-2", "snap-a", "ocid1.instance.oc1..gone", "RUNNING", nil),
	}
	b := []models.Resource{
		diffResource("b-1", "snap-b", "ocid1.instance.oc1..keep", "STOPPED", map[string]interface{}{
			"shape": "VM.Standard.E4.Flex",
		}),
		diffResource("b-2", "snap-b", "ocid1.instance.oc1..new", "RUNNING", nil),
	}
	s := seedTwo(t, a, b)

	result, err := NewDiffer(s).Diff(context.Background(), "snap-a", "snap-b")
	require.NoError(t, err)

	require.Len(t, result.Added, 1)
	assert.Equal(t, "ocid1.instance.oc1..new", result.Added[0].OCID)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, "ocid1.instance.oc1..gone", result.Removed[0].OCID)

	require.Len(t, result.Changed, 1)
	changed := result.Changed[0]
	assert.Equal(t, "ocid1.instance.oc1..keep", changed.OCID)
	fields := make(map[string]Change, len(changed.Changes))
	for _, change := range changed.Changes {
		fields[change.Field] = change
	}
	require.Contains(t, fields, "lifecycleState")
	assert.Equal(t, "RUNNING", fields["lifecycleState"].OldValue)
	assert.Equal(t, "STOPPED", fields["lifecycleState"].NewValue)
	require.Contains(t, fields, "rawData.shape")
	assert.Equal(t, "VM.Standard3.Flex", fields["rawData.shape"].OldValue)
}

func TestDiffNestedAndArrayLeaves(t *testing.T) {
	a := []models.Resource{
		diffResource("a-1", "snap-a", "ocid1.subnet.oc1..s", "AVAILABLE", map[string]interface{}{
			"options":         map[string]interface{}{"dnsLabel": "app"},
			"securityListIds": []interface{}{"sl-1"},
		}),
	}
	b := []models.Resource{
		diffResource("b-1", "snap-b", "ocid1.subnet.oc1..s", "AVAILABLE", map[string]interface{}{
			"options":         map[string]interface{}{"dnsLabel": "web"},
			"securityListIds": []interface{}{"sl-1", "sl-2"},
		}),
	}
	s := seedTwo(t, a, b)
	result, err := NewDiffer(s).Diff(context.Background(), "snap-a", "snap-b")
	require.NoError(t, err)

	require.Len(t, result.Changed, 1)
	fields := make(map[string]bool)
	for _, change := range result.Changed[0].Changes {
		fields[change.Field] = true
	}
	// Nested maps recurse; arrays compare wholesale.
	assert.True(t, fields["rawData.options.dnsLabel"])
	assert.True(t, fields["rawData.securityListIds"])
}

func TestDiffIdentitySnapshotsEmpty(t *testing.T) {
	a := []models.Resource{
		diffResource("a-1", "snap-a", "ocid1.instance.oc1..x", "RUNNING", map[string]interface{}{
			"shape": "VM.Standard3.Flex",
		}),
	}
	s := seedTwo(t, a, nil)

	result, err := NewDiffer(s).Diff(context.Background(), "snap-a", "snap-a")
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Changed)
}
