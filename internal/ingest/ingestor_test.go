package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	vcns := writeFixture(t, dir, "vcns.json", `{"data":[
		{"id":"ocid1.vcn.oc1..v1","cidr-block":"10.0.0.0/16","default-route-table-id":"ocid1.routetable.oc1..rt1","display-name":"main"}
	]}`)
	subnets := writeFixture(t, dir, "subnets.json", `{"data":[
		{"id":"ocid1.subnet.oc1..s1","cidr-block":"10.0.1.0/24","vcn-id":"ocid1.vcn.oc1..v1","route-table-id":"ocid1.routetable.oc1..rt1","security-list-ids":["ocid1.securitylist.oc1..sl1"]}
	]}`)
	securityLists := writeFixture(t, dir, "seclists.json", `{"data":[
		{"id":"ocid1.securitylist.oc1..sl1","ingress-security-rules":[],"egress-security-rules":[]}
	]}`)
	broken := writeFixture(t, dir, "broken.json", `{definitely not json`)

	s := store.NewMemoryStore()
	ing := NewIngestor(s, 0)
	snapshot := &models.Snapshot{Name: "test", Owner: "tester"}
	report, err := ing.Ingest(context.Background(), snapshot, []string{vcns, subnets, securityLists, broken})
	require.NoError(t, err)

	assert.Equal(t, 4, report.FilesTotal)
	assert.Equal(t, 1, report.FilesFailed)
	assert.Contains(t, report.Errors, broken)
	assert.Equal(t, 3, report.ResourceCount)

	ctx := context.Background()
	count, err := s.CountResources(ctx, store.ResourceQuery{SnapshotID: snapshot.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Relations were derived: subnet-member, routes-via (dangling RT ref is
	// skipped because the route table itself was not exported), secured-by.
	rels, err := s.ListRelations(ctx, snapshot.ID, nil)
	require.NoError(t, err)
	types := make(map[models.RelationType]int)
	for _, rel := range rels {
		types[rel.RelationType]++
	}
	assert.Equal(t, 1, types[models.RelationSubnetMember])
	assert.Equal(t, 1, types[models.RelationSecuredBy])
	assert.Equal(t, 0, types[models.RelationRoutesVia])
}

func TestIngestOCIDUniqueWithinSnapshot(t *testing.T) {
	dir := t.TempDir()
	// The same VCN exported twice must be stored once.
	a := writeFixture(t, dir, "a.json", `{"data":[{"id":"ocid1.vcn.oc1..v1","cidr-block":"10.0.0.0/16","default-route-table-id":"rt"}]}`)
	b := writeFixture(t, dir, "b.json", `{"data":[{"id":"ocid1.vcn.oc1..v1","cidr-block":"10.0.0.0/16","default-route-table-id":"rt"}]}`)

	s := store.NewMemoryStore()
	ing := NewIngestor(s, 0)
	snapshot := &models.Snapshot{Name: "dup", Owner: "tester"}
	report, err := ing.Ingest(context.Background(), snapshot, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ResourceCount)

	page, err := s.ListResources(context.Background(), store.ResourceQuery{SnapshotID: snapshot.ID})
	require.NoError(t, err)
	ocids := make(map[string]int)
	for _, resource := range page.Resources {
		ocids[resource.OCID]++
	}
	for ocid, n := range ocids {
		assert.Equal(t, 1, n, ocid)
	}
}

func TestIngestBlobPersistence(t *testing.T) {
	dir := t.TempDir()
	instances := writeFixture(t, dir, "instances.json", `{"data":[{
		"id":"ocid1.instance.oc1..i1","shape":"VM.Standard3.Flex","availability-domain":"AD-1",
		"metadata":{"user_data":"IyEvYmluL2Jhc2gKcGFzc3dvcmQ9aHVudGVyMg=="}
	}]}`)

	s := store.NewMemoryStore()
	ing := NewIngestor(s, 0)
	snapshot := &models.Snapshot{Name: "blobs", Owner: "tester"}
	report, err := ing.Ingest(context.Background(), snapshot, []string{instances})
	require.NoError(t, err)
	assert.Equal(t, 1, report.BlobCount)

	page, err := s.ListResources(context.Background(), store.ResourceQuery{SnapshotID: snapshot.ID})
	require.NoError(t, err)
	require.Len(t, page.Resources, 1)
	blobs, err := s.GetBlobs(context.Background(), []string{page.Resources[0].ID}, "userData")
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.NotEmpty(t, blobs[0].Content)
}
