package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/reachability"
	"github.com/catherinevee/cloudlens/internal/store"
	"github.com/catherinevee/cloudlens/internal/topology"
)

// TestEndToEnd drives the whole pipeline through the facade: ingest export
// files, then audit, topology, reachability, and diff against the snapshot.
func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	files := []string{
		write("vcns.json", `{"data":[
			{"id":"ocid1.vcn.oc1..v1","cidr-block":"10.0.0.0/16","default-route-table-id":"ocid1.routetable.oc1..rt1","display-name":"main"}
		]}`),
		write("subnets.json", `{"data":[
			{"id":"ocid1.subnet.oc1..a","cidr-block":"10.0.1.0/24","vcn-id":"ocid1.vcn.oc1..v1","security-list-ids":["ocid1.securitylist.oc1..sl1"],"display-name":"app"},
			{"id":"ocid1.subnet.oc1..b","cidr-block":"10.0.2.0/24","vcn-id":"ocid1.vcn.oc1..v1","security-list-ids":["ocid1.securitylist.oc1..sl2"],"display-name":"db"}
		]}`),
		write("rts.json", `{"data":[
			{"id":"ocid1.routetable.oc1..rt1","route-rules":[{"destination":"0.0.0.0/0","network-entity-id":"ocid1.internetgateway.oc1..igw1"}]}
		]}`),
		write("igws.json", `{"data":[
			{"id":"ocid1.internetgateway.oc1..igw1","is-enabled":true,"vcn-id":"ocid1.vcn.oc1..v1"}
		]}`),
		write("sls.json", `{"data":[
			{"id":"ocid1.securitylist.oc1..sl1","egress-security-rules":[{"protocol":"all","destination":"0.0.0.0/0"}],"ingress-security-rules":[]},
			{"id":"ocid1.securitylist.oc1..sl2","ingress-security-rules":[{"protocol":"6","source":"0.0.0.0/0","tcp-options":{"destination-port-range":{"min":22,"max":22}}}],"egress-security-rules":[]}
		]}`),
		write("buckets.json", `{"data":[
			{"name":"public-assets","namespace":"acme","public-access-type":"ObjectRead","compartment-id":"ocid1.compartment.oc1..c1"}
		]}`),
	}

	application := New(store.NewMemoryStore(), 0)
	ctx := context.Background()

	snapshot := &models.Snapshot{Name: "e2e", Owner: "tester"}
	report, err := application.Ingest(ctx, snapshot, files)
	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesFailed)
	assert.Equal(t, 8, report.ResourceCount)

	// Audit: the world-open SSH rule and the public bucket surface.
	auditReport, err := application.RunAudit(ctx, snapshot.ID)
	require.NoError(t, err)
	titles := make(map[string]bool)
	for _, group := range auditReport.GroupedFindings {
		titles[group.Title] = true
	}
	assert.True(t, titles["Publicly accessible bucket"])
	assert.True(t, titles["Open ingress on port 22 from 0.0.0.0/0"])

	// Topology: the network view includes the verified Internet node.
	topo, err := application.BuildTopology(ctx, snapshot.ID, "", topology.ViewNetwork)
	require.NoError(t, err)
	hasInternet := false
	for _, node := range topo.Nodes {
		if node.Type == "internetNode" {
			hasInternet = true
		}
	}
	assert.True(t, hasInternet)

	// Reachability: app subnet reaches the internet through the IGW.
	reach, err := application.AnalyzeReachability(ctx, reachability.Request{
		SnapshotID: snapshot.ID, SourceIP: "10.0.1.5", DestinationIP: "internet",
		Protocol: "6", Port: 443,
	})
	require.NoError(t, err)
	assert.Equal(t, reachability.VerdictReachable, reach.Verdict)

	// Diff against itself is empty.
	diffResult, err := application.SnapshotDiff(ctx, snapshot.ID, snapshot.ID)
	require.NoError(t, err)
	assert.Empty(t, diffResult.Added)
	assert.Empty(t, diffResult.Removed)
	assert.Empty(t, diffResult.Changed)

	// Cascade delete leaves nothing behind.
	require.NoError(t, application.DeleteSnapshot(ctx, snapshot.ID))
	snapshots, err := application.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestParseResourcesFacade(t *testing.T) {
	application := New(store.NewMemoryStore(), 0)
	parsed := application.ParseResources([]byte(`{"data":[{"id":"ocid1.vcn.oc1..x","cidr-block":"10.0.0.0/16","default-route-table-id":"rt"}]}`), "")
	require.Len(t, parsed, 1)
	assert.Equal(t, "network/vcn", parsed[0].ResourceType)
}
