package topology

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/store"
)

const snapID = "snap-1"

func seed(t *testing.T, resources []models.Resource, relations []models.ResourceRelation) store.Store {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateSnapshot(ctx, &models.Snapshot{ID: snapID, Name: "topo", Owner: "tester"}))
	require.NoError(t, s.PutResources(ctx, resources))
	require.NoError(t, s.PutRelations(ctx, relations))
	return s
}

func topoResource(id, ocid, resourceType, name, compartmentID string, raw map[string]interface{}) models.Resource {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return models.Resource{
		ID: id, SnapshotID: snapID, OCID: ocid, ResourceType: resourceType,
		DisplayName: name, CompartmentID: compartmentID, RawData: raw,
	}
}

func relation(from, to string, relationType models.RelationType) models.ResourceRelation {
	return models.ResourceRelation{
		ID: uuid.New().String(), SnapshotID: snapID,
		FromResourceID: from, ToResourceID: to, RelationType: relationType,
	}
}

// assertEdgeInvariant: no edge references a node id absent from nodes.
func assertEdgeInvariant(t *testing.T, result *Result) {
	t.Helper()
	nodeIDs := make(map[string]bool, len(result.Nodes))
	for _, node := range result.Nodes {
		nodeIDs[node.ID] = true
	}
	for _, edge := range result.Edges {
		assert.True(t, nodeIDs[edge.Source], "edge %s source %s", edge.ID, edge.Source)
		assert.True(t, nodeIDs[edge.Target], "edge %s target %s", edge.ID, edge.Target)
	}
}

func networkFixture() ([]models.Resource, []models.ResourceRelation) {
	resources := []models.Resource{
		topoResource("r-vcn", "ocid1.vcn.oc1..v1", "network/vcn", "main-vcn", "c-1", map[string]interface{}{
			"cidrBlock": "10.0.0.0/16", "defaultRouteTableId": "ocid1.routetable.oc1..rt1",
		}),
		topoResource("r-sub", "ocid1.subnet.oc1..s1", "network/subnet", "app-subnet", "c-1", map[string]interface{}{
			"cidrBlock": "10.0.1.0/24", "vcnId": "ocid1.vcn.oc1..v1",
		}),
		topoResource("r-rt", "ocid1.routetable.oc1..rt1", "network/route-table", "rt", "c-1", map[string]interface{}{
			"routeRules": []interface{}{
				map[string]interface{}{"destination": "0.0.0.0/0", "networkEntityId": "ocid1.internetgateway.oc1..igw1"},
			},
		}),
		topoResource("r-igw", "ocid1.internetgateway.oc1..igw1", "network/internet-gateway", "igw", "c-1", map[string]interface{}{
			"isEnabled": true, "vcnId": "ocid1.vcn.oc1..v1",
		}),
		topoResource("r-inst", "ocid1.instance.oc1..i1", "compute/instance", "web-1", "c-1", map[string]interface{}{
			"shape": "VM.Standard3.Flex",
		}),
	}
	relations := []models.ResourceRelation{
		relation("r-sub", "r-vcn", models.RelationSubnetMember),
		relation("r-sub", "r-rt", models.RelationRoutesVia),
		relation("r-inst", "r-sub", models.RelationSubnetMember),
		relation("r-igw", "r-vcn", models.RelationGatewayFor),
	}
	return resources, relations
}

func TestNetworkView(t *testing.T) {
	resources, relations := networkFixture()
	s := seed(t, resources, relations)
	result, err := NewBuilder(s).Build(context.Background(), snapID, "", ViewNetwork)
	require.NoError(t, err)

	assert.False(t, result.Truncated)
	assert.Equal(t, 5, result.TotalCount)

	byID := make(map[string]Node)
	for _, node := range result.Nodes {
		byID[node.ID] = node
	}
	// Subnet nests under its VCN; the gateway too.
	assert.Equal(t, "r-vcn", byID["r-sub"].ParentID)
	assert.Equal(t, "r-vcn", byID["r-igw"].ParentID)
	assert.Equal(t, "vcnNode", byID["r-vcn"].Type)
	assert.Equal(t, "subnetNode", byID["r-sub"].Type)
	assert.Equal(t, "instanceNode", byID["r-inst"].Type)
	// The instance is placed via its subnet-member relation.
	assert.Equal(t, "r-sub", byID["r-inst"].ParentID)

	// The routed, enabled IGW produces a verified Internet node.
	internet, exists := byID[internetNodeID]
	require.True(t, exists)
	assert.Equal(t, "internetNode", internet.Type)
	assert.Empty(t, internet.OCID)

	// routes-via edges render animated.
	foundAnimated := false
	for _, edge := range result.Edges {
		if edge.RelationType == models.RelationRoutesVia && edge.Source == "r-sub" {
			foundAnimated = true
			assert.True(t, edge.Animated)
		}
	}
	assert.True(t, foundAnimated)
	assertEdgeInvariant(t, result)
}

func TestNetworkViewNoInternetWithoutVerifiedExposure(t *testing.T) {
	resources, relations := networkFixture()
	// Disable the IGW: the route still points at it, but exposure is no
	// longer verified.
	resources[3].RawData["isEnabled"] = false
	s := seed(t, resources, relations)
	result, err := NewBuilder(s).Build(context.Background(), snapID, "", ViewNetwork)
	require.NoError(t, err)
	for _, node := range result.Nodes {
		assert.NotEqual(t, internetNodeID, node.ID)
	}
}

func TestNetworkViewInstanceCollapse(t *testing.T) {
	const subnetCount = 200
	const instanceCount = 25000

	resources := []models.Resource{
		topoResource("r-vcn", "ocid1.vcn.oc1..v1", "network/vcn", "vcn", "c-1", map[string]interface{}{
			"cidrBlock": "10.0.0.0/8",
		}),
	}
	var relations []models.ResourceRelation
	for i := 0; i < subnetCount; i++ {
		subnetID := fmt.Sprintf("r-sub-%03d", i)
		resources = append(resources, topoResource(subnetID,
			fmt.Sprintf("ocid1.subnet.oc1..s%03d", i), "network/subnet",
			fmt.Sprintf("subnet-%03d", i), "c-1", map[string]interface{}{
				"cidrBlock": fmt.Sprintf("10.%d.%d.0/24", i/250, i%250),
				"vcnId":     "ocid1.vcn.oc1..v1",
			}))
		relations = append(relations, relation(subnetID, "r-vcn", models.RelationSubnetMember))
	}
	for i := 0; i < instanceCount; i++ {
		instanceID := fmt.Sprintf("r-inst-%05d", i)
		resources = append(resources, topoResource(instanceID,
			fmt.Sprintf("ocid1.instance.oc1..i%05d", i), "compute/instance",
			fmt.Sprintf("inst-%05d", i), "c-1", nil))
		subnetID := fmt.Sprintf("r-sub-%03d", i%subnetCount)
		relations = append(relations, relation(instanceID, subnetID, models.RelationSubnetMember))
	}

	s := seed(t, resources, relations)
	result, err := NewBuilder(s).Build(context.Background(), snapID, "", ViewNetwork)
	require.NoError(t, err)

	assert.False(t, result.Truncated)
	assert.Equal(t, subnetCount+instanceCount+1, result.TotalCount)

	subnetNodes := 0
	summarySum := 0
	summaryNodes := 0
	for _, node := range result.Nodes {
		switch node.Type {
		case "subnetNode":
			subnetNodes++
		case "instanceSummaryNode":
			summaryNodes++
			count, ok := node.Metadata["instanceCount"].(int)
			require.True(t, ok)
			summarySum += count
		case "instanceNode":
			t.Fatalf("individual instance node %s present despite collapse", node.ID)
		}
	}
	assert.Equal(t, subnetCount, subnetNodes)
	assert.Equal(t, subnetCount, summaryNodes)
	assert.Equal(t, instanceCount, summarySum)
}

func TestCompartmentView(t *testing.T) {
	resources := []models.Resource{
		topoResource("r-root", "ocid1.compartment.oc1..root", "iam/compartment", "root", "ocid1.tenancy.oc1..t", nil),
		topoResource("r-app", "ocid1.compartment.oc1..app", "iam/compartment", "app", "ocid1.compartment.oc1..root", nil),
		topoResource("r-net", "ocid1.compartment.oc1..net", "iam/compartment", "net", "ocid1.compartment.oc1..root", nil),
		topoResource("r-inst", "ocid1.instance.oc1..i1", "compute/instance", "web", "ocid1.compartment.oc1..app", nil),
		topoResource("r-sub", "ocid1.subnet.oc1..s1", "network/subnet", "sn", "ocid1.compartment.oc1..net", nil),
	}
	relations := []models.ResourceRelation{
		relation("r-inst", "r-sub", models.RelationSubnetMember),
	}
	s := seed(t, resources, relations)
	result, err := NewBuilder(s).Build(context.Background(), snapID, "", ViewCompartment)
	require.NoError(t, err)

	// Only compartment nodes appear.
	assert.Len(t, result.Nodes, 3)
	byID := make(map[string]Node)
	for _, node := range result.Nodes {
		assert.Equal(t, "compartmentNode", node.Type)
		byID[node.ID] = node
	}
	appNode := byID["r-app"]
	counts := appNode.Metadata["resourceCounts"].(map[string]interface{})
	assert.Equal(t, 1, counts["compute/instance"])
	assert.Equal(t, 1, appNode.Metadata["totalResources"])

	// One hierarchy edge per child plus one aggregated cross-compartment
	// dependency edge (instance in app -> subnet in net).
	hierarchy := 0
	var depEdge *Edge
	for i := range result.Edges {
		edge := result.Edges[i]
		if edge.RelationType == models.RelationContains && edge.Label == "" {
			hierarchy++
		} else if edge.Label != "" {
			depEdge = &result.Edges[i]
		}
	}
	assert.Equal(t, 2, hierarchy)
	require.NotNil(t, depEdge)
	assert.Equal(t, "1 deps (subnet-member)", depEdge.Label)
	assertEdgeInvariant(t, result)
}

func TestDependencyViewDropsHierarchyEdges(t *testing.T) {
	resources := []models.Resource{
		topoResource("r-inst", "ocid1.instance.oc1..i1", "compute/instance", "web", "c-1", nil),
		topoResource("r-vol", "ocid1.volume.oc1..v1", "storage/volume", "data", "c-1", nil),
		topoResource("r-sub", "ocid1.subnet.oc1..s1", "network/subnet", "sn", "c-1", nil),
		topoResource("r-comp", "ocid1.compartment.oc1..c1", "iam/compartment", "c", "", nil),
	}
	relations := []models.ResourceRelation{
		relation("r-inst", "r-vol", models.RelationVolumeAttached),
		relation("r-comp", "r-inst", models.RelationContains),
	}
	s := seed(t, resources, relations)
	result, err := NewBuilder(s).Build(context.Background(), snapID, "", ViewDependency)
	require.NoError(t, err)

	// Subnets and compartments are outside the workload whitelist.
	for _, node := range result.Nodes {
		assert.NotEqual(t, "r-sub", node.ID)
		assert.NotEqual(t, "r-comp", node.ID)
	}
	require.Len(t, result.Edges, 1)
	assert.Equal(t, models.RelationVolumeAttached, result.Edges[0].RelationType)
	assertEdgeInvariant(t, result)
}

func TestExposureView(t *testing.T) {
	resources := []models.Resource{
		topoResource("r-vcn", "ocid1.vcn.oc1..v1", "network/vcn", "vcn", "c-1", map[string]interface{}{
			"cidrBlock": "10.0.0.0/16", "defaultRouteTableId": "ocid1.routetable.oc1..rt1",
		}),
		topoResource("r-rt", "ocid1.routetable.oc1..rt1", "network/route-table", "rt", "c-1", map[string]interface{}{
			"routeRules": []interface{}{
				map[string]interface{}{"destination": "0.0.0.0/0", "networkEntityId": "ocid1.internetgateway.oc1..igw1"},
			},
		}),
		topoResource("r-igw", "ocid1.internetgateway.oc1..igw1", "network/internet-gateway", "igw", "c-1", map[string]interface{}{
			"isEnabled": true, "vcnId": "ocid1.vcn.oc1..v1",
		}),
		topoResource("r-pub", "ocid1.subnet.oc1..pub", "network/subnet", "public", "c-1", map[string]interface{}{
			"cidrBlock": "10.0.1.0/24", "vcnId": "ocid1.vcn.oc1..v1",
		}),
		topoResource("r-priv", "ocid1.subnet.oc1..priv", "network/subnet", "private", "c-1", map[string]interface{}{
			"cidrBlock": "10.0.2.0/24", "vcnId": "ocid1.vcn.oc1..v1",
			"routeTableId": "ocid1.routetable.oc1..rtpriv",
		}),
		topoResource("r-rtpriv", "ocid1.routetable.oc1..rtpriv", "network/route-table", "rt-priv", "c-1", map[string]interface{}{
			"routeRules": []interface{}{},
		}),
		topoResource("r-inst", "ocid1.instance.oc1..i1", "compute/instance", "web", "c-1", nil),
		topoResource("r-db", "ocid1.dbsystem.oc1..d1", "database/db-system", "db", "c-1", map[string]interface{}{
			"subnetId": "ocid1.subnet.oc1..pub",
		}),
		topoResource("r-lb", "ocid1.loadbalancer.oc1..lb1", "network/load-balancer", "lb", "c-1", map[string]interface{}{
			"isPrivate": false,
		}),
	}
	relations := []models.ResourceRelation{
		relation("r-inst", "r-pub", models.RelationSubnetMember),
		relation("r-pub", "r-vcn", models.RelationSubnetMember),
	}
	s := seed(t, resources, relations)
	result, err := NewBuilder(s).Build(context.Background(), snapID, "", ViewExposure)
	require.NoError(t, err)

	byID := make(map[string]Node)
	for _, node := range result.Nodes {
		byID[node.ID] = node
	}
	// The default-routed subnet is exposed; the private one is not.
	assert.Contains(t, byID, "r-pub")
	assert.NotContains(t, byID, "r-priv")
	// Workloads inside the exposed subnet appear, parented to it.
	assert.Contains(t, byID, "r-inst")
	assert.Equal(t, "r-pub", byID["r-inst"].ParentID)
	assert.Contains(t, byID, "r-db")
	// The public LB and the Internet node appear.
	assert.Contains(t, byID, "r-lb")
	assert.Contains(t, byID, internetNodeID)
	assertEdgeInvariant(t, result)
}

func TestCompartmentScopedBuild(t *testing.T) {
	resources := []models.Resource{
		topoResource("r-root", "ocid1.compartment.oc1..root", "iam/compartment", "root", "", nil),
		topoResource("r-child", "ocid1.compartment.oc1..child", "iam/compartment", "child", "ocid1.compartment.oc1..root", nil),
		topoResource("r-vcn1", "ocid1.vcn.oc1..v1", "network/vcn", "in-child", "ocid1.compartment.oc1..child", map[string]interface{}{}),
		topoResource("r-vcn2", "ocid1.vcn.oc1..v2", "network/vcn", "elsewhere", "ocid1.compartment.oc1..other", map[string]interface{}{}),
	}
	s := seed(t, resources, nil)

	// Scoping to root picks up the child compartment's resources via the
	// descendant BFS.
	result, err := NewBuilder(s).Build(context.Background(), snapID, "ocid1.compartment.oc1..root", ViewNetwork)
	require.NoError(t, err)
	var ids []string
	for _, node := range result.Nodes {
		ids = append(ids, node.ID)
	}
	assert.Contains(t, ids, "r-vcn1")
	assert.NotContains(t, ids, "r-vcn2")
}
