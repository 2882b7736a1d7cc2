package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/cloudlens/internal/models"
)

func TestUnwrapEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{"data array", `{"data": [{"id": "a"}, {"id": "b"}]}`, 2},
		{"data items", `{"data": {"items": [{"id": "a"}]}}`, 1},
		{"data object", `{"data": {"id": "a"}}`, 1},
		{"bare array", `[{"id": "a"}, {"id": "b"}, {"id": "c"}]`, 3},
		{"bare object", `{"id": "a"}`, 1},
		{"scalar", `42`, 0},
		{"string", `"hello"`, 0},
		{"invalid json", `{nope`, 0},
		{"array of scalars", `[1, 2, 3]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Unwrap([]byte(tt.input)), tt.count)
		})
	}
}

func TestCamelizeKeys(t *testing.T) {
	input := map[string]interface{}{
		"cidr-block":      "10.0.0.0/16",
		"lifecycle_state": "AVAILABLE",
		"alreadyCamel":    true,
		"nested-map": map[string]interface{}{
			"route-rules": []interface{}{
				map[string]interface{}{"network_entity_id": "ocid1.internetgateway.oc1..x"},
			},
		},
	}
	out, ok := CamelizeKeys(input).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/16", out["cidrBlock"])
	assert.Equal(t, "AVAILABLE", out["lifecycleState"])
	assert.Equal(t, true, out["alreadyCamel"])
	nested := out["nestedMap"].(map[string]interface{})
	rules := nested["routeRules"].([]interface{})
	rule := rules[0].(map[string]interface{})
	assert.Equal(t, "ocid1.internetgateway.oc1..x", rule["networkEntityId"])
}

func TestSanitizeRawDataTruncation(t *testing.T) {
	long := strings.Repeat("x", models.MaxRawDataStringBytes+100)
	input := map[string]interface{}{
		"short": "fine",
		"long":  long,
		"nested": []interface{}{
			map[string]interface{}{"alsoLong": long},
		},
	}
	out := sanitizeMap(input)
	assert.Equal(t, "fine", out["short"])
	assert.Equal(t, fmt.Sprintf("[truncated: %d bytes]", len(long)), out["long"])
	nested := out["nested"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, fmt.Sprintf("[truncated: %d bytes]", len(long)), nested["alsoLong"])

	// Property: every string leaf in sanitised output is within bounds.
	var checkLeaves func(value interface{})
	checkLeaves = func(value interface{}) {
		switch typed := value.(type) {
		case string:
			assert.LessOrEqual(t, len(typed), models.MaxRawDataStringBytes)
		case map[string]interface{}:
			for _, inner := range typed {
				checkLeaves(inner)
			}
		case []interface{}:
			for _, inner := range typed {
				checkLeaves(inner)
			}
		}
	}
	checkLeaves(out)
}

// detectionFixtures holds one representative CLI export item per supported
// family. Each must resolve to exactly one type; this table is the frozen
// detection contract.
var detectionFixtures = []struct {
	resourceType string
	fixture      string
}{
	{"compute/instance", `{"id":"ocid1.instance.oc1..a","shape":"VM.Standard3.Flex","availability-domain":"AD-1","display-name":"web-1","lifecycle-state":"RUNNING"}`},
	{"compute/image", `{"id":"ocid1.image.oc1..a","operating-system":"Oracle Linux","operating-system-version":"8"}`},
	{"compute/vnic-attachment", `{"id":"ocid1.vnicattachment.oc1..a","vnic-id":"ocid1.vnic.oc1..v","instance-id":"ocid1.instance.oc1..a","subnet-id":"ocid1.subnet.oc1..s"}`},
	{"compute/volume-attachment", `{"id":"ocid1.volumeattachment.oc1..a","volume-id":"ocid1.volume.oc1..v","instance-id":"ocid1.instance.oc1..a"}`},
	{"network/vcn", `{"id":"ocid1.vcn.oc1..a","cidr-block":"10.0.0.0/16","default-route-table-id":"ocid1.routetable.oc1..rt"}`},
	{"network/subnet", `{"id":"ocid1.subnet.oc1..a","cidr-block":"10.0.1.0/24","vcn-id":"ocid1.vcn.oc1..a","route-table-id":"ocid1.routetable.oc1..rt"}`},
	{"network/route-table", `{"id":"ocid1.routetable.oc1..a","route-rules":[{"destination":"0.0.0.0/0","network-entity-id":"ocid1.internetgateway.oc1..igw"}]}`},
	{"network/security-list", `{"id":"ocid1.securitylist.oc1..a","ingress-security-rules":[],"egress-security-rules":[]}`},
	{"network/internet-gateway", `{"id":"ocid1.internetgateway.oc1..a","is-enabled":true,"vcn-id":"ocid1.vcn.oc1..a"}`},
	{"network/nat-gateway", `{"id":"ocid1.natgateway.oc1..a","nat-ip":"192.0.2.10","block-traffic":false,"vcn-id":"ocid1.vcn.oc1..a"}`},
	{"network/service-gateway", `{"id":"ocid1.servicegateway.oc1..a","services":[{"service-name":"All Services"}],"vcn-id":"ocid1.vcn.oc1..a"}`},
	{"network/drg-attachment", `{"id":"ocid1.drgattachment.oc1..a","drg-id":"ocid1.drg.oc1..d","vcn-id":"ocid1.vcn.oc1..a"}`},
	{"network/drg", `{"id":"ocid1.drg.oc1..a","default-drg-route-tables":{"vcn":"ocid1.drgroutetable.oc1..x"}}`},
	{"network/local-peering-gateway", `{"id":"ocid1.localpeeringgateway.oc1..a","peering-status":"PEERED","vcn-id":"ocid1.vcn.oc1..a","peer-id":"ocid1.localpeeringgateway.oc1..b"}`},
	{"network/load-balancer", `{"id":"ocid1.loadbalancer.oc1..a","shape-name":"flexible","is-private":false,"backend-sets":{},"listeners":{}}`},
	{"database/db-system", `{"id":"ocid1.dbsystem.oc1..a","shape":"VM.Standard2.2","database-edition":"ENTERPRISE_EDITION","availability-domain":"AD-1"}`},
	{"database/autonomous-database", `{"id":"ocid1.autonomousdatabase.oc1..a","db-workload":"OLTP","cpu-core-count":2,"data-storage-size-in-tbs":1}`},
	{"storage/bucket", `{"name":"logs","namespace":"tenancyns","public-access-type":"NoPublicAccess","compartment-id":"ocid1.compartment.oc1..c"}`},
	{"storage/boot-volume", `{"id":"ocid1.bootvolume.oc1..a","size-in-gbs":50,"image-id":"ocid1.image.oc1..i"}`},
	{"storage/volume", `{"id":"ocid1.volume.oc1..a","size-in-gbs":100,"vpus-per-gb":10}`},
	{"container/cluster", `{"id":"ocid1.cluster.oc1..a","kubernetes-version":"v1.29.1","vcn-id":"ocid1.vcn.oc1..a"}`},
	{"container/node-pool", `{"id":"ocid1.nodepool.oc1..a","node-shape":"VM.Standard3.Flex","cluster-id":"ocid1.cluster.oc1..a"}`},
	{"container/container-instance", `{"id":"ocid1.computecontainerinstance.oc1..a","shape":"CI.Standard.E4.Flex","container-count":2,"containers":[{"container-id":"x"}]}`},
	{"serverless/function", `{"id":"ocid1.fnfunc.oc1..a","application-id":"ocid1.fnapp.oc1..app","image":"phx.ocir.io/t/fn:1"}`},
	{"serverless/application", `{"id":"ocid1.fnapp.oc1..a","subnet-ids":["ocid1.subnet.oc1..s"],"syslog-url":""}`},
	{"serverless/api-gateway", `{"id":"ocid1.apigateway.oc1..a","endpoint-type":"PUBLIC","subnet-id":"ocid1.subnet.oc1..s"}`},
	{"iam/compartment", `{"id":"ocid1.compartment.oc1..a","name":"prod","description":"production","is-accessible":true,"compartment-id":"ocid1.tenancy.oc1..t"}`},
	{"iam/user", `{"id":"ocid1.user.oc1..a","name":"alice","email":"alice@example.com","description":"dev"}`},
	{"iam/dynamic-group", `{"id":"ocid1.dynamicgroup.oc1..a","matching-rule":"instance.compartment.id = 'x'","description":"dg"}`},
	{"iam/policy", `{"id":"ocid1.policy.oc1..a","statements":["Allow group admins to manage all-resources in tenancy"],"description":"p"}`},
	{"security/vault", `{"id":"ocid1.vault.oc1..a","vault-type":"DEFAULT","management-endpoint":"https://x"}`},
	{"security/key", `{"id":"ocid1.key.oc1..a","current-key-version":"1","key-shape":{"algorithm":"AES"}}`},
	{"observability/alarm", `{"id":"ocid1.alarm.oc1..a","query":"CpuUtilization[1m].mean() > 80","namespace":"oci_computeagent","severity":"CRITICAL"}`},
	{"observability/log-group", `{"id":"ocid1.loggroup.oc1..a","is-quick-start":false,"description":"lg"}`},
	{"dns/zone", `{"id":"ocid1.dnszone.oc1..a","zone-type":"PRIMARY","name":"example.com"}`},
	{"iam/group", `{"id":"ocid1.group.oc1..a","name":"admins","description":"administrators"}`},
}

func TestDetectionContract(t *testing.T) {
	for _, tt := range detectionFixtures {
		t.Run(tt.resourceType, func(t *testing.T) {
			var item map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.fixture), &item))
			camelised := CamelizeKeys(item).(map[string]interface{})
			assert.Equal(t, tt.resourceType, DetectResourceType(camelised))
			// Detection is a function: re-running yields the same answer.
			assert.Equal(t, tt.resourceType, DetectResourceType(camelised))
		})
	}
}

func TestOCIDPrefixFallback(t *testing.T) {
	// No field signature matches; the OCID prefix decides.
	parsed := ParseResources([]byte(`{"data":[{"id":"ocid1.natgateway.oc1..x","display-name":"nat"}]}`), "")
	require.Len(t, parsed, 1)
	assert.Equal(t, "network/nat-gateway", parsed[0].ResourceType)
}

func TestGenericFallback(t *testing.T) {
	parsed := ParseResources([]byte(`{"data":[{"id":"ocid1.waasaccessrule.oc1..x","display-name":"edge"}]}`), "")
	require.Len(t, parsed, 1)
	assert.Equal(t, "generic/waasaccessrule", parsed[0].ResourceType)
	assert.Equal(t, "ocid1.waasaccessrule.oc1..x", parsed[0].OCID)

	// No id at all: a stable synthetic OCID is derived.
	first := ParseResources([]byte(`{"data":[{"name":"mystery","namespace":"ns1"}]}`), "")
	second := ParseResources([]byte(`{"data":[{"name":"mystery","namespace":"ns1"}]}`), "")
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, strings.HasPrefix(first[0].OCID, "synthetic."))
	assert.Equal(t, first[0].OCID, second[0].OCID)
}

func TestParseResourcesEnvelopeFields(t *testing.T) {
	raw := `{"data":[{
		"id": "ocid1.subnet.oc1..a",
		"display-name": "app-subnet",
		"compartment-id": "ocid1.compartment.oc1..c",
		"lifecycle-state": "AVAILABLE",
		"availability-domain": "AD-1",
		"time-created": "2024-03-01T12:00:00Z",
		"cidr-block": "10.0.1.0/24",
		"vcn-id": "ocid1.vcn.oc1..v",
		"route-table-id": "ocid1.routetable.oc1..rt",
		"freeform-tags": {"env": "prod"},
		"defined-tags": {"ops": {"owner": "team-a"}}
	}]}`
	parsed := ParseResources([]byte(raw), "")
	require.Len(t, parsed, 1)
	record := parsed[0]
	assert.Equal(t, "network/subnet", record.ResourceType)
	assert.Equal(t, "app-subnet", record.DisplayName)
	assert.Equal(t, "ocid1.compartment.oc1..c", record.CompartmentID)
	assert.Equal(t, "AVAILABLE", record.LifecycleState)
	assert.Equal(t, "AD-1", record.AvailabilityDomain)
	require.NotNil(t, record.TimeCreated)
	assert.Equal(t, 2024, record.TimeCreated.Year())
	assert.Equal(t, "prod", record.FreeformTags["env"])
	assert.Equal(t, "10.0.1.0/24", record.RawData["cidrBlock"])
}

func TestInstanceBlobExtraction(t *testing.T) {
	userData := strings.Repeat("#!/bin/bash\n", 200)
	raw := fmt.Sprintf(`{"data":[{
		"id": "ocid1.instance.oc1..a",
		"shape": "VM.Standard3.Flex",
		"availability-domain": "AD-1",
		"metadata": {"user_data": %q, "ssh_authorized_keys": "ssh-rsa AAAA"}
	}]}`, userData)
	parsed := ParseResources([]byte(raw), "")
	require.Len(t, parsed, 1)
	record := parsed[0]
	assert.Equal(t, userData, record.Blobs["userData"])
	assert.Equal(t, "ssh-rsa AAAA", record.Blobs["sshAuthorizedKeys"])

	// RawData keeps only a marker, not the payload.
	metadata := record.RawData["metadata"].(map[string]interface{})
	assert.NotEqual(t, userData, metadata["userData"])
	assert.Contains(t, metadata["userData"], "[blob:")
}

func TestParseResourcesExplicitType(t *testing.T) {
	parsed := ParseResources([]byte(`[{"id":"ocid1.instance.oc1..a","anything":"goes"}]`), "compute/instance")
	require.Len(t, parsed, 1)
	assert.Equal(t, "compute/instance", parsed[0].ResourceType)
}
