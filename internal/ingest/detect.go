package ingest

import (
	"strings"
)

// signature is one field-signature check in the auto-detection table. The
// table order is fixed and part of the public contract: the first matching
// signature wins.
type signature struct {
	resourceType string
	match        func(item map[string]interface{}) bool
}

// signatures holds the field-signature checks, grouped by family. Checks are
// conjunctions of required keys plus negative guards resolving overlaps
// (a DB system and an instance both carry "shape"; the DB check requires
// "databaseEdition", the instance check excludes it).
var signatures = []signature{
	// compute
	{"compute/instance", func(item map[string]interface{}) bool {
		return hasKey(item, "shape") && hasKey(item, "availabilityDomain") &&
			!hasKey(item, "databaseEdition") && !hasKey(item, "dbVersion") &&
			!hasKey(item, "containers") && !hasKey(item, "containerCount") &&
			!hasKey(item, "nodeShape") && !hasKey(item, "sizeInGBs")
	}},
	{"compute/image", func(item map[string]interface{}) bool {
		return hasKey(item, "operatingSystem") && hasKey(item, "operatingSystemVersion")
	}},
	{"compute/vnic-attachment", func(item map[string]interface{}) bool {
		return hasKey(item, "vnicId") && hasKey(item, "instanceId")
	}},
	{"compute/volume-attachment", func(item map[string]interface{}) bool {
		return hasKey(item, "volumeId") && hasKey(item, "instanceId")
	}},

	// network
	{"network/vcn", func(item map[string]interface{}) bool {
		return (hasKey(item, "cidrBlock") || hasKey(item, "cidrBlocks")) && hasKey(item, "defaultRouteTableId")
	}},
	{"network/subnet", func(item map[string]interface{}) bool {
		return hasKey(item, "cidrBlock") && hasKey(item, "vcnId") && !hasKey(item, "defaultRouteTableId")
	}},
	{"network/route-table", func(item map[string]interface{}) bool {
		return hasKey(item, "routeRules")
	}},
	{"network/security-list", func(item map[string]interface{}) bool {
		return hasKey(item, "ingressSecurityRules") || hasKey(item, "egressSecurityRules")
	}},
	{"network/internet-gateway", func(item map[string]interface{}) bool {
		return hasKey(item, "isEnabled") && hasKey(item, "vcnId")
	}},
	{"network/nat-gateway", func(item map[string]interface{}) bool {
		return hasKey(item, "natIp") || (hasKey(item, "blockTraffic") && hasKey(item, "publicIpId"))
	}},
	{"network/service-gateway", func(item map[string]interface{}) bool {
		return hasKey(item, "services") && hasKey(item, "vcnId")
	}},
	{"network/drg-attachment", func(item map[string]interface{}) bool {
		return hasKey(item, "drgId") && hasKey(item, "vcnId")
	}},
	{"network/drg", func(item map[string]interface{}) bool {
		return hasKey(item, "defaultDrgRouteTables")
	}},
	{"network/local-peering-gateway", func(item map[string]interface{}) bool {
		return hasKey(item, "peeringStatus") && hasKey(item, "vcnId")
	}},
	{"network/load-balancer", func(item map[string]interface{}) bool {
		return hasKey(item, "backendSets") || hasKey(item, "listeners") ||
			(hasKey(item, "shapeName") && hasKey(item, "isPrivate"))
	}},

	// database
	{"database/db-system", func(item map[string]interface{}) bool {
		return hasKey(item, "shape") && hasKey(item, "databaseEdition")
	}},
	{"database/autonomous-database", func(item map[string]interface{}) bool {
		return hasKey(item, "dbWorkload") ||
			(hasKey(item, "cpuCoreCount") && hasKey(item, "dataStorageSizeInTBs"))
	}},

	// storage
	{"storage/bucket", func(item map[string]interface{}) bool {
		return hasKey(item, "namespace") && (hasKey(item, "publicAccessType") || hasKey(item, "storageTier"))
	}},
	{"storage/boot-volume", func(item map[string]interface{}) bool {
		return hasKey(item, "sizeInGBs") && hasKey(item, "imageId")
	}},
	{"storage/volume", func(item map[string]interface{}) bool {
		return hasKey(item, "sizeInGBs") && !hasKey(item, "imageId") && !hasKey(item, "shape")
	}},

	// container
	{"container/cluster", func(item map[string]interface{}) bool {
		return hasKey(item, "kubernetesVersion") && hasKey(item, "vcnId")
	}},
	{"container/node-pool", func(item map[string]interface{}) bool {
		return hasKey(item, "nodeShape") || (hasKey(item, "clusterId") && hasKey(item, "nodeConfigDetails"))
	}},
	{"container/container-instance", func(item map[string]interface{}) bool {
		return (hasKey(item, "containers") || hasKey(item, "containerCount")) && hasKey(item, "shape")
	}},

	// serverless
	{"serverless/function", func(item map[string]interface{}) bool {
		return hasKey(item, "applicationId") && hasKey(item, "image")
	}},
	{"serverless/application", func(item map[string]interface{}) bool {
		return hasKey(item, "subnetIds") && hasKey(item, "syslogUrl")
	}},
	{"serverless/api-gateway", func(item map[string]interface{}) bool {
		return hasKey(item, "endpointType") && hasKey(item, "subnetId")
	}},

	// IAM
	{"iam/compartment", func(item map[string]interface{}) bool {
		return hasKey(item, "description") && hasKey(item, "isAccessible")
	}},
	{"iam/user", func(item map[string]interface{}) bool {
		return hasKey(item, "email") || hasKey(item, "isMfaActivated")
	}},
	{"iam/dynamic-group", func(item map[string]interface{}) bool {
		return hasKey(item, "matchingRule")
	}},
	{"iam/policy", func(item map[string]interface{}) bool {
		return hasKey(item, "statements")
	}},

	// security
	{"security/vault", func(item map[string]interface{}) bool {
		return hasKey(item, "vaultType") || hasKey(item, "managementEndpoint")
	}},
	{"security/key", func(item map[string]interface{}) bool {
		return hasKey(item, "currentKeyVersion") || hasKey(item, "keyShape")
	}},

	// observability
	{"observability/alarm", func(item map[string]interface{}) bool {
		return hasKey(item, "query") && hasKey(item, "namespace") && hasKey(item, "severity")
	}},
	{"observability/log-group", func(item map[string]interface{}) bool {
		return hasKey(item, "isQuickStart")
	}},

	// DNS
	{"dns/zone", func(item map[string]interface{}) bool {
		return hasKey(item, "zoneType") || hasKey(item, "nameservers")
	}},

	// Last resort: IAM groups expose little beyond a description. Negative
	// guards keep compartments, policies, and dynamic groups out.
	{"iam/group", func(item map[string]interface{}) bool {
		return hasKey(item, "description") && !hasKey(item, "isAccessible") &&
			!hasKey(item, "statements") && !hasKey(item, "matchingRule") && !hasKey(item, "email")
	}},
}

// ocidPrefixTypes maps the second dotted token of an OCID to a resource
// type. Closed mapping; consulted only when no field signature matched.
var ocidPrefixTypes = map[string]string{
	"vcn":                      "network/vcn",
	"subnet":                   "network/subnet",
	"routetable":               "network/route-table",
	"securitylist":             "network/security-list",
	"networksecuritygroup":     "network/nsg",
	"internetgateway":          "network/internet-gateway",
	"natgateway":               "network/nat-gateway",
	"servicegateway":           "network/service-gateway",
	"drg":                      "network/drg",
	"drgattachment":            "network/drg-attachment",
	"localpeeringgateway":      "network/local-peering-gateway",
	"loadbalancer":             "network/load-balancer",
	"instance":                 "compute/instance",
	"image":                    "compute/image",
	"vnicattachment":           "compute/vnic-attachment",
	"volumeattachment":         "compute/volume-attachment",
	"volume":                   "storage/volume",
	"bootvolume":               "storage/boot-volume",
	"bucket":                   "storage/bucket",
	"dbsystem":                 "database/db-system",
	"autonomousdatabase":       "database/autonomous-database",
	"cluster":                  "container/cluster",
	"nodepool":                 "container/node-pool",
	"computecontainerinstance": "container/container-instance",
	"fnapp":                    "serverless/application",
	"fnfunc":                   "serverless/function",
	"apigateway":               "serverless/api-gateway",
	"compartment":              "iam/compartment",
	"tenancy":                  "iam/compartment",
	"user":                     "iam/user",
	"group":                    "iam/group",
	"dynamicgroup":             "iam/dynamic-group",
	"policy":                   "iam/policy",
	"vault":                    "security/vault",
	"key":                      "security/key",
	"loggroup":                 "observability/log-group",
	"alarm":                    "observability/alarm",
	"dnszone":                  "dns/zone",
}

// ocidPrefix extracts the resource-family token of an OCID: split on "." and
// read token index 1.
func ocidPrefix(ocid string) string {
	parts := strings.Split(ocid, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// DetectResourceType resolves an item to a resource type slug.
// Order is fixed: field signatures, then the OCID-prefix mapping, then ""
// (caller falls back to the generic parser).
func DetectResourceType(item map[string]interface{}) string {
	for _, sig := range signatures {
		if sig.match(item) {
			return sig.resourceType
		}
	}
	if mapped, exists := ocidPrefixTypes[ocidPrefix(stringField(item, "id"))]; exists {
		return mapped
	}
	return ""
}
