// Package topology materialises render-ready views of a snapshot: the
// network fabric, the compartment tree, workload dependencies, and the
// internet-exposure surface. Results are bounded by a node cap with
// priority-ordered truncation and instance collapsing.
package topology

import (
	"strings"

	"github.com/catherinevee/cloudlens/internal/models"
)

// MaxTopologyNodes caps the node count of any view. Exceeding it sets
// Truncated and keeps the most important nodes by the priority table.
const MaxTopologyNodes = 2000

// MaxExposedInstances caps individually-rendered instances in the EXPOSURE
// view; the overflow collapses into a summary node.
const MaxExposedInstances = 500

// ViewType selects the topology view. The set is closed.
type ViewType string

const (
	ViewNetwork     ViewType = "NETWORK"
	ViewCompartment ViewType = "COMPARTMENT"
	ViewDependency  ViewType = "DEPENDENCY"
	ViewExposure    ViewType = "EXPOSURE"
)

// Synthetic node ids. Synthetic nodes are owned by the result record and
// carry an empty OCID.
const (
	internetNodeID       = "internet"
	oracleServicesNodeID = "oracle-services"
)

// Node is one rendered topology node.
type Node struct {
	ID           string                 `json:"id"`
	Label        string                 `json:"label"`
	Type         string                 `json:"type"`
	ResourceType string                 `json:"resourceType,omitempty"`
	OCID         string                 `json:"ocid,omitempty"`
	ParentID     string                 `json:"parentId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is one rendered topology edge between node ids.
type Edge struct {
	ID           string              `json:"id"`
	Source       string              `json:"source"`
	Target       string              `json:"target"`
	Label        string              `json:"label,omitempty"`
	RelationType models.RelationType `json:"relationType"`
	Animated     bool                `json:"animated"`
}

// Result is one built view. TotalCount is the pre-truncation resource
// count; Truncated reports whether the cap dropped nodes.
type Result struct {
	Nodes      []Node `json:"nodes"`
	Edges      []Edge `json:"edges"`
	TotalCount int    `json:"totalCount"`
	Truncated  bool   `json:"truncated"`
}

// nodeTypes is the closed map from resource type to render-class tag.
var nodeTypes = map[string]string{
	"network/vcn":                   "vcnNode",
	"network/subnet":                "subnetNode",
	"network/route-table":           "routeTableNode",
	"network/security-list":         "securityNode",
	"network/nsg":                   "securityNode",
	"network/internet-gateway":      "gatewayNode",
	"network/nat-gateway":           "gatewayNode",
	"network/service-gateway":       "gatewayNode",
	"network/drg":                   "gatewayNode",
	"network/drg-attachment":        "gatewayNode",
	"network/local-peering-gateway": "gatewayNode",
	"network/load-balancer":         "lbNode",
	"compute/instance":              "instanceNode",
	"iam/compartment":               "compartmentNode",
}

// familyNodeTypes is the family-prefix fallback.
var familyNodeTypes = map[string]string{
	"compute":       "computeNode",
	"network":       "networkNode",
	"database":      "databaseNode",
	"storage":       "storageNode",
	"container":     "containerNode",
	"serverless":    "serverlessNode",
	"iam":           "iamNode",
	"security":      "securityNode",
	"observability": "observabilityNode",
	"dns":           "dnsNode",
	"generic":       "genericNode",
}

// nodeTypeFor maps a resource type to its render class, falling back to the
// family prefix and finally to a generic tag.
func nodeTypeFor(resourceType string) string {
	if tag, exists := nodeTypes[resourceType]; exists {
		return tag
	}
	if slash := strings.IndexByte(resourceType, '/'); slash > 0 {
		if tag, exists := familyNodeTypes[resourceType[:slash]]; exists {
			return tag
		}
	}
	return "resourceNode"
}

// networkPriority orders infrastructure types for truncation: lower keeps
// longer.
var networkPriority = map[string]int{
	"network/vcn":                   0,
	"network/subnet":                1,
	"network/internet-gateway":      2,
	"network/nat-gateway":           2,
	"network/service-gateway":       2,
	"network/drg":                   2,
	"network/drg-attachment":        2,
	"network/local-peering-gateway": 2,
	"network/load-balancer":         3,
	"database/db-system":            4,
	"database/autonomous-database":  4,
	"container/cluster":             4,
	"container/node-pool":           5,
	"container/container-instance":  5,
	"serverless/application":        5,
	"serverless/api-gateway":        5,
}

// priorityFor returns the truncation priority of a type; unlisted types
// drop first.
func priorityFor(resourceType string) int {
	if priority, exists := networkPriority[resourceType]; exists {
		return priority
	}
	return 9
}
