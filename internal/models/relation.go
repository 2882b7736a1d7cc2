package models

// RelationType is a directed typed edge class between two resources in the
// same snapshot. The set is closed; consumers use the values as
// discriminators.
type RelationType string

const (
	RelationContains       RelationType = "contains"
	RelationParent         RelationType = "parent"
	RelationSubnetMember   RelationType = "subnet-member"
	RelationRoutesVia      RelationType = "routes-via"
	RelationSecuredBy      RelationType = "secured-by"
	RelationNSGMember      RelationType = "nsg-member"
	RelationVolumeAttached RelationType = "volume-attached"
	RelationLBBackend      RelationType = "lb-backend"
	RelationGatewayFor     RelationType = "gateway-for"
	RelationRunsIn         RelationType = "runs-in"
	RelationUsesVCN        RelationType = "uses-vcn"
	RelationUsesImage      RelationType = "uses-image"
	RelationMemberOf       RelationType = "member-of"
	RelationStoredIn       RelationType = "stored-in"
	RelationDeployedTo     RelationType = "deployed-to"
	RelationBackupOf       RelationType = "backup-of"
	RelationGroups         RelationType = "groups"
	RelationAttachedTo     RelationType = "attached-to"
	RelationSigns          RelationType = "signs"
	RelationBelongsTo      RelationType = "belongs-to"
)

// String returns the string representation of the relation type.
func (rt RelationType) String() string {
	return string(rt)
}

// HierarchyRelations are the relation types that express the compartment
// tree rather than a workload dependency.
var HierarchyRelations = map[RelationType]bool{
	RelationContains: true,
	RelationParent:   true,
}

// ResourceRelation is a directed typed edge between two resources. Both
// endpoints exist in the same snapshot; relations are back-references and
// never own their endpoints.
type ResourceRelation struct {
	ID             string                 `json:"id"`
	SnapshotID     string                 `json:"snapshotId"`
	FromResourceID string                 `json:"fromResourceId"`
	ToResourceID   string                 `json:"toResourceId"`
	RelationType   RelationType           `json:"relationType"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
