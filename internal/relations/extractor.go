// Package relations derives the typed edge set of a snapshot from parsed
// resource payloads. The extractor runs once after ingest; it is idempotent
// and order-insensitive (the same snapshot yields the same edge set modulo
// relation ids).
package relations

import (
	"strings"

	"github.com/google/uuid"

	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/models"
)

// Extractor derives typed relations between resources of one snapshot.
type Extractor struct {
	log logger.Logger
}

// NewExtractor creates a relation extractor.
func NewExtractor(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.New("relations")
	}
	return &Extractor{log: log}
}

// extraction carries the per-run state. Owned exclusively by one Extract
// call and dropped at its end.
type extraction struct {
	snapshotID string
	byOCID     map[string]*models.Resource
	byIP       map[string]*models.Resource
	relations  []models.ResourceRelation
	seen       map[string]bool
}

// Extract walks the snapshot's resources and emits the derived edge set.
func (e *Extractor) Extract(snapshotID string, resources []models.Resource) []models.ResourceRelation {
	run := &extraction{
		snapshotID: snapshotID,
		byOCID:     make(map[string]*models.Resource, len(resources)),
		byIP:       make(map[string]*models.Resource),
		relations:  make([]models.ResourceRelation, 0, len(resources)),
		seen:       make(map[string]bool),
	}
	for i := range resources {
		resource := &resources[i]
		run.byOCID[resource.OCID] = resource
		for _, key := range []string{"privateIp", "ipAddress"} {
			if ip, ok := resource.RawData[key].(string); ok && ip != "" {
				run.byIP[ip] = resource
			}
		}
	}

	// VNIC attachments give instances their subnet placement; index them by
	// instance first.
	vnicSubnets := make(map[string]string)
	vnicNSGs := make(map[string][]string)
	for i := range resources {
		resource := &resources[i]
		if resource.ResourceType != "compute/vnic-attachment" {
			continue
		}
		instanceID, _ := resource.RawData["instanceId"].(string)
		if instanceID == "" {
			continue
		}
		if subnetID, _ := resource.RawData["subnetId"].(string); subnetID != "" {
			if _, placed := vnicSubnets[instanceID]; !placed {
				// First attachment wins.
				vnicSubnets[instanceID] = subnetID
			}
		}
		for _, nsgID := range stringSlice(resource.RawData["nsgIds"]) {
			vnicNSGs[instanceID] = append(vnicNSGs[instanceID], nsgID)
		}
	}

	for i := range resources {
		resource := &resources[i]
		e.extractForResource(run, resource, vnicSubnets, vnicNSGs)
	}

	e.log.Debug("relation extraction complete",
		logger.String("snapshot_id", snapshotID),
		logger.Int("resources", len(resources)),
		logger.Int("relations", len(run.relations)))
	return run.relations
}

func (e *Extractor) extractForResource(run *extraction, resource *models.Resource, vnicSubnets map[string]string, vnicNSGs map[string][]string) {
	raw := resource.RawData

	switch resource.ResourceType {
	case "network/subnet":
		run.edgeToOCID(resource, stringValue(raw["vcnId"]), models.RelationSubnetMember, nil)
		run.edgeToOCID(resource, stringValue(raw["routeTableId"]), models.RelationRoutesVia, nil)
		for _, securityListID := range stringSlice(raw["securityListIds"]) {
			run.edgeToOCID(resource, securityListID, models.RelationSecuredBy, nil)
		}

	case "compute/instance":
		if subnetID, placed := vnicSubnets[resource.OCID]; placed {
			run.edgeToOCID(resource, subnetID, models.RelationSubnetMember, nil)
		} else if subnetID := stringValue(raw["subnetId"]); subnetID != "" {
			run.edgeToOCID(resource, subnetID, models.RelationSubnetMember, nil)
		}
		run.edgeToOCID(resource, stringValue(raw["imageId"]), models.RelationUsesImage, nil)
		for _, nsgID := range append(stringSlice(raw["nsgIds"]), vnicNSGs[resource.OCID]...) {
			run.edgeToOCID(resource, nsgID, models.RelationNSGMember, nil)
		}

	case "compute/volume-attachment":
		instance := run.byOCID[stringValue(raw["instanceId"])]
		volume := run.byOCID[stringValue(raw["volumeId"])]
		if instance != nil && volume != nil {
			run.edge(instance, volume, models.RelationVolumeAttached,
				map[string]interface{}{"attachmentId": resource.OCID})
		}

	case "container/node-pool":
		if placements := sliceValue(raw["placementConfigs"]); len(placements) > 0 {
			if placement, ok := placements[0].(map[string]interface{}); ok {
				run.edgeToOCID(resource, stringValue(placement["subnetId"]), models.RelationSubnetMember, nil)
			}
		}
		run.edgeToOCID(resource, stringValue(raw["clusterId"]), models.RelationMemberOf, nil)

	case "container/cluster":
		run.edgeToOCID(resource, stringValue(raw["vcnId"]), models.RelationUsesVCN, nil)

	case "container/container-instance":
		if vnics := sliceValue(raw["vnics"]); len(vnics) > 0 {
			if vnic, ok := vnics[0].(map[string]interface{}); ok {
				run.edgeToOCID(resource, stringValue(vnic["subnetId"]), models.RelationSubnetMember, nil)
			}
		}

	case "network/load-balancer":
		for _, subnetID := range stringSlice(raw["subnetIds"]) {
			run.edgeToOCID(resource, subnetID, models.RelationSubnetMember, nil)
		}
		e.extractLBBackends(run, resource)

	case "network/internet-gateway", "network/nat-gateway", "network/service-gateway",
		"network/local-peering-gateway":
		run.edgeToOCID(resource, stringValue(raw["vcnId"]), models.RelationGatewayFor, nil)

	case "network/drg-attachment":
		drg := run.byOCID[stringValue(raw["drgId"])]
		vcn := run.byOCID[stringValue(raw["vcnId"])]
		if drg != nil && vcn != nil {
			run.edge(drg, vcn, models.RelationGatewayFor,
				map[string]interface{}{"attachmentId": resource.OCID})
		}
		if drg != nil {
			run.edge(resource, drg, models.RelationAttachedTo, nil)
		}

	case "iam/compartment":
		if parent := run.byOCID[resource.CompartmentID]; parent != nil && parent.ResourceType == "iam/compartment" {
			run.edge(parent, resource, models.RelationContains, nil)
			run.edge(resource, parent, models.RelationParent, nil)
		}

	case "iam/policy":
		run.edgeToOCID(resource, resource.CompartmentID, models.RelationBelongsTo, nil)

	case "serverless/function":
		run.edgeToOCID(resource, stringValue(raw["applicationId"]), models.RelationRunsIn, nil)

	case "serverless/application":
		if subnetIDs := stringSlice(raw["subnetIds"]); len(subnetIDs) > 0 {
			run.edgeToOCID(resource, subnetIDs[0], models.RelationSubnetMember, nil)
		}

	case "serverless/api-gateway", "database/db-system", "database/autonomous-database":
		run.edgeToOCID(resource, stringValue(raw["subnetId"]), models.RelationSubnetMember, nil)

	case "storage/bucket":
		run.edgeToOCID(resource, resource.CompartmentID, models.RelationStoredIn, nil)

	default:
		// Volume backups arrive through the generic parser.
		if strings.HasSuffix(resource.ResourceType, "backup") {
			run.edgeToOCID(resource, stringValue(raw["volumeId"]), models.RelationBackupOf, nil)
		}
		// User/group memberships are exported as bare membership records.
		userID := stringValue(raw["userId"])
		groupID := stringValue(raw["groupId"])
		if userID != "" && groupID != "" {
			user := run.byOCID[userID]
			group := run.byOCID[groupID]
			if user != nil && group != nil {
				run.edge(user, group, models.RelationMemberOf, nil)
				run.edge(group, user, models.RelationGroups, nil)
			}
		}
	}
}

// extractLBBackends resolves backend set members to resources by private IP.
func (e *Extractor) extractLBBackends(run *extraction, lb *models.Resource) {
	backendSets, ok := lb.RawData["backendSets"].(map[string]interface{})
	if !ok {
		return
	}
	for setName, setValue := range backendSets {
		set, ok := setValue.(map[string]interface{})
		if !ok {
			continue
		}
		for _, backendValue := range sliceValue(set["backends"]) {
			backend, ok := backendValue.(map[string]interface{})
			if !ok {
				continue
			}
			target := run.byIP[stringValue(backend["ipAddress"])]
			if target != nil {
				run.edge(lb, target, models.RelationLBBackend,
					map[string]interface{}{"backendSet": setName})
			}
		}
	}
}

// edge appends one relation when both endpoints are known, deduplicating on
// (from, to, type).
func (run *extraction) edge(from, to *models.Resource, relationType models.RelationType, metadata map[string]interface{}) {
	if from == nil || to == nil {
		return
	}
	key := from.ID + "|" + to.ID + "|" + string(relationType)
	if run.seen[key] {
		return
	}
	run.seen[key] = true
	run.relations = append(run.relations, models.ResourceRelation{
		ID:             uuid.New().String(),
		SnapshotID:     run.snapshotID,
		FromResourceID: from.ID,
		ToResourceID:   to.ID,
		RelationType:   relationType,
		Metadata:       metadata,
	})
}

// edgeToOCID resolves the target by OCID; unknown references are skipped.
func (run *extraction) edgeToOCID(from *models.Resource, toOCID string, relationType models.RelationType, metadata map[string]interface{}) {
	if toOCID == "" {
		return
	}
	run.edge(from, run.byOCID[toOCID], relationType, metadata)
}

func stringValue(value interface{}) string {
	s, _ := value.(string)
	return s
}

func sliceValue(value interface{}) []interface{} {
	s, _ := value.([]interface{})
	return s
}

func stringSlice(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
