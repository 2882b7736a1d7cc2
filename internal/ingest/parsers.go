package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/catherinevee/cloudlens/internal/models"
)

// ParseResources turns one exported JSON document into parsed resources.
// explicitType pins every item to a resource type; when empty the
// auto-detector decides per item. Unrecognised input yields an empty slice,
// never an error.
func ParseResources(raw []byte, explicitType string) []models.ParsedResource {
	items := Unwrap(raw)
	out := make([]models.ParsedResource, 0, len(items))
	for _, item := range items {
		camelised, _ := CamelizeKeys(item).(map[string]interface{})
		if camelised == nil {
			continue
		}
		resourceType := explicitType
		if resourceType == "" {
			resourceType = DetectResourceType(camelised)
		}
		if resourceType == "" {
			out = append(out, parseGeneric(camelised))
			continue
		}
		out = append(out, parseTyped(camelised, resourceType))
	}
	return out
}

// parseTyped builds a ParsedResource for a recognised type, applying any
// type-specific handling (blob extraction for instances).
func parseTyped(item map[string]interface{}, resourceType string) models.ParsedResource {
	blobs := map[string]string{}
	if resourceType == "compute/instance" {
		blobs = extractInstanceBlobs(item)
	}
	parsed := buildResource(item, resourceType)
	parsed.Blobs = blobs
	return parsed
}

// sensitiveMetadataKeys are instance metadata entries carried as blobs
// instead of RawData, regardless of size.
var sensitiveMetadataKeys = []string{"userData", "sshAuthorizedKeys"}

// extractInstanceBlobs removes sensitive metadata payloads from the item and
// returns them keyed for blob storage. The removed value is replaced with a
// marker recording the original length so the raw record stays explicable.
func extractInstanceBlobs(item map[string]interface{}) map[string]string {
	blobs := make(map[string]string)
	metadata := mapField(item, "metadata")
	if metadata == nil {
		return blobs
	}
	for _, key := range sensitiveMetadataKeys {
		if value, ok := metadata[key].(string); ok && value != "" {
			blobs[key] = value
			metadata[key] = fmt.Sprintf("[blob: %d bytes]", len(value))
		}
	}
	return blobs
}

// buildResource extracts the shared resource envelope fields and sanitises
// the remaining payload into RawData.
func buildResource(item map[string]interface{}, resourceType string) models.ParsedResource {
	parsed := models.ParsedResource{
		OCID:               stringField(item, "id"),
		ResourceType:       resourceType,
		DisplayName:        firstStringField(item, "displayName", "name"),
		CompartmentID:      stringField(item, "compartmentId"),
		LifecycleState:     stringField(item, "lifecycleState"),
		AvailabilityDomain: stringField(item, "availabilityDomain"),
		RegionKey:          firstStringField(item, "regionKey", "region"),
		RawData:            sanitizeMap(item),
		Blobs:              map[string]string{},
	}
	if created := stringField(item, "timeCreated"); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			parsed.TimeCreated = &t
		}
	}
	if definedTags := mapField(item, "definedTags"); definedTags != nil {
		parsed.DefinedTags = definedTags
	}
	if freeform := mapField(item, "freeformTags"); freeform != nil {
		tags := make(map[string]string, len(freeform))
		for key, value := range freeform {
			if s, ok := value.(string); ok {
				tags[key] = s
			}
		}
		parsed.FreeformTags = tags
	}
	if parsed.OCID == "" {
		parsed.OCID = syntheticOCID(item, resourceType)
	}
	return parsed
}

// parseGeneric salvages an item neither the signature table nor the OCID
// mapping recognised. The type becomes generic/<ocid-prefix> and items with
// no id get a synthetic, content-stable OCID.
func parseGeneric(item map[string]interface{}) models.ParsedResource {
	prefix := ocidPrefix(stringField(item, "id"))
	if prefix == "" {
		prefix = "unknown"
	}
	return buildResource(item, "generic/"+prefix)
}

// syntheticOCID derives a stable id for items exported without one. It
// prefers the identifying triple (name, namespace, compartment); when none
// is present the whole item is hashed. json.Marshal sorts map keys, so the
// hash is stable across runs.
func syntheticOCID(item map[string]interface{}, resourceType string) string {
	name := firstStringField(item, "displayName", "name")
	namespace := stringField(item, "namespace")
	compartment := stringField(item, "compartmentId")

	var material []byte
	if name != "" || namespace != "" || compartment != "" {
		material = []byte(name + "|" + namespace + "|" + compartment)
	} else {
		material, _ = json.Marshal(item)
	}
	sum := sha256.Sum256(material)
	return fmt.Sprintf("synthetic.%s.%s", resourceType, hex.EncodeToString(sum[:8]))
}
