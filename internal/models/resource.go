package models

import (
	"time"
)

// MaxRawDataStringBytes is the upper bound on any string leaf stored in a
// resource's RawData. Longer values are replaced by a truncation sentinel
// recording the original length; sensitive oversize payloads are carried as
// blobs instead.
const MaxRawDataStringBytes = 1024

// MaxInParameters is the parameter-limit-safe chunk size for IN-selections
// against the snapshot store.
const MaxInParameters = 500

// Resource is one cloud resource materialised from a snapshot export.
// A resource is uniquely identified by (SnapshotID, OCID) and is immutable
// until its snapshot is deleted.
type Resource struct {
	ID                 string                 `json:"id"`
	SnapshotID         string                 `json:"snapshotId"`
	OCID               string                 `json:"ocid"`
	ResourceType       string                 `json:"resourceType"`
	DisplayName        string                 `json:"displayName,omitempty"`
	CompartmentID      string                 `json:"compartmentId,omitempty"`
	LifecycleState     string                 `json:"lifecycleState,omitempty"`
	AvailabilityDomain string                 `json:"availabilityDomain,omitempty"`
	RegionKey          string                 `json:"regionKey,omitempty"`
	TimeCreated        *time.Time             `json:"timeCreated,omitempty"`
	DefinedTags        map[string]interface{} `json:"definedTags,omitempty"`
	FreeformTags       map[string]string      `json:"freeformTags,omitempty"`
	RawData            map[string]interface{} `json:"rawData"`
}

// ResourceRef is the lightweight projection of a resource used by streaming
// passes that never need RawData.
type ResourceRef struct {
	ID             string `json:"id"`
	OCID           string `json:"ocid"`
	ResourceType   string `json:"resourceType"`
	DisplayName    string `json:"displayName,omitempty"`
	CompartmentID  string `json:"compartmentId,omitempty"`
	LifecycleState string `json:"lifecycleState,omitempty"`
}

// Ref returns the lightweight projection of r.
func (r *Resource) Ref() ResourceRef {
	return ResourceRef{
		ID:             r.ID,
		OCID:           r.OCID,
		ResourceType:   r.ResourceType,
		DisplayName:    r.DisplayName,
		CompartmentID:  r.CompartmentID,
		LifecycleState: r.LifecycleState,
	}
}

// ResourceBlob carries an oversize textual payload (instance user-data, SSH
// keys) outside RawData. Keyed by (ResourceID, BlobKey).
type ResourceBlob struct {
	ResourceID string `json:"resourceId"`
	BlobKey    string `json:"blobKey"`
	Content    string `json:"content"`
}

// ParsedResource is the parser output prior to persistence. Blobs holds
// payloads extracted from the raw item before sanitisation; they become
// ResourceBlob rows once the resource id is assigned.
type ParsedResource struct {
	OCID               string
	ResourceType       string
	DisplayName        string
	CompartmentID      string
	LifecycleState     string
	AvailabilityDomain string
	RegionKey          string
	TimeCreated        *time.Time
	DefinedTags        map[string]interface{}
	FreeformTags       map[string]string
	RawData            map[string]interface{}
	Blobs              map[string]string
}
