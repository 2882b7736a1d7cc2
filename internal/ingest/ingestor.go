package ingest

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/catherinevee/cloudlens/internal/apperrors"
	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/metrics"
	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/relations"
	"github.com/catherinevee/cloudlens/internal/store"
)

// persistBatchSize bounds how many resources go to the store per write.
const persistBatchSize = 500

// Ingestor turns export files into a materialised snapshot. Writes to one
// snapshot are serialised by construction: one Ingest call owns the
// snapshot id for its whole run.
type Ingestor struct {
	store     store.Store
	extractor *relations.Extractor
	log       logger.Logger
	ceiling   time.Duration
}

// NewIngestor creates an ingestor. ceiling bounds the wall-clock time of one
// run; zero means unbounded.
func NewIngestor(s store.Store, ceiling time.Duration) *Ingestor {
	log := logger.New("ingest")
	return &Ingestor{
		store:     s,
		extractor: relations.NewExtractor(logger.New("relations")),
		log:       log,
		ceiling:   ceiling,
	}
}

// Ingest creates the snapshot and materialises all files into it. Per-file
// failures are recorded on the report and never abort the run; the returned
// error is reserved for snapshot-level failures (store down, cancelled).
func (ing *Ingestor) Ingest(ctx context.Context, snapshot *models.Snapshot, paths []string) (*models.IngestReport, error) {
	start := time.Now()
	if ing.ceiling > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ing.ceiling)
		defer cancel()
	}

	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	if snapshot.ImportedAt.IsZero() {
		snapshot.ImportedAt = time.Now().UTC()
	}
	if err := ing.store.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	report := &models.IngestReport{
		SnapshotID: snapshot.ID,
		Errors:     make(map[string]string),
	}

	var resources []models.Resource
	var blobs []models.ResourceBlob
	seenOCIDs := make(map[string]bool)

	appendParsed := func(parsed []models.ParsedResource) {
		for i := range parsed {
			record := &parsed[i]
			if seenOCIDs[record.OCID] {
				continue
			}
			seenOCIDs[record.OCID] = true
			resource := models.Resource{
				ID:                 uuid.New().String(),
				SnapshotID:         snapshot.ID,
				OCID:               record.OCID,
				ResourceType:       record.ResourceType,
				DisplayName:        record.DisplayName,
				CompartmentID:      record.CompartmentID,
				LifecycleState:     record.LifecycleState,
				AvailabilityDomain: record.AvailabilityDomain,
				RegionKey:          record.RegionKey,
				TimeCreated:        record.TimeCreated,
				DefinedTags:        record.DefinedTags,
				FreeformTags:       record.FreeformTags,
				RawData:            record.RawData,
			}
			resources = append(resources, resource)
			for blobKey, content := range record.Blobs {
				blobs = append(blobs, models.ResourceBlob{
					ResourceID: resource.ID,
					BlobKey:    blobKey,
					Content:    content,
				})
			}
		}
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, apperrors.Wrap(apperrors.ErrorTypeCancelled, "ingest cancelled", err)
		}
		report.FilesTotal++
		parsed, err := ing.readFile(path)
		if err != nil {
			report.FilesFailed++
			report.Errors[path] = err.Error()
			metrics.ParseErrors.Inc()
			ing.log.Warn("file skipped", logger.String("path", path), logger.Error(err))
			continue
		}
		appendParsed(parsed)
	}

	for start := 0; start < len(resources); start += persistBatchSize {
		if err := ctx.Err(); err != nil {
			return report, apperrors.Wrap(apperrors.ErrorTypeCancelled, "ingest cancelled", err)
		}
		end := start + persistBatchSize
		if end > len(resources) {
			end = len(resources)
		}
		if err := ing.store.PutResources(ctx, resources[start:end]); err != nil {
			return report, err
		}
	}
	if err := ing.store.PutBlobs(ctx, blobs); err != nil {
		return report, err
	}

	relationSet := ing.extractor.Extract(snapshot.ID, resources)
	if err := ing.store.PutRelations(ctx, relationSet); err != nil {
		return report, err
	}

	report.ResourceCount = len(resources)
	report.RelationCount = len(relationSet)
	report.BlobCount = len(blobs)
	report.Duration = time.Since(start)

	metrics.ResourcesIngested.Add(float64(len(resources)))
	metrics.IngestDuration.Observe(report.Duration.Seconds())
	ing.log.Info("ingest complete",
		logger.String("snapshot_id", snapshot.ID),
		logger.Int("files", report.FilesTotal),
		logger.Int("failed", report.FilesFailed),
		logger.Int("resources", report.ResourceCount),
		logger.Int("relations", report.RelationCount),
		logger.Duration("duration", report.Duration))
	return report, nil
}

// readFile parses one export file, expanding .zip archives in place.
func (ing *Ingestor) readFile(path string) ([]models.ParsedResource, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return ing.readArchive(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeParse, "failed to read file", err)
	}
	parsed := ParseResources(raw, "")
	if len(parsed) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeParse, "no resources recognised in file")
	}
	return parsed, nil
}

func (ing *Ingestor) readArchive(path string) ([]models.ParsedResource, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeParse, "failed to open archive", err)
	}
	defer reader.Close()

	var out []models.ParsedResource
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(entry.Name), ".json") {
			continue
		}
		file, err := entry.Open()
		if err != nil {
			ing.log.Warn("archive entry skipped", logger.String("entry", entry.Name), logger.Error(err))
			continue
		}
		raw, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			ing.log.Warn("archive entry skipped", logger.String("entry", entry.Name), logger.Error(err))
			continue
		}
		out = append(out, ParseResources(raw, "")...)
	}
	if len(out) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeParse, "no resources recognised in archive")
	}
	return out, nil
}
