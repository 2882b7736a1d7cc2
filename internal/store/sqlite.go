package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/catherinevee/cloudlens/internal/apperrors"
	"github.com/catherinevee/cloudlens/internal/models"
)

// SQLiteStore is the persistent snapshot store backed by an embedded SQLite
// database (WAL journal, pooled connections).
type SQLiteStore struct {
	conn *sql.DB
}

// SQLiteConfig controls the SQLite store.
type SQLiteConfig struct {
	Path string
}

// DefaultSQLiteConfig places the database under the user's home directory.
func DefaultSQLiteConfig() *SQLiteConfig {
	homeDir, _ := os.UserHomeDir()
	return &SQLiteConfig{
		Path: filepath.Join(homeDir, ".cloudlens", "cloudlens.db"),
	}
}

// NewSQLiteStore opens (and if necessary creates) the database and
// initialises the schema.
func NewSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT,
		imported_at TIMESTAMP NOT NULL,
		owner       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resources (
		id                  TEXT PRIMARY KEY,
		snapshot_id         TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		ocid                TEXT NOT NULL,
		resource_type       TEXT NOT NULL,
		display_name        TEXT,
		compartment_id      TEXT,
		lifecycle_state     TEXT,
		availability_domain TEXT,
		region_key          TEXT,
		time_created        TIMESTAMP,
		defined_tags        TEXT,
		freeform_tags       TEXT,
		raw_data            TEXT,
		UNIQUE(snapshot_id, ocid)
	);
	CREATE INDEX IF NOT EXISTS idx_resources_snapshot_type ON resources(snapshot_id, resource_type);
	CREATE INDEX IF NOT EXISTS idx_resources_snapshot_compartment ON resources(snapshot_id, compartment_id);
	CREATE INDEX IF NOT EXISTS idx_resources_snapshot_ocid ON resources(snapshot_id, ocid);

	CREATE TABLE IF NOT EXISTS relations (
		id               TEXT PRIMARY KEY,
		snapshot_id      TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		from_resource_id TEXT NOT NULL,
		to_resource_id   TEXT NOT NULL,
		relation_type    TEXT NOT NULL,
		metadata         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_relations_snapshot ON relations(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_resource_id);
	CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_resource_id);

	CREATE TABLE IF NOT EXISTS blobs (
		resource_id TEXT NOT NULL,
		blob_key    TEXT NOT NULL,
		content     TEXT NOT NULL,
		PRIMARY KEY (resource_id, blob_key)
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO snapshots (id, name, description, imported_at, owner) VALUES (?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.Name, snapshot.Description, snapshot.ImportedAt, snapshot.Owner)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to create snapshot", err)
	}
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), imported_at, owner FROM snapshots WHERE id = ?`, id)
	var snapshot models.Snapshot
	err := row.Scan(&snapshot.ID, &snapshot.Name, &snapshot.Description, &snapshot.ImportedAt, &snapshot.Owner)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "snapshot %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to load snapshot", err)
	}
	return &snapshot, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), imported_at, owner FROM snapshots ORDER BY imported_at`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to list snapshots", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		var snapshot models.Snapshot
		if err := rows.Scan(&snapshot.ID, &snapshot.Name, &snapshot.Description, &snapshot.ImportedAt, &snapshot.Owner); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan snapshot", err)
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to begin delete", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM blobs WHERE resource_id IN (SELECT id FROM resources WHERE snapshot_id = ?)`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to delete blobs", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE snapshot_id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to delete relations", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE snapshot_id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to delete resources", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to delete snapshot", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "snapshot %s not found", id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutResources(ctx context.Context, resources []models.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to begin insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO resources
		(id, snapshot_id, ocid, resource_type, display_name, compartment_id,
		 lifecycle_state, availability_domain, region_key, time_created,
		 defined_tags, freeform_tags, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for i := range resources {
		resource := &resources[i]
		definedTags, _ := json.Marshal(resource.DefinedTags)
		freeformTags, _ := json.Marshal(resource.FreeformTags)
		rawData, _ := json.Marshal(resource.RawData)
		var timeCreated interface{}
		if resource.TimeCreated != nil {
			timeCreated = *resource.TimeCreated
		}
		if _, err := stmt.ExecContext(ctx,
			resource.ID, resource.SnapshotID, resource.OCID, resource.ResourceType,
			resource.DisplayName, resource.CompartmentID, resource.LifecycleState,
			resource.AvailabilityDomain, resource.RegionKey, timeCreated,
			string(definedTags), string(freeformTags), string(rawData)); err != nil {
			return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to insert resource", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutRelations(ctx context.Context, relations []models.ResourceRelation) error {
	if len(relations) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to begin insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO relations
		(id, snapshot_id, from_resource_id, to_resource_id, relation_type, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for i := range relations {
		relation := &relations[i]
		metadata, _ := json.Marshal(relation.Metadata)
		if _, err := stmt.ExecContext(ctx,
			relation.ID, relation.SnapshotID, relation.FromResourceID,
			relation.ToResourceID, string(relation.RelationType), string(metadata)); err != nil {
			return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to insert relation", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutBlobs(ctx context.Context, blobs []models.ResourceBlob) error {
	if len(blobs) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to begin insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO blobs (resource_id, blob_key, content) VALUES (?, ?, ?)`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for i := range blobs {
		blob := &blobs[i]
		if _, err := stmt.ExecContext(ctx, blob.ResourceID, blob.BlobKey, blob.Content); err != nil {
			return apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to insert blob", err)
		}
	}
	return tx.Commit()
}

// buildWhere assembles the WHERE clause for q (without cursor).
func buildWhere(q ResourceQuery) (string, []interface{}) {
	clauses := []string{"snapshot_id = ?"}
	args := []interface{}{q.SnapshotID}

	appendIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, placeholders))
		for _, value := range values {
			args = append(args, value)
		}
	}
	appendIn("resource_type", q.Types)
	appendIn("compartment_id", q.CompartmentIDs)
	appendIn("ocid", q.OCIDs)
	appendIn("id", q.IDs)

	return strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) CountResources(ctx context.Context, q ResourceQuery) (int, error) {
	where, args := buildWhere(q)
	row := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources WHERE `+where, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to count resources", err)
	}
	return count, nil
}

const resourceColumns = `id, snapshot_id, ocid, resource_type,
	COALESCE(display_name, ''), COALESCE(compartment_id, ''),
	COALESCE(lifecycle_state, ''), COALESCE(availability_domain, ''),
	COALESCE(region_key, ''), time_created,
	COALESCE(defined_tags, 'null'), COALESCE(freeform_tags, 'null'),
	COALESCE(raw_data, 'null')`

func scanResource(rows *sql.Rows) (models.Resource, error) {
	var resource models.Resource
	var timeCreated sql.NullTime
	var definedTags, freeformTags, rawData string
	err := rows.Scan(&resource.ID, &resource.SnapshotID, &resource.OCID, &resource.ResourceType,
		&resource.DisplayName, &resource.CompartmentID, &resource.LifecycleState,
		&resource.AvailabilityDomain, &resource.RegionKey, &timeCreated,
		&definedTags, &freeformTags, &rawData)
	if err != nil {
		return resource, err
	}
	if timeCreated.Valid {
		t := timeCreated.Time
		resource.TimeCreated = &t
	}
	_ = json.Unmarshal([]byte(definedTags), &resource.DefinedTags)
	_ = json.Unmarshal([]byte(freeformTags), &resource.FreeformTags)
	_ = json.Unmarshal([]byte(rawData), &resource.RawData)
	return resource, nil
}

func (s *SQLiteStore) ListResources(ctx context.Context, q ResourceQuery) (*ResourcePage, error) {
	where, args := buildWhere(q)
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE ` + where
	if q.Cursor != "" {
		query += ` AND id > ?`
		args = append(args, q.Cursor)
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		// One extra row decides whether another page exists.
		query += fmt.Sprintf(` LIMIT %d`, q.Limit+1)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to list resources", err)
	}
	defer rows.Close()

	page := &ResourcePage{}
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan resource", err)
		}
		page.Resources = append(page.Resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to iterate resources", err)
	}
	if q.Limit > 0 && len(page.Resources) > q.Limit {
		page.Resources = page.Resources[:q.Limit]
		page.NextCursor = page.Resources[len(page.Resources)-1].ID
	}
	return page, nil
}

func (s *SQLiteStore) ListResourceRefs(ctx context.Context, q ResourceQuery) (*RefPage, error) {
	where, args := buildWhere(q)
	query := `SELECT id, ocid, resource_type, COALESCE(display_name, ''),
		COALESCE(compartment_id, ''), COALESCE(lifecycle_state, '')
		FROM resources WHERE ` + where
	if q.Cursor != "" {
		query += ` AND id > ?`
		args = append(args, q.Cursor)
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit+1)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to list resource refs", err)
	}
	defer rows.Close()

	page := &RefPage{}
	for rows.Next() {
		var ref models.ResourceRef
		if err := rows.Scan(&ref.ID, &ref.OCID, &ref.ResourceType, &ref.DisplayName,
			&ref.CompartmentID, &ref.LifecycleState); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan resource ref", err)
		}
		page.Refs = append(page.Refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to iterate resource refs", err)
	}
	if q.Limit > 0 && len(page.Refs) > q.Limit {
		page.Refs = page.Refs[:q.Limit]
		page.NextCursor = page.Refs[len(page.Refs)-1].ID
	}
	return page, nil
}

func (s *SQLiteStore) GetResourcesByIDs(ctx context.Context, snapshotID string, ids []string) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(ids))
	for _, chunk := range ChunkIDs(ids, models.MaxInParameters) {
		page, err := s.ListResources(ctx, ResourceQuery{SnapshotID: snapshotID, IDs: chunk})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Resources...)
	}
	return out, nil
}

func (s *SQLiteStore) GetResourcesByOCIDs(ctx context.Context, snapshotID string, ocids []string) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(ocids))
	for _, chunk := range ChunkIDs(ocids, models.MaxInParameters) {
		page, err := s.ListResources(ctx, ResourceQuery{SnapshotID: snapshotID, OCIDs: chunk})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Resources...)
	}
	return out, nil
}

func scanRelations(rows *sql.Rows) ([]models.ResourceRelation, error) {
	var out []models.ResourceRelation
	for rows.Next() {
		var relation models.ResourceRelation
		var relationType, metadata string
		if err := rows.Scan(&relation.ID, &relation.SnapshotID, &relation.FromResourceID,
			&relation.ToResourceID, &relationType, &metadata); err != nil {
			return nil, err
		}
		relation.RelationType = models.RelationType(relationType)
		_ = json.Unmarshal([]byte(metadata), &relation.Metadata)
		out = append(out, relation)
	}
	return out, rows.Err()
}

const relationColumns = `id, snapshot_id, from_resource_id, to_resource_id, relation_type, COALESCE(metadata, 'null')`

func (s *SQLiteStore) ListRelations(ctx context.Context, snapshotID string, types []models.RelationType) ([]models.ResourceRelation, error) {
	query := `SELECT ` + relationColumns + ` FROM relations WHERE snapshot_id = ?`
	args := []interface{}{snapshotID}
	if len(types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
		query += ` AND relation_type IN (` + placeholders + `)`
		for _, relationType := range types {
			args = append(args, string(relationType))
		}
	}
	query += ` ORDER BY id`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to list relations", err)
	}
	defer rows.Close()
	relations, err := scanRelations(rows)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan relations", err)
	}
	return relations, nil
}

func (s *SQLiteStore) RelationsAmong(ctx context.Context, snapshotID string, resourceIDs []string) ([]models.ResourceRelation, error) {
	idSet := make(map[string]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		idSet[id] = true
	}

	out := make([]models.ResourceRelation, 0)
	for _, chunk := range ChunkIDs(resourceIDs, models.MaxInParameters) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := `SELECT ` + relationColumns + ` FROM relations
			WHERE snapshot_id = ? AND from_resource_id IN (` + placeholders + `) ORDER BY id`
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, snapshotID)
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := s.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to query relations", err)
		}
		relations, err := scanRelations(rows)
		rows.Close()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan relations", err)
		}
		// The IN clause restricts the from side; the to side is filtered here.
		for _, relation := range relations {
			if idSet[relation.ToResourceID] {
				out = append(out, relation)
			}
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetBlobs(ctx context.Context, resourceIDs []string, blobKey string) ([]models.ResourceBlob, error) {
	out := make([]models.ResourceBlob, 0)
	for _, chunk := range ChunkIDs(resourceIDs, models.MaxInParameters) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := `SELECT resource_id, blob_key, content FROM blobs
			WHERE blob_key = ? AND resource_id IN (` + placeholders + `) ORDER BY resource_id`
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, blobKey)
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := s.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to query blobs", err)
		}
		for rows.Next() {
			var blob models.ResourceBlob
			if err := rows.Scan(&blob.ResourceID, &blob.BlobKey, &blob.Content); err != nil {
				rows.Close()
				return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan blob", err)
			}
			out = append(out, blob)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to iterate blobs", err)
		}
		rows.Close()
	}
	return out, nil
}

func (s *SQLiteStore) ResourceCountsByCompartment(ctx context.Context, snapshotID string) (map[string]map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT COALESCE(compartment_id, ''), resource_type, COUNT(*)
		FROM resources WHERE snapshot_id = ?
		GROUP BY compartment_id, resource_type`, snapshotID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to count by compartment", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var compartmentID, resourceType string
		var count int
		if err := rows.Scan(&compartmentID, &resourceType, &count); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrorTypeStorage, "failed to scan count", err)
		}
		byType, exists := counts[compartmentID]
		if !exists {
			byType = make(map[string]int)
			counts[compartmentID] = byType
		}
		byType[resourceType] = count
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
