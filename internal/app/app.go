// Package app wires the store and the analytical engines into the
// in-process entry points a serving layer (or the CLI) consumes.
package app

import (
	"context"
	"time"

	"github.com/catherinevee/cloudlens/internal/audit"
	"github.com/catherinevee/cloudlens/internal/diff"
	"github.com/catherinevee/cloudlens/internal/ingest"
	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/models"
	"github.com/catherinevee/cloudlens/internal/reachability"
	"github.com/catherinevee/cloudlens/internal/store"
	"github.com/catherinevee/cloudlens/internal/topology"
)

// App owns the store handle and the engines. The store is shared and
// thread-safe; analyses run concurrently, ingestion is serialised per
// snapshot by construction.
type App struct {
	Store        store.Store
	ingestor     *ingest.Ingestor
	topology     *topology.Builder
	reachability *reachability.Analyzer
	audit        *audit.Engine
	differ       *diff.Differ
	log          logger.Logger
}

// New wires an app over the given store. ingestCeiling bounds one ingest
// run; zero means unbounded.
func New(s store.Store, ingestCeiling time.Duration) *App {
	return &App{
		Store:        s,
		ingestor:     ingest.NewIngestor(s, ingestCeiling),
		topology:     topology.NewBuilder(s),
		reachability: reachability.NewAnalyzer(s),
		audit:        audit.NewEngine(s),
		differ:       diff.NewDiffer(s),
		log:          logger.New("app"),
	}
}

// ParseResources exposes the parser set directly: one exported JSON
// document in, parsed resources out. explicitType pins the type; empty
// engages auto-detection.
func (a *App) ParseResources(raw []byte, explicitType string) []models.ParsedResource {
	return ingest.ParseResources(raw, explicitType)
}

// Ingest materialises export files into a new snapshot.
func (a *App) Ingest(ctx context.Context, snapshot *models.Snapshot, paths []string) (*models.IngestReport, error) {
	return a.ingestor.Ingest(ctx, snapshot, paths)
}

// RunAudit applies the rule set to a snapshot.
func (a *App) RunAudit(ctx context.Context, snapshotID string) (*audit.Report, error) {
	return a.audit.Run(ctx, snapshotID)
}

// RunTagCompliance checks required tag keys across a snapshot.
func (a *App) RunTagCompliance(ctx context.Context, snapshotID string, requiredTags []string) (*audit.TagReport, error) {
	return a.audit.RunTagCompliance(ctx, snapshotID, requiredTags)
}

// BuildTopology renders one view of a snapshot.
func (a *App) BuildTopology(ctx context.Context, snapshotID, compartmentID string, view topology.ViewType) (*topology.Result, error) {
	return a.topology.Build(ctx, snapshotID, compartmentID, view)
}

// AnalyzeReachability evaluates a reachability question.
func (a *App) AnalyzeReachability(ctx context.Context, req reachability.Request) (*reachability.Result, error) {
	return a.reachability.Analyze(ctx, req)
}

// SnapshotDiff compares two snapshots.
func (a *App) SnapshotDiff(ctx context.Context, snapshotA, snapshotB string) (*diff.Result, error) {
	return a.differ.Diff(ctx, snapshotA, snapshotB)
}

// ListSnapshots lists the snapshots held by the store.
func (a *App) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	return a.Store.ListSnapshots(ctx)
}

// DeleteSnapshot removes a snapshot and everything it owns.
func (a *App) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	return a.Store.DeleteSnapshot(ctx, snapshotID)
}
