package audit

import (
	"context"
	"math"
	"time"

	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/metrics"
	"github.com/catherinevee/cloudlens/internal/store"
)

// RunTagCompliance checks every resource of the snapshot for the required
// tag keys, iterating cursor-paginated chunks. A key counts as present when
// it is a freeform tag or appears inside any defined-tag namespace. The
// non-compliant list is capped at MaxMissingTagResources.
func (e *Engine) RunTagCompliance(ctx context.Context, snapshotID string, requiredTags []string) (*TagReport, error) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues("tags").Observe(time.Since(start).Seconds())
	}()

	report := &TagReport{
		RequiredTags: requiredTags,
		TagCounts:    make(map[string]int, len(requiredTags)),
	}
	if len(requiredTags) == 0 {
		report.Percentage = 100
		return report, nil
	}

	cursor := ""
	for {
		if ctx.Err() != nil {
			return &TagReport{RequiredTags: requiredTags, TagCounts: map[string]int{}}, nil
		}
		page, err := e.store.ListResources(ctx, store.ResourceQuery{
			SnapshotID: snapshotID,
			Cursor:     cursor,
			Limit:      auditChunkSize,
		})
		if err != nil {
			return nil, err
		}
		for i := range page.Resources {
			resource := &page.Resources[i]
			report.TotalResources++

			compliant := true
			for _, key := range requiredTags {
				present := false
				if _, exists := resource.FreeformTags[key]; exists {
					present = true
				} else {
					for _, namespaceValue := range resource.DefinedTags {
						if namespace, ok := namespaceValue.(map[string]interface{}); ok {
							if _, exists := namespace[key]; exists {
								present = true
								break
							}
						}
					}
				}
				if present {
					report.TagCounts[key]++
				} else {
					compliant = false
				}
			}
			if compliant {
				report.CompliantResources++
			} else if len(report.NonCompliant) < MaxMissingTagResources {
				report.NonCompliant = append(report.NonCompliant, resource.Ref())
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if report.TotalResources > 0 {
		ratio := float64(report.CompliantResources) / float64(report.TotalResources) * 100
		report.Percentage = math.Round(ratio*100) / 100
	}
	e.log.Info("tag compliance complete",
		logger.String("snapshot_id", snapshotID),
		logger.Int("total", report.TotalResources),
		logger.Int("compliant", report.CompliantResources))
	return report, nil
}
