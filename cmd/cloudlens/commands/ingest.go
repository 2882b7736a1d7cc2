package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudlens/internal/models"
)

var (
	ingestName        string
	ingestDescription string
	ingestOwner       string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files or directories...]",
	Short: "Materialise export files into a new snapshot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandPaths(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no .json or .zip files found under the given paths")
		}

		snapshot := &models.Snapshot{
			Name:        ingestName,
			Description: ingestDescription,
			Owner:       ingestOwner,
		}

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(fmt.Sprintf("ingesting %d files", len(paths))),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		type outcome struct {
			report *models.IngestReport
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			report, err := appState.Ingest(cmd.Context(), snapshot, paths)
			done <- outcome{report, err}
		}()
		var result outcome
	spin:
		for {
			select {
			case result = <-done:
				break spin
			case <-time.After(100 * time.Millisecond):
				_ = bar.Add(1)
			}
		}
		_ = bar.Finish()
		if result.err != nil {
			return result.err
		}
		report := result.report

		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("snapshot %s: %d resources, %d relations, %d blobs from %d files (%d failed) in %s\n",
			report.SnapshotID, report.ResourceCount, report.RelationCount, report.BlobCount,
			report.FilesTotal, report.FilesFailed, report.Duration.Round(1e6))
		for path, message := range report.Errors {
			fmt.Printf("  skipped %s: %s\n", path, message)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestName, "name", "snapshot", "snapshot name")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "snapshot description")
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "cloudlens", "snapshot owner")
}

// expandPaths resolves directories to the export files inside them.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch filepath.Ext(entry.Name()) {
			case ".json", ".zip":
				out = append(out, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return out, nil
}
