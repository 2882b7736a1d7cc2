package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshots, err := appState.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(snapshots)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Imported", "Owner"})
		for _, snapshot := range snapshots {
			table.Append([]string{
				snapshot.ID,
				snapshot.Name,
				snapshot.ImportedAt.Format("2006-01-02 15:04:05"),
				snapshot.Owner,
			})
		}
		table.Render()
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot-id>",
	Short: "Delete a snapshot and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appState.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted snapshot %s\n", args[0])
		return nil
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <snapshot-a> <snapshot-b>",
	Short: "Compare two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := appState.SnapshotDiff(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("added %d, removed %d, changed %d\n",
			len(result.Added), len(result.Removed), len(result.Changed))
		for _, ref := range result.Added {
			fmt.Printf("  + %s (%s)\n", ref.OCID, ref.ResourceType)
		}
		for _, ref := range result.Removed {
			fmt.Printf("  - %s (%s)\n", ref.OCID, ref.ResourceType)
		}
		for _, changed := range result.Changed {
			fmt.Printf("  ~ %s (%s)\n", changed.OCID, changed.ResourceType)
			for _, change := range changed.Changes {
				fmt.Printf("      %s: %v -> %v\n", change.Field, change.OldValue, change.NewValue)
			}
		}
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotDiffCmd)
}
