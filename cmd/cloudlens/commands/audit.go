package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudlens/internal/audit"
)

var severityColors = map[audit.Severity]*color.Color{
	audit.SeverityCritical: color.New(color.FgRed, color.Bold),
	audit.SeverityHigh:     color.New(color.FgRed),
	audit.SeverityMedium:   color.New(color.FgYellow),
	audit.SeverityLow:      color.New(color.FgCyan),
}

var auditCmd = &cobra.Command{
	Use:   "audit <snapshot-id>",
	Short: "Run the security rule set against a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := appState.RunAudit(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Severity", "Finding", "Count", "Framework"})
		table.SetAutoWrapText(false)
		for _, group := range report.GroupedFindings {
			severity := string(group.Severity)
			if c, exists := severityColors[group.Severity]; exists {
				severity = c.Sprint(severity)
			}
			table.Append([]string{severity, group.Title, fmt.Sprint(group.Count), group.Framework})
		}
		table.Render()
		fmt.Printf("critical %d, high %d, medium %d, low %d (%d findings)\n",
			report.Summary.Critical, report.Summary.High,
			report.Summary.Medium, report.Summary.Low, report.Summary.Total)
		return nil
	},
}

var tagsRequired []string

var tagsCmd = &cobra.Command{
	Use:   "tags <snapshot-id>",
	Short: "Check tag compliance across a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		required := tagsRequired
		if len(required) == 0 {
			required = cfg.Audit.RequiredTags
		}
		report, err := appState.RunTagCompliance(cmd.Context(), args[0], required)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("%d/%d resources compliant (%.2f%%)\n",
			report.CompliantResources, report.TotalResources, report.Percentage)
		for _, key := range report.RequiredTags {
			fmt.Printf("  %s: %d resources tagged\n", key, report.TagCounts[key])
		}
		if len(report.NonCompliant) > 0 {
			fmt.Printf("non-compliant (showing %d):\n", len(report.NonCompliant))
			for _, ref := range report.NonCompliant {
				fmt.Printf("  %s (%s)\n", ref.OCID, ref.ResourceType)
			}
		}
		return nil
	},
}

func init() {
	tagsCmd.Flags().StringSliceVar(&tagsRequired, "required", nil, "required tag keys (overrides config)")
}
