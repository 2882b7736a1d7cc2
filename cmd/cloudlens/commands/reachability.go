package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudlens/internal/reachability"
)

var (
	reachSource      string
	reachDestination string
	reachProtocol    string
	reachPort        int
)

var verdictColors = map[reachability.Verdict]*color.Color{
	reachability.VerdictReachable: color.New(color.FgGreen, color.Bold),
	reachability.VerdictBlocked:   color.New(color.FgRed, color.Bold),
	reachability.VerdictPartial:   color.New(color.FgYellow, color.Bold),
	reachability.VerdictUnknown:   color.New(color.FgWhite),
}

var reachabilityCmd = &cobra.Command{
	Use:   "reachability <snapshot-id>",
	Short: "Evaluate network reachability within a snapshot",
	Long: `Evaluate reachability: give both --source and --destination for a
pair walk, only --source for fan-out, only --destination for fan-in. The
destination may be an IP, "internet", or "0.0.0.0/0".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := appState.AnalyzeReachability(cmd.Context(), reachability.Request{
			SnapshotID:    args[0],
			SourceIP:      reachSource,
			DestinationIP: reachDestination,
			Protocol:      reachProtocol,
			Port:          reachPort,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		verdict := string(result.Verdict)
		if c, exists := verdictColors[result.Verdict]; exists {
			verdict = c.Sprint(verdict)
		}
		fmt.Printf("%s: %s\n", verdict, result.VerdictDetail)
		for _, hop := range result.Hops {
			marker := " "
			switch hop.Status {
			case reachability.StatusDeny:
				marker = "x"
			case reachability.StatusUnknown:
				marker = "?"
			}
			fmt.Printf("  [%s] %-4s %s", marker, hop.Type, hop.Label)
			if hop.Details != "" {
				fmt.Printf("  (%s)", hop.Details)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	reachabilityCmd.Flags().StringVar(&reachSource, "source", "", "source IP")
	reachabilityCmd.Flags().StringVar(&reachDestination, "destination", "", "destination IP, \"internet\", or \"0.0.0.0/0\"")
	reachabilityCmd.Flags().StringVar(&reachProtocol, "protocol", "", "protocol number: 6 (TCP), 17 (UDP), 1 (ICMP)")
	reachabilityCmd.Flags().IntVar(&reachPort, "port", 0, "destination port")
}
