package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudlens/internal/topology"
)

var (
	topologyView        string
	topologyCompartment string
)

var topologyCmd = &cobra.Command{
	Use:   "topology <snapshot-id>",
	Short: "Build a topology view of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view := topology.ViewType(strings.ToUpper(topologyView))
		result, err := appState.BuildTopology(cmd.Context(), args[0], topologyCompartment, view)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("%s view: %d nodes, %d edges (total %d, truncated %v)\n",
			view, len(result.Nodes), len(result.Edges), result.TotalCount, result.Truncated)
		for _, node := range result.Nodes {
			indent := ""
			if node.ParentID != "" {
				indent = "  "
			}
			fmt.Printf("%s%s [%s] %s\n", indent, node.Label, node.Type, node.OCID)
		}
		return nil
	},
}

func init() {
	topologyCmd.Flags().StringVar(&topologyView, "view", "NETWORK",
		"view type: NETWORK, COMPARTMENT, DEPENDENCY, or EXPOSURE")
	topologyCmd.Flags().StringVar(&topologyCompartment, "compartment", "",
		"scope to a compartment subtree (OCID)")
}
