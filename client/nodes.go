package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:     "nodes",
	Aliases: []string{"ps", "ls"},
	Short:   "List provisioned build nodes",
	Args:    cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		cloud := lo.Must(cmd.Flags().GetString("cloud"))
		refresh := lo.Must(cmd.Flags().GetBool("refresh"))

		list, err := client.ListNodes(cmd.Context(), &api.ListNodesRequest{Cloud: cloud, Refresh: refresh})
		if err != nil {
			return err
		}
		if len(list.Nodes) == 0 {
			cmd.PrintErrln("No nodes")
			return nil
		}

		printNodes(cmd.OutOrStdout(), list.Nodes, time.Now())
		return nil
	},
}

func init() {
	nodesCmd.Flags().StringP("cloud", "c", "", "only list the nodes of this cloud")
	nodesCmd.Flags().Bool("refresh", false, "query the cloud instead of using cached instance details")
}

// printNodes writes one line per node. Columns are padded before colouring
// so escape codes do not break the alignment.
func printNodes(w io.Writer, nodes []api.Node, now time.Time) {
	nameWidth := len("NAME")
	for _, n := range nodes {
		nameWidth = max(nameWidth, len(n.Name))
	}

	fmt.Fprintf(w, "%-*s  %-10s  %-11s  %-15s  %-9s  %s\n", nameWidth, "NAME", "CLOUD", "STATE", "ADDRESS", "EXECUTORS", "STATUS")
	for _, n := range nodes {
		fmt.Fprintf(
			w, "%s  %-10s  %s  %-15s  %-9d  %s\n",
			color.HiCyanString("%-*s", nameWidth, n.Name),
			n.Cloud,
			stateColor(n.State)("%-11s", n.State),
			lo.Ternary(n.Address == "", "-", n.Address),
			n.Executors,
			nodeStatus(n, now),
		)
	}
}

func stateColor(state string) func(format string, a ...any) string {
	switch state {
	case "active":
		return color.HiGreenString
	case "starting", "terminating":
		return color.HiYellowString
	case "terminated":
		return color.HiRedString
	default:
		return fmt.Sprintf
	}
}

// nodeStatus summarises the launch and agent state of a node.
func nodeStatus(n api.Node, now time.Time) string {
	switch {
	case n.Outcome == "launching":
		return "launching"
	case n.Outcome != "" && n.Outcome != "success":
		if n.Error != "" {
			return color.HiRedString("%s: %s", n.Outcome, n.Error)
		}
		return color.HiRedString("%s", n.Outcome)
	case !n.Connected:
		return "offline"
	case n.Idle && !n.IdleSince.IsZero():
		return fmt.Sprintf("idle for %s", now.Sub(n.IdleSince).Truncate(time.Second))
	case n.Idle:
		return "idle"
	default:
		return "busy"
	}
}
