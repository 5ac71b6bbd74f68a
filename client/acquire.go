package main

import (
	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/spf13/cobra"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire NODE",
	Short: "Mark a build as running on a node",
	Long: `Mark a build as running on NODE. A node with running builds is never
reclaimed for idleness; release it once the build is over.`,
	Args: cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client.AcquireNode(cmd.Context(), &api.NodeRequest{Node: args[0]})
		if err != nil {
			return err
		}
		cmd.PrintErrln(color.HiGreenString("Acquired node '%s'", n.Name))
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release NODE",
	Short: "Mark a build on a node as finished",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client.ReleaseNode(cmd.Context(), &api.NodeRequest{Node: args[0]})
		if err != nil {
			return err
		}
		if n.Idle {
			cmd.PrintErrln(color.HiGreenString("Released node '%s', now idle", n.Name))
		} else {
			cmd.PrintErrln(color.HiGreenString("Released node '%s', still busy", n.Name))
		}
		return nil
	},
}
