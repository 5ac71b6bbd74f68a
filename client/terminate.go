package main

import (
	"errors"

	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/spf13/cobra"
)

var terminateCmd = &cobra.Command{
	Use:     "terminate NODE...",
	Aliases: []string{"rm"},
	Short:   "Terminate build nodes",
	Args:    cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		var errs []error
		for _, node := range args {
			if _, err := client.TerminateNode(cmd.Context(), &api.NodeRequest{Node: node}); err != nil {
				cmd.PrintErrln(color.HiRedString("Failed to terminate '%s': %s", node, err))
				errs = append(errs, err)
				continue
			}
			cmd.PrintErrln(color.HiGreenString("Terminated node '%s'", node))
		}
		return errors.Join(errs...)
	},
}
