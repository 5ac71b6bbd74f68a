package main

import (
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console NODE",
	Short: "Print the console output of a node's instance",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		console, err := client.Console(cmd.Context(), &api.ConsoleRequest{Node: args[0], Lines: lo.Must(cmd.Flags().GetInt("lines"))})
		if err != nil {
			return err
		}
		cmd.Print(console.Output)
		return nil
	},
}

func init() {
	consoleCmd.Flags().IntP("lines", "n", 50, "number of console lines to fetch")
}
