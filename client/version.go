package main

import (
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of cloudctl and of the server",

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("cloudctl version %s (%s)\n", version, shortCommit(commit))

		if response, err := client.Ping(cmd.Context(), &api.PingRequest{}); err != nil {
			return err
		} else {
			cmd.Printf("server version %s (%s)\n", response.Version, shortCommit(response.Commit))
			return nil
		}
	},
}

func shortCommit(commit string) string {
	return commit[:min(len(commit), 7)]
}
