package main

import (
	"fmt"
	"time"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/client/ui"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach CLOUD INSTANCE",
	Short: "Adopt an existing instance as a build node",
	Args:  cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		wait := lo.Must(cmd.Flags().GetBool("wait"))

		s := ui.NewSpinner(fmt.Sprintf("Attaching '%s'", args[1]))
		started := time.Now()

		response, err := client.Attach(cmd.Context(), &api.AttachRequest{Cloud: args[0], Instance: args[1], Wait: wait})
		if err != nil {
			s.Fail()
			return err
		}
		return reportPlanned(cmd, s, response, time.Since(started))
	},
}

func init() {
	attachCmd.Flags().Bool("wait", true, "wait until the agent is connected")
}
