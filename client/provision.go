package main

import (
	"fmt"
	"time"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/client/ui"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var provisionCmd = &cobra.Command{
	Use:   "provision CLOUD [LABEL]",
	Short: "Provision build nodes matching a label",
	Long: `Provision build nodes on CLOUD for the given label expression.

With --image, a single node is provisioned from the template of that image
regardless of labels.`,
	Args: cobra.RangeArgs(1, 2),

	RunE: func(cmd *cobra.Command, args []string) error {
		demand := lo.Must(cmd.Flags().GetInt("demand"))
		wait := lo.Must(cmd.Flags().GetBool("wait"))
		image := lo.Must(cmd.Flags().GetString("image"))

		label := ""
		if len(args) > 1 {
			label = args[1]
		}
		if image != "" && label != "" {
			return fmt.Errorf("--image and a label are mutually exclusive")
		}

		s := ui.NewSpinner(fmt.Sprintf("Provisioning on '%s'", args[0]))
		started := time.Now()

		var response *api.ProvisionResponse
		var err error
		if image != "" {
			response, err = client.ProvisionTemplate(cmd.Context(), &api.ProvisionTemplateRequest{Cloud: args[0], Image: image, Wait: wait})
		} else {
			response, err = client.Provision(cmd.Context(), &api.ProvisionRequest{Cloud: args[0], Label: label, Demand: demand, Wait: wait})
		}
		if err != nil {
			s.Fail()
			return err
		}

		return reportPlanned(cmd, s, response, time.Since(started))
	},
}

func init() {
	provisionCmd.Flags().IntP("demand", "n", 1, "number of executors needed")
	provisionCmd.Flags().Bool("wait", true, "wait until every node finished launching")
	provisionCmd.Flags().String("image", "", "provision one node from the template of this image")
}

// reportPlanned prints the nodes a provisioning request created and fails
// when the request was interrupted or a launch did not succeed.
func reportPlanned(cmd *cobra.Command, s *ui.Spinner, response *api.ProvisionResponse, took time.Duration) error {
	failed := lo.CountBy(response.Nodes, func(n api.Node) bool {
		return n.Outcome != "" && n.Outcome != "success" && n.Outcome != "launching"
	})

	summary := fmt.Sprintf("%d node(s) in %s", len(response.Nodes), took.Truncate(time.Millisecond))
	switch {
	case response.Error != "" || failed > 0:
		s.Warn(summary)
	default:
		s.Success(summary)
	}

	if len(response.Nodes) > 0 {
		printNodes(cmd.OutOrStdout(), response.Nodes, time.Now())
	}

	if response.Error != "" {
		return fmt.Errorf("provisioning interrupted: %s", response.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d node(s) failed to launch", failed)
	}
	return nil
}
