package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/spf13/cobra"
)

var cloudsCmd = &cobra.Command{
	Use:   "clouds",
	Short: "List configured clouds and their templates",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := client.ListClouds(cmd.Context(), &api.ListCloudsRequest{})
		if err != nil {
			return err
		}

		for _, c := range list.Clouds {
			limit := "unlimited"
			if c.InstanceCap != nil {
				limit = fmt.Sprintf("at most %d instances", *c.InstanceCap)
			}
			cmd.Printf("%s (%s)\n", color.HiCyanString(c.ID), limit)

			for _, t := range c.Templates {
				cmd.Printf("  %-24s  %-12s  %-10s  %s\n", t.Image, t.Flavor, t.Zone, strings.Join(t.Labels, " "))
				if t.Description != "" && verbose {
					cmd.Printf("    %s\n", t.Description)
				}
			}
		}
		return nil
	},
}

var cloudsTestCmd = &cobra.Command{
	Use:   "test CLOUD",
	Short: "Check the credentials of a cloud by listing its flavors",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.TestConnection(cmd.Context(), &api.CloudRequest{Cloud: args[0]})
		if err != nil {
			return err
		}

		cmd.PrintErrln(color.HiGreenString("Connected to '%s'", args[0]))
		for _, f := range result.Flavors {
			cmd.Printf("%-12s  %2d vCPU  %6d MiB  %4d GiB\n", f.Name, f.VCPUs, f.RAM, f.Disk)
		}
		return nil
	},
}

var cloudsZonesCmd = &cobra.Command{
	Use:   "zones CLOUD",
	Short: "List the availability zones of a cloud",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := client.ListZones(cmd.Context(), &api.CloudRequest{Cloud: args[0]})
		if err != nil {
			return err
		}

		for _, z := range list.Zones {
			if z.Available {
				cmd.Printf("%s\n", z.Name)
			} else {
				cmd.Printf("%s %s\n", z.Name, color.HiYellowString("(unavailable)"))
			}
		}
		return nil
	},
}

var cloudsImageCmd = &cobra.Command{
	Use:   "image CLOUD IMAGE",
	Short: "Check that an image exists and is usable",
	Args:  cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := client.ValidateImage(cmd.Context(), &api.ImageRequest{Cloud: args[0], Image: args[1]})
		if err != nil {
			return err
		}
		cmd.Printf("%-8s %s\n", "ID:", image.ID)
		cmd.Printf("%-8s %s\n", "Name:", image.Name)
		cmd.Printf("%-8s %s\n", "Status:", image.Status)
		return nil
	},
}

func init() {
	cloudsCmd.AddCommand(cloudsTestCmd, cloudsZonesCmd, cloudsImageCmd)
}
