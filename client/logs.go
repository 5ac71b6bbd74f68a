package main

import (
	"context"
	"fmt"
	"io"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:     "logs NODE",
	Aliases: []string{"tail"},
	Short:   "Show the launch log of a node",
	Args:    cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := cmd.Flags().GetInt("lines")
		if err != nil {
			return err
		}

		follow, err := cmd.Flags().GetBool("follow")
		if err != nil {
			return err
		}

		c, err := client.StreamNodeLog(cmd.Context(), &api.LogRequest{
			Node:      args[0],
			TailLines: lines,
			Follow:    follow,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch launch log: %w", err)
		}

		if err := recvLogsLoop(cmd.Context(), c.Recv, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("failed to fetch launch log: %w", err)
		}
		return nil
	},
}

// recvLogsLoop reads log chunks from the stream and writes them to w.
// Returns nil on EOF or context cancellation, error on stream failure.
func recvLogsLoop(ctx context.Context, recv func() (*api.LogChunk, error), w io.Writer) error {
	for {
		chunk, err := recv()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fromStatus(err)
		}

		if _, err := w.Write(chunk.Data); err != nil {
			return err
		}
	}
}

func init() {
	logsCmd.Flags().IntP("lines", "n", 100, "number of lines to tail, -1 for the whole log")
	logsCmd.Flags().BoolP("follow", "f", false, "keep streaming while the node is launching")
}
