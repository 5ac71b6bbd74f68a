package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/proto"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var clientConn *grpc.ClientConn
var client proto.CloudClient

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cloudctl",
	Short: "cloudctl drives the cloudd build node provisioner.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if clientConn == nil {
			return nil
		}
		conn := clientConn
		clientConn, client = nil, nil
		return conn.Close()
	},
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return connect(lo.Must(cmd.Flags().GetString("remote")))
	}

	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(cloudsCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("remote", lo.Must(lo.Coalesce(os.Getenv("CLOUDCTL_REMOTE"), api.DefaultAddress)), "the cloudd gRPC address")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
