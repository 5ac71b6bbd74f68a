package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/platformlayer/openstack-jenkins/cloud"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/presign"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/registry"
	"github.com/platformlayer/openstack-jenkins/retention"
	"github.com/platformlayer/openstack-jenkins/secret"
	"github.com/platformlayer/openstack-jenkins/server/flags"
	"github.com/platformlayer/openstack-jenkins/server/log"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

// Global context for shutdown cascading, cancelled by the signal handler.
var ctx, cancel = context.WithCancel(context.Background())

// wg tracks the retention loop and the servers; main exits once all are done.
var wg sync.WaitGroup

func main() {
	flags.Parse()

	// Setup logger first as this will be used to report progress of the rest of the setup
	if err := log.Init(); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, err))
		os.Exit(1)
	}
	log.Info("cloudd starting up...", "version", version, "commit", commit)

	dataRoot := viper.GetString(flags.Data)
	if err := os.MkdirAll(dataRoot, 0755); err != nil {
		log.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	reg, err := registry.Open(filepath.Join(dataRoot, "nodes.db"))
	if err != nil {
		log.Error("Failed to open node registry", "error", err)
		os.Exit(1)
	}
	defer reg.Close()

	logs, err := newLaunchLogs(filepath.Join(dataRoot, "logs"))
	if err != nil {
		log.Error("Failed to prepare launch logs", "error", err)
		os.Exit(1)
	}

	termination := node.TerminationMode(viper.GetString(flags.Termination))
	if termination != node.Lenient && termination != node.Strict {
		log.Error("Invalid termination mode", "termination", termination)
		os.Exit(1)
	}

	config, err := cloud.LoadConfig(viper.GetString(flags.Clouds))
	if err != nil {
		log.Error("Failed to load clouds", "error", err)
		os.Exit(1)
	}

	store := secret.DirStore{Root: viper.GetString(flags.Secrets)}
	profiles, err := loadProfiles(config, store, openstackConnector)
	if err != nil {
		log.Error("Failed to load cloud profiles", "error", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	setupInterrupts()

	runtimePath := viper.GetString(flags.RuntimePath)
	upload := viper.GetString(flags.RuntimeUpload)
	var signer presign.Presigner
	if runtimePath != "" || upload != "" {
		if signer, err = newPresigner(ctx, profiles, store); err != nil {
			log.Error("Failed to create runtime link signer", "error", err)
			os.Exit(1)
		}
	}
	if upload != "" {
		destination, err := uploadRuntime(ctx, profiles, upload, runtimePath)
		if err != nil {
			log.Error("Failed to upload runtime archive", "error", err)
			os.Exit(1)
		}
		runtimePath = destination.String()
	}

	policy := retention.New(viper.GetBool(flags.RetentionDisabled), log.Base)
	policy.IdleTimeout = viper.GetDuration(flags.IdleTimeout)

	set, err := newClouds(profiles, controllerDeps{
		registry:      reg,
		starter:       policy,
		logs:          logs,
		launch:        unixLauncher(runtimeSettings(runtimePath, signer), agentFromFile(viper.GetString(flags.AgentJar))),
		termination:   termination,
		maxConcurrent: viper.GetInt64(flags.MaxConcurrentLaunches),
	})
	if err != nil {
		log.Error("Failed to create clouds", "error", err)
		os.Exit(1)
	}

	s := newServer(set, reg, logs, viper.GetDuration(flags.WaitTimeout))
	restoreNodes(ctx, set, reg, s)

	// Retention goroutine: sweeps idle nodes until ctx is cancelled.
	wg.Add(1)
	go func() {
		defer wg.Done()
		policy.Run(ctx, viper.GetDuration(flags.RetentionInterval), reg.List)
	}()

	lis, err := net.Listen("tcp", viper.GetString(flags.Listen))
	if err != nil {
		log.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	// gRPC goroutine. A nested goroutine waits for shutdown and stops the
	// server gracefully, waiting for in-flight RPCs to complete. Then Serve()
	// returns and wg.Done() unblocks main.
	rpc := s.rpc()
	wg.Add(1)
	go func() {
		go func() {
			<-ctx.Done()
			rpc.GracefulStop()
		}()

		log.Info("Server listening", "address", lis.Addr())
		if err := rpc.Serve(lis); err != nil {
			log.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
		wg.Done()
	}()

	if address := viper.GetString(flags.Metrics); address != "" {
		app := s.metricsApp()
		wg.Add(1)
		go func() {
			go func() {
				<-ctx.Done()
				if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
					log.Warn("Failed to shut down metrics endpoint cleanly", "error", err)
				}
			}()

			log.Info("Metrics listening", "address", address)
			if err := app.Listen(address); err != nil {
				log.Error("Failed to serve metrics", "error", err)
				os.Exit(1)
			}
			wg.Done()
		}()
	}

	wg.Wait()
	log.Info("Shutdown completed. Bye!")
}

// restoreNodes re-attaches the nodes registered before the last shutdown.
// Records of vanished instances are dropped; other failures keep the record
// for the next start.
func restoreNodes(ctx context.Context, set *clouds, reg *registry.Registry, s *server) {
	records, err := reg.Records(ctx)
	if err != nil {
		log.Error("Failed to read registered nodes", "error", err)
		return
	}

	for _, record := range records {
		controller, ok := set.Get(record.Cloud)
		if !ok {
			log.Warn("Node belongs to an unknown cloud", "node", record.Name, "cloud", record.Cloud)
			continue
		}

		p, err := controller.Attach(ctx, record.ID)
		switch {
		case errors.Is(err, provider.ErrNotFound):
			log.Info("Registered instance is gone", "node", record.Name, "instance", record.ID)
			if err := reg.Remove(ctx, record.ID); err != nil {
				log.Warn("Failed to forget node", "node", record.Name, "error", err)
			}
		case err != nil:
			log.Warn("Failed to restore node", "node", record.Name, "error", err)
		default:
			log.Info("Restored node", "node", record.Name, "instance", record.ID)
			s.track(p)
		}
	}
}

// setupInterrupts handles Ctrl+C (SIGINT) with a double-tap pattern:
// - First signal: calls cancel() which cascades shutdown through ctx.Done() to all goroutines
// - Second signal: forces immediate exit (in case graceful shutdown hangs)
func setupInterrupts() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	go func() {
		<-sig
		log.Info("Shutdown signal received, attempting graceful shutdown")
		cancel()
		<-sig
		log.Warn("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()
}
