package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/platformlayer/openstack-jenkins/cloud"
	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/launcher"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/presign"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/provider/openstack"
	"github.com/platformlayer/openstack-jenkins/remote"
	"github.com/platformlayer/openstack-jenkins/secret"
	"github.com/platformlayer/openstack-jenkins/server/flags"
	"github.com/platformlayer/openstack-jenkins/server/log"
	"github.com/platformlayer/openstack-jenkins/storage"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// clouds is the set of configured controllers, in configuration order.
type clouds struct {
	order       []string
	controllers map[string]*cloud.Controller
}

func (c *clouds) Get(id string) (*cloud.Controller, bool) {
	controller, ok := c.controllers[id]
	return controller, ok
}

func (c *clouds) All() []*cloud.Controller {
	return lo.Map(c.order, func(id string, _ int) *cloud.Controller { return c.controllers[id] })
}

// controllerDeps is everything a controller needs besides its profile.
type controllerDeps struct {
	registry      node.Registry
	starter       cloud.Starter
	logs          *launchLogs
	launch        func(profile *cloud.Profile) (launcher.Launcher, error)
	termination   node.TerminationMode
	maxConcurrent int64
}

func loadProfiles(config cloud.Config, store secret.Store, connect func(cloud.ProfileConfig) cloud.Connector) ([]*cloud.Profile, error) {
	profiles := make([]*cloud.Profile, 0, len(config.Clouds))
	for _, profileConfig := range config.Clouds {
		profile, err := cloud.NewProfile(profileConfig, store, connect(profileConfig), log.Base)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func newClouds(profiles []*cloud.Profile, deps controllerDeps) (*clouds, error) {
	set := &clouds{controllers: map[string]*cloud.Controller{}}
	manager := keys.NewManager(log.Base)

	for _, profile := range profiles {
		l, err := deps.launch(profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create launcher of cloud '%s': %w", profile.ID(), err)
		}

		set.order = append(set.order, profile.ID())
		set.controllers[profile.ID()] = cloud.NewController(cloud.ControllerConfig{
			Profile:       profile,
			Keys:          manager,
			Registry:      deps.registry,
			Launcher:      l,
			Starter:       deps.starter,
			LogSink:       deps.logs.Open,
			Termination:   deps.termination,
			MaxConcurrent: deps.maxConcurrent,
			Logger:        log.Base,
		})
		log.Info("Loaded cloud", "cloud", profile.ID(), "templates", len(profile.Templates()))
	}
	return set, nil
}

// openstackConnector connects with the file injection setting of the profile.
func openstackConnector(config cloud.ProfileConfig) cloud.Connector {
	return func(ctx context.Context, credentials provider.Credentials) (provider.Session, error) {
		return openstack.Connect(ctx, credentials, openstack.Options{
			FileInjection: config.FileInjection,
			Logger:        log.Base.With("cloud", config.ID),
		})
	}
}

// unixLauncher builds the SSH launch strategy of a profile from the daemon flags.
func unixLauncher(runtime launcher.Runtime, agent launcher.AgentSource) func(*cloud.Profile) (launcher.Launcher, error) {
	return func(profile *cloud.Profile) (launcher.Launcher, error) {
		return launcher.New(launcher.Kind(viper.GetString(flags.Launcher)), launcher.Config{
			PollInterval: viper.GetDuration(flags.PollInterval),
			Unix: launcher.Unix{
				Transport: remote.SSH{DialTimeout: viper.GetDuration(flags.SSHDialTimeout)},
				KeyPair:   profile.KeyPair(),
				Connect:   launcher.ConnectPolicy,
				Auth:      launcher.AuthPolicy,
				ExitPoll:  launcher.ExitPollPolicy,
				Runtime:   runtime,
				Agent:     agent,
			},
		})
	}
}

// agentFromFile reads the agent binary on every launch so it can be replaced
// without restarting the daemon.
func agentFromFile(path string) launcher.AgentSource {
	return func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read agent '%s': %w", path, err)
		}
		return data, nil
	}
}

// runtimeSettings reads the runtime flags. Without a runtime path no signer is
// set, and nodes lacking the runtime fail to launch.
func runtimeSettings(path string, signer presign.Presigner) launcher.Runtime {
	runtime := launcher.Runtime{
		Check:   viper.GetString(flags.RuntimeCheck),
		Archive: viper.GetString(flags.RuntimeArchive),
		Path:    path,
		TTL:     viper.GetDuration(flags.RuntimeTTL),
	}
	if signer != nil && path != "" {
		runtime.Signer = signer
	}
	return runtime
}

// newPresigner builds the signer of runtime links chosen by the presign flag.
func newPresigner(ctx context.Context, profiles []*cloud.Profile, store secret.Store) (presign.Presigner, error) {
	switch kind := viper.GetString(flags.Presign); kind {
	case "swift":
		profile, err := storageProfile(profiles)
		if err != nil {
			return nil, err
		}
		return &presign.Swift{Storage: profile.Storage}, nil
	case "s3":
		var secretKey secret.Secret
		if ref := viper.GetString(flags.S3SecretKeyRef); ref != "" {
			loaded, err := store.Load(ref)
			if err != nil {
				return nil, fmt.Errorf("failed to load S3 secret key: %w", err)
			}
			secretKey = loaded
		}
		return presign.NewS3(ctx, presign.S3Options{
			Endpoint:  viper.GetString(flags.S3Endpoint),
			Region:    viper.GetString(flags.S3Region),
			AccessKey: viper.GetString(flags.S3AccessKey),
			SecretKey: secretKey,
			PathStyle: viper.GetBool(flags.S3PathStyle),
		})
	default:
		return nil, fmt.Errorf("unknown presigner '%s'", kind)
	}
}

// storageProfile is the cloud whose object storage holds the runtime archive.
func storageProfile(profiles []*cloud.Profile) (*cloud.Profile, error) {
	id := viper.GetString(flags.PresignCloud)
	if id == "" {
		if len(profiles) == 0 {
			return nil, fmt.Errorf("no cloud configured to hold the runtime archive")
		}
		return profiles[0], nil
	}

	profile, ok := lo.Find(profiles, func(p *cloud.Profile) bool { return p.ID() == id })
	if !ok {
		return nil, fmt.Errorf("unknown cloud '%s'", id)
	}
	return profile, nil
}

// uploadRuntime publishes a local runtime tarball into userBucket of the
// storage cloud and returns the object path nodes download it from.
func uploadRuntime(ctx context.Context, profiles []*cloud.Profile, local, userBucket string) (storage.Destination, error) {
	profile, err := storageProfile(profiles)
	if err != nil {
		return storage.Destination{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	store, err := profile.Storage(ctx)
	if err != nil {
		return storage.Destination{}, fmt.Errorf("failed to get object storage of cloud '%s': %w", profile.ID(), err)
	}

	destination, err := storage.Upload(ctx, store, userBucket, local)
	if err != nil {
		return storage.Destination{}, err
	}
	log.Info("Uploaded runtime archive", "cloud", profile.ID(), "destination", destination)
	return destination, nil
}
