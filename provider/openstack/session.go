// Package openstack implements the provider interfaces on top of gophercloud.
package openstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/platformlayer/openstack-jenkins/provider"
)

type Options struct {
	// FileInjection tells whether the compute service accepts personality files.
	FileInjection bool
	Logger        *slog.Logger
}

type Session struct {
	client  *gophercloud.ProviderClient
	region  string
	compute *Compute
	log     *slog.Logger

	storageOnce sync.Once
	storage     *Storage
	storageErr  error
}

// Session implements provider.Session
var _ provider.Session = (*Session)(nil)

// Connect authenticates against the identity endpoint and binds a compute client.
func Connect(ctx context.Context, creds provider.Credentials, opts Options) (*Session, error) {
	if creds.AuthURL == "" {
		return nil, provider.WithKind(provider.ErrConfiguration, errors.New("missing identity endpoint"))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := openstack.NewClient(creds.AuthURL)
	if err != nil {
		return nil, provider.WithKind(provider.ErrConfiguration, fmt.Errorf("invalid identity endpoint '%s': %w", creds.AuthURL, err))
	}
	client.Context = ctx

	err = openstack.Authenticate(client, gophercloud.AuthOptions{
		IdentityEndpoint: creds.AuthURL,
		Username:         creds.AccessID,
		Password:         creds.SecretKey.Reveal(),
		TenantName:       creds.Tenant,
		DomainName:       creds.Domain,
		AllowReauth:      true,
	})
	if err != nil {
		return nil, classify(err, "failed to authenticate against '%s'", creds.AuthURL)
	}
	// The session outlives the context it was created with.
	client.Context = nil

	computeClient, err := openstack.NewComputeV2(client, gophercloud.EndpointOpts{Region: creds.Region})
	if err != nil {
		return nil, classify(err, "failed to get compute client")
	}

	logger.Debug("Authenticated", "endpoint", creds.AuthURL, "tenant", creds.Tenant, "region", creds.Region)

	return &Session{
		client: client,
		region: creds.Region,
		compute: &Compute{
			client:        computeClient,
			fileInjection: opts.FileInjection,
		},
		log: logger,
	}, nil
}

func (s *Session) Compute() provider.Compute {
	return s.compute
}

// Storage lazily binds the object storage client; not every cloud has one.
func (s *Session) Storage() (provider.Storage, error) {
	s.storageOnce.Do(func() {
		client, err := openstack.NewObjectStorageV1(s.client, gophercloud.EndpointOpts{Region: s.region})
		if err != nil {
			s.storageErr = classify(err, "failed to get object storage client")
			return
		}
		s.storage = &Storage{client: client}
	})
	if s.storageErr != nil {
		return nil, s.storageErr
	}
	return s.storage, nil
}
