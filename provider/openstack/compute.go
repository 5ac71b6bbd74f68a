package openstack

import (
	"context"
	"errors"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/availabilityzones"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/startstop"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/images"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/samber/lo"
)

type Compute struct {
	client        *gophercloud.ServiceClient
	fileInjection bool
}

// Compute implements provider.Compute
var _ provider.Compute = (*Compute)(nil)

// Capabilities queries the keypair extension; a cloud without it answers 404.
func (c *Compute) Capabilities(ctx context.Context) (provider.Capabilities, error) {
	caps := provider.Capabilities{SSHKeys: true, FileInjection: c.fileInjection}

	_, err := c.ListKeyPairs(ctx)
	if errors.Is(err, provider.ErrNotFound) {
		caps.SSHKeys = false
	} else if err != nil {
		return caps, err
	}
	return caps, nil
}

func (c *Compute) CreateServer(_ context.Context, request provider.CreateRequest) (*provider.Server, error) {
	opts := servers.CreateOpts{
		Name:             request.Name,
		ImageRef:         request.ImageRef,
		FlavorRef:        request.FlavorRef,
		AvailabilityZone: request.Zone,
		SecurityGroups:   request.SecurityGroups,
		Metadata:         request.Metadata,
	}
	if len(request.Networks) > 0 {
		opts.Networks = lo.Map(request.Networks, func(uuid string, _ int) servers.Network {
			return servers.Network{UUID: uuid}
		})
	}
	for _, file := range request.Files {
		opts.Personality = append(opts.Personality, &servers.File{Path: file.Path, Contents: file.Contents})
	}

	var builder servers.CreateOptsBuilder = opts
	if request.KeyName != "" {
		builder = keypairs.CreateOptsExt{CreateOptsBuilder: opts, KeyName: request.KeyName}
	}

	server, err := servers.Create(c.client, builder).Extract()
	if err != nil {
		return nil, classify(err, "failed to create server '%s'", request.Name)
	}
	return convertServer(server), nil
}

func (c *Compute) GetServer(_ context.Context, id string) (*provider.Server, error) {
	server, err := servers.Get(c.client, id).Extract()
	if err != nil {
		return nil, classify(err, "failed to get server '%s'", id)
	}
	return convertServer(server), nil
}

func (c *Compute) ListServers(_ context.Context) ([]provider.Server, error) {
	pages, err := servers.List(c.client, servers.ListOpts{}).AllPages()
	if err != nil {
		return nil, classify(err, "failed to list servers")
	}

	all, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, classify(err, "failed to extract servers")
	}

	return lo.Map(all, func(server servers.Server, _ int) provider.Server {
		return *convertServer(&server)
	}), nil
}

func (c *Compute) DeleteServer(_ context.Context, id string) error {
	return classify(servers.Delete(c.client, id).ExtractErr(), "failed to delete server '%s'", id)
}

func (c *Compute) StopServer(_ context.Context, id string) error {
	return classify(startstop.Stop(c.client, id).ExtractErr(), "failed to stop server '%s'", id)
}

func (c *Compute) ConsoleOutput(_ context.Context, id string, lines int) (string, error) {
	output, err := servers.ShowConsoleOutput(c.client, id, servers.ShowConsoleOutputOpts{Length: lines}).Extract()
	if err != nil {
		return "", classify(err, "failed to get console output of server '%s'", id)
	}
	return output, nil
}

func (c *Compute) GetFlavor(_ context.Context, id string) (*provider.Flavor, error) {
	flavor, err := flavors.Get(c.client, id).Extract()
	if err != nil {
		return nil, classify(err, "failed to get flavor '%s'", id)
	}
	return convertFlavor(*flavor), nil
}

func (c *Compute) ListFlavors(_ context.Context) ([]provider.Flavor, error) {
	pages, err := flavors.ListDetail(c.client, flavors.ListOpts{}).AllPages()
	if err != nil {
		return nil, classify(err, "failed to list flavors")
	}

	all, err := flavors.ExtractFlavors(pages)
	if err != nil {
		return nil, classify(err, "failed to extract flavors")
	}

	return lo.Map(all, func(flavor flavors.Flavor, _ int) provider.Flavor {
		return *convertFlavor(flavor)
	}), nil
}

func (c *Compute) GetImage(_ context.Context, id string) (*provider.Image, error) {
	image, err := images.Get(c.client, id).Extract()
	if err != nil {
		return nil, classify(err, "failed to get image '%s'", id)
	}
	return &provider.Image{ID: image.ID, Name: image.Name, Status: image.Status}, nil
}

func (c *Compute) ListZones(_ context.Context) ([]provider.Zone, error) {
	pages, err := availabilityzones.List(c.client).AllPages()
	if err != nil {
		return nil, classify(err, "failed to list availability zones")
	}

	all, err := availabilityzones.ExtractAvailabilityZones(pages)
	if err != nil {
		return nil, classify(err, "failed to extract availability zones")
	}

	return lo.Map(all, func(zone availabilityzones.AvailabilityZone, _ int) provider.Zone {
		return provider.Zone{Name: zone.ZoneName, Available: zone.ZoneState.Available}
	}), nil
}

func (c *Compute) ListKeyPairs(_ context.Context) ([]provider.KeyPair, error) {
	pages, err := keypairs.List(c.client, nil).AllPages()
	if err != nil {
		return nil, classify(err, "failed to list keypairs")
	}

	all, err := keypairs.ExtractKeyPairs(pages)
	if err != nil {
		return nil, classify(err, "failed to extract keypairs")
	}

	return lo.Map(all, func(kp keypairs.KeyPair, _ int) provider.KeyPair {
		return provider.KeyPair{Name: kp.Name, Fingerprint: kp.Fingerprint, PublicKey: kp.PublicKey}
	}), nil
}

func (c *Compute) CreateKeyPair(_ context.Context, name string, publicKey string) (*provider.KeyPair, error) {
	kp, err := keypairs.Create(c.client, keypairs.CreateOpts{Name: name, PublicKey: publicKey}).Extract()
	if err != nil {
		return nil, classify(err, "failed to create keypair '%s'", name)
	}
	return &provider.KeyPair{Name: kp.Name, Fingerprint: kp.Fingerprint, PublicKey: kp.PublicKey}, nil
}
