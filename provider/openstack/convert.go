package openstack

import (
	"sort"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/platformlayer/openstack-jenkins/provider"
)

func convertServer(server *servers.Server) *provider.Server {
	return &provider.Server{
		ID:         server.ID,
		Name:       server.Name,
		Status:     server.Status,
		AccessIPv4: server.AccessIPv4,
		Networks:   convertAddresses(server.Addresses),
		FlavorID:   stringField(server.Flavor, "id"),
		ImageID:    stringField(server.Image, "id"),
		Created:    server.Created,
		Metadata:   server.Metadata,
	}
}

// convertAddresses decodes the loosely typed "addresses" document, sorted by network name.
func convertAddresses(raw map[string]interface{}) []provider.Network {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	networks := make([]provider.Network, 0, len(names))
	for _, name := range names {
		network := provider.Network{Name: name}

		entries, _ := raw[name].([]interface{})
		for _, entry := range entries {
			fields, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}

			addr, _ := fields["addr"].(string)
			if addr == "" {
				continue
			}

			version := 4
			if v, ok := fields["version"].(float64); ok {
				version = int(v)
			}
			network.Addresses = append(network.Addresses, provider.Address{Addr: addr, Version: version})
		}

		networks = append(networks, network)
	}
	return networks
}

func convertFlavor(flavor flavors.Flavor) *provider.Flavor {
	return &provider.Flavor{
		ID:    flavor.ID,
		Name:  flavor.Name,
		VCPUs: flavor.VCPUs,
		RAM:   flavor.RAM,
		Disk:  flavor.Disk,
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
