package node

import (
	"strings"

	"github.com/platformlayer/openstack-jenkins/provider"
)

type State int

const (
	Unknown State = iota
	Starting
	Active
	Terminating
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Terminating:
		return "terminating"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Gone reports states from which an instance never comes back.
func (s State) Gone() bool {
	return s == Terminating || s == Terminated
}

// Live reports states counted against the instance cap.
func (s State) Live() bool {
	return s == Active || s == Starting
}

// StateOf maps a compute status onto a lifecycle state.
func StateOf(status string) State {
	switch strings.ToUpper(status) {
	case "BUILD", "BUILDING", "REBUILD", "REBOOT", "HARD_REBOOT", "PASSWORD",
		"RESIZE", "VERIFY_RESIZE", "REVERT_RESIZE", "MIGRATING":
		return Starting
	case "ACTIVE":
		return Active
	case "DELETING":
		return Terminating
	case "DELETED", "SOFT_DELETED", "SHUTOFF", "STOPPED", "SHELVED", "SHELVED_OFFLOADED", "ERROR":
		return Terminated
	default:
		return Unknown
	}
}

// PublicAddress picks the address used to reach a server: the access IPv4, then the
// first IPv4 of the network named "public", then the first IPv4 of any network.
func PublicAddress(server *provider.Server) string {
	if server == nil {
		return ""
	}
	if server.AccessIPv4 != "" {
		return server.AccessIPv4
	}

	for _, network := range server.Networks {
		if network.Name == "public" {
			if addr := firstIPv4(network); addr != "" {
				return addr
			}
		}
	}

	for _, network := range server.Networks {
		if addr := firstIPv4(network); addr != "" {
			return addr
		}
	}
	return ""
}

// Routable reports whether an address can be dialed; "0.0.0.0" means none assigned yet.
func Routable(addr string) bool {
	return addr != "" && addr != "0.0.0.0"
}

func firstIPv4(network provider.Network) string {
	for _, address := range network.Addresses {
		if address.Version == 4 && address.Addr != "" {
			return address.Addr
		}
	}
	return ""
}
