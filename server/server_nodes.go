package main

import (
	"context"
	"fmt"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/server/log"
	"github.com/samber/lo"
)

const (
	defaultConsoleLines = 50
	minKeyBits          = 1024
)

func (s *server) ListNodes(ctx context.Context, in *api.ListNodesRequest) (*api.NodeList, error) {
	s.prune()

	nodes := lo.Filter(s.registry.List(), func(h *node.Handle, _ int) bool {
		return in.Cloud == "" || h.CloudID() == in.Cloud
	})
	return &api.NodeList{
		Nodes: lo.Map(nodes, func(h *node.Handle, _ int) api.Node {
			return s.describe(ctx, h, in.Refresh)
		}),
	}, nil
}

func (s *server) TerminateNode(ctx context.Context, in *api.NodeRequest) (*api.Empty, error) {
	h, err := s.findNode(in.Node)
	if err != nil {
		return nil, err
	}

	log.Info("Terminating node on request", "node", h.Name(), "instance", h.ID())
	if err := h.Terminate(ctx); err != nil {
		return nil, err
	}
	s.forget(h.ID())
	return &api.Empty{}, nil
}

// AcquireNode marks a build as running on the node. A busy node is never
// reclaimed by the retention policy.
func (s *server) AcquireNode(ctx context.Context, in *api.NodeRequest) (*api.Node, error) {
	h, err := s.findNode(in.Node)
	if err != nil {
		return nil, err
	}
	if !h.Connected() {
		return nil, fmt.Errorf("%w: '%s'", errNotConnected, h.Name())
	}

	h.Acquire()
	log.Debug("Node acquired", "node", h.Name())
	return lo.ToPtr(s.describe(ctx, h, false)), nil
}

// ReleaseNode ends a build on the node; the idle clock restarts once no build is left.
func (s *server) ReleaseNode(ctx context.Context, in *api.NodeRequest) (*api.Node, error) {
	h, err := s.findNode(in.Node)
	if err != nil {
		return nil, err
	}

	h.Release()
	log.Debug("Node released", "node", h.Name(), "idle", h.Idle())
	return lo.ToPtr(s.describe(ctx, h, false)), nil
}

func (s *server) Console(ctx context.Context, in *api.ConsoleRequest) (*api.Console, error) {
	h, err := s.findNode(in.Node)
	if err != nil {
		return nil, err
	}

	lines := in.Lines
	if lines <= 0 {
		lines = defaultConsoleLines
	}
	output, err := h.ConsoleOutput(ctx, lines)
	if err != nil {
		return nil, err
	}
	return &api.Console{Output: output}, nil
}

// Keygen creates a keypair an operator can paste into a cloud profile.
func (s *server) Keygen(ctx context.Context, in *api.KeygenRequest) (*api.KeyPair, error) {
	bits := in.Bits
	if bits == 0 {
		bits = keys.DefaultBits
	}
	if bits < minKeyBits {
		return nil, provider.WithKind(provider.ErrConfiguration, fmt.Errorf("key size %d is below %d bits", bits, minKeyBits))
	}

	kp, err := keys.Generate(bits)
	if err != nil {
		return nil, err
	}

	fingerprint, err := kp.Fingerprint()
	if err != nil {
		return nil, err
	}
	return &api.KeyPair{
		PublicKey:   kp.PublicKey,
		PrivateKey:  kp.PrivateKey.Reveal(),
		Fingerprint: fingerprint,
	}, nil
}
