package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/samber/lo"
)

const (
	DefaultPrefix      = "jenkins"
	DefaultMaxAttempts = 5
)

var ErrExhausted = errors.New("could not register keypair")

// Registry is the part of the compute service that stores keypairs.
type Registry interface {
	ListKeyPairs(ctx context.Context) ([]provider.KeyPair, error)
	CreateKeyPair(ctx context.Context, name string, publicKey string) (*provider.KeyPair, error)
}

// Ref designates a keypair registered with the provider.
type Ref struct {
	Name        string
	Fingerprint string
	KeyPair     KeyPair
}

type Manager struct {
	Prefix      string
	MaxAttempts int
	Logger      *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		Prefix:      DefaultPrefix,
		MaxAttempts: DefaultMaxAttempts,
		Logger:      logger,
	}
}

// FindOrCreate returns the provider keypair matching kp, registering it under the
// lowest free "<prefix>-<n>" name when absent. Concurrent registrations of the same
// name are retried with the next free index.
func (m *Manager) FindOrCreate(ctx context.Context, registry Registry, kp KeyPair) (Ref, error) {
	fingerprint, err := kp.Fingerprint()
	if err != nil {
		return Ref{}, fmt.Errorf("failed to fingerprint keypair: %w", err)
	}

	minIndex := 0
	for attempt := 1; attempt <= m.maxAttempts(); attempt++ {
		existing, err := registry.ListKeyPairs(ctx)
		if err != nil {
			return Ref{}, fmt.Errorf("failed to list keypairs: %w", err)
		}

		if found, ok := lo.Find(existing, func(k provider.KeyPair) bool { return kp.Matches(k.Fingerprint) }); ok {
			return Ref{Name: found.Name, Fingerprint: fingerprint, KeyPair: kp}, nil
		}

		index := m.freeIndex(existing, minIndex)
		name := m.name(index)

		created, err := registry.CreateKeyPair(ctx, name, kp.PublicKey)
		if errors.Is(err, provider.ErrConflict) {
			m.logger().Debug("Keypair name taken concurrently, retrying", "name", name, "attempt", attempt)
			minIndex = index + 1
			continue
		} else if err != nil {
			return Ref{}, fmt.Errorf("failed to register keypair '%s': %w", name, err)
		}

		m.logger().Info("Registered keypair", "name", created.Name, "fingerprint", fingerprint)
		return Ref{Name: created.Name, Fingerprint: fingerprint, KeyPair: kp}, nil
	}

	return Ref{}, fmt.Errorf("%w after %d attempts", ErrExhausted, m.maxAttempts())
}

func (m *Manager) freeIndex(existing []provider.KeyPair, from int) int {
	used := lo.SliceToMap(existing, func(k provider.KeyPair) (string, struct{}) { return k.Name, struct{}{} })
	for n := from; ; n++ {
		if _, taken := used[m.name(n)]; !taken {
			return n
		}
	}
}

func (m *Manager) name(n int) string {
	return strings.TrimSuffix(lo.Ternary(m.Prefix == "", DefaultPrefix, m.Prefix), "-") + "-" + strconv.Itoa(n)
}

func (m *Manager) maxAttempts() int {
	if m.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return m.MaxAttempts
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
