// Package node tracks provisioned instances and their lifecycle.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platformlayer/openstack-jenkins/metrics"
	"github.com/platformlayer/openstack-jenkins/provider"
)

// Cloud gives a node access to the compute service of the profile that created it.
// Invalidate drops the cached session after the provider rejected its token.
type Cloud interface {
	ID() string
	Compute(ctx context.Context) (provider.Compute, error)
	Invalidate()
}

// Registry is the local bookkeeping of known nodes.
type Registry interface {
	Add(ctx context.Context, node *Handle) error
	Remove(ctx context.Context, id string) error
	Get(id string) (*Handle, bool)
	List() []*Handle
}

type TerminationMode string

const (
	// Lenient termination swallows provider failures once logged.
	Lenient TerminationMode = "lenient"
	// Strict termination reports provider failures and keeps the node registered.
	Strict TerminationMode = "strict"
)

// Spec holds the launch settings captured from the template at creation.
type Spec struct {
	Template          string
	Description       string
	Labels            []string
	RemoteFS          string
	NumExecutors      int
	SSHPort           int
	RemoteAdmin       string
	RootCommandPrefix string
	InitScript        string
	// TemplateInitScript renders InitScript as a Go template before upload.
	TemplateInitScript bool
	AgentOptions       string
	StopOnTerminate    bool
}

type Config struct {
	Cloud       Cloud
	Spec        Spec
	Registry    Registry
	Termination TerminationMode
	Logger      *slog.Logger
	Now         func() time.Time
}

type Handle struct {
	id     string
	name   string
	config Config

	description atomic.Pointer[provider.Server]
	terminated  atomic.Bool

	mutex     sync.Mutex
	busy      int
	idleSince time.Time
	channel   io.Closer

	log *slog.Logger
}

func New(id, name string, config Config) *Handle {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Termination == "" {
		config.Termination = Lenient
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Handle{
		id:        id,
		name:      name,
		config:    config,
		idleSince: config.Now(),
		log:       config.Logger.With("node", name, "instance", id),
	}
}

// NewFromServer seeds the description cache with a known description.
func NewFromServer(server *provider.Server, config Config) *Handle {
	h := New(server.ID, server.Name, config)
	h.description.Store(server)
	return h
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) CloudID() string {
	return h.config.Cloud.ID()
}

func (h *Handle) Spec() Spec {
	return h.config.Spec
}

func (h *Handle) Logger() *slog.Logger {
	return h.log
}

// Describe returns the cached description when allowed, otherwise fetches a fresh one.
func (h *Handle) Describe(ctx context.Context, useCache bool) (*provider.Server, error) {
	if useCache {
		if cached := h.description.Load(); cached != nil {
			return cached, nil
		}
	}
	return h.Refresh(ctx)
}

// Refresh fetches the description and replaces the cache.
func (h *Handle) Refresh(ctx context.Context) (*provider.Server, error) {
	compute, err := h.config.Cloud.Compute(ctx)
	if err != nil {
		return nil, h.checkAuth(err)
	}

	server, err := compute.GetServer(ctx, h.id)
	if err != nil {
		return nil, h.checkAuth(err)
	}
	h.description.Store(server)
	return server, nil
}

func (h *Handle) Invalidate() {
	h.description.Store(nil)
}

// State always queries the provider. A vanished instance reads as terminated.
func (h *Handle) State(ctx context.Context) (State, error) {
	server, err := h.Refresh(ctx)
	if errors.Is(err, provider.ErrNotFound) {
		return Terminated, nil
	} else if err != nil {
		return Unknown, err
	}
	return StateOf(server.Status), nil
}

// PublicAddress resolves the reachable address from a fresh description.
func (h *Handle) PublicAddress(ctx context.Context) (string, error) {
	server, err := h.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return PublicAddress(server), nil
}

func (h *Handle) ConsoleOutput(ctx context.Context, lines int) (string, error) {
	compute, err := h.config.Cloud.Compute(ctx)
	if err != nil {
		return "", h.checkAuth(err)
	}
	output, err := compute.ConsoleOutput(ctx, h.id, lines)
	return output, h.checkAuth(err)
}

// checkAuth drops the cloud session when the provider rejected its token.
func (h *Handle) checkAuth(err error) error {
	if errors.Is(err, provider.ErrAuthentication) {
		h.config.Cloud.Invalidate()
	}
	return err
}

// Uptime is measured from the creation time in the cached description.
func (h *Handle) Uptime(ctx context.Context) (time.Duration, error) {
	server, err := h.Describe(ctx, true)
	if err != nil {
		return 0, err
	}
	if server.Created.IsZero() {
		return 0, nil
	}
	return h.config.Now().Sub(server.Created), nil
}

func (h *Handle) Terminated() bool {
	return h.terminated.Load()
}

// Terminate stops or deletes the instance, then drops the local registration.
// Calling it again after success is a no-op.
func (h *Handle) Terminate(ctx context.Context) error {
	if !h.terminated.CompareAndSwap(false, true) {
		h.log.Debug("Node already terminated")
		return nil
	}

	h.closeChannel()

	err := h.release(ctx)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		h.log.Info("Instance already gone")
		metrics.RecordTermination(h.CloudID(), "gone")
	case err != nil:
		h.log.Warn("Failed to terminate instance", "error", err)
		metrics.RecordTermination(h.CloudID(), "failure")
		if h.config.Termination == Strict {
			h.terminated.Store(false)
			return fmt.Errorf("failed to terminate node '%s': %w", h.name, err)
		}
	default:
		h.log.Info("Terminated instance", "stopped", h.config.Spec.StopOnTerminate)
		metrics.RecordTermination(h.CloudID(), "success")
	}

	if h.config.Registry != nil {
		if err := h.config.Registry.Remove(ctx, h.id); err != nil {
			h.log.Error("Failed to remove node registration", "error", err)
		}
	}
	return nil
}

func (h *Handle) release(ctx context.Context) error {
	compute, err := h.config.Cloud.Compute(ctx)
	if err != nil {
		return h.checkAuth(err)
	}
	if h.config.Spec.StopOnTerminate {
		return h.checkAuth(compute.StopServer(ctx, h.id))
	}
	return h.checkAuth(compute.DeleteServer(ctx, h.id))
}

// Attach records the control channel of the running agent.
func (h *Handle) Attach(channel io.Closer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.channel = channel
}

func (h *Handle) Connected() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.channel != nil
}

// Detach forgets the channel if it is still the attached one.
func (h *Handle) Detach(channel io.Closer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.channel == channel {
		h.channel = nil
		h.idleSince = h.config.Now()
	}
}

func (h *Handle) closeChannel() {
	h.mutex.Lock()
	channel := h.channel
	h.channel = nil
	h.mutex.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			h.log.Debug("Failed to close channel", "error", err)
		}
	}
}

// Acquire marks the node busy until the matching Release.
func (h *Handle) Acquire() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.busy++
}

func (h *Handle) Release() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.busy > 0 {
		h.busy--
	}
	if h.busy == 0 {
		h.idleSince = h.config.Now()
	}
}

func (h *Handle) Idle() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.busy == 0
}

func (h *Handle) IdleSince() time.Time {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.idleSince
}
