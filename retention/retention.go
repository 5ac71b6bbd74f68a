// Package retention reclaims nodes that stayed idle for too long.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/platformlayer/openstack-jenkins/node"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultCheckInterval = time.Minute
)

// Node is what the policy needs from a node handle.
type Node interface {
	Name() string
	Idle() bool
	IdleSince() time.Time
	Terminated() bool
	Terminate(ctx context.Context) error
}

// Node is implemented by node.Handle
var _ Node = (*node.Handle)(nil)

type Policy struct {
	IdleTimeout time.Duration
	// Disabled suppresses every reclamation; set once at startup.
	Disabled bool
	Now      func() time.Time
	Logger   *slog.Logger
}

func New(disabled bool, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		IdleTimeout: DefaultIdleTimeout,
		Disabled:    disabled,
		Now:         time.Now,
		Logger:      logger,
	}
}

// Check terminates n when it has been idle for longer than the timeout and
// reports whether it did.
func (p *Policy) Check(ctx context.Context, n Node) (bool, error) {
	if p.Disabled || n.Terminated() || !n.Idle() {
		return false, nil
	}

	idle := p.now().Sub(n.IdleSince())
	if idle <= p.timeout() {
		return false, nil
	}

	p.logger().Info("Terminating idle node", "node", n.Name(), "idle", idle.Round(time.Second))
	if err := n.Terminate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Sweep checks every node and returns how many were terminated.
func (p *Policy) Sweep(ctx context.Context, nodes []*node.Handle) int {
	terminated := 0
	for _, n := range nodes {
		done, err := p.Check(ctx, n)
		if err != nil {
			p.logger().Warn("Failed to reclaim node", "node", n.Name(), "error", err)
			continue
		}
		if done {
			terminated++
		}
	}
	return terminated
}

// Run sweeps the nodes returned by list every interval until ctx ends.
func (p *Policy) Run(ctx context.Context, interval time.Duration, list func() []*node.Handle) {
	if p.Disabled {
		p.logger().Warn("Node retention is disabled, idle nodes will not be reclaimed")
		return
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Sweep(ctx, list()); n > 0 {
				p.logger().Info("Reclaimed idle nodes", "count", n)
			}
		}
	}
}

// Start connects a freshly registered node right away instead of waiting for
// the next check.
func (p *Policy) Start(ctx context.Context, n *node.Handle, connect func(context.Context) error) error {
	p.logger().Debug("Connecting new node", "node", n.Name())
	return connect(ctx)
}

func (p *Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Policy) timeout() time.Duration {
	if p.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return p.IdleTimeout
}

func (p *Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
