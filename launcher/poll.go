package launcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/platformlayer/openstack-jenkins/node"
)

const DefaultPollInterval = 5 * time.Second

// Poller waits for the instance to become active, then hands over to Next exactly once.
type Poller struct {
	Interval time.Duration
	Next     Bootstrapper
}

func (p *Poller) Launch(ctx context.Context, n Node, out io.Writer) Result {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger := n.Logger()
	for {
		state, err := n.State(ctx)
		if err != nil {
			fmt.Fprintf(out, "Failed to query instance state: %v\n", err)
			logger.Error("Failed to query instance state", "error", err)
			return aborted(fmt.Errorf("failed to query state of '%s': %w", n.Name(), err))
		}

		switch state {
		case node.Active:
			fmt.Fprintln(out, "Instance is active")
			return p.Next.Bootstrap(ctx, n, out)
		case node.Terminating, node.Terminated:
			fmt.Fprintf(out, "Instance is %s, giving up\n", state)
			return aborted(ErrNodeGone)
		case node.Unknown:
			logger.Warn("Instance state is unknown, still waiting")
		default:
			fmt.Fprintf(out, "Instance is %s, waiting %s\n", state, interval)
		}

		if err := sleep(ctx, interval); err != nil {
			return aborted(err)
		}
	}
}
