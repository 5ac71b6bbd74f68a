// Package launcher brings a freshly created instance from "booting" to
// "agent attached": it waits for the instance to become active, then runs a
// launch strategy over SSH.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
)

var ErrNodeGone = errors.New("instance is terminating or terminated")

// ErrExitUnknown reports a remote command whose exit status never arrived.
// It always counts as a failure.
var ErrExitUnknown = errors.New("exit status not reported")

// Outcome is the coarse result of a launch.
type Outcome int

const (
	Aborted Outcome = iota
	Success
	// Unstable means the agent runs but a housekeeping step failed.
	Unstable
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Unstable:
		return "unstable"
	default:
		return "aborted"
	}
}

type Result struct {
	Outcome Outcome
	Channel *Channel
	Err     error
}

// Connected reports whether an agent channel was established.
func (r Result) Connected() bool {
	return r.Outcome != Aborted && r.Channel != nil
}

func aborted(err error) Result {
	return Result{Outcome: Aborted, Err: err}
}

// Node is what a launch needs from a node handle.
type Node interface {
	ID() string
	Name() string
	CloudID() string
	Spec() node.Spec
	Logger() *slog.Logger
	State(ctx context.Context) (node.State, error)
	Refresh(ctx context.Context) (*provider.Server, error)
}

// Node is implemented by node.Handle
var _ Node = (*node.Handle)(nil)

// Launcher drives a whole launch; out receives the human readable launch log.
type Launcher interface {
	Launch(ctx context.Context, n Node, out io.Writer) Result
}

// Bootstrapper takes over once the instance is active.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, n Node, out io.Writer) Result
}

type Kind string

const UnixSSH Kind = "unix-ssh"

type Config struct {
	PollInterval time.Duration
	Unix         Unix
}

// New builds the launcher for a strategy kind.
func New(kind Kind, config Config) (Launcher, error) {
	var next Bootstrapper
	switch kind {
	case UnixSSH, "":
		unix := config.Unix
		next = &unix
	default:
		return nil, fmt.Errorf("unknown launcher '%s'", kind)
	}

	return &Poller{Interval: config.PollInterval, Next: next}, nil
}
