package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/remote"
	"github.com/samber/lo"
)

const (
	initMarker   = "~/.hudson-run-init"
	initScript   = "init.sh"
	agentJar     = "slave.jar"
	scratchDir   = "/tmp"
	defaultAdmin = "root"
	defaultPort  = 22
)

var errNoAddress = errors.New("no routable address yet")

// URLSigner produces time limited download links for the runtime archive.
type URLSigner interface {
	PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Runtime describes how to detect and install the agent runtime.
type Runtime struct {
	Check string
	// Archive is the directory name inside the tarball, installed under /usr.
	Archive string
	// Path is the object path of the tarball handed to Signer.
	Path   string
	Signer URLSigner
	TTL    time.Duration
}

// AgentSource returns the agent binary copied to each node.
type AgentSource func() ([]byte, error)

// Unix bootstraps Unix nodes over SSH: connect, authenticate, run the init
// script once, make sure the runtime exists, then start the agent.
type Unix struct {
	Transport remote.Transport
	KeyPair   keys.KeyPair
	Connect   Policy
	Auth      Policy
	ExitPoll  Policy
	Runtime   Runtime
	Agent     AgentSource
}

// Unix implements Bootstrapper
var _ Bootstrapper = (*Unix)(nil)

func (u *Unix) Bootstrap(ctx context.Context, n Node, out io.Writer) Result {
	logger := n.Logger()
	spec := n.Spec()

	conn, host, err := u.connect(ctx, n, out)
	if err != nil {
		logger.Warn("Failed to connect", "error", err)
		return aborted(err)
	}

	successful := false
	defer func() {
		if !successful {
			_ = conn.Close()
		}
	}()

	if err := u.authenticate(ctx, conn, spec, out); err != nil {
		logger.Warn("Failed to authenticate", "error", err)
		return aborted(err)
	}

	outcome := Success
	if strings.TrimSpace(spec.InitScript) != "" {
		marked, err := u.runInitScript(ctx, conn, n, host, out)
		if err != nil {
			logger.Warn("Init script failed", "error", err)
			return aborted(err)
		}
		if !marked {
			outcome = Unstable
		}
	}

	if err := u.ensureRuntime(ctx, conn, spec, out); err != nil {
		logger.Warn("Failed to provide runtime", "error", err)
		return aborted(err)
	}

	channel, err := u.startAgent(ctx, conn, spec, out)
	if err != nil {
		logger.Warn("Failed to start agent", "error", err)
		return aborted(err)
	}

	successful = true
	logger.Info("Agent started", "outcome", outcome)
	return Result{Outcome: outcome, Channel: channel}
}

// connect keeps trying until TCP connects, aborting only when the instance disappears
// or the provider cannot be queried.
func (u *Unix) connect(ctx context.Context, n Node, out io.Writer) (remote.Conn, string, error) {
	port := lo.Ternary(n.Spec().SSHPort > 0, n.Spec().SSHPort, defaultPort)

	var conn remote.Conn
	var host string
	err := u.Connect.Do(ctx, func(int) error {
		server, err := n.Refresh(ctx)
		if err != nil {
			return Stop(fmt.Errorf("failed to describe instance: %w", err))
		}
		if node.StateOf(server.Status).Gone() {
			return Stop(ErrNodeGone)
		}

		host = node.PublicAddress(server)
		if !node.Routable(host) {
			fmt.Fprintf(out, "No usable address (%q), the instance is most likely waiting for an IP address\n", host)
			return errNoAddress
		}

		fmt.Fprintf(out, "Connecting to %s on port %d\n", host, port)
		c, err := u.Transport.Connect(ctx, host, port)
		if err != nil {
			fmt.Fprintf(out, "Waiting for SSH to come up: %v\n", err)
			return err
		}

		fmt.Fprintln(out, "Connected via SSH")
		conn = c
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return conn, host, nil
}

func (u *Unix) authenticate(ctx context.Context, conn remote.Conn, spec node.Spec, out io.Writer) error {
	signer, err := u.KeyPair.Signer()
	if err != nil {
		return err
	}

	admin := remoteAdmin(spec)
	err = u.Auth.Do(ctx, func(attempt int) error {
		fmt.Fprintf(out, "Authenticating as %s\n", admin)
		if err := conn.Authenticate(ctx, admin, signer); err != nil {
			fmt.Fprintf(out, "Authentication failed (attempt %d): %v\n", attempt, err)
			return err
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(out, "Authentication failed")
		return fmt.Errorf("failed to authenticate as '%s': %w", admin, err)
	}
	return nil
}

// runInitScript runs the init script unless the marker exists. It reports
// whether the marker could be written afterwards.
func (u *Unix) runInitScript(ctx context.Context, conn remote.Conn, n Node, host string, out io.Writer) (bool, error) {
	spec := n.Spec()

	code, err := conn.Exec(ctx, "test -e "+initMarker, io.Discard)
	if err != nil {
		return false, fmt.Errorf("failed to check init marker: %w", err)
	}
	if code == 0 {
		fmt.Fprintln(out, "Init script already executed")
		return true, nil
	}

	script := spec.InitScript
	if spec.TemplateInitScript {
		script, err = RenderScript(script, ScriptData{
			Node:      n.Name(),
			ID:        n.ID(),
			Cloud:     n.CloudID(),
			Address:   host,
			Labels:    spec.Labels,
			RemoteFS:  spec.RemoteFS,
			Executors: spec.NumExecutors,
		})
		if err != nil {
			return false, err
		}
	}

	fmt.Fprintln(out, "Executing init script")
	if err := conn.Put([]byte(script), scratchDir, initScript, 0700); err != nil {
		return false, fmt.Errorf("failed to copy init script: %w", err)
	}

	code, err = u.runWithPTY(ctx, conn, asRoot(spec, path.Join(scratchDir, initScript)), out)
	if err != nil {
		return false, err
	}
	if code == -1 {
		fmt.Fprintln(out, "init script failed: exit status not reported")
		return false, fmt.Errorf("init script failed: %w", ErrExitUnknown)
	}
	if code != 0 {
		fmt.Fprintf(out, "init script failed: exit code=%d\n", code)
		return false, fmt.Errorf("init script failed: exit code=%d", code)
	}

	code, err = u.runWithPTY(ctx, conn, asRoot(spec, "touch "+initMarker), out)
	if err != nil || code != 0 {
		fmt.Fprintf(out, "Failed to write init marker (exit code=%d): %v\n", code, err)
		return false, nil
	}
	return true, nil
}

// runWithPTY runs a command in a terminal so sudo works and stderr is merged into stdout.
func (u *Unix) runWithPTY(ctx context.Context, conn remote.Conn, command string, out io.Writer) (int, error) {
	session, err := conn.OpenSession()
	if err != nil {
		return -1, err
	}
	defer session.Close()

	if err := session.RequestPTY(); err != nil {
		return -1, fmt.Errorf("failed to request pty: %w", err)
	}
	if err := session.Start(command); err != nil {
		return -1, err
	}
	_ = session.Stdin().Close()

	if _, err := io.Copy(out, session.Stdout()); err != nil {
		return -1, fmt.Errorf("failed to read output of '%s': %w", command, err)
	}

	// Exit status delivery often lags behind the end of output.
	code := -1
	_ = u.ExitPoll.Do(ctx, func(int) error {
		if status, done := session.ExitStatus(); done {
			code = status
			return nil
		}
		return errors.New("still running")
	})
	return code, nil
}

func (u *Unix) ensureRuntime(ctx context.Context, conn remote.Conn, spec node.Spec, out io.Writer) error {
	check := lo.Ternary(u.Runtime.Check != "", u.Runtime.Check, "java -fullversion")

	fmt.Fprintln(out, "Verifying that java exists")
	code, err := conn.Exec(ctx, check, out)
	if err != nil {
		return fmt.Errorf("failed to check runtime: %w", err)
	}
	if code == 0 {
		return nil
	}

	fmt.Fprintln(out, "Installing Java")
	if u.Runtime.Signer == nil || u.Runtime.Archive == "" {
		return errors.New("runtime is missing and no runtime archive is configured")
	}

	url, err := u.Runtime.Signer.PresignGet(ctx, u.Runtime.Path, u.Runtime.TTL)
	if err != nil {
		return fmt.Errorf("failed to sign runtime archive url: %w", err)
	}

	tarball := path.Join(scratchDir, u.Runtime.Archive+".tgz")
	steps := []struct {
		command string
		failure string
	}{
		{fmt.Sprintf("wget -nv -O %s %s", shellescape.Quote(tarball), shellescape.Quote(url)), "Failed to download Java"},
		{asRoot(spec, fmt.Sprintf("tar xz -C /usr -f %s", shellescape.Quote(tarball))), "Failed to install Java"},
		{asRoot(spec, fmt.Sprintf("ln -s %s /bin/java", shellescape.Quote(path.Join("/usr", u.Runtime.Archive, "bin", "java")))), "Failed to symlink Java"},
	}
	for _, step := range steps {
		code, err := conn.Exec(ctx, step.command, out)
		if err != nil || code != 0 {
			fmt.Fprintln(out, step.failure)
			return fmt.Errorf("%s (exit code=%d): %w", strings.ToLower(step.failure), code, lo.Ternary(err != nil, err, errors.New("command failed")))
		}
	}
	return nil
}

func (u *Unix) startAgent(ctx context.Context, conn remote.Conn, spec node.Spec, out io.Writer) (*Channel, error) {
	if u.Agent == nil {
		return nil, errors.New("no agent binary configured")
	}
	jar, err := u.Agent()
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	fmt.Fprintf(out, "Copying %s\n", agentJar)
	if err := conn.Put(jar, scratchDir, agentJar, 0644); err != nil {
		return nil, fmt.Errorf("failed to copy agent: %w", err)
	}

	session, err := conn.OpenSession()
	if err != nil {
		return nil, err
	}

	command := strings.Join(lo.Compact([]string{"java", strings.TrimSpace(spec.AgentOptions), "-jar", path.Join(scratchDir, agentJar)}), " ")
	fmt.Fprintf(out, "Launching agent: %s\n", command)
	if err := session.Start(command); err != nil {
		_ = session.Close()
		return nil, err
	}

	return NewChannel(session.Stdout(), session.Stdin(), session.Close, conn.Close), nil
}

func remoteAdmin(spec node.Spec) string {
	return lo.Ternary(spec.RemoteAdmin != "", spec.RemoteAdmin, defaultAdmin)
}

// asRoot prefixes a command with the root command prefix unless we already are root.
func asRoot(spec node.Spec, command string) string {
	prefix := strings.TrimSpace(spec.RootCommandPrefix)
	if remoteAdmin(spec) == defaultAdmin || prefix == "" {
		return command
	}
	return prefix + " " + command
}
