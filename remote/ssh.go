package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var ErrNotAuthenticated = errors.New("connection is not authenticated")

// SSH is the Transport used against real nodes.
type SSH struct {
	DialTimeout     time.Duration
	HostKeyCallback ssh.HostKeyCallback
}

// SSH implements Transport
var _ Transport = SSH{}

func (t SSH) Connect(ctx context.Context, host string, port int) (Conn, error) {
	c := &sshConn{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: t.DialTimeout,
		hostKey: t.HostKeyCallback,
	}
	if c.hostKey == nil {
		c.hostKey = ssh.InsecureIgnoreHostKey()
	}

	raw, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.raw = raw
	return c, nil
}

type sshConn struct {
	addr    string
	timeout time.Duration
	hostKey ssh.HostKeyCallback

	mutex  sync.Mutex
	raw    net.Conn
	client *ssh.Client
}

func (c *sshConn) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to '%s': %w", c.addr, err)
	}
	return raw, nil
}

// Authenticate runs the SSH handshake. A failed handshake consumes the TCP
// connection, so the next attempt dials again.
func (c *sshConn) Authenticate(ctx context.Context, user string, signer ssh.Signer) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.client != nil {
		return nil
	}

	raw := c.raw
	c.raw = nil
	if raw == nil {
		var err error
		if raw, err = c.dial(ctx); err != nil {
			return err
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, c.addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: c.hostKey,
		Timeout:         c.timeout,
	})
	if err != nil {
		_ = raw.Close()
		return fmt.Errorf("failed to authenticate as '%s' on '%s': %w", user, c.addr, err)
	}
	_ = raw.SetDeadline(time.Time{})

	c.client = ssh.NewClient(conn, chans, reqs)
	return nil
}

func (c *sshConn) sshClient() (*ssh.Client, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.client == nil {
		return nil, ErrNotAuthenticated
	}
	return c.client, nil
}

func (c *sshConn) Exec(ctx context.Context, command string, out io.Writer) (int, error) {
	client, err := c.sshClient()
	if err != nil {
		return -1, err
	}

	session, err := client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	if out == nil {
		out = io.Discard
	}
	combined := &syncWriter{w: out}
	session.Stdout = combined
	session.Stderr = combined

	done := make(chan error, 1)
	if err := session.Start(command); err != nil {
		return -1, fmt.Errorf("failed to start '%s': %w", command, err)
	}
	go func() { done <- session.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Close()
		return -1, ctx.Err()
	}

	if code, ok := exitCode(err); ok {
		return code, nil
	}
	return -1, fmt.Errorf("failed to run '%s': %w", command, err)
}

func (c *sshConn) OpenSession() (Session, error) {
	client, err := c.sshClient()
	if err != nil {
		return nil, err
	}

	s, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}

	stdin, err := s.StdinPipe()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := s.StdoutPipe()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	s.Stderr = io.Discard

	return &sshSession{session: s, stdin: stdin, stdout: stdout}, nil
}

func (c *sshConn) Put(data []byte, dir, name string, mode os.FileMode) error {
	client, err := c.sshClient()
	if err != nil {
		return err
	}

	sf, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to start sftp: %w", err)
	}
	defer sf.Close()

	target := path.Join(dir, name)
	dst, err := sf.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", target, err)
	}
	defer dst.Close()

	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("failed to write '%s': %w", target, err)
	}
	if err := sf.Chmod(target, mode); err != nil {
		return fmt.Errorf("failed to chmod '%s': %w", target, err)
	}
	return nil
}

func (c *sshConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var err error
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	if c.raw != nil {
		err = errors.Join(err, c.raw.Close())
		c.raw = nil
	}
	return err
}

type sshSession struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	exited atomic.Bool
	status atomic.Int64
}

func (s *sshSession) RequestPTY() error {
	return s.session.RequestPty("vt100", 40, 80, ssh.TerminalModes{ssh.ECHO: 0})
}

func (s *sshSession) Start(command string) error {
	if err := s.session.Start(command); err != nil {
		return fmt.Errorf("failed to start '%s': %w", command, err)
	}

	go func() {
		code, ok := exitCode(s.session.Wait())
		if !ok {
			code = -1
		}
		s.status.Store(int64(code))
		s.exited.Store(true)
	}()
	return nil
}

func (s *sshSession) Stdin() io.WriteCloser {
	return s.stdin
}

func (s *sshSession) Stdout() io.Reader {
	return s.stdout
}

func (s *sshSession) ExitStatus() (int, bool) {
	if !s.exited.Load() {
		return -1, false
	}
	return int(s.status.Load()), true
}

func (s *sshSession) Close() error {
	err := s.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func exitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true
	}
	return -1, false
}

type syncWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.w.Write(p)
}
