// Package remote runs commands and copies files on nodes over SSH.
package remote

import (
	"context"
	"io"
	"os"

	"golang.org/x/crypto/ssh"
)

// Transport opens raw connections to a node.
type Transport interface {
	Connect(ctx context.Context, host string, port int) (Conn, error)
}

// Conn is a connection to a node which must be authenticated before use.
type Conn interface {
	// Authenticate may be retried after a failure on the same Conn.
	Authenticate(ctx context.Context, user string, signer ssh.Signer) error
	// Exec runs a command to completion, copying its combined output to out.
	Exec(ctx context.Context, command string, out io.Writer) (int, error)
	OpenSession() (Session, error)
	Put(data []byte, dir, name string, mode os.FileMode) error
	Close() error
}

// Session is a single long running remote command.
type Session interface {
	RequestPTY() error
	Start(command string) error
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// ExitStatus reports the exit code once the command is done, without blocking.
	ExitStatus() (int, bool)
	Close() error
}
