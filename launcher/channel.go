package launcher

import (
	"errors"
	"io"
	"sync"
)

// Channel is the bidirectional control stream to a running agent. Closing it,
// or the remote end hanging up, runs the close hooks exactly once.
type Channel struct {
	r io.Reader
	w io.WriteCloser

	once    sync.Once
	done    chan struct{}
	onClose []func() error
	err     error
}

func NewChannel(r io.Reader, w io.WriteCloser, onClose ...func() error) *Channel {
	return &Channel{
		r:       r,
		w:       w,
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (c *Channel) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if errors.Is(err, io.EOF) {
		go func() { _ = c.Close() }()
	}
	return n, err
}

func (c *Channel) Write(p []byte) (int, error) {
	select {
	case <-c.done:
		return 0, io.ErrClosedPipe
	default:
	}
	return c.w.Write(p)
}

func (c *Channel) Close() error {
	c.once.Do(func() {
		errs := []error{c.w.Close()}
		for _, hook := range c.onClose {
			errs = append(errs, hook())
		}
		c.err = errors.Join(errs...)
		close(c.done)
	})
	return c.err
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
