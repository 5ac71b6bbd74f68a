package launcher

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct {
	strings.Builder
	closed int
}

func (w *nopWriteCloser) Close() error {
	w.closed++
	return nil
}

func TestChannelCloseRunsHooksOnce(t *testing.T) {
	w := &nopWriteCloser{}
	hooks := 0
	channel := NewChannel(strings.NewReader(""), w, func() error { hooks++; return nil })

	_, err := channel.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", w.String())

	require.NoError(t, channel.Close())
	require.NoError(t, channel.Close())

	assert.Equal(t, 1, hooks)
	assert.Equal(t, 1, w.closed)

	_, err = channel.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestChannelClosesOnRemoteHangup(t *testing.T) {
	w := &nopWriteCloser{}
	channel := NewChannel(strings.NewReader("bye"), w)

	data, err := io.ReadAll(channel)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))

	select {
	case <-channel.Done():
	case <-time.After(time.Second):
		t.Fatal("channel not closed after EOF")
	}
}
