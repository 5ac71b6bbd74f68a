package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/cloud"
	"github.com/platformlayer/openstack-jenkins/launcher"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

// --- lastNLines tests ---

func TestLastNLines_BasicTail(t *testing.T) {
	data := []byte("line1\nline2\nline3\nline4\nline5\n")
	result := string(lastNLines(data, 3))
	assert.Equal(t, "line3\nline4\nline5\n", result)
}

func TestLastNLines_FewerLinesThanRequested(t *testing.T) {
	data := []byte("line1\nline2\n")
	result := string(lastNLines(data, 10))
	assert.Equal(t, "line1\nline2\n", result)
}

func TestLastNLines_ExactLineCount(t *testing.T) {
	data := []byte("line1\nline2\nline3\n")
	result := string(lastNLines(data, 3))
	assert.Equal(t, "line1\nline2\nline3\n", result)
}

func TestLastNLines_NoTrailingNewline(t *testing.T) {
	data := []byte("line1\nline2\nline3")
	result := string(lastNLines(data, 2))
	assert.Equal(t, "line2\nline3", result)
}

func TestLastNLines_EmptyData(t *testing.T) {
	assert.Empty(t, lastNLines([]byte{}, 5))
	assert.Nil(t, lastNLines(nil, 5))
}

func TestLastNLines_NonPositiveReturnsAll(t *testing.T) {
	data := []byte("line1\nline2\n")
	assert.Equal(t, "line1\nline2\n", string(lastNLines(data, 0)))
	assert.Equal(t, "line1\nline2\n", string(lastNLines(data, -1)))
}

func TestLastNLines_OnlyNewlines(t *testing.T) {
	data := []byte("\n\n\n\n\n")
	result := string(lastNLines(data, 2))
	assert.Equal(t, "\n\n", result)
}

func TestLastNLines_OneLineNoNewline(t *testing.T) {
	data := []byte("hello")
	result := string(lastNLines(data, 1))
	assert.Equal(t, "hello", result)
}

// --- launchLogs tests ---

func TestLaunchLogsAppendAcrossLaunches(t *testing.T) {
	logs, err := newLaunchLogs(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		w, err := logs.Open("lab-brave-otter")
		require.NoError(t, err)
		_, err = fmt.Fprintf(w, "attempt %d\n", attempt)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	data, size, err := logs.Tail("lab-brave-otter", 0)
	require.NoError(t, err)
	assert.Equal(t, "attempt 1\nattempt 2\n", string(data))
	assert.EqualValues(t, 20, size)

	data, size, err = logs.Tail("lab-brave-otter", 1)
	require.NoError(t, err)
	assert.Equal(t, "attempt 2\n", string(data))
	assert.EqualValues(t, 20, size)

	data, err = logs.ReadFrom("lab-brave-otter", 10)
	require.NoError(t, err)
	assert.Equal(t, "attempt 2\n", string(data))
}

func TestLaunchLogsMissing(t *testing.T) {
	logs, err := newLaunchLogs(t.TempDir())
	require.NoError(t, err)

	_, _, err = logs.Tail("never-launched", 10)
	assert.ErrorIs(t, err, errNoLog)
}

func TestLaunchLogsRejectPathNames(t *testing.T) {
	logs, err := newLaunchLogs(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../etc/passwd", "a/b", `a\b`, ".hidden"} {
		_, err := logs.Open(name)
		assert.ErrorIs(t, err, provider.ErrConfiguration, name)

		_, _, err = logs.Tail(name, 1)
		assert.ErrorIs(t, err, provider.ErrConfiguration, name)
	}
}

func TestStreamNodeLog(t *testing.T) {
	env := newTestEnv(t, nil)

	w, err := env.server.logs.Open("manual")
	require.NoError(t, err)
	_, err = io.WriteString(w, "one\ntwo\nthree\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	output, err := env.readLog(t, &api.LogRequest{Node: "manual", TailLines: 2})
	require.NoError(t, err)
	assert.Equal(t, "two\nthree\n", output)

	_, err = env.readLog(t, &api.LogRequest{Node: "unknown"})
	assertCode(t, codes.NotFound, err)

	_, err = env.readLog(t, &api.LogRequest{Node: "../secrets"})
	assertCode(t, codes.InvalidArgument, err)
}

func TestStreamNodeLogSplitsLargeLogs(t *testing.T) {
	env := newTestEnv(t, nil)

	w, err := env.server.logs.Open("chatty")
	require.NoError(t, err)
	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 200; i++ {
		_, err = io.WriteString(w, line)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	stream, err := env.client.StreamNodeLog(context.Background(), &api.LogRequest{Node: "chatty", TailLines: 150})
	require.NoError(t, err)

	chunks, total := 0, 0
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, len(chunk.Data), maxLogChunk)
		chunks++
		total += len(chunk.Data)
	}
	assert.Equal(t, 150*1024, total)
	assert.Equal(t, 3, chunks)
}

// slowLauncher writes a line, then blocks until released.
type slowLauncher struct {
	release chan struct{}
}

func (f *slowLauncher) Launch(ctx context.Context, n launcher.Node, out io.Writer) launcher.Result {
	fmt.Fprintf(out, "waiting for %s\n", n.Name())
	<-f.release
	fmt.Fprintln(out, "agent connected")

	r, w := io.Pipe()
	return launcher.Result{Outcome: launcher.Success, Channel: launcher.NewChannel(r, w)}
}

func TestStreamNodeLogFollowsLaunch(t *testing.T) {
	env := newTestEnv(t, nil)
	slow := &slowLauncher{release: make(chan struct{})}
	env.clouds.controllers["lab"] = cloud.NewController(cloud.ControllerConfig{
		Profile:  env.clouds.controllers["lab"].Profile(),
		Registry: env.registry,
		Launcher: slow,
		LogSink:  env.server.logs.Open,
	})

	response, err := env.client.ProvisionTemplate(context.Background(), &api.ProvisionTemplateRequest{Cloud: "lab", Image: "windows"})
	require.NoError(t, err)
	name := response.Nodes[0].Name

	require.Eventually(t, func() bool {
		data, _, err := env.server.logs.Tail(name, 0)
		return err == nil && len(data) > 0
	}, 5*time.Second, 10*time.Millisecond)

	stream, err := env.client.StreamNodeLog(context.Background(), &api.LogRequest{Node: name, Follow: true})
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "waiting for "+name+"\n", string(first.Data))

	close(slow.release)

	var rest strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rest.Write(chunk.Data)
	}
	assert.Equal(t, "agent connected\n", rest.String())
}
