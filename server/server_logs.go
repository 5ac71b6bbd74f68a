package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/cloud"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/samber/lo"
	"google.golang.org/grpc"
)

const (
	defaultTailLines = 100
	maxLogChunk      = 64 * 1024
)

var errNoLog = errors.New("no launch log")

// launchLogs stores the launch output of every node as <dir>/<node>.log.
type launchLogs struct {
	dir string
}

func newLaunchLogs(dir string) (*launchLogs, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &launchLogs{dir: dir}, nil
}

func (l *launchLogs) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid node name '%s'", provider.ErrConfiguration, name)
	}
	return filepath.Join(l.dir, name+".log"), nil
}

// Open appends to the log of a node; a relaunch of the same node continues its log.
func (l *launchLogs) Open(name string) (io.WriteCloser, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// Tail returns the last lines of the log of a node, everything when lines <= 0,
// along with the size of the log at the time it was read.
func (l *launchLogs) Tail(name string, lines int) ([]byte, int64, error) {
	data, err := l.ReadFrom(name, 0)
	if err != nil {
		return nil, 0, err
	}
	return lastNLines(data, lines), int64(len(data)), nil
}

// ReadFrom returns the log of a node past offset.
func (l *launchLogs) ReadFrom(name string, offset int64) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w for node '%s'", errNoLog, name)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open log of node '%s': %w", name, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek log of node '%s': %w", name, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read log of node '%s': %w", name, err)
	}
	return data, nil
}

// lastNLines keeps the last n lines of data. A trailing newline does not start a new line.
func lastNLines(data []byte, n int) []byte {
	if n <= 0 || len(data) == 0 {
		return data
	}

	end := len(data)
	if data[end-1] == '\n' {
		end--
	}
	for i := end - 1; i >= 0; i-- {
		if data[i] == '\n' {
			n--
			if n == 0 {
				return data[i+1:]
			}
		}
	}
	return data
}

// StreamNodeLog sends the tail of a launch log. With Follow, output appended
// while the node is still launching is sent as well.
func (s *server) StreamNodeLog(in *api.LogRequest, stream grpc.ServerStreamingServer[api.LogChunk]) error {
	// A negative line count sends the whole log.
	tailLines := in.TailLines
	if tailLines == 0 {
		tailLines = defaultTailLines
	}

	// Logs outlive their node, an unknown reference is taken as a node name.
	name := in.Node
	var planned *cloud.PlannedNode
	if h, err := s.findNode(in.Node); err == nil {
		name = h.Name()
		planned, _ = s.launch(h.ID())
	}

	data, offset, err := s.logs.Tail(name, tailLines)
	if err != nil {
		return err
	}
	if err := sendLog(stream, data); err != nil {
		return err
	}
	if !in.Follow || planned == nil {
		return nil
	}

	ticker := time.NewTicker(s.followInterval)
	defer ticker.Stop()

	for {
		var done bool
		select {
		case <-stream.Context().Done():
			return nil
		case <-planned.Done():
			done = true
		case <-ticker.C:
		}

		data, err := s.logs.ReadFrom(name, offset)
		if err != nil {
			return err
		}
		if err := sendLog(stream, data); err != nil {
			return err
		}
		offset += int64(len(data))

		if done {
			return nil
		}
	}
}

func sendLog(stream grpc.ServerStreamingServer[api.LogChunk], data []byte) error {
	for _, chunk := range lo.Chunk(data, maxLogChunk) {
		if err := stream.Send(&api.LogChunk{Data: chunk}); err != nil {
			return fmt.Errorf("failed to send log chunk: %w", err)
		}
	}
	return nil
}
