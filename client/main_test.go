package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/proto"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type handler func(in any) (any, error)

// fakeCloudd records the calls it receives and answers from handlers keyed
// by method name.
type fakeCloudd struct {
	proto.UnimplementedCloudServer

	addr     string
	handlers map[string]handler
	logs     map[string][]string

	mu       sync.Mutex
	methods  []string
	requests []any
}

func newFakeCloudd(t *testing.T, handlers map[string]handler) *fakeCloudd {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeCloudd{addr: lis.Addr().String(), handlers: handlers, logs: map[string][]string{}}
	s := grpc.NewServer()
	proto.RegisterCloudServer(s, f)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return f
}

func (f *fakeCloudd) record(method string, in any) handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
	f.requests = append(f.requests, in)
	return f.handlers[method]
}

func (f *fakeCloudd) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

// Request returns the i-th request received.
func (f *fakeCloudd) Request(i int) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func call[Res any](f *fakeCloudd, method string, in any) (*Res, error) {
	h := f.record(method, in)
	if h == nil {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}
	out, err := h(in)
	if err != nil {
		return nil, err
	}
	return out.(*Res), nil
}

func (f *fakeCloudd) Ping(_ context.Context, in *api.PingRequest) (*api.Ping, error) {
	return call[api.Ping](f, "Ping", in)
}

func (f *fakeCloudd) ListClouds(_ context.Context, in *api.ListCloudsRequest) (*api.CloudList, error) {
	return call[api.CloudList](f, "ListClouds", in)
}

func (f *fakeCloudd) Provision(_ context.Context, in *api.ProvisionRequest) (*api.ProvisionResponse, error) {
	return call[api.ProvisionResponse](f, "Provision", in)
}

func (f *fakeCloudd) ProvisionTemplate(_ context.Context, in *api.ProvisionTemplateRequest) (*api.ProvisionResponse, error) {
	return call[api.ProvisionResponse](f, "ProvisionTemplate", in)
}

func (f *fakeCloudd) Attach(_ context.Context, in *api.AttachRequest) (*api.ProvisionResponse, error) {
	return call[api.ProvisionResponse](f, "Attach", in)
}

func (f *fakeCloudd) ListZones(_ context.Context, in *api.CloudRequest) (*api.ZoneList, error) {
	return call[api.ZoneList](f, "ListZones", in)
}

func (f *fakeCloudd) Keygen(_ context.Context, in *api.KeygenRequest) (*api.KeyPair, error) {
	return call[api.KeyPair](f, "Keygen", in)
}

func (f *fakeCloudd) ListNodes(_ context.Context, in *api.ListNodesRequest) (*api.NodeList, error) {
	return call[api.NodeList](f, "ListNodes", in)
}

func (f *fakeCloudd) TerminateNode(_ context.Context, in *api.NodeRequest) (*api.Empty, error) {
	return call[api.Empty](f, "TerminateNode", in)
}

func (f *fakeCloudd) AcquireNode(_ context.Context, in *api.NodeRequest) (*api.Node, error) {
	return call[api.Node](f, "AcquireNode", in)
}

func (f *fakeCloudd) ReleaseNode(_ context.Context, in *api.NodeRequest) (*api.Node, error) {
	return call[api.Node](f, "ReleaseNode", in)
}

func (f *fakeCloudd) Console(_ context.Context, in *api.ConsoleRequest) (*api.Console, error) {
	return call[api.Console](f, "Console", in)
}

func (f *fakeCloudd) StreamNodeLog(in *api.LogRequest, stream grpc.ServerStreamingServer[api.LogChunk]) error {
	f.record("StreamNodeLog", in)
	chunks, ok := f.logs[in.Node]
	if !ok {
		return status.Errorf(codes.NotFound, "no launch log for node '%s'", in.Node)
	}
	for _, chunk := range chunks {
		if err := stream.Send(&api.LogChunk{Data: []byte(chunk)}); err != nil {
			return err
		}
	}
	return nil
}

func reply(out any) handler {
	return func(any) (any, error) { return out, nil }
}

func failWith(code codes.Code, message string) handler {
	return func(any) (any, error) { return nil, status.Error(code, message) }
}

// execute runs cloudctl with args, restoring every flag to its default first.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

var sampleNodes = []api.Node{
	{
		Name:      "lab-brave-otter",
		Cloud:     "lab",
		Template:  "ubuntu",
		Executors: 2,
		State:     "active",
		Address:   "10.0.0.12",
		Connected: true,
		Idle:      true,
		Outcome:   "success",
	},
	{
		Name:      "lab-quiet-heron",
		Cloud:     "lab",
		Template:  "ubuntu",
		Executors: 2,
		State:     "starting",
		Outcome:   "launching",
	},
}

func TestNodes(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"ListNodes": reply(&api.NodeList{Nodes: sampleNodes}),
	})

	stdout, _, err := execute(t, "nodes", "--remote", f.addr, "--cloud", "lab", "--refresh")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "lab-brave-otter")
	assert.Contains(t, lines[1], "10.0.0.12")
	assert.Contains(t, lines[1], "idle")
	assert.Contains(t, lines[2], "launching")
	assert.Equal(t, &api.ListNodesRequest{Cloud: "lab", Refresh: true}, f.Request(0))
}

func TestNodesEmpty(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"ListNodes": reply(&api.NodeList{}),
	})

	stdout, stderr, err := execute(t, "ls", "--remote", f.addr)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No nodes")
	assert.Equal(t, &api.ListNodesRequest{}, f.Request(0))
}

func TestNodeStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "launching", nodeStatus(api.Node{Outcome: "launching"}, now))
	assert.Equal(t, "aborted: agent did not start", nodeStatus(api.Node{Outcome: "aborted", Error: "agent did not start"}, now))
	assert.Equal(t, "unstable", nodeStatus(api.Node{Outcome: "unstable"}, now))
	assert.Equal(t, "offline", nodeStatus(api.Node{Outcome: "success"}, now))
	assert.Equal(t, "busy", nodeStatus(api.Node{Connected: true}, now))
	assert.Equal(t, "idle", nodeStatus(api.Node{Connected: true, Idle: true}, now))
	assert.Equal(t, "idle for 1m30s", nodeStatus(api.Node{Connected: true, Idle: true, IdleSince: now.Add(-90 * time.Second)}, now))
}

func TestProvision(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"Provision": reply(&api.ProvisionResponse{Nodes: sampleNodes[:1]}),
	})

	stdout, _, err := execute(t, "provision", "lab", "linux && docker", "-n", "3", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, &api.ProvisionRequest{Cloud: "lab", Label: "linux && docker", Demand: 3, Wait: true}, f.Request(0))
	assert.Contains(t, stdout, "lab-brave-otter")
}

func TestProvisionImage(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"ProvisionTemplate": reply(&api.ProvisionResponse{Nodes: sampleNodes[:1]}),
	})

	_, _, err := execute(t, "provision", "lab", "--image", "windows", "--wait=false", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, &api.ProvisionTemplateRequest{Cloud: "lab", Image: "windows"}, f.Request(0))

	_, _, err = execute(t, "provision", "lab", "linux", "--image", "windows", "--remote", f.addr)
	assert.ErrorContains(t, err, "mutually exclusive")
	assert.Len(t, f.Methods(), 1)
}

func TestProvisionReportsFailures(t *testing.T) {
	failed := sampleNodes[0]
	failed.Outcome = "aborted"
	failed.Error = "agent did not start"

	f := newFakeCloudd(t, map[string]handler{
		"Provision": func(in any) (any, error) {
			switch in.(*api.ProvisionRequest).Cloud {
			case "partial":
				return &api.ProvisionResponse{Nodes: sampleNodes[:1], Error: "instance cap reached"}, nil
			case "broken":
				return &api.ProvisionResponse{Nodes: []api.Node{failed}}, nil
			default:
				return nil, status.Error(codes.ResourceExhausted, "instance cap reached")
			}
		},
	})

	stdout, _, err := execute(t, "provision", "partial", "--remote", f.addr)
	assert.ErrorContains(t, err, "provisioning interrupted: instance cap reached")
	assert.Contains(t, stdout, "lab-brave-otter")

	stdout, _, err = execute(t, "provision", "broken", "--remote", f.addr)
	assert.ErrorContains(t, err, "1 node(s) failed to launch")
	assert.Contains(t, stdout, "agent did not start")

	_, _, err = execute(t, "provision", "full", "--remote", f.addr)
	var rerr *remoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, codes.ResourceExhausted, rerr.Code)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, "instance cap reached (ResourceExhausted)", err.Error())
}

func TestAttach(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"Attach": reply(&api.ProvisionResponse{Nodes: sampleNodes[:1]}),
	})

	stdout, _, err := execute(t, "attach", "lab", "vm-1", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, &api.AttachRequest{Cloud: "lab", Instance: "vm-1", Wait: true}, f.Request(0))
	assert.Contains(t, stdout, "lab-brave-otter")
}

func TestTerminate(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"TerminateNode": func(in any) (any, error) {
			if in.(*api.NodeRequest).Node == "ghost" {
				return nil, status.Error(codes.NotFound, "unknown node 'ghost'")
			}
			return &api.Empty{}, nil
		},
	})

	_, stderr, err := execute(t, "rm", "lab-brave-otter", "ghost", "--remote", f.addr)
	assert.ErrorContains(t, err, "unknown node 'ghost'")
	assert.Contains(t, stderr, "Terminated node 'lab-brave-otter'")
	assert.Contains(t, stderr, "Failed to terminate 'ghost'")
	assert.Equal(t, []string{"TerminateNode", "TerminateNode"}, f.Methods())
}

func TestAcquireAndRelease(t *testing.T) {
	busy := sampleNodes[0]
	busy.Idle = false
	f := newFakeCloudd(t, map[string]handler{
		"AcquireNode": reply(&busy),
		"ReleaseNode": reply(&sampleNodes[0]),
	})

	_, stderr, err := execute(t, "acquire", "lab-brave-otter", "--remote", f.addr)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Acquired node 'lab-brave-otter'")

	_, stderr, err = execute(t, "release", "lab-brave-otter", "--remote", f.addr)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Released node 'lab-brave-otter', now idle")

	assert.Equal(t, []string{"AcquireNode", "ReleaseNode"}, f.Methods())
	assert.Equal(t, &api.NodeRequest{Node: "lab-brave-otter"}, f.Request(1))
}

func TestAcquireOfflineNode(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"AcquireNode": failWith(codes.FailedPrecondition, "node agent is not connected: 'lab-quiet-heron'"),
	})

	_, _, err := execute(t, "acquire", "lab-quiet-heron", "--remote", f.addr)
	assert.EqualError(t, err, "node agent is not connected: 'lab-quiet-heron' (FailedPrecondition)")
}

func TestConsole(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"Console": reply(&api.Console{Output: "login:\n"}),
	})

	stdout, _, err := execute(t, "console", "lab-brave-otter", "-n", "5", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, "login:\n", stdout)
	assert.Equal(t, &api.ConsoleRequest{Node: "lab-brave-otter", Lines: 5}, f.Request(0))
}

func TestLogs(t *testing.T) {
	f := newFakeCloudd(t, nil)
	f.logs["lab-brave-otter"] = []string{"Connecting\n", "Agent connected\n"}

	stdout, _, err := execute(t, "logs", "lab-brave-otter", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, "Connecting\nAgent connected\n", stdout)

	_, _, err = execute(t, "tail", "ghost", "-n", "-1", "-f", "--remote", f.addr)
	assert.EqualError(t, err, "failed to fetch launch log: no launch log for node 'ghost' (NotFound)")

	assert.Equal(t, &api.LogRequest{Node: "lab-brave-otter", TailLines: 100}, f.Request(0))
	assert.Equal(t, &api.LogRequest{Node: "ghost", TailLines: -1, Follow: true}, f.Request(1))
}

func TestLogsCmd_RequiresExactlyOneArg(t *testing.T) {
	assert.Error(t, logsCmd.Args(logsCmd, []string{}))
	assert.NoError(t, logsCmd.Args(logsCmd, []string{"node"}))
	assert.Error(t, logsCmd.Args(logsCmd, []string{"node", "extra"}))
}

func TestClouds(t *testing.T) {
	limit := 4
	f := newFakeCloudd(t, map[string]handler{
		"ListClouds": reply(&api.CloudList{Clouds: []api.Cloud{{
			ID:          "lab",
			InstanceCap: &limit,
			Templates:   []api.Template{{Image: "ubuntu", Flavor: "m1.small", Labels: []string{"linux", "docker"}}},
		}}}),
		"ListZones": reply(&api.ZoneList{Zones: []api.Zone{{Name: "nova", Available: true}, {Name: "old", Available: false}}}),
	})

	stdout, _, err := execute(t, "clouds", "--remote", f.addr)
	require.NoError(t, err)
	assert.Contains(t, stdout, "lab (at most 4 instances)")
	assert.Contains(t, stdout, "linux docker")

	stdout, _, err = execute(t, "clouds", "zones", "lab", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, "nova\nold (unavailable)\n", stdout)
	assert.Equal(t, &api.CloudRequest{Cloud: "lab"}, f.Request(1))
}

func TestKeygenWritesFiles(t *testing.T) {
	output := filepath.Join(t.TempDir(), "id_rsa")

	_, stderr, err := execute(t, "keygen", "--bits", "1024", "-o", output)
	require.NoError(t, err)

	private, err := os.ReadFile(output)
	require.NoError(t, err)
	require.NoError(t, keys.Validate(string(private)))

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	public, err := os.ReadFile(output + ".pub")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(public), "ssh-rsa "))

	fingerprint, err := keys.Fingerprint(string(private))
	require.NoError(t, err)
	assert.Contains(t, stderr, fingerprint)
}

func TestKeygenFromServer(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"Keygen": reply(&api.KeyPair{PublicKey: "ssh-rsa AAAA", PrivateKey: "PEM\n", Fingerprint: "aa:bb"}),
	})

	stdout, stderr, err := execute(t, "keygen", "--server", "--remote", f.addr)
	require.NoError(t, err)
	assert.Equal(t, "PEM\nssh-rsa AAAA\n", stdout)
	assert.Contains(t, stderr, "aa:bb")
	assert.Equal(t, &api.KeygenRequest{Bits: keys.DefaultBits}, f.Request(0))
}

func TestVersion(t *testing.T) {
	f := newFakeCloudd(t, map[string]handler{
		"Ping": reply(&api.Ping{Version: "1.4.0", Commit: "0123456789abcdef"}),
	})

	stdout, _, err := execute(t, "version", "--remote", f.addr)
	require.NoError(t, err)
	assert.Contains(t, stdout, "cloudctl version dev (n/a)")
	assert.Contains(t, stdout, "server version 1.4.0 (0123456)")
}

func TestUnreachableServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"version", "--remote", addr})
	rootCmd.SetOut(&bytes.Buffer{})
	err = rootCmd.ExecuteContext(ctx)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestTarget(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"cloudd.internal", "cloudd.internal:25373"},
		{"cloudd.internal:9000", "cloudd.internal:9000"},
		{"10.0.0.5", "10.0.0.5:25373"},
		{"[::1]:9000", "[::1]:9000"},
	}
	for _, tt := range tests {
		got, err := target(tt.remote)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := target("")
	assert.Error(t, err)
}

func TestRemoteErrorWithoutMessage(t *testing.T) {
	err := fromStatus(status.Error(codes.Unavailable, ""))
	assert.EqualError(t, err, "server answered Unavailable")
	assert.Equal(t, codes.Unavailable, status.Code(err))

	assert.NoError(t, fromStatus(nil))
}
