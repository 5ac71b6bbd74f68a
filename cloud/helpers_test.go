package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/launcher"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/provider/providertest"
	"github.com/platformlayer/openstack-jenkins/registry"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     keys.KeyPair
)

func testKeyPair(t *testing.T) keys.KeyPair {
	t.Helper()
	testKeyOnce.Do(func() {
		kp, err := keys.Generate(keys.DefaultBits)
		if err != nil {
			panic(err)
		}
		testKey = kp
	})
	return testKey
}

type fixture struct {
	compute  *providertest.Compute
	profile  *Profile
	connects atomic.Int32
}

func newFixture(t *testing.T, mutate func(*ProfileConfig)) *fixture {
	t.Helper()

	config := ProfileConfig{
		ID:            "lab",
		AuthURL:       "https://keystone.lab:5000/v3",
		SSHPrivateKey: testKeyPair(t).PrivateKey,
		Templates: []TemplateConfig{
			{Image: "ubuntu", Flavor: "small", Labels: "linux docker"},
			{Image: "windows", Flavor: "large", Labels: "windows", NumExecutors: "1"},
		},
	}
	if mutate != nil {
		mutate(&config)
	}

	f := &fixture{compute: providertest.NewCompute()}
	f.compute.Flavors["small"] = provider.Flavor{ID: "small", VCPUs: 2}
	f.compute.Flavors["large"] = provider.Flavor{ID: "large", VCPUs: 8}

	connect := func(ctx context.Context, credentials provider.Credentials) (provider.Session, error) {
		f.connects.Add(1)
		return &providertest.Session{ComputeService: f.compute}, nil
	}

	profile, err := NewProfile(config, nil, connect, nil)
	require.NoError(t, err)
	f.profile = profile
	return f
}

func (f *fixture) addServers(status string, n int) {
	for i := 0; i < n; i++ {
		f.compute.AddServer(provider.Server{ID: fmt.Sprintf("existing-%s-%d", status, i), Status: status})
	}
}

func openRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.Open(filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

type fakeLauncher struct {
	mutex    sync.Mutex
	launched []string
	connect  bool
}

func (f *fakeLauncher) Launch(_ context.Context, n launcher.Node, out io.Writer) launcher.Result {
	f.mutex.Lock()
	f.launched = append(f.launched, n.Name())
	connect := f.connect
	f.mutex.Unlock()

	fmt.Fprintf(out, "launching %s\n", n.Name())
	if !connect {
		return launcher.Result{Outcome: launcher.Aborted, Err: errors.New("agent did not start")}
	}

	r, w := io.Pipe()
	return launcher.Result{Outcome: launcher.Success, Channel: launcher.NewChannel(r, w)}
}

func (f *fakeLauncher) Launched() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.launched...)
}

type fakeStarter struct {
	started atomic.Int32
}

func (f *fakeStarter) Start(ctx context.Context, _ *node.Handle, connect func(context.Context) error) error {
	f.started.Add(1)
	return connect(ctx)
}

type memoryLog struct {
	mutex sync.Mutex
	logs  map[string]*closingBuffer
}

type closingBuffer struct {
	data   []byte
	closed bool
}

func (m *memoryLog) sink(name string) (io.WriteCloser, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.logs == nil {
		m.logs = map[string]*closingBuffer{}
	}
	buf := &closingBuffer{}
	m.logs[name] = buf
	return &logWriter{log: m, buf: buf}, nil
}

func (m *memoryLog) content(name string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	buf, ok := m.logs[name]
	if !ok {
		return "", false
	}
	return string(buf.data), buf.closed
}

type logWriter struct {
	log *memoryLog
	buf *closingBuffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.log.mutex.Lock()
	defer w.log.mutex.Unlock()
	w.buf.data = append(w.buf.data, p...)
	return len(p), nil
}

func (w *logWriter) Close() error {
	w.log.mutex.Lock()
	defer w.log.mutex.Unlock()
	w.buf.closed = true
	return nil
}
