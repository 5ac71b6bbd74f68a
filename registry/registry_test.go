package registry

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloud struct{}

func (fakeCloud) ID() string {
	return "c1"
}

func (fakeCloud) Compute(context.Context) (provider.Compute, error) {
	return providertest.NewCompute(), nil
}

func (fakeCloud) Invalidate() {}

func newHandle(id, name string) *node.Handle {
	return node.New(id, name, node.Config{
		Cloud:  fakeCloud{},
		Spec:   node.Spec{Template: "img-1"},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRegistryAddRemove(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "nodes.db"))
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	require.NoError(t, r.Add(ctx, newHandle("srv-2", "beta")))
	require.NoError(t, r.Add(ctx, newHandle("srv-1", "alpha")))

	nodes := r.List()
	require.Len(t, nodes, 2)
	assert.Equal(t, "alpha", nodes[0].Name())
	assert.Equal(t, "beta", nodes[1].Name())

	h, ok := r.Find("beta")
	require.True(t, ok)
	assert.Equal(t, "srv-2", h.ID())

	_, ok = r.Get("srv-1")
	assert.True(t, ok)

	require.NoError(t, r.Remove(ctx, "srv-1"))
	_, ok = r.Get("srv-1")
	assert.False(t, ok)

	records, err := r.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, Record{ID: "srv-2", Name: "beta", Cloud: "c1", Template: "img-1", CreatedAt: records[0].CreatedAt}, records[0])
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.db")
	ctx := context.Background()

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Add(ctx, newHandle("srv-1", "alpha")))
	require.NoError(t, r.Add(ctx, newHandle("srv-1", "alpha")))
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Empty(t, r.List())

	records, err := r.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "srv-1", records[0].ID)
}

func TestRegistryServesNodeTermination(t *testing.T) {
	r, err := Open(":memory:")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	compute := providertest.NewCompute()
	compute.AddServer(provider.Server{ID: "srv-1", Name: "alpha", Status: "ACTIVE"})
	h := node.New("srv-1", "alpha", node.Config{
		Cloud:    computeCloud{compute},
		Registry: r,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, r.Add(ctx, h))

	require.NoError(t, h.Terminate(ctx))

	assert.Empty(t, r.List())
	records, err := r.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

type computeCloud struct {
	compute *providertest.Compute
}

func (c computeCloud) ID() string {
	return "c1"
}

func (c computeCloud) Compute(context.Context) (provider.Compute, error) {
	return c.compute, nil
}

func (computeCloud) Invalidate() {}
