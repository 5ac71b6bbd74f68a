package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDestination(t *testing.T) {
	tests := []struct {
		bucket     string
		bucketName string
		object     string
	}{
		{"my-bucket-name", "my-bucket-name", "test.txt"},
		{"my-bucket-name/foo", "my-bucket-name", "foo/test.txt"},
		{"my-bucket-name/foo/baz", "my-bucket-name", "foo/baz/test.txt"},
		{"my-bucket-name/", "my-bucket-name", "/test.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.bucket, func(t *testing.T) {
			destination := NewDestination(tt.bucket, "test.txt")
			assert.Equal(t, tt.bucketName, destination.Bucket)
			assert.Equal(t, tt.object, destination.Object)
		})
	}
}

func TestEnsureContainerExisting(t *testing.T) {
	store := providertest.NewStorage()
	require.NoError(t, store.CreateContainer(context.Background(), "artifacts"))

	require.NoError(t, EnsureContainer(context.Background(), store, "artifacts"))
	assert.Equal(t, 1, store.CallCount("CreateContainer"))
}

func TestEnsureContainerCreatesOnce(t *testing.T) {
	store := providertest.NewStorage()

	require.NoError(t, EnsureContainer(context.Background(), store, "artifacts"))
	assert.True(t, store.HasContainer("artifacts"))
	assert.Equal(t, 1, store.CallCount("CreateContainer"))
	assert.Equal(t, 2, store.CallCount("GetContainer"))
}

func TestEnsureContainerFailsOnSecondNotFound(t *testing.T) {
	store := providertest.NewStorage()
	gone := provider.WithKind(provider.ErrNotFound, errors.New("container deleted"))
	store.Fail("GetContainer", gone, gone)

	err := EnsureContainer(context.Background(), store, "artifacts")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.Equal(t, 2, store.CallCount("GetContainer"))
	assert.Equal(t, 1, store.CallCount("CreateContainer"))
}

func TestEnsureContainerOtherErrors(t *testing.T) {
	store := providertest.NewStorage()
	store.Fail("GetContainer", provider.WithKind(provider.ErrAuthentication, errors.New("401")))

	err := EnsureContainer(context.Background(), store, "artifacts")
	assert.ErrorIs(t, err, provider.ErrAuthentication)
	assert.Zero(t, store.CallCount("CreateContainer"))

	store.Fail("CreateContainer", errors.New("quota"))
	err = EnsureContainer(context.Background(), store, "artifacts")
	assert.ErrorContains(t, err, "failed to create container")
}

func TestUpload(t *testing.T) {
	store := providertest.NewStorage()
	dir := t.TempDir()
	path := filepath.Join(dir, "report.xml")
	require.NoError(t, os.WriteFile(path, []byte("<testsuite/>"), 0o644))

	destination, err := Upload(context.Background(), store, "results/nightly", path)
	require.NoError(t, err)
	assert.Equal(t, "results/nightly/report.xml", destination.String())

	content, ok := store.Object("results", "nightly/report.xml")
	require.True(t, ok)
	assert.Equal(t, "<testsuite/>", string(content))

	_, err = Upload(context.Background(), store, "results", dir)
	assert.ErrorContains(t, err, "is a directory")
}

func TestPutReportsUploadFailure(t *testing.T) {
	store := providertest.NewStorage()
	store.Fail("PutObject", errors.New("connection reset"))

	err := Put(context.Background(), store, NewDestination("logs", "build.log"), strings.NewReader("ok"), 2)
	assert.ErrorContains(t, err, "failed to upload 'logs/build.log'")
}
