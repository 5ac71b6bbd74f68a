// Package storage uploads files into provider object storage containers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/platformlayer/openstack-jenkins/provider"
)

// Destination is where a file lands: a container and an object path inside it.
type Destination struct {
	Bucket string
	Object string
}

// NewDestination splits a user supplied "bucket/sub/dir" into the bucket and the
// object path of file within it.
func NewDestination(userBucket, file string) Destination {
	bucket, dir, found := strings.Cut(userBucket, "/")
	if !found {
		return Destination{Bucket: bucket, Object: file}
	}
	return Destination{Bucket: bucket, Object: dir + "/" + file}
}

func (d Destination) String() string {
	return d.Bucket + "/" + d.Object
}

// EnsureContainer makes sure the container exists. A container that vanishes
// between creation and the following check is reported as an error rather than
// retried again.
func EnsureContainer(ctx context.Context, store provider.Storage, name string) error {
	err := store.GetContainer(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("failed to get container '%s': %w", name, err)
	}

	if err := store.CreateContainer(ctx, name); err != nil {
		return fmt.Errorf("failed to create container '%s': %w", name, err)
	}

	if err := store.GetContainer(ctx, name); err != nil {
		return fmt.Errorf("container '%s' still missing after creation: %w", name, err)
	}
	return nil
}

// Upload copies a local file to the destination derived from userBucket.
func Upload(ctx context.Context, store provider.Storage, userBucket, path string) (Destination, error) {
	file, err := os.Open(path)
	if err != nil {
		return Destination{}, fmt.Errorf("failed to open '%s': %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Destination{}, fmt.Errorf("failed to stat '%s': %w", path, err)
	}
	if info.IsDir() {
		return Destination{}, fmt.Errorf("'%s' is a directory", path)
	}

	destination := NewDestination(userBucket, filepath.Base(path))
	return destination, Put(ctx, store, destination, file, info.Size())
}

// Put streams content of the given length to destination, creating its container when needed.
func Put(ctx context.Context, store provider.Storage, destination Destination, content io.Reader, length int64) error {
	if err := EnsureContainer(ctx, store, destination.Bucket); err != nil {
		return err
	}
	if err := store.PutObject(ctx, destination.Bucket, destination.Object, content, length); err != nil {
		return fmt.Errorf("failed to upload '%s': %w", destination, err)
	}
	return nil
}
