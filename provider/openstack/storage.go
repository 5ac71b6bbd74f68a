package openstack

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/objectstorage/v1/containers"
	"github.com/gophercloud/gophercloud/openstack/objectstorage/v1/objects"
	"github.com/platformlayer/openstack-jenkins/provider"
)

type Storage struct {
	client *gophercloud.ServiceClient
}

// Storage implements provider.Storage
var _ provider.Storage = (*Storage)(nil)

func (s *Storage) GetContainer(_ context.Context, name string) error {
	_, err := containers.Get(s.client, name, nil).Extract()
	return classify(err, "failed to get container '%s'", name)
}

func (s *Storage) CreateContainer(_ context.Context, name string) error {
	_, err := containers.Create(s.client, name, containers.CreateOpts{}).Extract()
	return classify(err, "failed to create container '%s'", name)
}

func (s *Storage) PutObject(_ context.Context, container, object string, content io.Reader, length int64) error {
	_, err := objects.Create(s.client, container, object, objects.CreateOpts{
		Content:       content,
		ContentLength: length,
	}).Extract()
	return classify(err, "failed to upload '%s/%s'", container, object)
}

func (s *Storage) TempURL(_ context.Context, container, object string, ttl time.Duration) (string, error) {
	url, err := objects.CreateTempURL(s.client, container, object, objects.CreateTempURLOpts{
		Method: objects.GET,
		TTL:    int(ttl.Seconds()),
	})
	if err != nil {
		return "", classify(err, "failed to sign '%s/%s'", container, object)
	}
	if url == "" {
		return "", fmt.Errorf("empty temporary url for '%s/%s'", container, object)
	}
	return url, nil
}
