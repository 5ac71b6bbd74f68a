package presign

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/provider/providertest"
	"github.com/platformlayer/openstack-jenkins/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swiftWith(store *providertest.Storage) *Swift {
	return &Swift{Storage: func(context.Context) (provider.Storage, error) { return store, nil }}
}

func TestSwiftPresignGet(t *testing.T) {
	store := providertest.NewStorage()

	signed, err := swiftWith(store).PresignGet(context.Background(), "runtime/jdk-17.tar.gz", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://swift.example.com/v1/AUTH_test/runtime/jdk-17.tar.gz?temp_url_sig=fake&temp_url_expires=300", signed)
}

func TestSwiftPresignDefaultTTL(t *testing.T) {
	signed, err := swiftWith(providertest.NewStorage()).PresignGet(context.Background(), "/runtime/jdk.tgz", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(signed, "temp_url_expires=600"))
}

func TestSwiftPresignErrors(t *testing.T) {
	store := providertest.NewStorage()

	_, err := swiftWith(store).PresignGet(context.Background(), "no-object", time.Minute)
	assert.ErrorIs(t, err, provider.ErrConfiguration)

	store.Host = ""
	_, err = swiftWith(store).PresignGet(context.Background(), "runtime/jdk.tgz", time.Minute)
	assert.ErrorContains(t, err, "https://<host>/<path>")

	failing := providertest.NewStorage()
	failing.Fail("TempURL", errors.New("no temp url key"))
	_, err = swiftWith(failing).PresignGet(context.Background(), "runtime/jdk.tgz", time.Minute)
	assert.ErrorContains(t, err, "failed to sign 'runtime/jdk.tgz'")

	unsupported := &Swift{Storage: func(context.Context) (provider.Storage, error) {
		return nil, provider.WithKind(provider.ErrUnsupported, errors.New("no object storage"))
	}}
	_, err = unsupported.PresignGet(context.Background(), "runtime/jdk.tgz", time.Minute)
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}

func TestS3PresignGet(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	presigner, err := NewS3(context.Background(), S3Options{
		Endpoint:  "https://objects.example.com",
		Region:    "eu-central",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: secret.New("wJalrXUtnFEMI"),
		PathStyle: true,
	})
	require.NoError(t, err)

	signed, err := presigner.PresignGet(context.Background(), "runtime/jdk-17.tar.gz", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "https://objects.example.com/runtime/jdk-17.tar.gz?"), signed)
	assert.Contains(t, signed, "X-Amz-Expires=900")
	assert.Contains(t, signed, "X-Amz-Signature=")
	assert.NotContains(t, signed, "wJalrXUtnFEMI")
}

func TestS3PresignRejectsPlainHTTP(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	presigner, err := NewS3(context.Background(), S3Options{
		Endpoint:  "http://minio.local:9000",
		Region:    "us-east-1",
		AccessKey: "minio",
		SecretKey: secret.New("minio123"),
		PathStyle: true,
	})
	require.NoError(t, err)

	_, err = presigner.PresignGet(context.Background(), "runtime/jdk.tgz", time.Minute)
	assert.Error(t, err)
}
