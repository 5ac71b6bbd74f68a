// Package presign produces time limited download links for objects such as
// the agent runtime archive.
package presign

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/secret"
)

const DefaultTTL = 10 * time.Minute

// Presigner signs "<container>/<object>" paths into https URLs.
type Presigner interface {
	PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Swift signs with the object store temp URL key of a cloud.
type Swift struct {
	Storage func(ctx context.Context) (provider.Storage, error)
}

// Swift implements Presigner
var _ Presigner = (*Swift)(nil)

func (s *Swift) PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error) {
	container, object, err := split(path)
	if err != nil {
		return "", err
	}

	store, err := s.Storage(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get object storage: %w", err)
	}

	signed, err := store.TempURL(ctx, container, object, ttlOrDefault(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to sign '%s': %w", path, err)
	}
	return checkURL(signed)
}

type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey secret.Secret
	PathStyle bool
}

// S3 signs against an S3 compatible endpoint.
type S3 struct {
	client *s3.PresignClient
}

// S3 implements Presigner
var _ Presigner = (*S3)(nil)

func NewS3(ctx context.Context, options S3Options) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(options.AccessKey, options.SecretKey.Reveal(), "")),
		config.WithRegion(options.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
		}
		o.UsePathStyle = options.PathStyle
	})
	return &S3{client: s3.NewPresignClient(client)}, nil
}

func (s *S3) PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error) {
	bucket, key, err := split(path)
	if err != nil {
		return "", err
	}

	request, err := s.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttlOrDefault(ttl)))
	if err != nil {
		return "", fmt.Errorf("failed to sign '%s': %w", path, err)
	}
	return checkURL(request.URL)
}

func split(path string) (string, string, error) {
	container, object, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if container == "" || object == "" {
		return "", "", fmt.Errorf("%w: '%s' is not a <container>/<object> path", provider.ErrConfiguration, path)
	}
	return container, object, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// checkURL only lets https links through, they end up in a remote wget command line.
func checkURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid signed url: %w", err)
	}
	if parsed.Scheme != "https" || parsed.Host == "" {
		return "", fmt.Errorf("signed url must be https://<host>/<path>, got scheme '%s'", parsed.Scheme)
	}
	return parsed.String(), nil
}
