package cloud

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/samber/lo"
)

const (
	defaultSSHPort     = 22
	defaultRemoteAdmin = "root"
	defaultRemoteFS    = "/var/lib/jenkins"

	MetadataCloud    = "jenkins-cloud"
	MetadataTemplate = "jenkins-template"
)

// Template describes how to create one kind of node.
type Template struct {
	config  TemplateConfig
	labels  []string
	profile *Profile
}

func newTemplate(config TemplateConfig, profile *Profile) *Template {
	return &Template{
		config:  config,
		labels:  lo.Uniq(strings.Fields(config.Labels)),
		profile: profile,
	}
}

func (t *Template) Image() string {
	return t.config.Image
}

func (t *Template) Flavor() string {
	return t.config.Flavor
}

func (t *Template) Zone() string {
	return t.config.Zone
}

func (t *Template) Labels() []string {
	return append([]string(nil), t.labels...)
}

func (t *Template) DisplayName() string {
	if t.config.Description != "" {
		return t.config.Description
	}
	return t.config.Image
}

// Matches reports whether a request for label may use this template. A template
// without labels accepts everything.
func (t *Template) Matches(label string) bool {
	if len(t.labels) == 0 {
		return true
	}
	return lo.Contains(t.labels, label)
}

func (t *Template) SSHPort() int {
	if port, err := strconv.Atoi(strings.TrimSpace(t.config.SSHPort)); err == nil && port > 0 {
		return port
	}
	return defaultSSHPort
}

func (t *Template) RemoteAdmin() string {
	if t.config.RemoteAdmin == "" {
		return defaultRemoteAdmin
	}
	return t.config.RemoteAdmin
}

func (t *Template) RootCommandPrefix() string {
	return t.config.RootCommandPrefix
}

func (t *Template) RemoteFS() string {
	if t.config.RemoteFS == "" {
		return defaultRemoteFS
	}
	return t.config.RemoteFS
}

// AuthorizedKeysPath is where an injected public key lands on the node.
func (t *Template) AuthorizedKeysPath() string {
	home := "/home/" + t.RemoteAdmin()
	if t.RemoteAdmin() == "root" {
		home = "/root"
	}
	return path.Join(home, ".ssh", "authorized_keys")
}

// BuildCreateRequest prepares the creation of a node named name. The public
// key goes through a provider keypair when supported, else through file injection.
func (t *Template) BuildCreateRequest(ctx context.Context, compute provider.Compute, manager *keys.Manager, name string) (provider.CreateRequest, error) {
	request := provider.CreateRequest{
		Name:           name,
		ImageRef:       t.config.Image,
		FlavorRef:      t.config.Flavor,
		Zone:           t.config.Zone,
		Networks:       t.config.Networks,
		SecurityGroups: t.config.SecurityGroups,
		Metadata: map[string]string{
			MetadataCloud:    t.profile.ID(),
			MetadataTemplate: t.config.Image,
		},
	}

	capabilities, err := compute.Capabilities(ctx)
	if err != nil {
		return provider.CreateRequest{}, fmt.Errorf("failed to query capabilities: %w", err)
	}

	keyPair := t.profile.KeyPair()
	switch {
	case capabilities.SSHKeys:
		ref, err := manager.FindOrCreate(ctx, compute, keyPair)
		if err != nil {
			return provider.CreateRequest{}, err
		}
		request.KeyName = ref.Name
	case capabilities.FileInjection:
		request.Files = []provider.File{{
			Path:     t.AuthorizedKeysPath(),
			Contents: []byte(keyPair.PublicKey + "\n"),
		}}
	default:
		return provider.CreateRequest{}, fmt.Errorf("%w: cloud '%s' supports neither ssh keypairs nor file injection", provider.ErrConfiguration, t.profile.ID())
	}

	return request, nil
}

// NumExecutors returns the configured executor count, or the vCPU count of the flavor.
func (t *Template) NumExecutors(ctx context.Context, compute provider.Compute) (int, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(t.config.NumExecutors)); err == nil && n > 0 {
		return n, nil
	}

	flavor, err := compute.GetFlavor(ctx, t.config.Flavor)
	if err != nil {
		return 0, fmt.Errorf("failed to get flavor '%s': %w", t.config.Flavor, err)
	}
	return max(flavor.VCPUs, 1), nil
}

// ValidateImage checks that the image exists and is usable.
func (t *Template) ValidateImage(ctx context.Context, compute provider.Compute) (*provider.Image, error) {
	return validateImage(ctx, compute, t.config.Image)
}

func validateImage(ctx context.Context, compute provider.Compute, id string) (*provider.Image, error) {
	image, err := compute.GetImage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get image '%s': %w", id, err)
	}
	if image.Status != "" && !strings.EqualFold(image.Status, "active") {
		return image, fmt.Errorf("%w: image '%s' is %s", provider.ErrConfiguration, id, strings.ToLower(image.Status))
	}
	return image, nil
}

// NodeSpec captures the settings a node keeps for its whole life.
func (t *Template) NodeSpec(executors int) node.Spec {
	return node.Spec{
		Template:           t.config.Image,
		Description:        t.DisplayName(),
		Labels:             t.Labels(),
		RemoteFS:           t.RemoteFS(),
		NumExecutors:       executors,
		SSHPort:            t.SSHPort(),
		RemoteAdmin:        t.RemoteAdmin(),
		RootCommandPrefix:  t.RootCommandPrefix(),
		InitScript:         t.config.InitScript,
		TemplateInitScript: t.config.TemplateInitScript,
		AgentOptions:       t.config.AgentOptions,
		StopOnTerminate:    t.config.StopOnTerminate,
	}
}
