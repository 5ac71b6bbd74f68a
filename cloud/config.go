package cloud

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/secret"
	"gopkg.in/yaml.v3"
)

// Config is the content of the clouds file.
type Config struct {
	Clouds []ProfileConfig `yaml:"clouds"`
}

type ProfileConfig struct {
	ID       string `yaml:"id"`
	AuthURL  string `yaml:"authUrl"`
	Tenant   string `yaml:"tenant"`
	Domain   string `yaml:"domain"`
	Region   string `yaml:"region"`
	AccessID string `yaml:"accessId"`

	SecretKey    secret.Secret `yaml:"secretKey"`
	SecretKeyRef string        `yaml:"secretKeyRef"`

	SSHPublicKey     string        `yaml:"sshPublicKey"`
	SSHPrivateKey    secret.Secret `yaml:"sshPrivateKey"`
	SSHPrivateKeyRef string        `yaml:"sshPrivateKeyRef"`

	// InstanceCap is a positive integer; empty means unlimited.
	InstanceCap   string `yaml:"instanceCap"`
	FileInjection bool   `yaml:"fileInjection"`

	Templates []TemplateConfig `yaml:"templates"`
}

type TemplateConfig struct {
	Image       string `yaml:"image"`
	Flavor      string `yaml:"flavor"`
	Zone        string `yaml:"zone"`
	Description string `yaml:"description"`

	// Labels is a whitespace separated label list.
	Labels             string   `yaml:"labels"`
	RemoteFS           string   `yaml:"remoteFS"`
	SSHPort            string   `yaml:"sshPort"`
	NumExecutors       string   `yaml:"numExecutors"`
	RemoteAdmin        string   `yaml:"remoteAdmin"`
	RootCommandPrefix  string   `yaml:"rootCommandPrefix"`
	InitScript         string   `yaml:"initScript"`
	TemplateInitScript bool     `yaml:"templateInitScript"`
	AgentOptions       string   `yaml:"agentOptions"`
	StopOnTerminate    bool     `yaml:"stopOnTerminate"`
	Networks           []string `yaml:"networks"`
	SecurityGroups     []string `yaml:"securityGroups"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read clouds file '%s': %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse clouds file: %w", err)
	}

	seen := map[string]bool{}
	for _, profile := range config.Clouds {
		if err := profile.Validate(); err != nil {
			return Config{}, err
		}
		if seen[profile.ID] {
			return Config{}, fmt.Errorf("%w: duplicate cloud '%s'", provider.ErrConfiguration, profile.ID)
		}
		seen[profile.ID] = true
	}
	return config, nil
}

func (c ProfileConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: cloud without id", provider.ErrConfiguration)
	}
	if c.AuthURL == "" {
		return fmt.Errorf("%w: cloud '%s' has no authUrl", provider.ErrConfiguration, c.ID)
	}
	if _, _, err := ParseInstanceCap(c.InstanceCap); err != nil {
		return fmt.Errorf("cloud '%s': %w", c.ID, err)
	}
	for i, template := range c.Templates {
		if template.Image == "" || template.Flavor == "" {
			return fmt.Errorf("%w: template %d of cloud '%s' needs an image and a flavor", provider.ErrConfiguration, i, c.ID)
		}
	}
	return nil
}

// ParseInstanceCap returns the cap and whether one applies.
func ParseInstanceCap(value string) (int, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "∞" {
		return 0, false, nil
	}

	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, false, fmt.Errorf("%w: invalid instance cap '%s'", provider.ErrConfiguration, value)
	}
	return limit, true, nil
}

// credentials resolves the secret key, reading it from store when given by reference.
func (c ProfileConfig) credentials(store secret.Store) (provider.Credentials, error) {
	key, err := resolve(c.SecretKey, c.SecretKeyRef, store)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("failed to load secret key of cloud '%s': %w", c.ID, err)
	}

	return provider.Credentials{
		AuthURL:   c.AuthURL,
		Tenant:    c.Tenant,
		Domain:    c.Domain,
		Region:    c.Region,
		AccessID:  c.AccessID,
		SecretKey: key,
	}, nil
}

func resolve(inline secret.Secret, ref string, store secret.Store) (secret.Secret, error) {
	if ref == "" {
		return inline, nil
	}
	if store == nil {
		return secret.Secret{}, fmt.Errorf("%w: no secret store for '%s'", provider.ErrConfiguration, ref)
	}
	return store.Load(ref)
}
