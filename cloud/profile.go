// Package cloud holds the configured cloud profiles, their node templates and
// the controller that provisions nodes from them.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/secret"
	"github.com/samber/lo"
)

// Profile is one configured cloud. Only its session changes after construction.
type Profile struct {
	id        string
	limit     int
	limited   bool
	keyPair   keys.KeyPair
	templates []*Template
	session   *SessionHolder
	log       *slog.Logger
}

// Profile implements node.Cloud
var _ node.Cloud = (*Profile)(nil)

func NewProfile(config ProfileConfig, store secret.Store, connect Connector, logger *slog.Logger) (*Profile, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	credentials, err := config.credentials(store)
	if err != nil {
		return nil, err
	}

	limit, limited, _ := ParseInstanceCap(config.InstanceCap)
	p := &Profile{
		id:      config.ID,
		limit:   limit,
		limited: limited,
		session: NewSessionHolder(connect, credentials),
		log:     logger.With("cloud", config.ID),
	}

	if p.keyPair, err = p.loadKeyPair(config, store); err != nil {
		return nil, err
	}

	for _, templateConfig := range config.Templates {
		p.templates = append(p.templates, newTemplate(templateConfig, p))
	}
	return p, nil
}

func (p *Profile) loadKeyPair(config ProfileConfig, store secret.Store) (keys.KeyPair, error) {
	private, err := resolve(config.SSHPrivateKey, config.SSHPrivateKeyRef, store)
	if err != nil {
		return keys.KeyPair{}, fmt.Errorf("failed to load ssh key of cloud '%s': %w", config.ID, err)
	}

	if private.IsZero() {
		p.log.Warn("No ssh key configured, generating one for this run")
		return keys.Generate(keys.DefaultBits)
	}

	kp, err := keys.Parse(private)
	if err != nil {
		return keys.KeyPair{}, fmt.Errorf("invalid ssh key of cloud '%s': %w", config.ID, err)
	}
	if config.SSHPublicKey != "" && !keys.SamePublicKey(config.SSHPublicKey, kp.PublicKey) {
		p.log.Warn("Configured public key does not match the private key, using the derived one")
	}
	return kp, nil
}

func (p *Profile) ID() string {
	return p.id
}

// InstanceCap returns the cap and whether one applies.
func (p *Profile) InstanceCap() (int, bool) {
	return p.limit, p.limited
}

func (p *Profile) KeyPair() keys.KeyPair {
	return p.keyPair
}

func (p *Profile) Templates() []*Template {
	return append([]*Template(nil), p.templates...)
}

// TemplateFor returns the first template accepting label. An empty label
// selects the first template.
func (p *Profile) TemplateFor(label string) (*Template, bool) {
	if label == "" {
		if len(p.templates) == 0 {
			return nil, false
		}
		return p.templates[0], true
	}
	return lo.Find(p.templates, func(t *Template) bool { return t.Matches(label) })
}

func (p *Profile) TemplateByImage(image string) (*Template, bool) {
	return lo.Find(p.templates, func(t *Template) bool { return t.Image() == image })
}

func (p *Profile) Session(ctx context.Context) (provider.Session, error) {
	session, err := p.session.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cloud '%s': %w", p.id, err)
	}
	return session, nil
}

func (p *Profile) Compute(ctx context.Context) (provider.Compute, error) {
	session, err := p.Session(ctx)
	if err != nil {
		return nil, err
	}
	return session.Compute(), nil
}

func (p *Profile) Storage(ctx context.Context) (provider.Storage, error) {
	session, err := p.Session(ctx)
	if err != nil {
		return nil, err
	}
	return session.Storage()
}

// Invalidate forgets the session, typically after an authentication failure.
func (p *Profile) Invalidate() {
	p.log.Info("Dropping cloud session")
	p.session.Invalidate()
}

// checkAuth invalidates the session when err reports expired credentials.
func (p *Profile) checkAuth(err error) error {
	if errors.Is(err, provider.ErrAuthentication) {
		p.Invalidate()
	}
	return err
}
