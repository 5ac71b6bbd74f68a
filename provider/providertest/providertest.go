// Package providertest provides in-memory provider implementations for tests.
package providertest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/platformlayer/openstack-jenkins/provider"
	"golang.org/x/crypto/ssh"
)

// Compute is an in-memory compute service. Errors registered with Fail are
// returned by the named operation until cleared.
type Compute struct {
	mutex sync.Mutex

	servers  map[string]*provider.Server
	scripts  map[string][]string
	errors   map[string]error
	nextID   int
	keyPairs []provider.KeyPair

	Caps    provider.Capabilities
	Flavors map[string]provider.Flavor
	Images  map[string]provider.Image
	Zones   []provider.Zone
	Console string

	Created []provider.CreateRequest
	Deleted []string
	Stopped []string
	Calls   map[string]int
}

// Compute implements provider.Compute
var _ provider.Compute = (*Compute)(nil)

func NewCompute() *Compute {
	return &Compute{
		servers: map[string]*provider.Server{},
		scripts: map[string][]string{},
		errors:  map[string]error{},
		Caps:    provider.Capabilities{SSHKeys: true},
		Flavors: map[string]provider.Flavor{},
		Images:  map[string]provider.Image{},
		Calls:   map[string]int{},
	}
}

func (c *Compute) Fail(op string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err == nil {
		delete(c.errors, op)
	} else {
		c.errors[op] = err
	}
}

// Script queues the statuses successive GetServer calls will report.
func (c *Compute) Script(id string, statuses ...string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.scripts[id] = append(c.scripts[id], statuses...)
}

func (c *Compute) AddServer(server provider.Server) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.servers[server.ID] = &server
}

func (c *Compute) SetStatus(id, status string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if server, ok := c.servers[id]; ok {
		server.Status = status
	}
}

func (c *Compute) Server(id string) (provider.Server, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	server, ok := c.servers[id]
	if !ok {
		return provider.Server{}, false
	}
	return *server, true
}

func (c *Compute) CallCount(op string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.Calls[op]
}

func (c *Compute) enter(op string) error {
	c.Calls[op]++
	return c.errors[op]
}

func (c *Compute) Capabilities(context.Context) (provider.Capabilities, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("Capabilities"); err != nil {
		return provider.Capabilities{}, err
	}
	return c.Caps, nil
}

func (c *Compute) CreateServer(_ context.Context, request provider.CreateRequest) (*provider.Server, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("CreateServer"); err != nil {
		return nil, err
	}

	c.nextID++
	server := &provider.Server{
		ID:       fmt.Sprintf("srv-%d", c.nextID),
		Name:     request.Name,
		Status:   "BUILD",
		FlavorID: request.FlavorRef,
		ImageID:  request.ImageRef,
		Created:  time.Now(),
		Metadata: request.Metadata,
	}
	c.servers[server.ID] = server
	c.Created = append(c.Created, request)

	clone := *server
	return &clone, nil
}

func (c *Compute) GetServer(_ context.Context, id string) (*provider.Server, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("GetServer"); err != nil {
		return nil, err
	}

	server, ok := c.servers[id]
	if !ok {
		return nil, notFound("server", id)
	}
	if script := c.scripts[id]; len(script) > 0 {
		server.Status = script[0]
		c.scripts[id] = script[1:]
	}

	clone := *server
	return &clone, nil
}

func (c *Compute) ListServers(context.Context) ([]provider.Server, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("ListServers"); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(c.servers))
	for id := range c.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	servers := make([]provider.Server, 0, len(ids))
	for _, id := range ids {
		servers = append(servers, *c.servers[id])
	}
	return servers, nil
}

func (c *Compute) DeleteServer(_ context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("DeleteServer"); err != nil {
		return err
	}
	if _, ok := c.servers[id]; !ok {
		return notFound("server", id)
	}
	delete(c.servers, id)
	c.Deleted = append(c.Deleted, id)
	return nil
}

func (c *Compute) StopServer(_ context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("StopServer"); err != nil {
		return err
	}
	server, ok := c.servers[id]
	if !ok {
		return notFound("server", id)
	}
	server.Status = "SHUTOFF"
	c.Stopped = append(c.Stopped, id)
	return nil
}

func (c *Compute) ConsoleOutput(_ context.Context, id string, _ int) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("ConsoleOutput"); err != nil {
		return "", err
	}
	if _, ok := c.servers[id]; !ok {
		return "", notFound("server", id)
	}
	return c.Console, nil
}

func (c *Compute) GetFlavor(_ context.Context, id string) (*provider.Flavor, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("GetFlavor"); err != nil {
		return nil, err
	}
	flavor, ok := c.Flavors[id]
	if !ok {
		return nil, notFound("flavor", id)
	}
	return &flavor, nil
}

func (c *Compute) ListFlavors(context.Context) ([]provider.Flavor, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("ListFlavors"); err != nil {
		return nil, err
	}
	flavors := make([]provider.Flavor, 0, len(c.Flavors))
	for _, flavor := range c.Flavors {
		flavors = append(flavors, flavor)
	}
	sort.Slice(flavors, func(i, j int) bool { return flavors[i].ID < flavors[j].ID })
	return flavors, nil
}

func (c *Compute) GetImage(_ context.Context, id string) (*provider.Image, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("GetImage"); err != nil {
		return nil, err
	}
	image, ok := c.Images[id]
	if !ok {
		return nil, notFound("image", id)
	}
	return &image, nil
}

func (c *Compute) ListZones(context.Context) ([]provider.Zone, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("ListZones"); err != nil {
		return nil, err
	}
	return append([]provider.Zone(nil), c.Zones...), nil
}

func (c *Compute) ListKeyPairs(context.Context) ([]provider.KeyPair, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("ListKeyPairs"); err != nil {
		return nil, err
	}
	return append([]provider.KeyPair(nil), c.keyPairs...), nil
}

// CreateKeyPair fingerprints the public key like Nova does.
func (c *Compute) CreateKeyPair(_ context.Context, name string, publicKey string) (*provider.KeyPair, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.enter("CreateKeyPair"); err != nil {
		return nil, err
	}
	for _, kp := range c.keyPairs {
		if kp.Name == name {
			return nil, provider.WithKind(provider.ErrConflict, fmt.Errorf("keypair '%s' already exists", name))
		}
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return nil, provider.WithKind(provider.ErrConfiguration, fmt.Errorf("invalid public key: %w", err))
	}

	kp := provider.KeyPair{Name: name, PublicKey: publicKey, Fingerprint: ssh.FingerprintLegacyMD5(pub)}
	c.keyPairs = append(c.keyPairs, kp)
	return &kp, nil
}

// Storage is an in-memory object store.
type Storage struct {
	mutex sync.Mutex

	containers map[string]map[string][]byte
	errors     map[string][]error

	Host  string
	Calls map[string]int
}

// Storage implements provider.Storage
var _ provider.Storage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{
		containers: map[string]map[string][]byte{},
		errors:     map[string][]error{},
		Host:       "swift.example.com",
		Calls:      map[string]int{},
	}
}

// Fail queues errors returned by successive calls of op.
func (s *Storage) Fail(op string, errs ...error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.errors[op] = append(s.errors[op], errs...)
}

func (s *Storage) Object(container, object string) ([]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	content, ok := s.containers[container][object]
	return content, ok
}

func (s *Storage) HasContainer(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.containers[name]
	return ok
}

func (s *Storage) CallCount(op string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.Calls[op]
}

func (s *Storage) enter(op string) error {
	s.Calls[op]++
	if queued := s.errors[op]; len(queued) > 0 {
		s.errors[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *Storage) GetContainer(_ context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.enter("GetContainer"); err != nil {
		return err
	}
	if _, ok := s.containers[name]; !ok {
		return notFound("container", name)
	}
	return nil
}

func (s *Storage) CreateContainer(_ context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.enter("CreateContainer"); err != nil {
		return err
	}
	if _, ok := s.containers[name]; !ok {
		s.containers[name] = map[string][]byte{}
	}
	return nil
}

func (s *Storage) PutObject(_ context.Context, container, object string, content io.Reader, _ int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.enter("PutObject"); err != nil {
		return err
	}
	objects, ok := s.containers[container]
	if !ok {
		return notFound("container", container)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, content); err != nil {
		return err
	}
	objects[object] = buf.Bytes()
	return nil
}

func (s *Storage) TempURL(_ context.Context, container, object string, ttl time.Duration) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.enter("TempURL"); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s/v1/AUTH_test/%s/%s?temp_url_sig=fake&temp_url_expires=%d",
		s.Host, container, object, int(ttl.Seconds())), nil
}

// Session bundles fakes into a provider.Session.
type Session struct {
	ComputeService *Compute
	StorageService *Storage
}

// Session implements provider.Session
var _ provider.Session = (*Session)(nil)

func (s *Session) Compute() provider.Compute {
	return s.ComputeService
}

func (s *Session) Storage() (provider.Storage, error) {
	if s.StorageService == nil {
		return nil, provider.WithKind(provider.ErrUnsupported, fmt.Errorf("no object storage"))
	}
	return s.StorageService, nil
}

func notFound(kind, id string) error {
	return provider.WithKind(provider.ErrNotFound, fmt.Errorf("%s '%s' not found", kind, id))
}
