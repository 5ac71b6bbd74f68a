package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/platformlayer/openstack-jenkins/keys"
	"github.com/platformlayer/openstack-jenkins/launcher"
	"github.com/platformlayer/openstack-jenkins/metrics"
	"github.com/platformlayer/openstack-jenkins/namegen"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
)

const DefaultMaxConcurrentLaunches = 10

var (
	ErrNoTemplate  = errors.New("no matching template")
	ErrCapReached  = errors.New("instance cap reached")
	ErrWrongCloud  = errors.New("instance belongs to another cloud")
	errNoLaunchLog = errors.New("no launch log")
)

// Starter performs the first connection of a freshly registered node.
type Starter interface {
	Start(ctx context.Context, n *node.Handle, connect func(context.Context) error) error
}

// LogSink opens the launch log of a node.
type LogSink func(name string) (io.WriteCloser, error)

type ControllerConfig struct {
	Profile  *Profile
	Keys     *keys.Manager
	Registry node.Registry
	Launcher launcher.Launcher
	Starter  Starter
	LogSink  LogSink

	Termination   node.TerminationMode
	MaxConcurrent int64
	NamePrefix    string
	Logger        *slog.Logger
}

// Controller turns demand for a label into nodes of one profile.
type Controller struct {
	config  ControllerConfig
	profile *Profile
	sem     *semaphore.Weighted
	log     *slog.Logger

	attachMutex sync.Mutex
	attaching   map[string]struct{}
}

func NewController(config ControllerConfig) *Controller {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Keys == nil {
		config.Keys = keys.NewManager(config.Logger)
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrentLaunches
	}
	if config.NamePrefix == "" {
		config.NamePrefix = config.Profile.ID()
	}

	return &Controller{
		config:  config,
		profile: config.Profile,
		sem:     semaphore.NewWeighted(config.MaxConcurrent),
		log:     config.Logger.With("cloud", config.Profile.ID()),

		attaching: map[string]struct{}{},
	}
}

func (c *Controller) Profile() *Profile {
	return c.profile
}

// PlannedNode is a created instance whose agent is still being launched.
type PlannedNode struct {
	Node      *node.Handle
	Executors int

	once   sync.Once
	done   chan struct{}
	result launcher.Result
}

func newPlannedNode(h *node.Handle) *PlannedNode {
	return &PlannedNode{Node: h, Executors: h.Spec().NumExecutors, done: make(chan struct{})}
}

// Done is closed once the launch finished, successfully or not.
func (p *PlannedNode) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the launch finished and returns its result.
func (p *PlannedNode) Wait(ctx context.Context) (launcher.Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return launcher.Result{}, ctx.Err()
	}
}

func (p *PlannedNode) finish(result launcher.Result) {
	p.once.Do(func() {
		p.result = result
		close(p.done)
	})
}

// CanProvision reports whether some template accepts label.
func (c *Controller) CanProvision(label string) bool {
	_, ok := c.profile.TemplateFor(label)
	return ok
}

// LiveInstanceCount counts the instances of the tenant that are not on their way out.
func (c *Controller) LiveInstanceCount(ctx context.Context) (int, error) {
	compute, err := c.profile.Compute(ctx)
	if err != nil {
		return 0, c.profile.checkAuth(err)
	}

	servers, err := compute.ListServers(ctx)
	if err != nil {
		return 0, c.profile.checkAuth(fmt.Errorf("failed to list instances: %w", err))
	}

	count := lo.CountBy(servers, func(s provider.Server) bool { return node.StateOf(s.Status).Live() })
	metrics.RecordLiveInstances(c.profile.ID(), count)
	return count, nil
}

func (c *Controller) capReached(ctx context.Context) (bool, error) {
	limit, limited := c.profile.InstanceCap()
	if !limited {
		return false, nil
	}

	count, err := c.LiveInstanceCount(ctx)
	if err != nil {
		return false, err
	}
	if count >= limit {
		c.log.Info("Instance cap reached", "live", count, "cap", limit)
		metrics.RecordCapReached(c.profile.ID())
		return true, nil
	}
	return false, nil
}

// Provision creates nodes for label until demand executors are planned or the
// instance cap is reached. On a provider failure the nodes planned so far are
// returned along with the error.
func (c *Controller) Provision(ctx context.Context, label string, demand int) ([]*PlannedNode, error) {
	template, ok := c.profile.TemplateFor(label)
	if !ok {
		return nil, fmt.Errorf("%w for label '%s' in cloud '%s'", ErrNoTemplate, label, c.profile.ID())
	}

	var planned []*PlannedNode
	for demand > 0 {
		reached, err := c.capReached(ctx)
		if err != nil {
			return planned, err
		} else if reached {
			break
		}

		p, err := c.create(ctx, template)
		if err != nil {
			return planned, err
		}
		planned = append(planned, p)
		demand -= max(p.Executors, 1)
	}
	return planned, nil
}

// ProvisionTemplate creates one node from the template using image.
func (c *Controller) ProvisionTemplate(ctx context.Context, image string) (*PlannedNode, error) {
	template, ok := c.profile.TemplateByImage(image)
	if !ok {
		return nil, fmt.Errorf("%w for image '%s' in cloud '%s'", ErrNoTemplate, image, c.profile.ID())
	}

	reached, err := c.capReached(ctx)
	if err != nil {
		return nil, err
	} else if reached {
		return nil, fmt.Errorf("%w in cloud '%s'", ErrCapReached, c.profile.ID())
	}
	return c.create(ctx, template)
}

func (c *Controller) create(ctx context.Context, template *Template) (*PlannedNode, error) {
	compute, err := c.profile.Compute(ctx)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}

	executors, err := template.NumExecutors(ctx, compute)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}

	name := namegen.WithPrefix(c.config.NamePrefix).String()
	request, err := template.BuildCreateRequest(ctx, compute, c.config.Keys, name)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}

	server, err := compute.CreateServer(ctx, request)
	if err != nil {
		return nil, c.profile.checkAuth(fmt.Errorf("failed to create instance '%s': %w", name, err))
	}

	c.log.Info("Created instance", "node", server.Name, "instance", server.ID, "template", template.DisplayName())
	metrics.RecordProvisioned(c.profile.ID(), template.Image())

	return c.adopt(ctx, server, template, executors)
}

// Attach adopts an already running instance and connects its agent.
func (c *Controller) Attach(ctx context.Context, id string) (*PlannedNode, error) {
	if err := c.claim(id); err != nil {
		return nil, err
	}
	defer c.unclaim(id)

	compute, err := c.profile.Compute(ctx)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}

	server, err := compute.GetServer(ctx, id)
	if err != nil {
		return nil, c.profile.checkAuth(fmt.Errorf("failed to get instance '%s': %w", id, err))
	}
	if owner := server.Metadata[MetadataCloud]; owner != "" && owner != c.profile.ID() {
		return nil, fmt.Errorf("%w: '%s' is owned by '%s'", ErrWrongCloud, id, owner)
	}

	template, err := c.templateOf(server)
	if err != nil {
		return nil, err
	}

	executors, err := template.NumExecutors(ctx, compute)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}

	c.log.Info("Attaching instance", "node", server.Name, "instance", server.ID)
	return c.adopt(ctx, server, template, executors)
}

// claim reserves an instance id for the duration of an attach. Only one
// caller wins; the others, and any caller once the node is registered, get
// ErrConflict.
func (c *Controller) claim(id string) error {
	c.attachMutex.Lock()
	defer c.attachMutex.Unlock()

	if h, ok := c.config.Registry.Get(id); ok && !h.Terminated() {
		return fmt.Errorf("%w: instance '%s' is already attached as '%s'", provider.ErrConflict, id, h.Name())
	}
	if _, ok := c.attaching[id]; ok {
		return fmt.Errorf("%w: instance '%s' is being attached", provider.ErrConflict, id)
	}
	c.attaching[id] = struct{}{}
	return nil
}

func (c *Controller) unclaim(id string) {
	c.attachMutex.Lock()
	defer c.attachMutex.Unlock()
	delete(c.attaching, id)
}

func (c *Controller) templateOf(server *provider.Server) (*Template, error) {
	image := server.Metadata[MetadataTemplate]
	if image == "" {
		image = server.ImageID
	}
	if template, ok := c.profile.TemplateByImage(image); ok {
		return template, nil
	}
	return nil, fmt.Errorf("%w for image '%s' of instance '%s'", ErrNoTemplate, image, server.ID)
}

// adopt registers the handle and starts its launch in the background.
func (c *Controller) adopt(ctx context.Context, server *provider.Server, template *Template, executors int) (*PlannedNode, error) {
	h := node.NewFromServer(server, node.Config{
		Cloud:       c.profile,
		Spec:        template.NodeSpec(executors),
		Registry:    c.config.Registry,
		Termination: c.config.Termination,
		Logger:      c.config.Logger.With("cloud", c.profile.ID()),
	})

	if err := c.config.Registry.Add(ctx, h); err != nil {
		return nil, err
	}

	p := newPlannedNode(h)
	go c.launch(context.WithoutCancel(ctx), p)
	return p, nil
}

func (c *Controller) launch(ctx context.Context, p *PlannedNode) {
	connect := func(ctx context.Context) error {
		result := c.runLaunch(ctx, p.Node)
		p.finish(result)
		return result.Err
	}

	if c.config.Starter == nil {
		_ = connect(ctx)
		return
	}
	if err := c.config.Starter.Start(ctx, p.Node, connect); err != nil {
		p.Node.Logger().Warn("Node did not connect", "error", err)
		p.finish(launcher.Result{Outcome: launcher.Aborted, Err: err})
	}
}

func (c *Controller) runLaunch(ctx context.Context, h *node.Handle) launcher.Result {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return launcher.Result{Outcome: launcher.Aborted, Err: err}
	}
	defer c.sem.Release(1)

	out, closeLog := c.openLog(h)
	defer closeLog()

	started := time.Now()
	result := c.config.Launcher.Launch(ctx, h, out)
	metrics.RecordLaunch(c.profile.ID(), result.Outcome.String(), time.Since(started).Seconds())

	if !result.Connected() {
		h.Logger().Error("Launch failed", "outcome", result.Outcome, "error", result.Err)
		return result
	}

	h.Logger().Info("Agent connected", "outcome", result.Outcome)
	h.Attach(result.Channel)
	go func() {
		<-result.Channel.Done()
		h.Logger().Info("Agent channel closed")
		h.Detach(result.Channel)
	}()
	return result
}

func (c *Controller) openLog(h *node.Handle) (io.Writer, func()) {
	if c.config.LogSink == nil {
		return io.Discard, func() {}
	}

	w, err := c.config.LogSink(h.Name())
	if err != nil {
		h.Logger().Warn("Failed to open launch log", "error", errors.Join(errNoLaunchLog, err))
		return io.Discard, func() {}
	}
	return w, func() { _ = w.Close() }
}

// TestConnection reconnects and lists flavors to prove the credentials work.
func (c *Controller) TestConnection(ctx context.Context) ([]provider.Flavor, error) {
	c.profile.Invalidate()

	compute, err := c.profile.Compute(ctx)
	if err != nil {
		return nil, err
	}

	flavors, err := compute.ListFlavors(ctx)
	if err != nil {
		return nil, c.profile.checkAuth(fmt.Errorf("failed to list flavors: %w", err))
	}
	return flavors, nil
}

func (c *Controller) Zones(ctx context.Context) ([]provider.Zone, error) {
	compute, err := c.profile.Compute(ctx)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}

	zones, err := compute.ListZones(ctx)
	if err != nil {
		return nil, c.profile.checkAuth(fmt.Errorf("failed to list zones: %w", err))
	}
	return zones, nil
}

func (c *Controller) ValidateImage(ctx context.Context, id string) (*provider.Image, error) {
	compute, err := c.profile.Compute(ctx)
	if err != nil {
		return nil, c.profile.checkAuth(err)
	}
	image, err := validateImage(ctx, compute, id)
	return image, c.profile.checkAuth(err)
}
