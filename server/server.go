package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/cloud"
	"github.com/platformlayer/openstack-jenkins/metrics"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/proto"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/registry"
	"github.com/platformlayer/openstack-jenkins/server/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

var errNotConnected = errors.New("node agent is not connected")

type server struct {
	proto.UnimplementedCloudServer

	clouds      *clouds
	registry    *registry.Registry
	logs        *launchLogs
	waitTimeout time.Duration

	// followInterval is how often a followed launch log is checked for new output.
	followInterval time.Duration

	// launches keeps the launch of every node started by this process, by instance id.
	launchesMutex sync.Mutex
	launches      map[string]*cloud.PlannedNode
}

func newServer(set *clouds, reg *registry.Registry, logs *launchLogs, waitTimeout time.Duration) *server {
	return &server{
		clouds:         set,
		registry:       reg,
		logs:           logs,
		waitTimeout:    waitTimeout,
		followInterval: time.Second,
		launches:       map[string]*cloud.PlannedNode{},
	}
}

// rpc builds the gRPC server exposing the Cloudd service and the standard
// health service.
func (s *server) rpc() *grpc.Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryErrors),
		grpc.ChainStreamInterceptor(streamErrors),
	)
	proto.RegisterCloudServer(g, s)
	healthpb.RegisterHealthServer(g, health.NewServer())
	return g
}

// metricsApp serves the Prometheus registry and a liveness document over HTTP.
func (s *server) metricsApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "cloudd",
		DisableStartupMessage: true,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(api.Ping{Version: version, Commit: commit})
	})
	return app
}

func (s *server) Ping(ctx context.Context, in *api.PingRequest) (*api.Ping, error) {
	return &api.Ping{
		Version: version,
		Commit:  commit,
	}, nil
}

// codeOf maps an error onto the status code reported to clients.
func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, errNoLog):
		return codes.NotFound
	case errors.Is(err, provider.ErrConflict):
		return codes.AlreadyExists
	case errors.Is(err, cloud.ErrCapReached):
		return codes.ResourceExhausted
	case errors.Is(err, errNotConnected):
		return codes.FailedPrecondition
	case errors.Is(err, provider.ErrConfiguration), errors.Is(err, cloud.ErrNoTemplate), errors.Is(err, cloud.ErrWrongCloud):
		return codes.InvalidArgument
	case errors.Is(err, provider.ErrUnsupported):
		return codes.Unimplemented
	case errors.Is(err, provider.ErrAuthentication), errors.Is(err, provider.ErrTransient):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

func toStatus(method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeOf(err)
	if code == codes.Internal {
		log.Error("Request failed", "method", method, "error", err)
	} else {
		log.Debug("Request rejected", "method", method, "code", code, "error", err)
	}
	return status.Error(code, err.Error())
}

func unaryErrors(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return nil, toStatus(info.FullMethod, err)
	}
	return resp, nil
}

func streamErrors(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := handler(srv, ss); err != nil {
		return toStatus(info.FullMethod, err)
	}
	return nil
}

func (s *server) cloud(id string) (*cloud.Controller, error) {
	controller, ok := s.clouds.Get(id)
	if !ok {
		return nil, provider.WithKind(provider.ErrNotFound, fmt.Errorf("unknown cloud '%s'", id))
	}
	return controller, nil
}

func (s *server) findNode(ref string) (*node.Handle, error) {
	h, ok := s.registry.Find(ref)
	if !ok {
		return nil, provider.WithKind(provider.ErrNotFound, fmt.Errorf("unknown node '%s'", ref))
	}
	return h, nil
}

func (s *server) track(planned ...*cloud.PlannedNode) {
	s.prune()

	s.launchesMutex.Lock()
	defer s.launchesMutex.Unlock()
	for _, p := range planned {
		s.launches[p.Node.ID()] = p
	}
}

// prune drops the launches of terminated nodes, whichever path terminated them.
func (s *server) prune() {
	s.launchesMutex.Lock()
	defer s.launchesMutex.Unlock()
	for id, p := range s.launches {
		if p.Node.Terminated() {
			delete(s.launches, id)
		}
	}
}

func (s *server) forget(id string) {
	s.launchesMutex.Lock()
	defer s.launchesMutex.Unlock()
	delete(s.launches, id)
}

func (s *server) launch(id string) (*cloud.PlannedNode, bool) {
	s.launchesMutex.Lock()
	defer s.launchesMutex.Unlock()
	p, ok := s.launches[id]
	if ok && p.Node.Terminated() {
		delete(s.launches, id)
		return nil, false
	}
	return p, ok
}

// wait blocks until every planned node finished launching or the wait timeout expired.
func (s *server) wait(ctx context.Context, planned []*cloud.PlannedNode) error {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	for _, p := range planned {
		if _, err := p.Wait(ctx); err != nil {
			return fmt.Errorf("node '%s' is still launching: %w", p.Node.Name(), err)
		}
	}
	return nil
}
