package main

import (
	"context"
	"time"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/node"
	"github.com/platformlayer/openstack-jenkins/server/log"
)

// describe converts a node into its API view. The cached instance description
// is used unless refresh is set; a failed lookup leaves the state unknown.
func (s *server) describe(ctx context.Context, h *node.Handle, refresh bool) api.Node {
	spec := h.Spec()
	out := api.Node{
		ID:        h.ID(),
		Name:      h.Name(),
		Cloud:     h.CloudID(),
		Template:  spec.Template,
		Labels:    spec.Labels,
		Executors: spec.NumExecutors,
		State:     node.Unknown.String(),
		Connected: h.Connected(),
		Idle:      h.Idle(),
		IdleSince: h.IdleSince(),
	}

	server, err := h.Describe(ctx, !refresh)
	if err != nil {
		log.Debug("Failed to describe node", "node", h.Name(), "error", err)
	} else {
		out.State = node.StateOf(server.Status).String()
		out.Address = node.PublicAddress(server)
		if uptime, err := h.Uptime(ctx); err == nil && uptime > 0 {
			out.Uptime = uptime.Round(time.Second).String()
		}
	}

	if p, ok := s.launch(h.ID()); ok {
		select {
		case <-p.Done():
			result, _ := p.Wait(context.Background())
			out.Outcome = result.Outcome.String()
			if result.Err != nil {
				out.Error = result.Err.Error()
			}
		default:
			out.Outcome = "launching"
		}
	}
	return out
}
