package main

import (
	"context"
	"errors"

	"github.com/platformlayer/openstack-jenkins/api"
	"github.com/platformlayer/openstack-jenkins/cloud"
	"github.com/platformlayer/openstack-jenkins/provider"
	"github.com/platformlayer/openstack-jenkins/server/log"
	"github.com/samber/lo"
)

func (s *server) ListClouds(ctx context.Context, in *api.ListCloudsRequest) (*api.CloudList, error) {
	return &api.CloudList{
		Clouds: lo.Map(s.clouds.All(), func(controller *cloud.Controller, _ int) api.Cloud {
			profile := controller.Profile()

			out := api.Cloud{ID: profile.ID()}
			if limit, limited := profile.InstanceCap(); limited {
				out.InstanceCap = lo.ToPtr(limit)
			}
			out.Templates = lo.Map(profile.Templates(), func(t *cloud.Template, _ int) api.Template {
				return api.Template{
					Image:       t.Image(),
					Flavor:      t.Flavor(),
					Zone:        t.Zone(),
					Description: t.DisplayName(),
					Labels:      t.Labels(),
				}
			})
			return out
		}),
	}, nil
}

func (s *server) Provision(ctx context.Context, in *api.ProvisionRequest) (*api.ProvisionResponse, error) {
	controller, err := s.cloud(in.Cloud)
	if err != nil {
		return nil, err
	}

	demand := max(in.Demand, 1)
	log.Info("Provisioning", "cloud", in.Cloud, "label", in.Label, "demand", demand)
	planned, err := controller.Provision(ctx, in.Label, demand)
	if err != nil && len(planned) == 0 {
		return nil, err
	}
	s.track(planned...)

	response := &api.ProvisionResponse{}
	if err != nil {
		log.Warn("Provisioning interrupted", "cloud", in.Cloud, "planned", len(planned), "error", err)
		response.Error = err.Error()
	}
	if in.Wait {
		if err := s.wait(ctx, planned); err != nil {
			response.Error = err.Error()
		}
	}

	response.Nodes = lo.Map(planned, func(p *cloud.PlannedNode, _ int) api.Node { return s.describe(ctx, p.Node, false) })
	return response, nil
}

func (s *server) ProvisionTemplate(ctx context.Context, in *api.ProvisionTemplateRequest) (*api.ProvisionResponse, error) {
	controller, err := s.cloud(in.Cloud)
	if err != nil {
		return nil, err
	}

	p, err := controller.ProvisionTemplate(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	return s.respondPlanned(ctx, p, in.Wait)
}

func (s *server) Attach(ctx context.Context, in *api.AttachRequest) (*api.ProvisionResponse, error) {
	controller, err := s.cloud(in.Cloud)
	if err != nil {
		return nil, err
	}
	if in.Instance == "" {
		return nil, provider.WithKind(provider.ErrConfiguration, errors.New("missing instance id"))
	}

	p, err := controller.Attach(ctx, in.Instance)
	if err != nil {
		return nil, err
	}
	return s.respondPlanned(ctx, p, in.Wait)
}

func (s *server) respondPlanned(ctx context.Context, p *cloud.PlannedNode, wait bool) (*api.ProvisionResponse, error) {
	s.track(p)
	if wait {
		if err := s.wait(ctx, []*cloud.PlannedNode{p}); err != nil {
			return nil, err
		}
	}
	return &api.ProvisionResponse{
		Nodes: []api.Node{s.describe(ctx, p.Node, false)},
	}, nil
}

func (s *server) TestConnection(ctx context.Context, in *api.CloudRequest) (*api.TestResult, error) {
	controller, err := s.cloud(in.Cloud)
	if err != nil {
		return nil, err
	}

	flavors, err := controller.TestConnection(ctx)
	if err != nil {
		return nil, err
	}
	return &api.TestResult{
		Flavors: lo.Map(flavors, func(f provider.Flavor, _ int) api.Flavor {
			return api.Flavor{ID: f.ID, Name: f.Name, VCPUs: f.VCPUs, RAM: f.RAM, Disk: f.Disk}
		}),
	}, nil
}

func (s *server) ListZones(ctx context.Context, in *api.CloudRequest) (*api.ZoneList, error) {
	controller, err := s.cloud(in.Cloud)
	if err != nil {
		return nil, err
	}

	zones, err := controller.Zones(ctx)
	if err != nil {
		return nil, err
	}
	return &api.ZoneList{
		Zones: lo.Map(zones, func(z provider.Zone, _ int) api.Zone {
			return api.Zone{Name: z.Name, Available: z.Available}
		}),
	}, nil
}

func (s *server) ValidateImage(ctx context.Context, in *api.ImageRequest) (*api.Image, error) {
	controller, err := s.cloud(in.Cloud)
	if err != nil {
		return nil, err
	}
	if in.Image == "" {
		return nil, provider.WithKind(provider.ErrConfiguration, errors.New("missing image id"))
	}

	image, err := controller.ValidateImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	return &api.Image{ID: image.ID, Name: image.Name, Status: image.Status}, nil
}
