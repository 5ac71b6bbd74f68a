package openstack

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gophercloud/gophercloud"
	"github.com/platformlayer/openstack-jenkins/provider"
)

// classify maps a gophercloud failure onto a provider error kind.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	wrapped := fmt.Errorf(format+": %w", append(args, err)...)

	var notFound gophercloud.ErrDefault404
	var unauthorized gophercloud.ErrDefault401
	var resource gophercloud.ErrResourceNotFound
	var missing gophercloud.ErrMissingInput
	var status gophercloud.StatusCodeError

	switch {
	case errors.As(err, &notFound), errors.As(err, &resource):
		return provider.WithKind(provider.ErrNotFound, wrapped)
	case errors.As(err, &unauthorized):
		return provider.WithKind(provider.ErrAuthentication, wrapped)
	case errors.As(err, &missing):
		return provider.WithKind(provider.ErrConfiguration, wrapped)
	case errors.As(err, &status):
		switch code := status.GetStatusCode(); {
		case code == http.StatusNotFound:
			return provider.WithKind(provider.ErrNotFound, wrapped)
		case code == http.StatusUnauthorized:
			return provider.WithKind(provider.ErrAuthentication, wrapped)
		case code == http.StatusConflict:
			return provider.WithKind(provider.ErrConflict, wrapped)
		case code == http.StatusBadRequest, code == http.StatusForbidden:
			return provider.WithKind(provider.ErrConfiguration, wrapped)
		}
	}
	return provider.WithKind(provider.ErrTransient, wrapped)
}
