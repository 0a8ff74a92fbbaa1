package configadapter

import (
	"context"

	domainerrors "meridian/contexts/channel-sync/inbound-gateway-service/domain/errors"
	"meridian/contexts/channel-sync/inbound-gateway-service/ports"
	mappingentities "meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	mappingports "meridian/contexts/channel-sync/property-mapping-service/ports"
)

// ConfigResolver is the slice of the mapping config cache the credential
// lookup needs.
type ConfigResolver interface {
	Get(ctx context.Context, propertyID string) (mappingentities.PropertyConfig, error)
}

// CredentialResolver finds the active property behind an inbound WSSE
// username. Usernames are unique across active mappings.
type CredentialResolver struct {
	Mappings mappingports.MappingRepository
	Config   ConfigResolver
}

func (r CredentialResolver) ByUsername(ctx context.Context, username string) (mappingentities.PropertyConfig, error) {
	if username == "" {
		return mappingentities.PropertyConfig{}, domainerrors.ErrAuthenticationFailed
	}
	mappings, err := r.Mappings.List(ctx)
	if err != nil {
		return mappingentities.PropertyConfig{}, err
	}
	for _, mapping := range mappings {
		if !mapping.Active || mapping.Config.Username != username {
			continue
		}
		return r.Config.Get(ctx, mapping.PropertyID)
	}
	return mappingentities.PropertyConfig{}, domainerrors.ErrAuthenticationFailed
}

var _ ports.CredentialSource = CredentialResolver{}
