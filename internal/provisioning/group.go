package provisioning

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// GroupSettings is the fixed part of every device group payload.
type GroupSettings struct {
	APIKey    string
	BrokerURL string
	Resource  string
}

// GroupEnsurer makes sure the registry holds a device group for an entity
// type. The registry is consulted on every call; concurrent calls for the
// same type within this process share one lookup and at most one creation.
type GroupEnsurer struct {
	registry Registry
	settings GroupSettings
	flight   singleflight.Group
	logger   Logger
}

// NewGroupEnsurer builds an ensurer.
func NewGroupEnsurer(registry Registry, settings GroupSettings, logger Logger) *GroupEnsurer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &GroupEnsurer{registry: registry, settings: settings, logger: logger}
}

// Ensure creates the group for entityType unless one already exists. It
// reports whether this call created it.
//
// The shared lookup runs detached from any single caller's cancellation,
// bounded by the per-call upstream timeout. Each caller stops waiting when
// its own ctx is done.
func (g *GroupEnsurer) Ensure(ctx context.Context, entityType string) (created bool, err error) {
	leader := false
	ch := g.flight.DoChan(entityType, func() (any, error) {
		leader = true
		return g.ensure(context.WithoutCancel(ctx), entityType)
	})
	return awaitFlight(ctx, ch, &leader)
}

func (g *GroupEnsurer) ensure(ctx context.Context, entityType string) (bool, error) {
	groups, err := g.registry.ListServices(ctx)
	if err != nil {
		return false, newUpstreamError(SystemIoTAgent, "list device groups", StateEnsuringGroup, err)
	}

	for _, group := range groups {
		if group.EntityType == entityType {
			g.logger.Debug("device group exists", "entity_type", entityType)
			return false, nil
		}
	}

	err = g.registry.CreateService(ctx, fiware.ServiceGroup{
		APIKey:     g.settings.APIKey,
		CBroker:    g.settings.BrokerURL,
		EntityType: entityType,
		Resource:   g.settings.Resource,
	})
	if err != nil {
		return false, newUpstreamError(SystemIoTAgent, "create device group", StateEnsuringGroup, err)
	}

	g.logger.Info("device group created", "entity_type", entityType, "resource", g.settings.Resource)
	return true, nil
}

// awaitFlight waits for a singleflight result or for ctx. Only the caller
// whose function ran reports a creation.
func awaitFlight(ctx context.Context, ch <-chan singleflight.Result, leader *bool) (bool, error) {
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool) && *leader, nil //nolint:forcetypeassert // ensure always returns bool
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
