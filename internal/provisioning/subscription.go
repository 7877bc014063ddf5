package provisioning

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// SubscriptionSettings is the fixed part of every subscription payload.
type SubscriptionSettings struct {
	// NotifyURL is the time-series sink endpoint.
	NotifyURL string

	// Throttling is the minimum interval between notifications, in seconds.
	Throttling int
}

// SubscriptionEnsurer makes sure the broker forwards an entity type's
// attribute changes to the sink. Same singleton discipline as GroupEnsurer.
type SubscriptionEnsurer struct {
	broker   Broker
	settings SubscriptionSettings
	flight   singleflight.Group
	logger   Logger
}

// NewSubscriptionEnsurer builds an ensurer.
func NewSubscriptionEnsurer(broker Broker, settings SubscriptionSettings, logger Logger) *SubscriptionEnsurer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SubscriptionEnsurer{broker: broker, settings: settings, logger: logger}
}

// Ensure creates the subscription for schema's type unless one exists. It
// reports whether this call created it.
func (s *SubscriptionEnsurer) Ensure(ctx context.Context, schema EntitySchema) (created bool, err error) {
	leader := false
	ch := s.flight.DoChan(schema.Type, func() (any, error) {
		leader = true
		return s.ensure(context.WithoutCancel(ctx), schema)
	})
	return awaitFlight(ctx, ch, &leader)
}

func (s *SubscriptionEnsurer) ensure(ctx context.Context, schema EntitySchema) (bool, error) {
	subs, err := s.broker.ListSubscriptions(ctx)
	if err != nil {
		return false, newUpstreamError(SystemOrion, "list subscriptions", StateEnsuringSubscription, err)
	}

	for _, sub := range subs {
		if sub.TargetsType(schema.Type) {
			s.logger.Debug("subscription exists", "entity_type", schema.Type, "subscription_id", sub.ID)
			return false, nil
		}
	}

	id, err := s.broker.CreateSubscription(ctx, s.subscriptionFor(schema))
	if err != nil {
		return false, newUpstreamError(SystemOrion, "create subscription", StateEnsuringSubscription, err)
	}

	s.logger.Info("subscription created", "entity_type", schema.Type, "subscription_id", id)
	return true, nil
}

func (s *SubscriptionEnsurer) subscriptionFor(schema EntitySchema) fiware.Subscription {
	attrs := schema.AttributeNames()
	return fiware.Subscription{
		Description: fmt.Sprintf("Notify updates from %s devices", schema.Type),
		Subject: fiware.Subject{
			Entities: []fiware.EntitySelector{{
				IDPattern: schema.IDPattern(),
				Type:      schema.Type,
			}},
			Condition: fiware.Condition{Attrs: attrs},
		},
		Notification: fiware.Notification{
			Attrs: attrs,
			HTTP:  &fiware.HTTPNotification{URL: s.settings.NotifyURL},
		},
		Throttling: s.settings.Throttling,
	}
}
