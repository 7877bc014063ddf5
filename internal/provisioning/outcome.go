package provisioning

import (
	"context"
	"time"
)

// Outcome statuses.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// StageTiming records how long one stage ran.
type StageTiming struct {
	Stage    State
	Duration time.Duration
	Failed   bool
}

// Outcome describes one provisioning attempt after it finished. It is
// handed to every Observer.
type Outcome struct {
	ID         string
	RequestID  string
	ExternalID string
	DeviceID   string
	EntityType string

	Status      string
	State       State
	FailedStage State
	Stages      []StageTiming

	GroupCreated        bool
	DeviceCreated       bool
	SubscriptionCreated bool
	Compensated         bool

	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// ErrorMessage returns the error text, or "" on success.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Observer receives every Outcome. Errors are logged by the Provisioner
// and never change the response to the caller.
type Observer interface {
	ObserveProvisioning(ctx context.Context, o Outcome) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome) error

// ObserveProvisioning implements Observer.
func (f ObserverFunc) ObserveProvisioning(ctx context.Context, o Outcome) error {
	return f(ctx, o)
}
