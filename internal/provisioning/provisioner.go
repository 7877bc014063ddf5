package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Settings configures a Provisioner.
type Settings struct {
	// EntityType is the type every registration is provisioned as.
	EntityType string

	// AnonymousID is recorded when a request has no external id.
	AnonymousID string

	// StrictValidation makes the external id a required field.
	StrictValidation bool

	// Compensate deletes the device record when a stage after its
	// creation fails.
	Compensate bool

	Group        GroupSettings
	Device       DeviceSettings
	Subscription SubscriptionSettings
}

// Result is returned for a successful provisioning.
type Result struct {
	ExternalID string
	DeviceID   string
	EntityName string
}

// Message is the confirmation returned to the caller. It names the
// caller's external id, not the generated device id.
func (r Result) Message() string {
	return "A device was successfully created. ID: " + r.ExternalID
}

// Provisioner runs the provisioning state machine for each request.
//
// Stages run strictly in order and the first failure ends the run; nothing
// is retried. Identifier allocation and device creation for one entity type
// are serialised in-process so two requests never compute the same id.
type Provisioner struct {
	registry      Registry
	schemas       *Schemas
	allocator     Allocator
	groups        *GroupEnsurer
	registrar     *DeviceRegistrar
	subscriptions *SubscriptionEnsurer
	settings      Settings
	validation    validation
	locks         *keyedMutex

	observersMu sync.RWMutex
	observers   []Observer

	logger Logger
	now    func() time.Time
}

// New builds a Provisioner. A nil allocator selects RegistryAllocator. It
// fails with a ConfigError when settings.EntityType has no schema.
func New(registry Registry, broker Broker, schemas *Schemas, allocator Allocator, settings Settings) (*Provisioner, error) {
	if _, err := schemas.Lookup(settings.EntityType); err != nil {
		return nil, err
	}
	if allocator == nil {
		allocator = RegistryAllocator{}
	}
	if settings.AnonymousID == "" {
		settings.AnonymousID = "anonymous"
	}

	logger := Logger(noopLogger{})
	return &Provisioner{
		registry:      registry,
		schemas:       schemas,
		allocator:     allocator,
		groups:        NewGroupEnsurer(registry, settings.Group, logger),
		registrar:     NewDeviceRegistrar(registry, settings.Device, logger),
		subscriptions: NewSubscriptionEnsurer(broker, settings.Subscription, logger),
		settings:      settings,
		validation: validation{
			anonymousID: settings.AnonymousID,
			requireID:   settings.StrictValidation,
		},
		locks:  newKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetLogger sets the logger for the provisioner and its stages. Call before
// serving requests.
func (p *Provisioner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
	p.groups.logger = logger
	p.registrar.logger = logger
	p.subscriptions.logger = logger
}

// AddObserver registers o for every subsequent Outcome.
func (p *Provisioner) AddObserver(o Observer) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.observers = append(p.observers, o)
}

// EntityType returns the type registrations are provisioned as.
func (p *Provisioner) EntityType() string {
	return p.settings.EntityType
}

// Provision validates req and provisions the device it describes. Errors
// are *ValidationError, *UpstreamError, *ConfigError or unclassified.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Result, error) {
	r := &run{
		outcome: Outcome{
			ID:         uuid.NewString(),
			RequestID:  req.RequestID,
			EntityType: p.settings.EntityType,
			StartedAt:  p.now(),
		},
		now: p.now,
	}

	result, err := p.provision(ctx, r, req)
	r.finish(err)

	p.logOutcome(r.outcome)
	p.notify(ctx, r.outcome)
	return result, err
}

func (p *Provisioner) provision(ctx context.Context, r *run, req Request) (Result, error) {
	schema, err := p.schemas.Lookup(p.settings.EntityType)
	if err != nil {
		return Result{}, err
	}

	var reg Registration
	err = r.stage(StateValidating, func() error {
		fields := req.Fields
		if fields == nil && req.Body != nil {
			var derr error
			if fields, derr = DecodeFields(req.Body); derr != nil {
				return derr
			}
		}
		var verr error
		reg, verr = p.validation.validate(fields, schema)
		return verr
	})
	if err != nil {
		return Result{}, err
	}
	r.outcome.ExternalID = reg.ExternalID

	err = r.stage(StateEnsuringGroup, func() error {
		created, gerr := p.groups.Ensure(ctx, schema.Type)
		r.outcome.GroupCreated = created
		return gerr
	})
	if err != nil {
		return Result{}, err
	}

	// The per-type lock spans fetch, allocate and create, and is released
	// as soon as the device record exists.
	unlock := func() {}
	defer func() { unlock() }()

	var id DeviceID
	err = r.stage(StateAllocatingID, func() error {
		release, lerr := p.locks.Lock(ctx, schema.Type)
		if lerr != nil {
			return fmt.Errorf("waiting for %s allocation lock: %w", schema.Type, lerr)
		}
		unlock = release
		var aerr error
		id, aerr = p.allocate(ctx, schema)
		return aerr
	})
	if err != nil {
		return Result{}, err
	}
	deviceID := id.String()
	r.outcome.DeviceID = deviceID

	err = r.stage(StateRegisteringDevice, func() error {
		cerr := p.registrar.Create(ctx, schema, deviceID, reg.ExternalID)
		unlock()
		if cerr != nil {
			return cerr
		}
		r.outcome.DeviceCreated = true
		return p.registrar.PushInitialMeasure(ctx, schema, deviceID, reg)
	})
	if err != nil {
		p.compensate(ctx, r)
		return Result{}, err
	}

	err = r.stage(StateEnsuringSubscription, func() error {
		created, serr := p.subscriptions.Ensure(ctx, schema)
		r.outcome.SubscriptionCreated = created
		return serr
	})
	if err != nil {
		p.compensate(ctx, r)
		return Result{}, err
	}

	return Result{
		ExternalID: reg.ExternalID,
		DeviceID:   deviceID,
		EntityName: schema.EntityName(deviceID),
	}, nil
}

func (p *Provisioner) allocate(ctx context.Context, schema EntitySchema) (DeviceID, error) {
	devices, err := p.registry.ListDevices(ctx)
	if err != nil {
		return DeviceID{}, newUpstreamError(SystemIoTAgent, "list devices", StateAllocatingID, err)
	}

	id, err := p.allocator.Allocate(ctx, schema, devices)
	if err != nil {
		return DeviceID{}, fmt.Errorf("allocating %s device id: %w", schema.Type, err)
	}
	p.logger.Debug("device id allocated", "entity_type", schema.Type, "device_id", id.String(), "registry_devices", len(devices))
	return id, nil
}

// compensate deletes the device record created by this run when the
// compensate setting is on. It runs even if the caller has gone away.
func (p *Provisioner) compensate(ctx context.Context, r *run) {
	if !p.settings.Compensate || !r.outcome.DeviceCreated {
		return
	}

	err := p.registrar.Delete(context.WithoutCancel(ctx), r.outcome.DeviceID)
	if err != nil {
		p.logger.Error("compensation failed, device record left in registry",
			"device_id", r.outcome.DeviceID, "error", err)
		return
	}
	r.outcome.Compensated = true
	p.logger.Info("compensation deleted device record", "device_id", r.outcome.DeviceID)
}

func (p *Provisioner) logOutcome(o Outcome) {
	args := []any{
		"request_id", o.RequestID,
		"external_id", o.ExternalID,
		"device_id", o.DeviceID,
		"entity_type", o.EntityType,
		"duration_ms", o.Duration.Milliseconds(),
	}

	var verr *ValidationError
	var uerr *UpstreamError
	switch {
	case o.Err == nil:
		p.logger.Info("device provisioned", args...)
	case errors.As(o.Err, &verr):
		p.logger.Info("registration rejected", append(args, "reason", verr.Error())...)
	case errors.As(o.Err, &uerr):
		p.logger.Warn("provisioning failed upstream", append(args,
			"stage", o.FailedStage, "system", uerr.System, "status", uerr.Status,
			"device_created", o.DeviceCreated, "compensated", o.Compensated, "error", o.Err)...)
	default:
		p.logger.Error("provisioning failed", append(args, "stage", o.FailedStage, "error", o.Err)...)
	}
}

func (p *Provisioner) notify(ctx context.Context, o Outcome) {
	p.observersMu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.observersMu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, obs := range observers {
		if err := obs.ObserveProvisioning(ctx, o); err != nil {
			p.logger.Warn("provisioning observer failed",
				"observer", fmt.Sprintf("%T", obs), "request_id", o.RequestID, "error", err)
		}
	}
}

// run tracks one pass through the state machine.
type run struct {
	outcome Outcome
	now     func() time.Time
}

func (r *run) stage(s State, fn func() error) error {
	r.outcome.State = s
	start := r.now()
	err := fn()
	r.outcome.Stages = append(r.outcome.Stages, StageTiming{
		Stage:    s,
		Duration: r.now().Sub(start),
		Failed:   err != nil,
	})
	if err != nil {
		r.outcome.FailedStage = s
	}
	return err
}

func (r *run) finish(err error) {
	r.outcome.Duration = r.now().Sub(r.outcome.StartedAt)
	r.outcome.Err = err

	var verr *ValidationError
	switch {
	case err == nil:
		r.outcome.State = StateDone
		r.outcome.Status = OutcomeSuccess
	case errors.As(err, &verr):
		r.outcome.State = StateFailed
		r.outcome.Status = OutcomeRejected
	default:
		r.outcome.State = StateFailed
		r.outcome.Status = OutcomeFailure
	}
}
