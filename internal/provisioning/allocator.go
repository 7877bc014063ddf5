package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// Allocator turns the registry's device list into the id of the next device.
//
// The Provisioner holds a per-entity-type lock around listing, allocation and
// device creation, so implementations need not guard against concurrent
// calls for the same type from this process.
type Allocator interface {
	Allocate(ctx context.Context, schema EntitySchema, devices []fiware.Device) (DeviceID, error)
}

// RegistryAllocator treats the registry as the only source of truth: the
// next id is the last registered id plus one.
type RegistryAllocator struct{}

// Allocate implements Allocator.
func (RegistryAllocator) Allocate(_ context.Context, schema EntitySchema, devices []fiware.Device) (DeviceID, error) {
	return NextDeviceID(schema, devices)
}

// SequenceAllocator reconciles the registry-derived candidate with a
// per-type counter persisted in SQLite. The stored counter only moves
// forward, so an id handed out once is never handed out again even if the
// device creation that followed failed or the registry lost the record.
type SequenceAllocator struct {
	db  *sql.DB
	now func() time.Time
}

// NewSequenceAllocator uses the device_sequences table of db.
func NewSequenceAllocator(db *sql.DB) *SequenceAllocator {
	return &SequenceAllocator{db: db, now: time.Now}
}

// Allocate implements Allocator. The chosen value is
// max(candidate, last stored + 1) and is stored before returning.
func (a *SequenceAllocator) Allocate(ctx context.Context, schema EntitySchema, devices []fiware.Device) (DeviceID, error) {
	candidate, err := NextDeviceID(schema, devices)
	if err != nil {
		return DeviceID{}, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return DeviceID{}, fmt.Errorf("starting sequence transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var (
		storedPrefix string
		storedWidth  int
		lastValue    int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT prefix, width, last_value FROM device_sequences WHERE entity_type = ?",
		schema.Type,
	).Scan(&storedPrefix, &storedWidth, &lastValue)

	next := candidate
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return DeviceID{}, fmt.Errorf("reading sequence for %s: %w", schema.Type, err)
	case storedPrefix == candidate.Prefix:
		// #nosec G115 -- last_value is only ever written from a uint64 below MaxInt64
		stored := DeviceID{Prefix: storedPrefix, Value: uint64(lastValue), Width: storedWidth}
		if stored.Value >= candidate.Value {
			if next, err = stored.Next(); err != nil {
				return DeviceID{}, err
			}
			next.Width = max(candidate.Width, stored.Width)
		}
	}

	if next.Value > 1<<63-1 {
		return DeviceID{}, fmt.Errorf("%w: %s", ErrSequenceExhausted, next)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO device_sequences (entity_type, prefix, width, last_value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			prefix = excluded.prefix,
			width = excluded.width,
			last_value = excluded.last_value,
			updated_at = excluded.updated_at`,
		schema.Type, next.Prefix, next.Width, int64(next.Value), // #nosec G115 -- bounded above
		a.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return DeviceID{}, fmt.Errorf("storing sequence for %s: %w", schema.Type, err)
	}

	if err := tx.Commit(); err != nil {
		return DeviceID{}, fmt.Errorf("committing sequence for %s: %w", schema.Type, err)
	}
	return next, nil
}
