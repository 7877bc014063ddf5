package provisioning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/database"
	_ "github.com/nerrad567/fiware-provisioner/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestRegistryAllocator(t *testing.T) {
	id, err := RegistryAllocator{}.Allocate(context.Background(), mobileSchema(), mobiles("Mobile00000041"))
	require.NoError(t, err)
	assert.Equal(t, "Mobile00000042", id.String())
}

func TestSequenceAllocator_NeverReissues(t *testing.T) {
	db := openTestDB(t)
	alloc := NewSequenceAllocator(db.DB)
	ctx := context.Background()

	first, err := alloc.Allocate(ctx, mobileSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Mobile00000001", first.String())

	// The device creation that followed failed, so the registry is still empty.
	second, err := alloc.Allocate(ctx, mobileSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Mobile00000002", second.String())
}

func TestSequenceAllocator_FollowsRegistryWhenAhead(t *testing.T) {
	db := openTestDB(t)
	alloc := NewSequenceAllocator(db.DB)
	ctx := context.Background()

	_, err := alloc.Allocate(ctx, mobileSchema(), nil)
	require.NoError(t, err)

	// Devices created by another instance push the candidate past the counter.
	id, err := alloc.Allocate(ctx, mobileSchema(), mobiles("Mobile00000030"))
	require.NoError(t, err)
	assert.Equal(t, "Mobile00000031", id.String())

	id, err = alloc.Allocate(ctx, mobileSchema(), mobiles("Mobile00000030"))
	require.NoError(t, err)
	assert.Equal(t, "Mobile00000032", id.String())

	var last int64
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT last_value FROM device_sequences WHERE entity_type = ?", "Mobile").Scan(&last))
	assert.Equal(t, int64(32), last)
}

func TestSequenceAllocator_KeepsWiderWidth(t *testing.T) {
	db := openTestDB(t)
	alloc := NewSequenceAllocator(db.DB)
	ctx := context.Background()

	id, err := alloc.Allocate(ctx, mobileSchema(), mobiles("Mobile99999999"))
	require.NoError(t, err)
	assert.Equal(t, "Mobile100000000", id.String())

	id, err = alloc.Allocate(ctx, mobileSchema(), mobiles("Mobile00000005"))
	require.NoError(t, err)
	assert.Equal(t, "Mobile100000001", id.String())
}

func TestSequenceAllocator_PrefixChangeRestartsFromRegistry(t *testing.T) {
	db := openTestDB(t)
	alloc := NewSequenceAllocator(db.DB)
	ctx := context.Background()

	_, err := alloc.Allocate(ctx, mobileSchema(), mobiles("Mobile00000050"))
	require.NoError(t, err)

	id, err := alloc.Allocate(ctx, mobileSchema(), mobiles("Phone00000003"))
	require.NoError(t, err)
	assert.Equal(t, "Phone00000004", id.String())
}

func TestSequenceAllocator_TypesAreIndependent(t *testing.T) {
	db := openTestDB(t)
	alloc := NewSequenceAllocator(db.DB)
	ctx := context.Background()

	sensor := mobileSchema()
	sensor.Type = "Sensor"
	sensor.IDPrefix = "Sensor"

	_, err := alloc.Allocate(ctx, mobileSchema(), nil)
	require.NoError(t, err)
	id, err := alloc.Allocate(ctx, sensor, nil)
	require.NoError(t, err)
	assert.Equal(t, "Sensor00000001", id.String())
}

func TestSequenceAllocator_CorruptRegistryID(t *testing.T) {
	db := openTestDB(t)
	_, err := NewSequenceAllocator(db.DB).Allocate(context.Background(), mobileSchema(),
		[]fiware.Device{{DeviceID: "Mobile-x", EntityType: "Mobile"}})
	assert.ErrorIs(t, err, ErrCorruptDeviceID)
}
