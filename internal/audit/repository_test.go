package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/database"
	"github.com/nerrad567/fiware-provisioner/internal/provisioning"
	_ "github.com/nerrad567/fiware-provisioner/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"success", "failure", "success", "rejected"} {
		require.NoError(t, repo.Create(ctx, &Record{
			RequestID:  fmt.Sprintf("req-%d", i),
			ExternalID: "phone",
			DeviceID:   fmt.Sprintf("Mobile%08d", i+1),
			EntityType: "Mobile",
			Outcome:    outcome,
			DurationMS: int64(10 * i),
			CreatedAt:  base.Add(time.Duration(i) * 500 * time.Millisecond),
		}))
	}

	result, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, defaultLimit, result.Limit)
	require.Len(t, result.Records, 4)
	assert.Equal(t, "req-3", result.Records[0].RequestID, "most recent first")
	assert.Equal(t, "req-0", result.Records[3].RequestID)
	assert.True(t, base.Add(1500*time.Millisecond).Equal(result.Records[0].CreatedAt))

	result, err = repo.List(ctx, Filter{Outcome: "success"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = repo.List(ctx, Filter{DeviceID: "Mobile00000002"})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "failure", result.Records[0].Outcome)

	result, err = repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "req-2", result.Records[0].RequestID)
}

func TestList_ClampsLimits(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, result.Limit)
	assert.Equal(t, 0, result.Offset)
	assert.NotNil(t, result.Records)
	assert.Empty(t, result.Records)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	rec := &Record{RequestID: "r", ExternalID: "anonymous", EntityType: "Mobile", Outcome: "rejected"}

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.Regexp(t, `^prv-[0-9a-f]{8}$`, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	result, err := repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Empty(t, result.Records[0].DeviceID)
	assert.Empty(t, result.Records[0].Stages)
}

func TestObserveProvisioning(t *testing.T) {
	repo := newTestRepo(t)
	started := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	err := repo.ObserveProvisioning(context.Background(), provisioning.Outcome{
		ID:          "0b6d5f0e-7f4c-4d0a-9a57-3c2a1f6e8b11",
		RequestID:   "req-7",
		ExternalID:  "phone-7",
		DeviceID:    "Mobile00000007",
		EntityType:  "Mobile",
		Status:      provisioning.OutcomeFailure,
		FailedStage: provisioning.StateEnsuringSubscription,
		Stages: []provisioning.StageTiming{
			{Stage: provisioning.StateValidating, Duration: time.Millisecond},
			{Stage: provisioning.StateEnsuringSubscription, Duration: 30 * time.Millisecond, Failed: true},
		},
		DeviceCreated: true,
		Compensated:   true,
		Err:           errors.New("orion down"),
		StartedAt:     started,
		Duration:      45 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := repo.List(context.Background(), Filter{ExternalID: "phone-7"})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	rec := result.Records[0]

	assert.Equal(t, "0b6d5f0e-7f4c-4d0a-9a57-3c2a1f6e8b11", rec.ID)
	assert.Equal(t, "Mobile00000007", rec.DeviceID)
	assert.Equal(t, "ensuring_subscription", rec.FailedStage)
	assert.Equal(t, "orion down", rec.Error)
	assert.True(t, rec.Compensated)
	assert.Equal(t, int64(45), rec.DurationMS)
	assert.Equal(t, []Stage{
		{Stage: "validating", DurationMS: 1},
		{Stage: "ensuring_subscription", DurationMS: 30, Failed: true},
	}, rec.Stages)
	assert.True(t, started.Equal(rec.CreatedAt))
}
