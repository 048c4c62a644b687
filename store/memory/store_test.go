package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhicken/schedoscope/id"
	"github.com/janhicken/schedoscope/store"
)

func record(typeName string, finishedAt time.Time, success bool) store.RunRecord {
	return store.RunRecord{
		RunID:      id.NewRunID(),
		ViewName:   "orders_daily",
		TypeName:   typeName,
		WorkerID:   "worker-0",
		Success:    success,
		StartedAt:  finishedAt.Add(-time.Second),
		FinishedAt: finishedAt,
	}
}

func TestStore_AppendAndList(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, s.Append(ctx, record("hive", base, true)))
	require.NoError(t, s.Append(ctx, record("filesystem", base.Add(time.Minute), false)))
	require.NoError(t, s.Append(ctx, record("hive", base.Add(2*time.Minute), true)))

	all, err := s.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].FinishedAt.After(all[1].FinishedAt), "List must return most-recent-first")

	hiveOnly, err := s.List(ctx, store.ListOpts{TypeName: "hive"})
	require.NoError(t, err)
	assert.Len(t, hiveOnly, 2)
	for _, r := range hiveOnly {
		assert.Equal(t, "hive", r.TypeName)
	}
}

func TestStore_ListRespectsLimitAndBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, record("hive", base.Add(time.Duration(i)*time.Minute), true)))
	}

	limited, err := s.List(ctx, store.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	before, err := s.List(ctx, store.ListOpts{Before: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, before, 2)
}

func TestStore_DeleteOlderThanPrunesAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.Append(ctx, record("hive", base, true)))
	require.NoError(t, s.Append(ctx, record("hive", base.Add(time.Hour), true)))

	removed, err := s.DeleteOlderThan(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	remaining, err := s.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].FinishedAt.After(base.Add(30*time.Minute)))
}

func TestStore_CloseIsNoop(t *testing.T) {
	s := New()
	assert.NoError(t, s.Close())
}
