package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redisTestAddress = "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57"

func TestRedisStore_Load(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "", redisTestAddress, discardLogger())

	mock.ExpectSMembers("trc20watch:" + redisTestAddress + ":seen").SetVal([]string{"b", "a"})
	mock.ExpectHGetAll("trc20watch:" + redisTestAddress + ":state").SetVal(map[string]string{
		"start_of_interest_ms": "1760000000000",
		"last_update":          "2026-10-19T12:00:00Z",
	})

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, state.IDs)
	assert.Equal(t, int64(1760000000000), state.StartOfInterestMs)
	assert.Equal(t, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC), state.LastUpdate.UTC())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_LoadEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "w", "TADDR", discardLogger())

	mock.ExpectSMembers("w:TADDR:seen").SetVal([]string{})
	mock.ExpectHGetAll("w:TADDR:state").SetVal(map[string]string{})

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsEmpty())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_LoadError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "w", "TADDR", discardLogger())

	mock.ExpectSMembers("w:TADDR:seen").SetErr(fmt.Errorf("connection refused"))

	_, err := store.Load(context.Background())
	assert.ErrorContains(t, err, "failed to read seen set")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Persist(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "w", "TADDR", discardLogger())

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectTxPipeline()
	mock.ExpectSAdd("w:TADDR:seen", "a", "b").SetVal(2)
	mock.ExpectHSet("w:TADDR:state",
		"start_of_interest_ms", "1760000000000",
		"last_update", now.Format(time.RFC3339Nano),
	).SetVal(2)
	mock.ExpectTxPipelineExec()

	err := store.Persist(context.Background(), &State{
		IDs:               []string{"a", "b"},
		StartOfInterestMs: 1760000000000,
		LastUpdate:        now,
	})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_PersistWithoutIDs(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "w", "TADDR", discardLogger())

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectTxPipeline()
	mock.ExpectHSet("w:TADDR:state",
		"start_of_interest_ms", "5",
		"last_update", now.Format(time.RFC3339Nano),
	).SetVal(2)
	mock.ExpectTxPipelineExec()

	require.NoError(t, store.Persist(context.Background(), &State{StartOfInterestMs: 5, LastUpdate: now}))
	require.NoError(t, mock.ExpectationsWereMet())
}
