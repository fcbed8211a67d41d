package savedqueries

import (
	"context"
	"testing"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := New(storage.NewMemory())
	store.now = func() time.Time { return now }
	return store, &now
}

func sampleQuery() models.Query {
	return models.Query{Keywords: []string{"covid"}, Platforms: []string{"reddit", "twitter"}}
}

func TestStore_PersistAndGet(t *testing.T) {
	store, _ := newTestStore()

	record, err := store.Persist(context.Background(), "pandemic watch", sampleQuery())
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "pandemic watch", record.Name)

	loaded, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Query.Fingerprint(), loaded.Query.Fingerprint())
	assert.True(t, loaded.LastExecutedAt.IsZero())
}

func TestStore_Get_Unknown(t *testing.T) {
	store, _ := newTestStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List_NewestFirst(t *testing.T) {
	store, now := newTestStore()

	first, err := store.Persist(context.Background(), "first", sampleQuery())
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	second, err := store.Persist(context.Background(), "second", sampleQuery())
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	third, err := store.Persist(context.Background(), "third", sampleQuery())
	require.NoError(t, err)

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, third.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
	assert.Equal(t, first.ID, records[2].ID)
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore()

	record, err := store.Persist(context.Background(), "to delete", sampleQuery())
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), record.ID))

	_, err = store.Get(context.Background(), record.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(context.Background(), record.ID), ErrNotFound)
}

func TestStore_TouchLastExecuted(t *testing.T) {
	store, now := newTestStore()

	record, err := store.Persist(context.Background(), "touched", sampleQuery())
	require.NoError(t, err)

	*now = now.Add(30 * time.Minute)
	require.NoError(t, store.TouchLastExecuted(context.Background(), record.ID))

	loaded, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, now.UTC(), loaded.LastExecutedAt)

	assert.ErrorIs(t, store.TouchLastExecuted(context.Background(), "nope"), ErrNotFound)
}
