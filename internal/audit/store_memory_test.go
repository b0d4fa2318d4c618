package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EvictsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewBoundedMemoryStore(3)
	for i := range 5 {
		require.NoError(t, store.Append(ctx, Event{ID: fmt.Sprintf("e%d", i), Type: EventSignIn, UserID: "u1"}))
	}

	assert.Equal(t, 3, store.Len())
	events := store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []string{"e2", "e3", "e4"}, []string{events[0].ID, events[1].ID, events[2].ID})

	listed, err := store.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "e4", listed[0].ID)
	assert.Equal(t, "e3", listed[1].ID)
}

func TestMemoryStore_DefaultCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := range DefaultMemoryCapacity + 10 {
		require.NoError(t, store.Append(ctx, Event{ID: fmt.Sprintf("e%d", i), Type: EventTokenRefresh}))
	}

	assert.Equal(t, DefaultMemoryCapacity, store.Len())
	assert.Equal(t, "e10", store.Events()[0].ID)
	assert.Equal(t, DefaultMemoryCapacity, len(store.OfType(EventTokenRefresh)))
}

func TestMemoryStore_ListByUserFiltersAndHandlesUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewBoundedMemoryStore(0)
	require.NoError(t, store.Append(ctx, Event{ID: "a", Type: EventSignIn, UserID: "u1"}))
	require.NoError(t, store.Append(ctx, Event{ID: "b", Type: EventSignIn, UserID: "u2"}))
	require.NoError(t, store.Append(ctx, Event{ID: "c", Type: EventSignOut, UserID: "u1"}))

	listed, err := store.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "c", listed[0].ID)

	none, err := store.ListByUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
