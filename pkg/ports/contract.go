package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	callID := "contract-test-call-" + time.Now().Format("20060102150405")
	now := time.Date(2025, 11, 3, 11, 30, 0, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		session := domain.NewCallSession(callID, "greet", now)
		session.Variables.Set("name", "Ana")
		session.Variables.Set("age", 42)
		session.Append(domain.HistoryEntry{Role: domain.RoleAgent, Text: "Is this Ana?", NodeID: "greet", Timestamp: now})

		err := store.Save(ctx, callID, session)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, callID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, session.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, "Ana", loaded.Variables["name"])
		// JSON persistence may turn ints into float64; presence is what matters.
		assert.NotNil(t, loaded.Variables["age"])
		require.Len(t, loaded.History, 1)
		assert.Equal(t, "Is this Ana?", loaded.History[0].Text)
	})

	t.Run("Load Returns A Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, callID)
		require.NoError(t, err)
		loaded.CurrentNodeID = "mutated"

		again, err := store.Load(ctx, callID)
		require.NoError(t, err)
		assert.Equal(t, "greet", again.CurrentNodeID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+callID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, callID, domain.NewCallSession(callID, "greet", now))
		require.NoError(t, err)

		err = store.Delete(ctx, callID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, callID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := callID + "-1"
		id2 := callID + "-2"
		_ = store.Save(ctx, id1, domain.NewCallSession(id1, "greet", now))
		_ = store.Save(ctx, id2, domain.NewCallSession(id2, "greet", now))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		calls, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, calls, id1)
		assert.Contains(t, calls, id2)
	})
}
