package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := NewSQLite(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			doc, err := s.Get("absent")
			require.NoError(t, err)
			assert.Nil(t, doc)
		})
	}
}

func TestSetGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("orders:HAMPRO:o1", map[string]any{
				"status": "FILLED",
				"qty":    100.0,
			}))

			doc, err := s.Get("orders:HAMPRO:o1")
			require.NoError(t, err)
			assert.Equal(t, "FILLED", doc["status"])
			assert.Equal(t, 100.0, doc["qty"])
		})
	}
}

func TestUpdateShallowMerge(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("day:2026-03-02", map[string]any{
				"orders": 3.0,
				"total":  250.0,
			}))
			require.NoError(t, s.Update("day:2026-03-02", map[string]any{
				"orders": 4.0,
			}))

			doc, err := s.Get("day:2026-03-02")
			require.NoError(t, err)
			assert.Equal(t, 4.0, doc["orders"])
			assert.Equal(t, 250.0, doc["total"], "untouched field must survive merge")
		})
	}
}

func TestUpdateCreatesMissingDocument(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Update("hold:IBKR_GUN:x9", map[string]any{"qty": 10.0}))

			doc, err := s.Get("hold:IBKR_GUN:x9")
			require.NoError(t, err)
			assert.Equal(t, 10.0, doc["qty"])
		})
	}
}

func TestKeysPrefix(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("ledger:2026-03-02:AAPL:LONG_DECREASE", map[string]any{"n": 1.0}))
			require.NoError(t, s.Set("ledger:2026-03-02:MSFT:LONG_INCREASE", map[string]any{"n": 2.0}))
			require.NoError(t, s.Set("ledger:2026-03-03:AAPL:LONG_DECREASE", map[string]any{"n": 3.0}))

			keys, err := s.Keys("ledger:2026-03-02:")
			require.NoError(t, err)
			assert.Len(t, keys, 2)
		})
	}
}

func TestSetCopiesDocument(t *testing.T) {
	s := NewMemoryStore()
	doc := map[string]any{"status": "SENT"}
	require.NoError(t, s.Set("k", doc))

	doc["status"] = "mutated"
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "SENT", got["status"])
}
