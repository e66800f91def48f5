package badger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	dir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)

	db, err := newBadgerDB(store, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
