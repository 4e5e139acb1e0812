package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k1"), []byte("v1")))
	got, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	ok, err := db.Has([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)

	batch := db.NewBatch()
	batch.Put([]byte("k2"), []byte("v2"))
	batch.Put([]byte("k3"), []byte("v3"))
	batch.Delete([]byte("k1"))
	require.Equal(t, 3, batch.Len())

	ok, err = db.Has([]byte("k2"))
	require.NoError(t, err)
	require.False(t, ok, "batch must not be visible before Write")

	require.NoError(t, batch.Write())
	ok, err = db.Has([]byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)
	got, err = db.Get([]byte("k3"))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), got)

	require.NoError(t, db.Delete([]byte("k2")))
	_, err = db.Get([]byte("k2"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	exerciseDatabase(t, db)
	require.Equal(t, 1, db.Len())
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDBPersists(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("k3"))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), got)
}
