package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err, "open local store")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_GetSet(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok, "missing key should be absent")

	require.NoError(t, s.Set("auth.session", `{"a":1}`))
	require.NoError(t, s.Set("auth.session", `{"a":2}`))

	v, ok, err := s.Get("auth.session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":2}`, v, "set should overwrite")

	require.NoError(t, s.Delete("auth.session"))
	_, ok, err = s.Get("auth.session")
	require.NoError(t, err)
	assert.False(t, ok, "deleted key should be absent")
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("directory.user.u1", `{"email":"a@b.c"}`))
	require.NoError(t, s1.Close())

	s2 := openTestStore(t, path)
	v, ok, err := s2.Get("directory.user.u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"email":"a@b.c"}`, v)
}

func TestMemoryStore(t *testing.T) {
	var s Store = NewMemoryStore()
	require.NoError(t, s.Set("k", "v"))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
