package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLite(filepath.Join(dir, "db", "agenda.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	files, err := NewDir(filepath.Join(dir, "slots"))
	require.NoError(t, err)

	return map[string]Store{
		"sqlite": sqlite,
		"file":   files,
		"memory": NewMemory(),
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("google_auth_token")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put("google_auth_token", []byte(`{"access_token":"a"}`)))
			got, err := s.Get("google_auth_token")
			require.NoError(t, err)
			assert.JSONEq(t, `{"access_token":"a"}`, string(got))

			require.NoError(t, s.Put("google_auth_token", []byte(`{"access_token":"b"}`)))
			got, err = s.Get("google_auth_token")
			require.NoError(t, err)
			assert.JSONEq(t, `{"access_token":"b"}`, string(got))

			require.NoError(t, s.Delete("google_auth_token"))
			_, err = s.Get("google_auth_token")
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting an absent slot is not an error
			assert.NoError(t, s.Delete("google_auth_token"))
		})
	}
}

func TestStore_SlotsAreIndependent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("a", []byte("1")))
			require.NoError(t, s.Put("b", []byte("2")))
			require.NoError(t, s.Delete("a"))

			got, err := s.Get("b")
			require.NoError(t, err)
			assert.Equal(t, "2", string(got))
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agenda.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("calendar_events_cache", []byte(`[]`)))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("calendar_events_cache")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
}

func TestDir_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDir(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("google_auth_token", []byte("{}")))

	info, err := os.Stat(filepath.Join(dir, "google_auth_token.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestDir_RejectsPathKeys(t *testing.T) {
	s, err := NewDir(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put("../escape", []byte("x")))
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open("redis", "")
	assert.Error(t, err)
}
