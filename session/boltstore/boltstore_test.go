package boltstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(path, []byte("test-secret"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestPutGetDelete(t *testing.T) {
	s, _ := openTestStore(t)

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Put("k", []byte("v1"))
	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	s.Put("k", []byte("v2"))
	got, _ = s.Get("k")
	assert.Equal(t, []byte("v2"), got)

	s.Delete("k")
	_, ok = s.Get("k")
	assert.False(t, ok)

	// Deleting a missing key must not panic or error.
	s.Delete("never-existed")
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path, []byte("test-secret"))
	require.NoError(t, err)
	s.Put("k", []byte("durable"))
	require.NoError(t, s.Close())

	s2, err := Open(path, []byte("test-secret"))
	require.NoError(t, err)
	defer s2.Close()

	got, ok := s2.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("durable"), got)
}

func TestRecordsAreOpaqueOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path, []byte("test-secret"))
	require.NoError(t, err)
	s.Put("k", []byte("super-secret-session-blob"))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("super-secret-session-blob")),
		"plaintext must not appear in the database file")
}

func TestWrongSecretReadsAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path, []byte("secret-one"))
	require.NoError(t, err)
	s.Put("k", []byte("v"))
	require.NoError(t, s.Close())

	s2, err := Open(path, []byte("secret-two"))
	require.NoError(t, err)
	defer s2.Close()

	_, ok := s2.Get("k")
	assert.False(t, ok)
}

func TestOpenRequiresSecret(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "session.db"), nil)
	assert.Error(t, err)
}
