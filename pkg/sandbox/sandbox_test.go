package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRejectsEscape(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Map("../../etc/passwd")
	assert.Error(t, err)
}

func TestMapStaysWithinRoot(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	host, err := s.Map("data/file.txt")
	require.NoError(t, err)
	assert.True(t, filepath_HasPrefix(host, s.Path()))
}

func filepath_HasPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func TestCloseRemovesDirectory(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	root := s.Path()
	require.NoError(t, s.Close())

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestExists(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Exists("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	host, err := s.Map("present.txt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(host, []byte("x"), 0600))

	ok, err = s.Exists("present.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}
