package sandbox

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTar(t *testing.T, tw *tar.Writer, name, body string) {
	t.Helper()
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: name,
		Mode: 0600,
		Size: int64(len(body)),
	}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
}

func gzipArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	writeTar(t, tw, "hello.txt", "hello gzip")
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zstdArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	writeTar(t, tw, "hello.txt", "hello zstd")
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUnpackGzipArchive(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	archivePath := filepath.Join(t.TempDir(), "attachment.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, gzipArchive(t), 0600))

	require.NoError(t, s.Unpack(archivePath, "attachments/code"))

	host, err := s.Map("attachments/code/hello.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(host)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(data))
}

func TestUnpackZstdArchive(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	archivePath := filepath.Join(t.TempDir(), "attachment.tar.zst")
	require.NoError(t, os.WriteFile(archivePath, zstdArchive(t), 0600))

	require.NoError(t, s.Unpack(archivePath, "attachments/code"))

	host, err := s.Map("attachments/code/hello.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(host)
	require.NoError(t, err)
	assert.Equal(t, "hello zstd", string(data))
}

func TestUnpackContainsEscapingMemberWithinSandbox(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	writeTar(t, tw, "../../etc/passwd", "pwned")
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0600))

	require.NoError(t, s.Unpack(archivePath, "attachments/code"))

	_, err = os.Stat(filepath.Join(s.Path(), "attachments", "code", "etc", "passwd"))
	assert.NoError(t, err, "the member must land inside the sandbox root, not escape it")
}
