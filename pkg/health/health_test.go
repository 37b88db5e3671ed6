package health

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestCheckerRunHealthy(t *testing.T) {
	dbPath := newTestDB(t)
	report := NewChecker(dbPath, t.TempDir()).Run()

	assert.True(t, report.Healthy)
	assert.Len(t, report.Checks, 2)
	for _, c := range report.Checks {
		assert.True(t, c.Healthy, "%s: %s", c.Name, c.Message)
	}
}

func TestCheckerRunMissingDB(t *testing.T) {
	report := NewChecker(filepath.Join(t.TempDir(), "missing.db"), t.TempDir()).Run()
	assert.False(t, report.Healthy)
}

func TestCheckerRunUnwritableScratchDir(t *testing.T) {
	dbPath := newTestDB(t)
	report := NewChecker(dbPath, filepath.Join(t.TempDir(), "does-not-exist")).Run()
	assert.False(t, report.Healthy)
}

func TestHandlerReturns503WhenUnhealthy(t *testing.T) {
	checker := NewChecker(filepath.Join(t.TempDir(), "missing.db"), t.TempDir())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	checker.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
}

func TestHandlerReturns200WhenHealthy(t *testing.T) {
	dbPath := newTestDB(t)
	checker := NewChecker(dbPath, t.TempDir())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	checker.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}
