// Package sandbox implements the per-execution scratch directory and
// host↔guest path rewriter described in spec §4.7 (C7 Sandbox): the
// single choke point preventing guest code from naming host paths
// outside its scratch root.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/avery/pkg/metrics"
)

// GuestRoot is the virtual root guest code sees; every guest path is
// relative to it.
const GuestRoot = "/"

// Sandbox owns a fresh scratch directory created on construction and
// removed on Close. It is owned exclusively by one execution; no sharing
// (spec §5).
type Sandbox struct {
	id        string
	root      string
	createdAt time.Time
}

// New creates a scratch directory under baseDir.
func New(baseDir string) (*Sandbox, error) {
	id := uuid.NewString()
	root := filepath.Join(baseDir, id)
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("sandbox: create scratch dir: %w", err)
	}
	return &Sandbox{id: id, root: root, createdAt: time.Now()}, nil
}

// ID returns the sandbox's identifier.
func (s *Sandbox) ID() string { return s.id }

// Path returns the host-absolute scratch directory root.
func (s *Sandbox) Path() string { return s.root }

// Map translates a guest-visible path (relative to GuestRoot) into a
// host-absolute path under the sandbox root. It rejects any path that,
// after cleaning, would escape the sandbox (e.g. via "..").
func (s *Sandbox) Map(guestPath string) (string, error) {
	clean := filepath.Clean(guestPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("sandbox: guest path %q escapes sandbox root", guestPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Exists reports whether the guest-relative path exists within the sandbox.
func (s *Sandbox) Exists(guestPath string) (bool, error) {
	host, err := s.Map(guestPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(host)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close removes the scratch directory and everything under it. Callers
// on every execution exit path — success, guest trap, or cancellation —
// must call Close exactly once (spec §4.9's guaranteed-release
// invariant; spec §8 requires the directory gone before Result is
// observable).
func (s *Sandbox) Close() error {
	metrics.SandboxLifetime.Observe(time.Since(s.createdAt).Seconds())
	return os.RemoveAll(s.root)
}
