// Package health implements the daemon's liveness surface: a single
// aggregate check of the dependencies averyd cannot run without (the
// registry's bbolt file, the sandbox scratch root), exposed over HTTP
// for an operator or orchestrator to poll.
package health

import (
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// Check is one named liveness probe.
type Check struct {
	Name string
	Run  func() error
}

// Result is the outcome of running one Check.
type Result struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report is the aggregate outcome returned by the /healthz endpoint.
type Report struct {
	Healthy bool     `json:"healthy"`
	Checks  []Result `json:"checks"`
}

// Checker runs a fixed set of Checks and aggregates their Results.
type Checker struct {
	checks []Check
}

// NewChecker builds a Checker for an averyd instance backed by the
// bbolt file at dbPath and the sandbox scratch root at scratchDir.
func NewChecker(dbPath, scratchDir string) *Checker {
	return &Checker{
		checks: []Check{
			{Name: "registry_db", Run: func() error { return checkBoltOpenable(dbPath) }},
			{Name: "scratch_dir", Run: func() error { return checkDirWritable(scratchDir) }},
		},
	}
}

// Run executes every check and returns the aggregate Report. Healthy
// is true only if every check succeeded.
func (c *Checker) Run() Report {
	report := Report{Healthy: true, Checks: make([]Result, 0, len(c.checks))}
	for _, chk := range c.checks {
		res := Result{Name: chk.Name, CheckedAt: time.Now(), Healthy: true}
		if err := chk.Run(); err != nil {
			res.Healthy = false
			res.Message = err.Error()
			report.Healthy = false
		}
		report.Checks = append(report.Checks, res)
	}
	return report
}

// checkBoltOpenable confirms the registry's bbolt file can be opened
// read-only with a short timeout, without disturbing the read-write
// handle the daemon itself already holds.
func checkBoltOpenable(path string) error {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return err
	}
	return db.Close()
}

// checkDirWritable confirms the sandbox scratch root exists and will
// accept a new sandbox directory, by creating and removing a probe file.
func checkDirWritable(dir string) error {
	probe := filepath.Join(dir, ".health-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(probe)
}
