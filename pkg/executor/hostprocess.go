package executor

import (
	"errors"
	"net"
	"os/exec"
	"sync"

	"github.com/cuemby/avery/pkg/hostabi"
)

// processSpawner implements hostabi.ProcessSpawner over os/exec,
// mirroring the original executor's wasi process shim (Command::new
// with remapped args/env, spawn-and-return vs. spawn-and-wait).
// decodeProcessRequest has already remapped Command and every Args
// entry through the sandbox before either method runs.
type processSpawner struct{}

func (processSpawner) Start(req hostabi.ProcessRequest) (int32, error) {
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Env = envSlice(req.Env)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return int32(cmd.Process.Pid), nil
}

func (processSpawner) Run(req hostabi.ProcessRequest) (int32, error) {
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Env = envSlice(req.Env)
	err := cmd.Run()
	var exitErr *exec.ExitError
	if err == nil {
		return 0, nil
	}
	if errors.As(err, &exitErr) {
		// A nonzero exit is a normal completion, not a spawn failure.
		return int32(exitErr.ExitCode()), nil
	}
	return -1, err
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// netConnector implements hostabi.Connector by dialing a real TCP
// connection per call and handing the guest back an opaque handle
// into its own table; the table is torn down with the execution that
// owns it.
type netConnector struct {
	mu    sync.Mutex
	conns []net.Conn
}

func (c *netConnector) Connect(addr string) (int32, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns = append(c.conns, conn)
	return int32(len(c.conns) - 1), nil
}

// Close closes every connection this connector has opened.
func (c *netConnector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		_ = conn.Close()
	}
	c.conns = nil
}
