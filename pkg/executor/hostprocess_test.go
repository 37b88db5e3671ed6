package executor

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/avery/pkg/hostabi"
)

func TestProcessSpawnerRunReturnsExitCode(t *testing.T) {
	var s processSpawner

	code, err := s.Run(hostabi.ProcessRequest{Command: "true"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), code)

	code, err = s.Run(hostabi.ProcessRequest{Command: "false"})
	require.NoError(t, err, "a nonzero exit is a normal completion, not a spawn failure")
	assert.Equal(t, int32(1), code)
}

func TestProcessSpawnerStartReturnsPid(t *testing.T) {
	var s processSpawner
	pid, err := s.Start(hostabi.ProcessRequest{Command: "true"})
	require.NoError(t, err)
	assert.Positive(t, pid)
}

func TestProcessSpawnerRunUnknownCommandFails(t *testing.T) {
	var s processSpawner
	_, err := s.Run(hostabi.ProcessRequest{Command: "definitely-not-a-real-command-xyz"})
	assert.Error(t, err)
}

func TestNetConnectorConnectAndClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	c := &netConnector{}
	fd, err := c.Connect(ln.Addr().String())
	require.NoError(t, err)
	assert.Zero(t, fd)

	fd2, err := c.Connect(ln.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fd2)

	c.Close()
	assert.Empty(t, c.conns)
}

func TestNetConnectorConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := &netConnector{}
	_, err = c.Connect(addr)
	assert.Error(t, err)
}
