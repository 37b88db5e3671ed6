package hostabi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/avery/pkg/sandbox"
)

func TestRemapPathMapsIntoSandbox(t *testing.T) {
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	defer sb.Close()

	h := &Host{Sandbox: sb}

	want, err := sb.Map("bin/run")
	require.NoError(t, err)
	assert.Equal(t, want, h.remapPath("bin/run"))
}

func TestRemapPathPassesThroughUnmappable(t *testing.T) {
	sb, err := sandbox.New(t.TempDir())
	require.NoError(t, err)
	defer sb.Close()

	h := &Host{Sandbox: sb}
	assert.Equal(t, "../../etc/passwd", h.remapPath("../../etc/passwd"))
}

func TestErrorCodeGapAtFourIsPreserved(t *testing.T) {
	defined := map[ErrorCode]bool{
		Ok: true, Unknown: true, ErrNullPtr: true, ErrDecode: true,
		ErrBadString: true, ErrMissingKey: true, ErrEncode: true,
		ErrSpawnFailed: true, ErrFileOpen: true, ErrConnect: true,
		ErrAttachmentMap: true, ErrAttachmentNF: true, ErrSandboxError: true,
		ErrStdIO: true, ErrAttachmentUnpk: true, ErrWriteBuffer: true,
		ErrReadBuffer: true,
	}
	assert.False(t, defined[4])
	assert.Len(t, defined, 17)
}

func TestNewHostStartsWithEmptyOutputs(t *testing.T) {
	h := NewHost(nil, nil, nil, nil, nil, "linux")
	assert.Empty(t, h.Outputs())
	assert.False(t, h.Failed())
}
