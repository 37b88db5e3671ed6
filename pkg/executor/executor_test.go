package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/avery/pkg/blobstore"
	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/transport"
	"github.com/cuemby/avery/pkg/types"
)

// wasmNoop is a minimal module exporting "_start" whose body is empty:
// magic+version, one () -> () type, one function of that type, an
// export of it named "_start", and a body that is just "end".
var wasmNoop = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

// wasmTrap is the same shape, except its "_start" body is a single
// unreachable instruction: guaranteed to trap as soon as it runs.
var wasmTrap = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x00,
	0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b,
}

// setup registers a Function whose code attachment serves wasmBytes,
// returning the Executor and the Function's id.
func setup(t *testing.T, wasmBytes []byte) (*Executor, string, string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(wasmBytes)
	}))
	t.Cleanup(srv.Close)

	store, err := registry.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blob, err := blobstore.NewHTTPSPrefixBucket(srv.URL + "/blobs/")
	require.NoError(t, err)

	sum := sha256.Sum256(wasmBytes)
	codeID, err := store.InsertAttachment(&types.Attachment{Name: "code", SHA256: hex.EncodeToString(sum[:])})
	require.NoError(t, err)

	fn := &types.Function{
		Name:    "greeter",
		Version: "1.0.0",
		Runtime: types.Runtime{Name: "wasi", Entrypoint: "_start"},
		CodeID:  codeID,
	}
	fnID, err := store.Insert(fn)
	require.NoError(t, err)

	scratch := t.TempDir()
	ex := &Executor{
		Store:           store,
		Blob:            blob,
		ScratchDir:      scratch,
		HostOS:          "linux",
		TransportConfig: transport.DefaultConfig(),
	}
	return ex, fnID, scratch
}

func listDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestExecuteHappyPathEndsWithOkResult(t *testing.T) {
	ex, fnID, _ := setup(t, wasmNoop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events := drain(ex.Execute(ctx, Request{FunctionID: fnID, Arguments: map[string]types.Value{}}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventResult, last.Kind)
	assert.False(t, last.Result.IsError(), "unexpected error: %s", last.Result.Err)

	for _, ev := range events[:len(events)-1] {
		assert.NotEqual(t, EventResult, ev.Kind, "Result event must be last")
	}
}

func TestExecuteTrapEndsWithErrorResult(t *testing.T) {
	ex, fnID, scratch := setup(t, wasmTrap)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events := drain(ex.Execute(ctx, Request{FunctionID: fnID, Arguments: map[string]types.Value{}}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventResult, last.Kind)
	assert.True(t, last.Result.IsError())

	entries, err := listDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "sandbox directory must not survive a completed execution")
}

func TestExecuteContextCancelledClosesChannelPromptly(t *testing.T) {
	ex, fnID, _ := setup(t, wasmNoop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		for range ex.Execute(ctx, Request{FunctionID: fnID}) {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not close its event channel after context cancellation; emit() is blocked")
	}
}

func TestExecuteUnknownFunctionFailsBeforeSandbox(t *testing.T) {
	ex, _, scratch := setup(t, wasmNoop)

	events := drain(ex.Execute(context.Background(), Request{FunctionID: "does-not-exist"}))
	require.Len(t, events, 2)
	assert.Equal(t, EventResult, events[1].Kind)
	assert.True(t, events[1].Result.IsError())

	entries, err := listDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
