// Package executor implements the execution pipeline described in
// spec §4.9 (C9 Executor): resolve a Function, materialise its code
// attachment, compile and instantiate it as a WASM guest with the Host
// ABI and a WASI shim bound, run its entrypoint, and stream the
// resulting events back to the caller.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/cuemby/avery/pkg/blobstore"
	"github.com/cuemby/avery/pkg/hostabi"
	"github.com/cuemby/avery/pkg/log"
	"github.com/cuemby/avery/pkg/metrics"
	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/sandbox"
	"github.com/cuemby/avery/pkg/transport"
	"github.com/cuemby/avery/pkg/types"
)

// EventKind discriminates an Event's payload.
type EventKind string

const (
	EventStdout   EventKind = "stdout"
	EventStderr   EventKind = "stderr"
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
)

// Event is one entry of the stream an Execute call returns. The last
// event is always EventResult; no event follows it (spec §8).
type Event struct {
	Kind   EventKind
	Chunk  []byte
	State  types.ExecutionState
	Result types.Result
}

// Request is the input to Execute.
type Request struct {
	FunctionID string
	Arguments  map[string]types.Value
	Deadline   time.Time // zero means unbounded
}

// Executor drives one Function execution at a time per call to
// Execute; each call owns its own Sandbox and wazero runtime.
type Executor struct {
	Store           registry.Store
	Blob            blobstore.Storage
	ScratchDir      string
	HostOS          string
	TransportConfig transport.Config
}

// Execute runs req and returns a channel of Events. The channel is
// closed once the terminal Result event has been sent. Once ctx itself
// is cancelled, events the caller is no longer receiving are dropped,
// the Result among them.
func (e *Executor) Execute(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 32)
	go e.run(ctx, req, out)
	return out
}

func (e *Executor) run(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)

	execID := uuid.NewString()
	logger := log.WithExecutionID(log.WithComponent("executor"), execID)
	timer := metrics.NewTimer()

	callerCtx := ctx
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	// emit gives up only when the caller's own context ends, so an
	// expired request deadline still delivers the cancellation Result.
	emit := func(ev Event) {
		select {
		case out <- ev:
		case <-callerCtx.Done():
		}
	}
	emitState := func(s types.ExecutionState) {
		logger.Debug().Str("state", string(s)).Msg("execution state transition")
		emit(Event{Kind: EventProgress, State: s})
	}
	failAs := func(sb *sandbox.Sandbox, state types.ExecutionState, format string, args ...interface{}) {
		if sb != nil {
			if err := sb.Close(); err != nil {
				logger.Warn().Err(err).Msg("sandbox cleanup failed")
			}
		}
		metrics.ExecutionsTotal.WithLabelValues(string(state)).Inc()
		timer.ObserveDuration(metrics.ExecutionDuration)
		emit(Event{Kind: EventResult, Result: types.Result{Err: fmt.Sprintf(format, args...)}})
	}
	fail := func(sb *sandbox.Sandbox, format string, args ...interface{}) {
		failAs(sb, types.StateFailed, format, args...)
	}

	emitState(types.StateResolving)
	fn, err := e.Store.GetByID(req.FunctionID)
	if err != nil {
		fail(nil, "unknown function %q: %v", req.FunctionID, err)
		return
	}
	logger = log.WithFunctionID(logger, fn.ID)
	if err := validateArguments(fn.InputSpec, req.Arguments); err != nil {
		fail(nil, "%v", err)
		return
	}

	emitState(types.StateFetching)
	sb, err := sandbox.New(e.ScratchDir)
	if err != nil {
		fail(nil, "sandbox: %v", err)
		return
	}
	logger = log.WithSandboxID(logger, sb.ID())

	am, err := newAttachmentMaterializer(e.Store, e.Blob, sb, e.TransportConfig, fn)
	if err != nil {
		fail(sb, "attachment error: %v", err)
		return
	}

	var code []byte
	if fn.CodeID != "" {
		code, _, err = fetchVerified(ctx, e.Store, e.Blob, fn.CodeID, e.TransportConfig)
		if err != nil {
			fail(sb, "attachment error: %v", err)
			return
		}
	}

	emitState(types.StateInstantiating)
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(context.Background())

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		fail(sb, "wasi shim: %v", err)
		return
	}

	conn := &netConnector{}
	defer conn.Close()
	host := hostabi.NewHost(sb, req.Arguments, am, processSpawner{}, conn, e.HostOS)
	if _, err := host.Bind(ctx, rt); err != nil {
		fail(sb, "host abi: %v", err)
		return
	}

	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		fail(sb, "compile: %v", err)
		return
	}

	sinks := newSinkSet()
	stdoutCh := sinks.Stdout.Attach(256)
	stderrCh := sinks.Stderr.Attach(256)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for chunk := range stdoutCh {
			emit(Event{Kind: EventStdout, Chunk: chunk})
		}
	}()
	go func() {
		defer wg.Done()
		for chunk := range stderrCh {
			emit(Event{Kind: EventStderr, Chunk: chunk})
		}
	}()

	cfg := wazero.NewModuleConfig().WithStdout(sinks.Stdout).WithStderr(sinks.Stderr)

	emitState(types.StateRunning)
	mod, runErr := e.runGuest(ctx, rt, compiled, cfg)
	if mod != nil {
		defer mod.Close(context.Background())
	}

	sinks.Stdout.Detach(stdoutCh)
	sinks.Stderr.Detach(stderrCh)
	wg.Wait()

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		emitState(types.StateCancelled)
		failAs(sb, types.StateCancelled, "execution cancelled: %v", runErr)
		return
	}
	if runErr != nil {
		var exitErr *sys.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 0 {
			// clean WASI exit(0): fall through to output collection
		} else {
			fail(sb, "wasm trap: %v", runErr)
			return
		}
	}

	if host.Failed() {
		fail(sb, "%s", host.ErrorMessage())
		return
	}

	values := host.Outputs()
	if err := validateOutputs(fn.OutputSpec, values); err != nil {
		fail(sb, "%v", err)
		return
	}

	if err := sb.Close(); err != nil {
		logger.Warn().Err(err).Msg("sandbox cleanup failed")
	}
	metrics.ExecutionsTotal.WithLabelValues(string(types.StateSucceeded)).Inc()
	timer.ObserveDuration(metrics.ExecutionDuration)
	emit(Event{Kind: EventResult, Result: types.Result{Values: values}})
}

// runGuest instantiates compiled, which (per WASI convention) runs
// _start as part of instantiation. It races the call against ctx so a
// caller-side cancellation interrupts the guest by closing the
// runtime — the design note's "interrupt handle", realised through
// wazero's own teardown path rather than a forced thread kill.
func (e *Executor) runGuest(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, cfg wazero.ModuleConfig) (api.Module, error) {
	type result struct {
		mod api.Module
		err error
	}
	done := make(chan result, 1)
	go func() {
		mod, err := rt.InstantiateModule(ctx, compiled, cfg)
		done <- result{mod, err}
	}()

	select {
	case r := <-done:
		return r.mod, r.err
	case <-ctx.Done():
		rt.Close(context.Background())
		r := <-done
		if r.err == nil {
			r.err = ctx.Err()
		}
		return r.mod, r.err
	}
}
