package rpc

import (
	"context"

	"github.com/cuemby/avery/pkg/executor"
)

// supportedRuntimes is the fixed set of runtime engines this
// executor build can instantiate (spec §4.9 only implements the WASI
// shape; list_runtimes reports what's actually runnable, not every
// name a manifest's runtime.name field is free to declare).
var supportedRuntimes = []string{"wasi"}

func handleListRuntimes(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	if err := stream.SendValue(ListRuntimesResponse{Runtimes: supportedRuntimes}); err != nil {
		return err
	}
	return stream.SendEnd()
}

// handleExecute drives the Executor and forwards every Event as a
// KindData frame until the channel closes, per the server-streaming
// execute call of spec §4.10. It runs the Executor against a context
// tied to this connection's own lifetime, not the server's: per spec
// §5 ("caller closes the response stream ⇒ executor observes
// cancellation at the next suspension point"), a client that hangs up
// mid-stream must unblock the executor's buffered event emission
// rather than leaking its goroutine and sandbox for the life of the
// process.
func handleExecute(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in ExecuteRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}

	callCtx, cancel := stream.WatchClosed(ctx)
	defer cancel()

	events := s.Executor.Execute(callCtx, executor.Request{
		FunctionID: in.FunctionID,
		Arguments:  in.Arguments,
		Deadline:   in.Deadline,
	})
	for ev := range events {
		out := ExecuteEvent{Kind: string(ev.Kind), Chunk: ev.Chunk, State: string(ev.State)}
		if ev.Kind == executor.EventResult {
			result := ev.Result
			out.Result = &result
		}
		if err := stream.SendValue(out); err != nil {
			return err
		}
	}
	return stream.SendEnd()
}
