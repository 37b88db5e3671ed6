// Package rpc implements the façade described in spec §4.10 (C10 RPC
// Façade): a length-delimited, header-framed transport in which each
// accepted connection carries exactly one call's bidirectional
// exchange — a request frame, then zero or more data frames in either
// direction depending on the method's shape, then a terminal end or
// error frame.
package rpc

import (
	"context"
	"net"
	"sync"

	"github.com/cuemby/avery/pkg/blobstore"
	"github.com/cuemby/avery/pkg/credentials"
	"github.com/cuemby/avery/pkg/executor"
	"github.com/cuemby/avery/pkg/log"
	"github.com/cuemby/avery/pkg/metrics"
	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/tokencache"
)

// handler processes one call after its request frame has been read.
// It owns the stream for the rest of the call's lifetime and is
// responsible for sending a terminal KindEnd or KindError frame.
type handler func(ctx context.Context, s *Server, stream *Stream, req Frame) error

// Server dispatches accepted connections to the registry, execution
// and authentication services described in spec §4.10.
type Server struct {
	Registry    registry.Store
	Executor    *executor.Executor
	Credentials credentials.Store
	Blob        blobstore.Storage
	Tokens      *tokencache.Cache

	mu      sync.Mutex
	pending []RemoteAccessRequest

	handlers map[string]handler
}

// NewServer builds a Server with every method of every service wired
// up. The token cache's obtain/refresh backend is the server's own
// Credentials store: see auth_service.go.
func NewServer(store registry.Store, ex *executor.Executor, creds credentials.Store, blob blobstore.Storage) *Server {
	s := &Server{
		Registry:    store,
		Executor:    ex,
		Credentials: creds,
		Blob:        blob,
	}
	s.Tokens = tokencache.New(s.obtainToken, s.refreshToken)
	s.handlers = map[string]handler{
		MethodList:                     handleList,
		MethodGet:                      handleGet,
		MethodRegister:                 handleRegister,
		MethodRegisterAttachment:       handleRegisterAttachment,
		MethodUploadStreamedAttachment: handleUploadStreamedAttachment,
		MethodListRuntimes:             handleListRuntimes,
		MethodExecute:                  handleExecute,
		MethodAcquireToken:             handleAcquireToken,
		MethodListRemoteAccessRequests: handleListRemoteAccessRequests,
		MethodApproveRemoteAccess:      handleApproveRemoteAccessRequest,
		MethodLogin:                    handleLogin,
	}
	return s
}

// Serve accepts connections from ln until ctx is cancelled or Accept
// fails. Each connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stream := newStream(conn)

	req, err := stream.Recv()
	if err != nil {
		return
	}
	if req.Kind != KindRequest {
		_ = stream.SendError(StatusInvalidArgument, "expected a request frame")
		return
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		_ = stream.SendError(StatusNotFound, "unknown method "+req.Method)
		return
	}

	timer := metrics.NewTimer()
	status := "ok"
	if err := h(ctx, s, stream, req); err != nil {
		status = "error"
		var st *Status
		if e, ok := err.(*Status); ok {
			st = e
		} else {
			st = &Status{Code: StatusInternal, Message: err.Error()}
		}
		log.WithComponent("rpc").Warn().Str("method", req.Method).Str("code", st.Code).Msg(st.Message)
		_ = stream.SendStatus(st)
	}
	metrics.RPCRequestsTotal.WithLabelValues(req.Method, status).Inc()
	timer.ObserveDurationVec(metrics.RPCRequestDuration, req.Method)
}
