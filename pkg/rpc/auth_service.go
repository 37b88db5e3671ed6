package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/avery/pkg/types"
)

// remoteAccessRequestCap is the server-side limit on
// list_remote_access_requests (spec §9 open question: "specify
// server-side").
const remoteAccessRequestCap = 20

// obtainToken and refreshToken are the tokencache.Cache backends: this
// reference façade has no external identity provider, so a scope's
// token is simply whatever secret login (or an approver, via
// approve_remote_access_request) has stored under that scope.
func (s *Server) obtainToken(ctx context.Context, scope string) (types.Token, error) {
	secret, found, err := s.Credentials.Retrieve(scope)
	if err != nil {
		return types.Token{}, &Status{Code: StatusInternal, Message: err.Error()}
	}
	if !found {
		s.addPendingRequest(scope)
		return types.Token{}, &Status{Code: StatusUnauthenticated, Message: fmt.Sprintf("no credential for scope %q", scope), Scope: scope}
	}
	return types.Token{Scope: scope, Secret: secret, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *Server) refreshToken(ctx context.Context, scope string, expired types.Token) (types.Token, error) {
	return s.obtainToken(ctx, scope)
}

func (s *Server) addPendingRequest(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, RemoteAccessRequest{ID: uuid.NewString(), Scope: scope, CreatedAt: time.Now()})
	if len(s.pending) > remoteAccessRequestCap {
		s.pending = s.pending[len(s.pending)-remoteAccessRequestCap:]
	}
}

func (s *Server) removePendingByScope(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	for _, r := range s.pending {
		if r.Scope != scope {
			kept = append(kept, r)
		}
	}
	s.pending = kept
}

func handleAcquireToken(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in AcquireTokenRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}
	tok, err := s.Tokens.Acquire(ctx, in.Scope)
	if err != nil {
		if st, ok := err.(*Status); ok {
			return st
		}
		return &Status{Code: StatusInternal, Message: err.Error()}
	}
	if err := stream.SendValue(AcquireTokenResponse{Token: tok}); err != nil {
		return err
	}
	return stream.SendEnd()
}

func handleListRemoteAccessRequests(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	s.mu.Lock()
	out := make([]RemoteAccessRequest, len(s.pending))
	copy(out, s.pending)
	s.mu.Unlock()

	if err := stream.SendValue(ListRemoteAccessRequestsResponse{Requests: out}); err != nil {
		return err
	}
	return stream.SendEnd()
}

// handleApproveRemoteAccessRequest lets an operator approve a pending
// request raised by another client's failed acquire_token, storing a
// credential for its scope on that client's behalf.
func handleApproveRemoteAccessRequest(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in ApproveRemoteAccessRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}

	s.mu.Lock()
	var found *RemoteAccessRequest
	for i := range s.pending {
		if s.pending[i].ID == in.ID {
			found = &s.pending[i]
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return &Status{Code: StatusNotFound, Message: "no such remote access request: " + in.ID}
	}

	if err := s.Credentials.Store(found.Scope, uuid.NewString()); err != nil {
		return &Status{Code: StatusInternal, Message: err.Error()}
	}
	s.removePendingByScope(found.Scope)

	if err := stream.SendValue(ApproveRemoteAccessResponse{OK: true}); err != nil {
		return err
	}
	return stream.SendEnd()
}

// handleLogin drives the interactive device flow: it streams a single
// Browser command for the caller's own client to open, then — standing
// in for the out-of-band callback a real identity provider would drive
// — stores the resulting credential itself and clears any pending
// request for the scope, so the caller's retried call succeeds (spec
// §5 scenario 8).
func handleLogin(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in LoginRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}

	url := fmt.Sprintf("https://auth.avery.local/authorize?scope=%s", in.Scope)
	if err := stream.SendValue(LoginCommand{Kind: "browser", URL: url}); err != nil {
		return err
	}

	if err := s.Credentials.Store(in.Scope, uuid.NewString()); err != nil {
		return &Status{Code: StatusInternal, Message: err.Error()}
	}
	s.removePendingByScope(in.Scope)

	return stream.SendEnd()
}
