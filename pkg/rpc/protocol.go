package rpc

import (
	"fmt"
	"time"

	"github.com/cuemby/avery/pkg/types"
)

// Method names dispatched by Server.handlers (spec §4.10).
const (
	MethodList                     = "list"
	MethodGet                      = "get"
	MethodRegister                 = "register"
	MethodRegisterAttachment       = "register_attachment"
	MethodUploadStreamedAttachment = "upload_streamed_attachment"
	MethodListRuntimes             = "list_runtimes"
	MethodExecute                  = "execute"
	MethodAcquireToken             = "acquire_token"
	MethodListRemoteAccessRequests = "list_remote_access_requests"
	MethodApproveRemoteAccess      = "approve_remote_access_request"
	MethodLogin                    = "login"
)

// Status is the typed error a handler returns; StatusUnauthenticated is
// the one code the reauth loop (spec §4.10) treats as retryable.
type Status struct {
	Code    string
	Message string
	// Scope is set alongside StatusUnauthenticated so a client's reauth
	// loop knows which scope to run the login stream for.
	Scope string
}

func (s *Status) Error() string { return fmt.Sprintf("%s: %s", s.Code, s.Message) }

const (
	StatusUnauthenticated   = "Unauthenticated"
	StatusNotFound          = "NotFound"
	StatusInvalidArgument   = "InvalidArgument"
	StatusAlreadyExists     = "AlreadyExists"
	StatusChecksumMismatch  = "ChecksumMismatch"
	StatusInternal          = "Internal"
)

// --- Registry service ---

type ListRequest struct {
	Filters  types.Filters
	Ordering types.Ordering
}

type ListResponse struct {
	Functions []*types.Function
}

type GetRequest struct {
	Name          string
	VersionReq    string
}

type GetResponse struct {
	Function *types.Function
}

type RegisterRequest struct {
	Function *types.Function
}

type RegisterResponse struct {
	ID string
}

type RegisterAttachmentRequest struct {
	Attachment *types.Attachment
}

type RegisterAttachmentResponse struct {
	ID string
}

// UploadStart is the first message of an upload_streamed_attachment
// call; every KindData frame after it is a raw byte chunk.
type UploadStart struct {
	AttachmentID string
}

type UploadStreamedAttachmentResponse struct {
	SHA256 string
}

// --- Execution service ---

type ListRuntimesResponse struct {
	Runtimes []string
}

type ExecuteRequest struct {
	FunctionID string
	Arguments  map[string]types.Value
	Deadline   time.Time
}

// ExecuteEvent mirrors executor.Event across the wire; it is sent as
// one KindData frame per event, terminated by KindEnd.
type ExecuteEvent struct {
	Kind   string
	Chunk  []byte
	State  string
	Result *types.Result
}

// --- Authentication service ---

type AcquireTokenRequest struct {
	Scope string
}

type AcquireTokenResponse struct {
	Token types.Token
}

type RemoteAccessRequest struct {
	ID        string
	Scope     string
	CreatedAt time.Time
}

type ListRemoteAccessRequestsResponse struct {
	Requests []RemoteAccessRequest
}

type ApproveRemoteAccessRequest struct {
	ID string
}

type ApproveRemoteAccessResponse struct {
	OK bool
}

type LoginRequest struct {
	Scope string
}

// LoginCommand is one server-streamed interactive instruction, e.g.
// {Kind:"browser", URL:"https://..."} (spec §4.10, §5 scenario 8).
type LoginCommand struct {
	Kind string
	URL  string
}
