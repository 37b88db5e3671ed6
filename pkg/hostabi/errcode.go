package hostabi

// ErrorCode is the stable u32 every host-imported function returns to
// the guest (spec §9). 0 is success; the gap at 4 is deliberate — it
// belongs to a call this implementation doesn't expose and is kept so
// the numbering stays stable against future additions.
type ErrorCode uint32

const (
	Ok                 ErrorCode = 0
	Unknown            ErrorCode = 1
	ErrNullPtr         ErrorCode = 2
	ErrDecode          ErrorCode = 3
	ErrBadString       ErrorCode = 5
	ErrMissingKey      ErrorCode = 6
	ErrEncode          ErrorCode = 7
	ErrSpawnFailed     ErrorCode = 8
	ErrFileOpen        ErrorCode = 9
	ErrConnect         ErrorCode = 10
	ErrAttachmentMap   ErrorCode = 11
	ErrAttachmentNF    ErrorCode = 12
	ErrSandboxError    ErrorCode = 13
	ErrStdIO           ErrorCode = 14
	ErrAttachmentUnpk  ErrorCode = 15
	ErrWriteBuffer     ErrorCode = 16
	ErrReadBuffer      ErrorCode = 17
)
