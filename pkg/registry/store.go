// Package registry implements the ordered, filterable store of Function
// and Attachment records described in spec §4.4 (C4 Registry Storage).
package registry

import (
	"errors"
	"fmt"

	"github.com/cuemby/avery/pkg/types"
)

// ErrNotFound is returned when Get/GetAttachment finds no matching record.
var ErrNotFound = errors.New("not found")

// VersionExistsError is returned when an insert would create a duplicate
// (name, version) pair.
type VersionExistsError struct {
	Name    string
	Version string
}

func (e *VersionExistsError) Error() string {
	return fmt.Sprintf("function already registered: %s@%s", e.Name, e.Version)
}

// UnknownAttachmentError is returned when a Function references an
// attachment id the registry has never seen.
type UnknownAttachmentError struct {
	ID string
}

func (e *UnknownAttachmentError) Error() string {
	return fmt.Sprintf("unknown attachment: %s", e.ID)
}

// Store is the interface implemented by the registry's storage engines.
// Implementations serialise writes per instance: readers observe either
// the pre- or post-write state, never a torn read, and two concurrent
// inserts of the same (name, version) result in exactly one success.
type Store interface {
	// Insert validates referenced attachments and inserts fn, assigning
	// ID and CreatedAt. Returns *VersionExistsError if (Name, Version)
	// is already present, or *UnknownAttachmentError if an attachment
	// reference does not resolve.
	Insert(fn *types.Function) (string, error)

	// InsertAttachment inserts att, assigning ID.
	InsertAttachment(att *types.Attachment) (string, error)

	// Get returns the greatest version of name satisfying versionReq
	// ("" matches any version). Returns ErrNotFound if none match.
	Get(name, versionReq string) (*types.Function, error)

	// GetByID returns the Function with the given id, as used by the
	// executor to resolve an Execute request. Returns ErrNotFound if
	// absent.
	GetByID(id string) (*types.Function, error)

	// GetAttachment returns the attachment with the given id.
	GetAttachment(id string) (*types.Attachment, error)

	// List applies filters in order (name substring, semver match,
	// metadata equality), sorts by ordering.Key, reverses if requested,
	// then applies offset/limit (limit=0 means types.DefaultListLimit).
	// Ties break by CreatedAt descending, then ID ascending.
	List(filters types.Filters, ordering types.Ordering) ([]*types.Function, error)

	// Close releases the underlying storage engine.
	Close() error
}
