// Package credentials implements the key→secret persistence contract
// used by the authentication sub-surface (spec §4.2, C2 Credential
// Store), with three pluggable backends: in-memory, OS keyring, and an
// embedded SQL table.
package credentials

// Store is the contract every credential backend satisfies.
type Store interface {
	// Store persists value under key, overwriting any existing entry.
	Store(key, value string) error

	// Retrieve looks up key. found is false (with a nil error) when the
	// key has no entry, distinguishably from a backend failure.
	Retrieve(key string) (value string, found bool, err error)
}
