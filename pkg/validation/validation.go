// Package validation implements the name and semantic-version validators
// used at registry ingress (spec §4.6).
package validation

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9](-?[a-z0-9])*$`)

// NameError describes why a Function name failed validation.
type NameError string

const (
	NameTooShort          NameError = "TooShort"
	NameTooLong           NameError = "TooLong"
	NameInvalidCharacters NameError = "InvalidCharacters"
)

func (e NameError) Error() string { return string(e) }

// ValidateName enforces the grammar `^[a-z][a-z0-9](-?[a-z0-9])*$` with
// length in [3,128], counting runes rather than bytes so multi-byte
// characters are rejected as a length violation before a character
// violation when both apply.
func ValidateName(name string) error {
	n := len([]rune(name))
	if n < 3 {
		return NameTooShort
	}
	if n > 128 {
		return NameTooLong
	}
	if !nameRe.MatchString(name) {
		return NameInvalidCharacters
	}
	return nil
}

// ValidateVersion rejects empty strings and delegates to the semver parser.
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version must not be empty")
	}
	if _, err := semver.NewVersion(version); err != nil {
		return fmt.Errorf("invalid semantic version %q: %w", version, err)
	}
	return nil
}
