package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("abc"))

	err := ValidateName("-ab")
	assert.ErrorIs(t, err, NameInvalidCharacters)

	err = ValidateName(strings.Repeat("x", 2))
	assert.ErrorIs(t, err, NameTooShort)

	err = ValidateName(strings.Repeat("☠️", 129))
	assert.ErrorIs(t, err, NameTooLong)
}

func TestValidateNameAcceptsHyphenatedSegments(t *testing.T) {
	assert.NoError(t, ValidateName("my-func-1"))
	assert.NoError(t, ValidateName("a1"+strings.Repeat("b", 1)))
}

func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion("1.0.0"))
	assert.NoError(t, ValidateVersion("2.0.0-rc"))
	assert.Error(t, ValidateVersion(""))
	assert.Error(t, ValidateVersion("not-a-version"))
}
