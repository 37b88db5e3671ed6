package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type payload struct {
		Command string
		Args    []string
		Env     map[string]string
	}
	in := payload{Command: "echo", Args: []string{"hi"}, Env: map[string]string{"X": "1"}}

	b, err := Encode(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, Decode(b, &out))
	assert.Equal(t, in, out)
}
