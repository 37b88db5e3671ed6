package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithHelpersChainOntoOneLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("executor")
	logger = WithExecutionID(logger, "exec-1")
	logger = WithFunctionID(logger, "fn-1")
	logger = WithSandboxID(logger, "sandbox-1")
	logger.Info().Msg("running")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "executor", fields["component"])
	assert.Equal(t, "exec-1", fields["execution_id"])
	assert.Equal(t, "fn-1", fields["function_id"])
	assert.Equal(t, "sandbox-1", fields["sandbox_id"])
}
