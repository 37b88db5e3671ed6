package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfigMissingPathReturnsNil(t *testing.T) {
	cfg, err := loadFileConfig("")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestApplyFileConfigLeavesExplicitFlagsAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "averyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nadmin_addr: \":9999\"\n"), 0600))

	cfg, err := loadFileConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("admin-addr", ":9090", "")
	require.NoError(t, flags.Set("log-level", "warn"))

	applyFileConfig(flags, cfg)

	level, _ := flags.GetString("log-level")
	addr, _ := flags.GetString("admin-addr")
	assert.Equal(t, "warn", level, "explicitly set flag must not be overwritten by the config file")
	assert.Equal(t, ":9999", addr, "unset flag should take its value from the config file")
}
