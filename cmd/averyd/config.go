package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the daemon's persistent flags so an operator can
// check a config file into version control instead of repeating long
// command lines. Flags passed on the command line always win; a value
// is only taken from the file when its flag was left at default.
type fileConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
	Socket      string `yaml:"socket"`
	DataDir     string `yaml:"data_dir"`
	BlobBaseURL string `yaml:"blob_base_url"`
	AdminAddr   string `yaml:"admin_addr"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// applyFileConfig fills in any flag the caller did not pass explicitly
// from cfg, leaving flags set on the command line untouched.
func applyFileConfig(flags *pflag.FlagSet, cfg *fileConfig) {
	if cfg == nil {
		return
	}
	setIfUnchanged(flags, "log-level", cfg.LogLevel)
	setBoolIfUnchanged(flags, "log-json", cfg.LogJSON)
	setIfUnchanged(flags, "socket", cfg.Socket)
	setIfUnchanged(flags, "data-dir", cfg.DataDir)
	setIfUnchanged(flags, "blob-base-url", cfg.BlobBaseURL)
	setIfUnchanged(flags, "admin-addr", cfg.AdminAddr)
}

func setIfUnchanged(flags *pflag.FlagSet, name, value string) {
	if value == "" || flags.Changed(name) {
		return
	}
	_ = flags.Set(name, value)
}

func setBoolIfUnchanged(flags *pflag.FlagSet, name string, value bool) {
	if !value || flags.Changed(name) {
		return
	}
	_ = flags.Set(name, strconv.FormatBool(value))
}
