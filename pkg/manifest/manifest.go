// Package manifest parses the TOML function manifest used at registry
// ingress (spec §6 "Manifest format") and resolves it, together with
// its code and attachment files, into the records registry.Store wants.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/types"
	"github.com/cuemby/avery/pkg/validation"
)

// Manifest is the on-disk TOML shape. Relative paths (code.path,
// attachments[].path) are resolved against the directory the manifest
// file lives in, not the process's working directory.
type Manifest struct {
	Name    string            `toml:"name"`
	Version string            `toml:"version"`
	Runtime RuntimeSection    `toml:"runtime"`
	Inputs  []FieldSection    `toml:"inputs"`
	Outputs []FieldSection    `toml:"outputs"`
	Code    *CodeSection      `toml:"code"`
	Attachments []AttachmentSection `toml:"attachments"`
	Metadata map[string]string `toml:"metadata"`
}

type RuntimeSection struct {
	Name       string            `toml:"name"`
	Entrypoint string            `toml:"entrypoint"`
	Arguments  map[string]string `toml:"arguments"`
}

type FieldSection struct {
	Key      string `toml:"key"`
	Type     string `toml:"type"`
	Required bool   `toml:"required"`
}

type CodeSection struct {
	Path string `toml:"path"`
}

type AttachmentSection struct {
	Name     string            `toml:"name"`
	Path     string            `toml:"path"`
	Metadata map[string]string `toml:"metadata"`
}

// Load parses the manifest at path. It does not touch the filesystem
// beyond reading the one file: code.path/attachments[].path are
// resolved and read lazily by Register.
func Load(path string) (*Manifest, string, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, "", fmt.Errorf("parse manifest: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, "", fmt.Errorf("parse manifest: %w", err)
	}
	return &m, dir, nil
}

// Register reads the manifest's code and attachment files relative to
// dir, inserts each attachment, then inserts the Function — the same
// sequence the registry's own insert/insert_attachment RPCs expect a
// client to perform, collapsed into one ingress call (spec §6).
func Register(store registry.Store, m *Manifest, dir string) (string, error) {
	if err := validation.ValidateName(m.Name); err != nil {
		return "", fmt.Errorf("manifest %s: %w", m.Name, err)
	}
	if err := validation.ValidateVersion(m.Version); err != nil {
		return "", fmt.Errorf("manifest %s: %w", m.Name, err)
	}

	fn := &types.Function{
		Name:    m.Name,
		Version: m.Version,
		Runtime: types.Runtime{
			Name:       m.Runtime.Name,
			Entrypoint: m.Runtime.Entrypoint,
			Arguments:  m.Runtime.Arguments,
		},
		InputSpec:  toFieldSpecs(m.Inputs),
		OutputSpec: toFieldSpecs(m.Outputs),
		Metadata:   m.Metadata,
	}

	if m.Code != nil && m.Code.Path != "" {
		sum, err := hashFile(resolvePath(dir, m.Code.Path))
		if err != nil {
			return "", fmt.Errorf("manifest %s: code: %w", m.Name, err)
		}
		id, err := store.InsertAttachment(&types.Attachment{Name: "code", SHA256: sum})
		if err != nil {
			return "", fmt.Errorf("manifest %s: code: %w", m.Name, err)
		}
		fn.CodeID = id
	}

	for _, a := range m.Attachments {
		sum, err := hashFile(resolvePath(dir, a.Path))
		if err != nil {
			return "", fmt.Errorf("manifest %s: attachment %s: %w", m.Name, a.Name, err)
		}
		id, err := store.InsertAttachment(&types.Attachment{Name: a.Name, Metadata: a.Metadata, SHA256: sum})
		if err != nil {
			return "", fmt.Errorf("manifest %s: attachment %s: %w", m.Name, a.Name, err)
		}
		fn.Attachments = append(fn.Attachments, id)
	}

	id, err := store.Insert(fn)
	if err != nil {
		return "", fmt.Errorf("manifest %s: %w", m.Name, err)
	}
	return id, nil
}

func toFieldSpecs(fields []FieldSection) []types.FieldSpec {
	if len(fields) == 0 {
		return nil
	}
	specs := make([]types.FieldSpec, len(fields))
	for i, f := range fields {
		specs[i] = types.FieldSpec{Key: f.Key, Type: types.ValueType(f.Type), Required: f.Required}
	}
	return specs
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
