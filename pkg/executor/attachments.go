package executor

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	sha256simd "github.com/minio/sha256-simd"

	"github.com/cuemby/avery/pkg/blobstore"
	"github.com/cuemby/avery/pkg/metrics"
	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/sandbox"
	"github.com/cuemby/avery/pkg/transport"
	"github.com/cuemby/avery/pkg/types"
)

// fetchVerified streams attachmentID's blob to completion via the
// attachment transport, verifies it against the declared SHA-256 and
// returns the bytes (spec §4.9 step 2, §7 checksum mismatch scenario).
func fetchVerified(ctx context.Context, store registry.Store, blob blobstore.Storage, attachmentID string, cfg transport.Config) ([]byte, *types.Attachment, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AttachmentFetchDuration)

	att, err := store.GetAttachment(attachmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("attachment %s: %w", attachmentID, err)
	}
	url, err := blob.DownloadURL(att)
	if err != nil {
		return nil, nil, fmt.Errorf("attachment %s: %w", attachmentID, err)
	}

	chunkSize := cfg.PerChunkSize
	if chunkSize <= 0 {
		chunkSize = transport.DefaultConfig().PerChunkSize
	}

	r := transport.New(url, cfg)
	defer r.Close()

	var buf bytes.Buffer
	sum := sha256simd.New()
	chunk := make([]byte, chunkSize)
	for {
		n, status, err := r.PollRead(ctx, chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			sum.Write(chunk[:n])
		}
		if status == transport.Error {
			return nil, nil, fmt.Errorf("attachment %s: %w", attachmentID, err)
		}
		if err == io.EOF {
			break
		}
	}

	if att.SHA256 != "" {
		if got := hex.EncodeToString(sum.Sum(nil)); got != att.SHA256 {
			metrics.AttachmentChecksumMismatchTotal.Inc()
			return nil, nil, fmt.Errorf("attachment %s: checksum mismatch: want %s got %s", attachmentID, att.SHA256, got)
		}
	}
	return buf.Bytes(), att, nil
}

// attachmentMaterializer implements hostabi.AttachmentMaterializer: it
// resolves a Function's attachments by name and lazily fetches each
// one into the sandbox on first map_attachment/get_attachment_path_len
// call (spec §4.9 step 3: "Attachments are indexed by name").
type attachmentMaterializer struct {
	store   registry.Store
	blob    blobstore.Storage
	sandbox *sandbox.Sandbox
	cfg     transport.Config

	byName   map[string]string // attachment name -> id
	resolved map[string]string // cache key -> sandbox-relative path
}

func newAttachmentMaterializer(store registry.Store, blob blobstore.Storage, sb *sandbox.Sandbox, cfg transport.Config, fn *types.Function) (*attachmentMaterializer, error) {
	m := &attachmentMaterializer{
		store: store, blob: blob, sandbox: sb, cfg: cfg,
		byName:   make(map[string]string),
		resolved: make(map[string]string),
	}
	for _, id := range fn.Attachments {
		att, err := store.GetAttachment(id)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", id, err)
		}
		m.byName[att.Name] = id
	}
	return m, nil
}

func cacheKey(id string, unpack bool) string {
	if unpack {
		return id + "#unpacked"
	}
	return id
}

// Materialize implements hostabi.AttachmentMaterializer.
func (m *attachmentMaterializer) Materialize(name string, unpack bool) (string, error) {
	id, ok := m.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown attachment %q", name)
	}
	if path, ok := m.resolved[cacheKey(id, unpack)]; ok {
		return path, nil
	}

	data, _, err := fetchVerified(context.Background(), m.store, m.blob, id, m.cfg)
	if err != nil {
		return "", err
	}

	destGuest := filepath.Join("attachments", name)
	if unpack {
		tmpGuest := filepath.Join("attachments", ".incoming-"+name)
		hostTmp, err := m.sandbox.Map(tmpGuest)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(hostTmp), 0700); err != nil {
			return "", err
		}
		if err := os.WriteFile(hostTmp, data, 0600); err != nil {
			return "", err
		}
		defer os.Remove(hostTmp)
		if err := m.sandbox.Unpack(hostTmp, destGuest); err != nil {
			return "", err
		}
	} else {
		hostPath, err := m.sandbox.Map(destGuest)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(hostPath), 0700); err != nil {
			return "", err
		}
		if err := os.WriteFile(hostPath, data, 0600); err != nil {
			return "", err
		}
	}

	m.resolved[cacheKey(id, unpack)] = destGuest
	return destGuest, nil
}
