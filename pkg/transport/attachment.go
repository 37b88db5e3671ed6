// Package transport implements the lazy, pollable HTTP(S) byte source
// used to fetch attachment blobs (spec §4.1, C1 Attachment Transport).
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReadStatus is the outcome of a single PollRead call.
type ReadStatus int

const (
	// Ready(n) — n bytes were copied into buf. Ready(0) signals EOF and
	// is delivered exactly once.
	Ready ReadStatus = iota
	// Pending indicates no bytes are available yet; callers may retry.
	Pending
	// Error indicates a fatal, non-retryable transport failure.
	Error
)

// Config controls the bounded retry policy applied before the first
// byte of a read is ever delivered. Spec §7/§9 leave the exact policy
// unspecified; this is a capped exponential backoff grounded on the
// attachment transport's own suspension points (spec §5).
type Config struct {
	MaxElapsed    time.Duration
	PerChunkSize  int
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxElapsed:     30 * time.Second,
		PerChunkSize:   64 * 1024,
		RequestTimeout: 10 * time.Second,
	}
}

// AttachmentReader is a single-shot, forward-only byte source over an
// absolute URL. PollRead may return Pending arbitrarily often before a
// Ready or Error is produced.
type AttachmentReader struct {
	cfg    Config
	client *http.Client
	url    string

	body         io.ReadCloser
	started      bool
	bytesRead    int64
	eofDelivered bool
}

// New creates an AttachmentReader for url. No network request is made
// until the first PollRead call.
func New(url string, cfg Config) *AttachmentReader {
	return &AttachmentReader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		url:    url,
	}
}

// open performs (with retry, grounded on cenkalti/backoff/v4) the HTTP
// GET that establishes the stream. Redirects are followed by the
// default http.Client policy.
func (r *AttachmentReader) open(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = r.cfg.MaxElapsed

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return fmt.Errorf("attachment transport: server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return backoff.Permanent(fmt.Errorf("attachment transport: client error %d", resp.StatusCode))
		}
		r.body = resp.Body
		return nil
	}, policy)
}

// PollRead reads up to len(buf) bytes. Once a byte has been delivered,
// any further transport failure is fatal and reported as Error rather
// than retried, so a truncated read never silently passes a checksum
// check downstream.
func (r *AttachmentReader) PollRead(ctx context.Context, buf []byte) (int, ReadStatus, error) {
	if r.eofDelivered {
		return 0, Ready, io.EOF
	}

	if !r.started {
		r.started = true
		if err := r.open(ctx); err != nil {
			return 0, Error, err
		}
	}

	n, err := r.body.Read(buf)
	if n > 0 {
		r.bytesRead += int64(n)
	}

	switch {
	case err == nil:
		return n, Ready, nil
	case err == io.EOF:
		r.eofDelivered = true
		r.body.Close()
		return n, Ready, nil
	default:
		// A failure after bytes have already flowed is fatal per §4.1:
		// it is never retried, leaving the truncation to be caught by
		// the caller's checksum verification.
		r.body.Close()
		return n, Error, fmt.Errorf("attachment transport read after %d bytes: %w", r.bytesRead, err)
	}
}

// Close releases the underlying HTTP response body if still open.
func (r *AttachmentReader) Close() error {
	if r.body != nil {
		return r.body.Close()
	}
	return nil
}
