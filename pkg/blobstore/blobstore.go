// Package blobstore issues upload/download URLs for attachment blobs
// (spec §4.5, C5 Attachment Blob Storage).
package blobstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cuemby/avery/pkg/types"
)

// Storage is the interface both blob strategies satisfy.
type Storage interface {
	UploadURL(att *types.Attachment) (string, error)
	DownloadURL(att *types.Attachment) (string, error)
}

// HTTPSPrefixBucket issues URLs by joining the attachment id onto a base
// URL that must end in "/". Fails fast on a base that isn't URL-joinable.
type HTTPSPrefixBucket struct {
	base *url.URL
}

// NewHTTPSPrefixBucket validates baseURL and returns a Storage backed by it.
func NewHTTPSPrefixBucket(baseURL string) (*HTTPSPrefixBucket, error) {
	if !strings.HasSuffix(baseURL, "/") {
		return nil, fmt.Errorf("blobstore: base URL %q must end in /", baseURL)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("blobstore: invalid base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("blobstore: base URL %q is not absolute", baseURL)
	}
	return &HTTPSPrefixBucket{base: u}, nil
}

func (b *HTTPSPrefixBucket) join(id string) (string, error) {
	ref, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("blobstore: invalid attachment id %q: %w", id, err)
	}
	return b.base.ResolveReference(ref).String(), nil
}

func (b *HTTPSPrefixBucket) UploadURL(att *types.Attachment) (string, error) {
	return b.join(att.ID)
}

func (b *HTTPSPrefixBucket) DownloadURL(att *types.Attachment) (string, error) {
	return b.join(att.ID)
}

// ObjectStoreBucket issues GCS-shaped URLs against a templated bucket
// endpoint, with an OAuth2 auth indicator on the upload side.
type ObjectStoreBucket struct {
	endpoint string // e.g. "https://storage.googleapis.com"
	bucket   string
}

func NewObjectStoreBucket(endpoint, bucket string) *ObjectStoreBucket {
	return &ObjectStoreBucket{endpoint: strings.TrimSuffix(endpoint, "/"), bucket: bucket}
}

func (o *ObjectStoreBucket) UploadURL(att *types.Attachment) (string, error) {
	return fmt.Sprintf("%s/b/%s/o?uploadType=media&name=%s&auth=OAuth2",
		o.endpoint, o.bucket, url.QueryEscape(att.ID)), nil
}

func (o *ObjectStoreBucket) DownloadURL(att *types.Attachment) (string, error) {
	return fmt.Sprintf("%s/b/%s/o/%s?alt=media",
		o.endpoint, o.bucket, url.PathEscape(att.ID)), nil
}
