package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollReadDeliversFullBodyThenSingleEOF(t *testing.T) {
	payload := []byte("hello, attachment")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	r := New(srv.URL, DefaultConfig())
	defer r.Close()

	var got []byte
	buf := make([]byte, 4)
	eofCount := 0
	for {
		n, status, err := r.PollRead(context.Background(), buf)
		require.NotEqual(t, Error, status)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			eofCount++
			break
		}
		if n == 0 && status == Ready {
			eofCount++
			break
		}
	}

	assert.Equal(t, payload, got)
	assert.Equal(t, 1, eofCount)
}

func TestPollReadFatalOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	r := New(srv.URL, cfg)
	defer r.Close()

	_, status, err := r.PollRead(context.Background(), make([]byte, 4))
	assert.Equal(t, Error, status)
	assert.Error(t, err)
}
