package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedUpload struct {
	method string
	path   string
	body   []byte
}

type fakeGCSServer struct {
	mu      sync.Mutex
	uploads []recordedUpload
}

func (s *fakeGCSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.uploads = append(s.uploads, recordedUpload{method: r.Method, path: r.URL.Path, body: body})
	s.mu.Unlock()

	if !strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/rumbos/o") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"bucket":"rumbos","name":"tmp/u1/apunte.pdf","contentType":"application/pdf","size":"8","updated":"2025-04-01T12:00:00Z"}`)
}

func (s *fakeGCSServer) recorded() []recordedUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedUpload(nil), s.uploads...)
}

func newFakeGCSStore(t *testing.T) (*GCSStore, *fakeGCSServer) {
	t.Helper()
	fake := &fakeGCSServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))

	client, err := NewGCSClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewGCSStore(client, "rumbos")
	require.NoError(t, err)
	return store, fake
}

type failingReader struct {
	chunk []byte
	err   error
	sent  bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.chunk), nil
	}
	return 0, r.err
}

func TestGCSStorePutPublishesObject(t *testing.T) {
	store, fake := newFakeGCSStore(t)

	info, err := store.Put(context.Background(), "tmp/u1/apunte.pdf", strings.NewReader("%PDF-1.4"), "")
	require.NoError(t, err)
	assert.Equal(t, "tmp/u1/apunte.pdf", info.Key)
	assert.Equal(t, int64(8), info.Size)

	uploads := fake.recorded()
	require.Len(t, uploads, 1)
	assert.Equal(t, http.MethodPost, uploads[0].method)
	assert.True(t, bytes.Contains(uploads[0].body, []byte("%PDF-1.4")))
}

func TestGCSStorePutAbandonsFailedWrite(t *testing.T) {
	store, fake := newFakeGCSStore(t)
	errTooLarge := errors.New("upload exceeds size limit")

	_, err := store.Put(context.Background(), "products/prd_1/image.png", &failingReader{chunk: []byte("PARTIAL-BYTES"), err: errTooLarge}, "image/png")
	require.ErrorIs(t, err, errTooLarge)

	for _, upload := range fake.recorded() {
		assert.False(t, bytes.Contains(upload.body, []byte("PARTIAL-BYTES")), "partial object reached %s %s", upload.method, upload.path)
	}
}
