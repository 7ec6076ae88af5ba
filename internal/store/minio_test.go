package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaprofile/userauth/internal/auth"
)

// fakeS3 answers the handful of S3 calls the media host makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		if f.failPut {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestMediaHost(t *testing.T, s3 *fakeS3, publicURL string) *MinioMediaHost {
	t.Helper()
	srv := httptest.NewServer(s3)
	t.Cleanup(srv.Close)

	h, err := NewMinioMediaHost(context.Background(), MediaConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "media",
		Region:    "us-east-1",
		PublicURL: publicURL,
	})
	require.NoError(t, err)
	h.newKey = func(folder, name string) string { return folder + "/fixed.png" }
	return h
}

func TestMinioMediaHost_Upload(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	h := newTestMediaHost(t, s3, "https://cdn.example.com/")

	url, err := h.Upload(context.Background(), "avatars", &auth.MediaFile{
		Name:        "me.PNG",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("\x89PNG"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/avatars/fixed.png", url)
	assert.Equal(t, "image/png", s3.types["/media/avatars/fixed.png"])
	assert.Contains(t, string(s3.objects["/media/avatars/fixed.png"]), "PNG")
}

func TestMinioMediaHost_UploadFailure(t *testing.T) {
	s3 := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, failPut: true}
	h := newTestMediaHost(t, s3, "")

	_, err := h.Upload(context.Background(), "covers", &auth.MediaFile{
		Name: "c.jpg", Size: 3, Body: strings.NewReader("jpg"),
	})
	assert.Error(t, err)
}

func TestMinioMediaHost_UploadEmpty(t *testing.T) {
	h := &MinioMediaHost{newKey: objectKey}
	_, err := h.Upload(context.Background(), "avatars", nil)
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	k := objectKey("avatars", "Photo.JPG")
	assert.True(t, strings.HasPrefix(k, "avatars/"))
	assert.True(t, strings.HasSuffix(k, ".jpg"))
	assert.NotEqual(t, k, objectKey("avatars", "Photo.JPG"))
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", publicBaseURL(MediaConfig{Endpoint: "localhost:9000"}))
	assert.Equal(t, "https://s3.local", publicBaseURL(MediaConfig{Endpoint: "s3.local", UseSSL: true}))
	assert.Equal(t, "https://cdn.example.com", publicBaseURL(MediaConfig{PublicURL: "https://cdn.example.com/"}))
}
