package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestProductImageKeyRejectsNonImages(t *testing.T) {
	_, _, err := ProductImageKey("prd_1", []byte("hello world"))
	require.ErrorIs(t, err, ErrUnsupportedImage)

	_, _, err = ProductImageKey("prd_1", nil)
	require.ErrorIs(t, err, ErrUnsupportedImage)

	_, _, err = ProductImageKey("prd_1", make([]byte, MaxImageBytes+1))
	require.ErrorIs(t, err, ErrUnsupportedImage)

	key, contentType, err := ProductImageKey("prd_1", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.True(t, strings.HasPrefix(key, "products/prd_1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
}

func TestLocalStoreWritesFileAndReturnsPublicURL(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/media/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "products/prd_1/a.png", "image/png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "/media/products/prd_1/a.png", url)

	written, err := os.ReadFile(filepath.Join(dir, "products", "prd_1", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)
}

func TestLocalStoreKeepsKeysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/media")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "../../escape.png", "image/png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "/media/escape.png", url)
	_, err = os.Stat(filepath.Join(dir, "escape.png"))
	require.NoError(t, err)
}

func TestBucketStoreUploadsWithToken(t *testing.T) {
	var (
		gotPath  string
		gotAuth  string
		gotType  string
		gotBytes []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBytes, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewBucketStore(srv.URL, "productos", "secret-token")
	url, err := s.Put(context.Background(), "products/prd_1/a.png", "image/png", pngHeader)
	require.NoError(t, err)

	assert.Equal(t, "/object/productos/products/prd_1/a.png", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, pngHeader, gotBytes)
	assert.Equal(t, srv.URL+"/object/public/productos/products/prd_1/a.png", url)
}

func TestBucketStoreSurfacesUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewBucketStore(srv.URL, "productos", "").Put(context.Background(), "k.png", "image/png", pngHeader)
	require.Error(t, err)
}
