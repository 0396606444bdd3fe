package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const MaxImageBytes = 5 << 20

var ErrUnsupportedImage = errors.New("image must be jpeg, png, webp or gif and at most 5 MiB")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store persists product images and returns the URL clients load them from.
type Store interface {
	Put(ctx context.Context, key string, contentType string, body []byte) (string, error)
}

// ProductImageKey sniffs the payload and builds products/<id>/<random>.<ext>.
func ProductImageKey(productID string, data []byte) (key string, contentType string, err error) {
	if len(data) == 0 || len(data) > MaxImageBytes {
		return "", "", ErrUnsupportedImage
	}
	contentType = http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", ErrUnsupportedImage
	}
	return path.Join("products", productID, uuid.NewString()+ext), contentType, nil
}

type LocalStore struct {
	dir       string
	publicURL string
}

func NewLocalStore(dir string, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Put(_ context.Context, key string, _ string, body []byte) (string, error) {
	clean := path.Clean("/" + key)
	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, body, 0o644); err != nil {
		return "", err
	}
	return s.publicURL + clean, nil
}

// BucketStore uploads to a storage-bucket HTTP API with a bearer token.
type BucketStore struct {
	client *resty.Client
	bucket string
	base   string
}

func NewBucketStore(baseURL string, bucket string, token string) *BucketStore {
	base := strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &BucketStore{client: client, bucket: bucket, base: base}
}

func (s *BucketStore) Put(ctx context.Context, key string, contentType string, body []byte) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetBody(body).
		Post(fmt.Sprintf("/object/%s/%s", s.bucket, key))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload %s: bucket responded %s", key, resp.Status())
	}
	return fmt.Sprintf("%s/object/public/%s/%s", s.base, s.bucket, key), nil
}
