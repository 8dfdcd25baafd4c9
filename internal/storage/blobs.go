// Package storage keeps uploaded PDFs on an afero filesystem and resolves
// stored URLs back to bytes.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Scheme prefixes URLs of objects held by Blobs
const Scheme = "blob"

// DefaultMaxSize bounds fetched objects
const DefaultMaxSize = 100 * 1024 * 1024

// Blobs stores objects under <church>/<uuid><ext> and fetches blob:// and
// http(s):// URLs
type Blobs struct {
	fs      afero.Fs
	client  *http.Client
	maxSize int64
}

// Option configures Blobs
type Option func(*Blobs)

// WithHTTPClient sets the client used for http(s) URLs
func WithHTTPClient(client *http.Client) Option {
	return func(b *Blobs) { b.client = client }
}

// WithMaxSize bounds the size of fetched objects
func WithMaxSize(size int64) Option {
	return func(b *Blobs) {
		if size > 0 {
			b.maxSize = size
		}
	}
}

// New creates Blobs over fs
func New(fs afero.Fs, opts ...Option) *Blobs {
	b := &Blobs{
		fs:      fs,
		client:  &http.Client{Timeout: 30 * time.Second},
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewOS creates Blobs rooted at dir on the local disk
func NewOS(dir string, opts ...Option) (*Blobs, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return New(afero.NewBasePathFs(osFs, dir), opts...), nil
}

// NewMemory creates Blobs held in memory
func NewMemory() *Blobs {
	return New(afero.NewMemMapFs())
}

// Put stores data for the church and returns its blob:// URL. Only the
// extension of name is kept.
func (b *Blobs) Put(ctx context.Context, churchID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validSegment(churchID) {
		return "", fmt.Errorf("invalid church id %q", churchID)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || !validSegment(strings.TrimPrefix(ext, ".")) {
		ext = ".pdf"
	}

	key := path.Join(churchID, uuid.New().String()+ext)
	if err := b.fs.MkdirAll(churchID, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", churchID, err)
	}
	if err := afero.WriteFile(b.fs, key, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}

	return Scheme + "://" + key, nil
}

// Fetch returns the bytes behind a blob:// or http(s):// URL
func (b *Blobs) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case Scheme:
		return b.fetchBlob(ctx, u)
	case "http", "https":
		return b.fetchHTTP(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// Delete removes the object behind a blob:// URL
func (b *Blobs) Delete(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != Scheme {
		return fmt.Errorf("cannot delete %s URL %q", u.Scheme, u.Redacted())
	}

	key, err := blobKey(u)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// blobKey returns the storage key of a blob:// URL
func blobKey(u *url.URL) (string, error) {
	key := strings.TrimPrefix(path.Join(u.Host, u.Path), "/")
	for _, segment := range strings.Split(key, "/") {
		if !validSegment(segment) {
			return "", fmt.Errorf("invalid blob key %q", key)
		}
	}
	return key, nil
}

func (b *Blobs) fetchBlob(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := blobKey(u)
	if err != nil {
		return nil, err
	}

	info, err := b.fs.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", key, err)
	}
	if info.Size() > b.maxSize {
		return nil, fmt.Errorf("blob %s is %d bytes, limit is %d", key, info.Size(), b.maxSize)
	}
	return afero.ReadFile(b.fs, key)
}

func (b *Blobs) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", u.Redacted(), resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	if int64(len(data)) > b.maxSize {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", u.Redacted(), b.maxSize)
	}
	return data, nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
