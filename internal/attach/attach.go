// Package attach stores attachment blobs on the local filesystem and
// mints HMAC-signed, time-limited download links for them.
package attach

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"worklane.io/internal/ids"
)

var (
	ErrNotFound    = errors.New("attach: blob not found")
	ErrBadLink     = errors.New("attach: invalid download link")
	ErrLinkExpired = errors.New("attach: download link expired")
)

// Store keeps blobs under a root directory, keyed by
// workspace/item/<ulid>_<filename>. Links are signed with an HMAC secret
// so the download handler can verify them statelessly.
type Store struct {
	root    string
	secret  []byte
	baseURL string
	now     func() time.Time
}

// Option configures Store behavior.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates the blob root if needed. baseURL is the public prefix the
// download handler is mounted on, e.g. "/v1/files".
func New(root, baseURL string, secret []byte, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("attach: root directory is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("attach: signing secret is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("attach: creating root: %w", err)
	}
	s := &Store{
		root:    root,
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Upload writes the blob and returns its storage key.
func (s *Store) Upload(ctx context.Context, data []byte, workspaceID, itemID, filename, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := path.Join(workspaceID, itemID, ids.New()+"_"+sanitize(filename))
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return key, nil
}

// Open returns the blob bytes for a key.
func (s *Store) Open(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete removes the blob; deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PresignedURL returns a relative URL carrying an expiry timestamp and
// an HMAC over key+expiry. Anyone holding the link can download until
// it expires.
func (s *Store) PresignedURL(key string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	exp := s.now().Add(ttl).Unix()
	sig := s.sign(key, exp)
	q := url.Values{}
	q.Set("key", key)
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	return s.baseURL + "/download?" + q.Encode(), nil
}

// Verify checks a presented key/exp/sig triple from a download request.
func (s *Store) Verify(key, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return ErrBadLink
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadLink
	}
	if s.now().Unix() > exp {
		return ErrLinkExpired
	}
	return nil
}

func (s *Store) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a storage key to an absolute path, rejecting traversal.
func (s *Store) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key || strings.Contains(key, "..") {
		return "", ErrBadLink
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func sanitize(filename string) string {
	filename = filepath.Base(filename)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, filename)
}
