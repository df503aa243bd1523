package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reelsaver/api/internal/config"
)

var (
	ErrInvalidKey   = errors.New("invalid object key")
	ErrInvalidToken = errors.New("invalid or expired download token")
)

// LocalStorage implements StorageClient on the local filesystem. Signed URLs
// point at the API's /files route and carry an HS256 token bound to the key.
type LocalStorage struct {
	baseDir   string
	publicURL string
	secret    []byte
	now       func() time.Time
}

type downloadClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// NewLocalStorage creates the base directory if needed
func NewLocalStorage(cfg *config.StorageConfig, publicURL string) (*LocalStorage, error) {
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("storage signing secret is required for local storage")
	}
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStorage{
		baseDir:   cfg.LocalDir,
		publicURL: strings.TrimRight(publicURL, "/"),
		secret:    []byte(cfg.SigningSecret),
		now:       time.Now,
	}, nil
}

// SetClock overrides the time source used for signing and verification
func (s *LocalStorage) SetClock(now func() time.Time) {
	s.now = now
}

// Upload writes body to baseDir/key via a temp file and rename
func (s *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: body}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}

	return nil
}

// Delete removes the object; a missing object is not an error
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetSignedURL returns /files/<key>?token=... valid for expiry
func (s *LocalStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	if expiry <= 0 {
		return "", fmt.Errorf("signed URL expiry must be positive")
	}

	now := s.now()
	claims := downloadClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}

	return s.fileURL(key) + "?token=" + url.QueryEscape(token), nil
}

// fileURL is the unsigned /files URL for key
func (s *LocalStorage) fileURL(key string) string {
	return fmt.Sprintf("%s/files/%s", s.publicURL, key)
}

// VerifyToken checks that token was issued for key and has not expired
func (s *LocalStorage) VerifyToken(key, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &downloadClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*downloadClaims)
	if !ok || !parsed.Valid || claims.Key != key {
		return ErrInvalidToken
	}
	return nil
}

// Open returns the stored object for reading
func (s *LocalStorage) Open(key string) (*os.File, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// path maps key inside baseDir, rejecting keys that would escape it
func (s *LocalStorage) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
