package client

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/reelsaver/api/internal/config"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(&config.StorageConfig{
		LocalDir:      t.TempDir(),
		SigningSecret: "local-secret",
	}, "http://api.test/")
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return s
}

func tokenFrom(t *testing.T, signed string) string {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	return u.Query().Get("token")
}

func TestLocalStorage_UploadAndOpen(t *testing.T) {
	s := newTestLocalStorage(t)
	key := "user-1/bulk_job-1_1700000000000.zip"

	if err := s.Upload(context.Background(), key, strings.NewReader("zip-bytes"), "application/zip"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	f, err := s.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "zip-bytes" {
		t.Errorf("got %q", data)
	}

	if err := s.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), key); err != nil {
		t.Errorf("second Delete should be a no-op: %v", err)
	}
}

func TestLocalStorage_SignedURL(t *testing.T) {
	s := newTestLocalStorage(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	key := "user-1/bulk_job-1.zip"
	signed, err := s.GetSignedURL(context.Background(), key, 24*time.Hour)
	if err != nil {
		t.Fatalf("GetSignedURL: %v", err)
	}
	if !strings.HasPrefix(signed, "http://api.test/files/"+key+"?token=") {
		t.Errorf("unexpected signed url %q", signed)
	}
	token := tokenFrom(t, signed)

	if err := s.VerifyToken(key, token); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}
	if err := s.VerifyToken("user-2/other.zip", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token accepted for another key: %v", err)
	}

	now = now.Add(24*time.Hour + time.Second)
	if err := s.VerifyToken(key, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token accepted: %v", err)
	}
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s := newTestLocalStorage(t)
	for _, key := range []string{"", "/etc/passwd", "../outside.zip", "a/../../b.zip", "a\\b.zip", "a//b.zip"} {
		if err := s.Upload(context.Background(), key, strings.NewReader("x"), "application/zip"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Upload(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestNewLocalStorage_RequiresSecret(t *testing.T) {
	_, err := NewLocalStorage(&config.StorageConfig{LocalDir: t.TempDir()}, "http://api.test")
	if err == nil {
		t.Fatal("expected error without signing secret")
	}
}
