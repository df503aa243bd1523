package client

import (
	"context"
	"io"
	"path"
	"regexp"
	"time"
)

// StorageClient keeps finished archives and hands out time-limited links
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

var uploadStamp = regexp.MustCompile(`_\d+(\.zip)$`)

// DownloadName is the filename offered to the browser for key:
// "u1/bulk_<jobId>_<unixMillis>.zip" downloads as "bulk_<jobId>.zip".
func DownloadName(key string) string {
	return uploadStamp.ReplaceAllString(path.Base(key), "$1")
}

func attachment(key string) string {
	return `attachment; filename="` + DownloadName(key) + `"`
}
