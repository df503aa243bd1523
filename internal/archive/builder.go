// Package archive writes named byte streams into a ZIP archive as they
// arrive, so only the entry in flight is ever buffered.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	ErrFinalized = errors.New("archive already finalized")
	ErrBroken    = errors.New("archive output failed")
)

// SourceError reports that reading an entry's source failed. The archive
// itself is still usable, but the entry it names holds only the bytes read
// before the failure.
type SourceError struct {
	Name string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("reading source for %s: %v", e.Name, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Builder appends entries to a ZIP stream written to an io.Writer.
type Builder struct {
	mu        sync.Mutex
	zw        *zip.Writer
	out       *countingWriter
	method    uint16
	names     map[string]struct{}
	entries   []string
	finalized bool
	err       error
	now       func() time.Time
}

type Option func(*Builder)

// WithLevel sets the deflate level. flate.NoCompression stores entries
// uncompressed, which suits media that is already compressed.
func WithLevel(level int) Option {
	return func(b *Builder) {
		if level == flate.NoCompression {
			b.method = zip.Store
			return
		}
		b.zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, level)
		})
	}
}

func NewBuilder(w io.Writer, opts ...Option) *Builder {
	out := &countingWriter{w: w}
	b := &Builder{
		zw:     zip.NewWriter(out),
		out:    out,
		method: zip.Deflate,
		names:  make(map[string]struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append copies r into a new entry and returns the entry name actually
// used, which differs from name when name was already taken. Reading stops
// when ctx is done, even if r is blocked.
func (b *Builder) Append(ctx context.Context, name string, r io.Reader) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return "", ErrFinalized
	}
	if b.err != nil {
		return "", b.err
	}

	entry := b.uniqueName(name)
	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   b.method,
		Modified: b.now(),
	})
	if err != nil {
		b.err = fmt.Errorf("%w: %v", ErrBroken, err)
		return "", b.err
	}
	b.names[strings.ToLower(entry)] = struct{}{}
	b.entries = append(b.entries, entry)

	if _, err := io.Copy(w, &contextReader{ctx: ctx, r: r}); err != nil {
		if b.out.err != nil {
			b.err = fmt.Errorf("%w: %v", ErrBroken, b.out.err)
			return entry, b.err
		}
		return entry, &SourceError{Name: entry, Err: err}
	}
	return entry, nil
}

// Finalize writes the central directory and returns the total archive size.
// It may be called once; later calls return ErrFinalized.
func (b *Builder) Finalize() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return 0, ErrFinalized
	}
	b.finalized = true
	if b.err != nil {
		return 0, b.err
	}
	if err := b.zw.Close(); err != nil {
		b.err = fmt.Errorf("%w: %v", ErrBroken, err)
		return 0, b.err
	}
	return b.out.n, nil
}

// Entries returns the entry names in append order.
func (b *Builder) Entries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.entries...)
}

// Written returns the number of archive bytes emitted so far.
func (b *Builder) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.n
}

// uniqueName flattens name to a base name and suffixes _1, _2, ... until it
// no longer collides, ignoring case.
func (b *Builder) uniqueName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	if _, taken := b.names[strings.ToLower(name)]; !taken {
		return name
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, taken := b.names[strings.ToLower(candidate)]; !taken {
			return candidate
		}
	}
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil && c.err == nil {
		c.err = err
	}
	return n, err
}

// contextReader abandons a blocked Read once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
	buf []byte
}

type readResult struct {
	n   int
	err error
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if cap(c.buf) < len(p) {
		c.buf = make([]byte, len(p))
	}
	buf := c.buf[:len(p)]

	done := make(chan readResult, 1)
	go func() {
		n, err := c.r.Read(buf)
		done <- readResult{n, err}
	}()

	select {
	case res := <-done:
		copy(p, buf[:res.n])
		return res.n, res.err
	case <-c.ctx.Done():
		// The pending Read still owns buf.
		c.buf = nil
		return 0, c.ctx.Err()
	}
}
