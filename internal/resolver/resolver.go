// Package resolver turns a social media page URL into one direct media URL
// and a safe archive filename.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/reelsaver/api/internal/client"
	"github.com/reelsaver/api/internal/model"
)

var (
	// ErrNoMedia means the upstream found nothing to download. Not retryable.
	ErrNoMedia = client.ErrNoMedia
	// ErrUpstream wraps network and HTTP failures talking to the extractor.
	ErrUpstream = errors.New("extractor unavailable")
	// ErrInvalidURL means the source is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid source url")
)

const maxFilenameLength = 80

// Options carries the caller's preferences for one resolution.
type Options struct {
	Platform model.Platform
	Quality  model.Quality
	Format   model.Format
}

type Resolver struct {
	extractor client.MediaExtractor
}

func New(extractor client.MediaExtractor) *Resolver {
	return &Resolver{extractor: extractor}
}

// Resolve returns the selected variant. Errors match ErrInvalidURL,
// ErrNoMedia or ErrUpstream.
func (r *Resolver) Resolve(ctx context.Context, sourceURL string, opts Options) (*model.ResolvedMedia, error) {
	if !isHTTPURL(sourceURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, sourceURL)
	}

	result, err := r.extractor.Extract(ctx, sourceURL, opts.Platform)
	if err != nil {
		if errors.Is(err, ErrNoMedia) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	variant, ok := SelectVariant(result.Variants, opts.Quality, opts.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMedia, sourceURL)
	}

	return &model.ResolvedMedia{
		Success:   true,
		DirectURL: variant.URL,
		Filename:  Filename(result.Title, opts.Format),
		Title:     result.Title,
	}, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Failed builds the unsuccessful ResolvedMedia shape for err.
func Failed(err error) *model.ResolvedMedia {
	reason := "resolve failed"
	switch {
	case errors.Is(err, ErrInvalidURL):
		reason = "invalid url"
	case errors.Is(err, ErrNoMedia):
		reason = "no media found"
	case errors.Is(err, ErrUpstream):
		reason = "extractor unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timed out"
	}
	return &model.ResolvedMedia{Success: false, ErrorReason: reason}
}

// SelectVariant keeps variants matching the format kind, orders them best
// first and returns the first one at or below the quality ceiling. Without a
// usable ceiling, or when every variant exceeds it, the best one wins. ok is
// false when no variant of the requested kind exists.
func SelectVariant(variants []model.MediaVariant, quality model.Quality, format model.Format) (model.MediaVariant, bool) {
	candidates := make([]model.MediaVariant, 0, len(variants))
	for _, v := range variants {
		if v.URL != "" && v.AudioOnly == format.IsAudio() {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return model.MediaVariant{}, false
	}

	audio := format.IsAudio()
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if audio {
			return a.Bitrate > b.Bitrate
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.Bitrate > b.Bitrate
	})

	limit, ok := quality.Ceiling()
	if !ok || quality.IsAudio() != audio {
		return candidates[0], true
	}
	for _, v := range candidates {
		measure := v.Height
		if audio {
			measure = v.Bitrate
		}
		if measure > 0 && measure <= limit {
			return v, true
		}
	}
	return candidates[0], true
}

// Filename sanitizes title into an archive entry name with the format's
// extension.
func Filename(title string, format model.Format) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte('_')
			}
			lastSpace = true
		}
	}

	name := strings.Trim(b.String(), "_")
	if len(name) > maxFilenameLength {
		name = strings.TrimRight(name[:maxFilenameLength], "_")
	}

	if format == "" {
		format = model.FormatMP4
	}
	if name == "" {
		name = "video"
		if format.IsAudio() {
			name = "audio"
		}
	}
	return name + "." + string(format)
}
