package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/reelsaver/api/internal/client"
	"github.com/reelsaver/api/internal/model"
)

type fakeExtractor struct {
	result *client.ExtractResult
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, sourceURL string, platform model.Platform) (*client.ExtractResult, error) {
	return f.result, f.err
}

var sampleVariants = []model.MediaVariant{
	{URL: "v360", Height: 360, Bitrate: 800},
	{URL: "v1080", Height: 1080, Bitrate: 4000},
	{URL: "v720", Height: 720, Bitrate: 2500},
	{URL: "a128", AudioOnly: true, Bitrate: 128},
	{URL: "a320", AudioOnly: true, Bitrate: 320},
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name     string
		variants []model.MediaVariant
		quality  model.Quality
		format   model.Format
		want     string
	}{
		{"best video", sampleVariants, model.QualityBest, model.FormatMP4, "v1080"},
		{"no preference", sampleVariants, "", model.FormatMP4, "v1080"},
		{"ceiling 720", sampleVariants, model.Quality720p, model.FormatMP4, "v720"},
		{"ceiling between", sampleVariants, model.Quality480p, model.FormatMP4, "v360"},
		{"ceiling below all falls back to best", []model.MediaVariant{{URL: "v720", Height: 720}}, model.Quality360p, model.FormatMP4, "v720"},
		{"best audio", sampleVariants, model.QualityBest, model.FormatMP3, "a320"},
		{"audio ceiling", sampleVariants, model.Quality192k, model.FormatM4A, "a128"},
		{"video ceiling ignored for audio", sampleVariants, model.Quality720p, model.FormatMP3, "a320"},
		{"skips empty urls", []model.MediaVariant{{Height: 2160}, {URL: "v480", Height: 480}}, model.QualityBest, model.FormatMP4, "v480"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectVariant(tt.variants, tt.quality, tt.format)
			if !ok {
				t.Fatal("expected a variant")
			}
			if got.URL != tt.want {
				t.Errorf("selected %s, want %s", got.URL, tt.want)
			}
		})
	}
}

func TestSelectVariant_None(t *testing.T) {
	if _, ok := SelectVariant(nil, model.QualityBest, model.FormatMP4); ok {
		t.Error("expected no variant")
	}
	// Video-only sources never satisfy an audio request.
	if v, ok := SelectVariant(sampleVariants[:3], model.QualityBest, model.FormatMP3); ok {
		t.Errorf("expected no audio variant, got %s", v.URL)
	}
}

func TestResolve_AudioFromVideoOnlySource(t *testing.T) {
	r := New(&fakeExtractor{result: &client.ExtractResult{Title: "Clip", Variants: sampleVariants[:3]}})

	media, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=1", Options{Format: model.FormatMP3})
	if !errors.Is(err, ErrNoMedia) {
		t.Fatalf("expected ErrNoMedia, got %v (media %+v)", err, media)
	}
	if got := Failed(err).ErrorReason; got != "no media found" {
		t.Errorf("reason = %q", got)
	}
}

func TestResolve_RejectsNonHTTPSource(t *testing.T) {
	extractor := &countingExtractor{}
	r := New(extractor)

	for _, raw := range []string{"not a url", "ftp://example.com/v.mp4", "https://", "/watch?v=1", ""} {
		_, err := r.Resolve(context.Background(), raw, Options{})
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Resolve(%q): expected ErrInvalidURL, got %v", raw, err)
			continue
		}
		if got := Failed(err).ErrorReason; got != "invalid url" {
			t.Errorf("Resolve(%q): reason = %q", raw, got)
		}
	}
	if extractor.calls != 0 {
		t.Errorf("extractor called %d times for invalid sources", extractor.calls)
	}
}

type countingExtractor struct {
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, sourceURL string, platform model.Platform) (*client.ExtractResult, error) {
	c.calls++
	return &client.ExtractResult{Title: "x", Variants: sampleVariants}, nil
}

func TestFilename(t *testing.T) {
	tests := []struct {
		title  string
		format model.Format
		want   string
	}{
		{"My Cat  Video!!", model.FormatMP4, "My_Cat_Video.mp4"},
		{"  über/cool: clip  ", model.FormatWebM, "bercool_clip.webm"},
		{"song - live", model.FormatMP3, "song_-_live.mp3"},
		{"", model.FormatMP4, "video.mp4"},
		{"???", model.FormatM4A, "audio.m4a"},
		{"untitled", "", "untitled.mp4"},
	}

	for _, tt := range tests {
		if got := Filename(tt.title, tt.format); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.title, tt.format, got, tt.want)
		}
	}
}

func TestFilename_Bounded(t *testing.T) {
	got := Filename(strings.Repeat("a", 300), model.FormatMP4)
	if len(got) != maxFilenameLength+len(".mp4") {
		t.Errorf("filename length %d", len(got))
	}
}

func TestResolve(t *testing.T) {
	r := New(&fakeExtractor{result: &client.ExtractResult{Title: "Dance", Variants: sampleVariants}})

	media, err := r.Resolve(context.Background(), "https://tiktok.com/v/1", Options{Quality: model.Quality720p, Format: model.FormatMP4})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !media.Success || media.DirectURL != "v720" || media.Filename != "Dance.mp4" {
		t.Errorf("unexpected media: %+v", media)
	}
}

func TestResolve_ErrorKinds(t *testing.T) {
	noMedia := New(&fakeExtractor{err: fmt.Errorf("%w: x", client.ErrNoMedia)})
	if _, err := noMedia.Resolve(context.Background(), "https://x.com/i/1", Options{}); !errors.Is(err, ErrNoMedia) || errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrNoMedia only, got %v", err)
	}
	if got := Failed(ErrNoMedia).ErrorReason; got != "no media found" {
		t.Errorf("reason = %q", got)
	}

	down := New(&fakeExtractor{err: errors.New("connection refused")})
	_, err := down.Resolve(context.Background(), "https://x.com/i/1", Options{})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
	if media := Failed(err); media.Success || media.ErrorReason != "extractor unavailable" {
		t.Errorf("unexpected failure shape: %+v", media)
	}
}
