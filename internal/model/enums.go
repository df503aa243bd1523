package model

import (
	"strconv"
	"strings"
)

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Quality preferences. Video ceilings are heights, audio ceilings are kbps.
type Quality string

const (
	QualityBest  Quality = "best"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"
	Quality320k  Quality = "320k"
	Quality192k  Quality = "192k"
	Quality128k  Quality = "128k"
)

var ValidQualities = []Quality{
	QualityBest, Quality1080p, Quality720p, Quality480p, Quality360p,
	Quality320k, Quality192k, Quality128k,
}

// Ceiling returns the numeric limit encoded in the quality preference.
// ok is false for "best" or an empty preference.
func (q Quality) Ceiling() (limit int, ok bool) {
	s := strings.ToLower(string(q))
	switch {
	case strings.HasSuffix(s, "p"):
		s = strings.TrimSuffix(s, "p")
	case strings.HasSuffix(s, "k"):
		s = strings.TrimSuffix(s, "k")
	default:
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsAudio reports whether the ceiling is a bitrate rather than a height.
func (q Quality) IsAudio() bool {
	return strings.HasSuffix(strings.ToLower(string(q)), "k")
}

// Output formats
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
)

var ValidFormats = []Format{FormatMP4, FormatWebM, FormatMP3, FormatM4A}

// IsAudio reports whether the format asks for an audio-only variant.
func (f Format) IsAudio() bool {
	return f == FormatMP3 || f == FormatM4A
}

// Platform hints
type Platform string

const (
	PlatformAuto      Platform = "auto"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
)

var ValidPlatforms = []Platform{
	PlatformAuto, PlatformYouTube, PlatformTikTok, PlatformInstagram,
	PlatformFacebook, PlatformTwitter,
}
