package model

// MediaVariant is one downloadable rendition reported by the extractor.
type MediaVariant struct {
	URL       string `json:"url"`
	Ext       string `json:"ext,omitempty"`
	Height    int    `json:"height,omitempty"`
	Bitrate   int    `json:"bitrate,omitempty"` // kbps
	AudioOnly bool   `json:"audio_only,omitempty"`
}

// ResolvedMedia is the normalized outcome of resolving one source URL.
type ResolvedMedia struct {
	Success     bool   `json:"success"`
	DirectURL   string `json:"directUrl,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Title       string `json:"title,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}
