package models

const (
	CodecNone = "none"

	KindVideoAudio = "video+audio"
	KindVideoOnly  = "video-only"
	KindAudioOnly  = "audio-only"
)

// EncodingVariant is one retrievable representation of a media resource.
type EncodingVariant struct {
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
	Resolution string   `json:"resolution"`
	VCodec     string   `json:"vcodec"`
	ACodec     string   `json:"acodec"`
	FileSize   *int64   `json:"filesize"`
	FPS        *float64 `json:"fps"`
	Type       string   `json:"type"`
}

// VariantKind derives the kind tag from codec presence.
func VariantKind(vcodec, acodec string) string {
	hasVideo := vcodec != "" && vcodec != CodecNone
	hasAudio := acodec != "" && acodec != CodecNone
	switch {
	case hasVideo && hasAudio:
		return KindVideoAudio
	case hasVideo:
		return KindVideoOnly
	default:
		return KindAudioOnly
	}
}

// MediaInfo is the result of probing one media resource.
type MediaInfo struct {
	VideoID string            `json:"video_id"`
	Title   string            `json:"title"`
	Formats []EncodingVariant `json:"formats"`
}
