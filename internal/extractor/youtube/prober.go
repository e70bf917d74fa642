package youtube

import (
	"context"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"github.com/kkdai/youtube/v2"
)

// VideoClient is the part of youtube.Client the prober needs.
type VideoClient interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
}

type Prober struct {
	client VideoClient
}

func NewProber(client VideoClient) *Prober {
	if client == nil {
		client = &youtube.Client{}
	}
	return &Prober{client: client}
}

var _ extractor.Prober = (*Prober)(nil)

func (p *Prober) Probe(ctx context.Context, mediaID string) (*models.MediaInfo, error) {
	video, err := p.client.GetVideoContext(ctx, mediaID)
	if err != nil {
		return nil, utils.WrapError(err, "failed to fetch video metadata", map[string]any{
			"video_id": mediaID,
		})
	}

	info := &models.MediaInfo{
		VideoID: mediaID,
		Title:   video.Title,
		Formats: make([]models.EncodingVariant, 0, len(video.Formats)),
	}
	for i := range video.Formats {
		info.Formats = append(info.Formats, toVariant(&video.Formats[i]))
	}

	logutils.Log.WithFields(map[string]any{
		"video_id": mediaID,
		"formats":  len(info.Formats),
	}).Debug("Probed video formats")
	return info, nil
}

func toVariant(f *youtube.Format) models.EncodingVariant {
	ext, vcodec, acodec := parseMimeType(f.MimeType)
	v := models.EncodingVariant{
		FormatID: strconv.Itoa(f.ItagNo),
		Ext:      ext,
		VCodec:   vcodec,
		ACodec:   acodec,
	}

	switch {
	case vcodec != models.CodecNone && f.Width > 0 && f.Height > 0:
		v.Resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	case vcodec == models.CodecNone:
		v.Resolution = "audio only"
	default:
		v.Resolution = f.QualityLabel
	}
	if vcodec != models.CodecNone && f.FPS > 0 {
		fps := float64(f.FPS)
		v.FPS = &fps
	}
	if f.ContentLength > 0 {
		size := f.ContentLength
		v.FileSize = &size
	}
	v.Type = models.VariantKind(v.VCodec, v.ACodec)
	return v
}

// parseMimeType splits `video/mp4; codecs="avc1.64001F, mp4a.40.2"` into extension and codecs.
func parseMimeType(mimeType string) (ext, vcodec, acodec string) {
	vcodec, acodec = models.CodecNone, models.CodecNone

	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", vcodec, acodec
	}
	kind, subtype, _ := strings.Cut(mediaType, "/")
	ext = subtype
	if kind == "audio" && subtype == "mp4" {
		ext = "m4a"
	}

	var codecs []string
	for _, c := range strings.Split(params["codecs"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}

	switch kind {
	case "video":
		if len(codecs) > 0 {
			vcodec = codecs[0]
		}
		if len(codecs) > 1 {
			acodec = codecs[1]
		}
	case "audio":
		if len(codecs) > 0 {
			acodec = codecs[0]
		}
	}
	return ext, vcodec, acodec
}
