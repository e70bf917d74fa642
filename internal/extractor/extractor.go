package extractor

import (
	"context"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

// Prober lists the encoding variants of a media resource without retrieving content.
type Prober interface {
	Probe(ctx context.Context, mediaID string) (*models.MediaInfo, error)
}

// Transferer retrieves the selected variants to local storage.
// Progress is reported through handler, one event at a time and in order.
// A transfer stopped through the request's cancel token returns OutcomeCanceled and a nil error.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest, handler ProgressHandler) (Outcome, error)
}

// Gateway is the full extractor capability.
type Gateway interface {
	Prober
	Transferer
}

// CancelToken is checked by adapters at every progress checkpoint.
type CancelToken interface {
	Canceled() bool
}

type TransferRequest struct {
	MediaID        string
	Format         string
	OutputDir      string
	OutputTemplate string
	MergeFormat    string
	Cancel         CancelToken
}

// ProgressHandler receives progress events from a running transfer.
type ProgressHandler func(ProgressEvent)

type EventKind int

const (
	EventDownloading EventKind = iota
	EventStreamFinished
	EventPostProcessing
	EventMerged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDownloading:
		return "downloading"
	case EventStreamFinished:
		return "stream_finished"
	case EventPostProcessing:
		return "post_processing"
	case EventMerged:
		return "merged"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type ProgressEvent struct {
	Kind EventKind
	// Stream is the zero-based index of the file being transferred (video first, then audio).
	Stream          int
	DownloadedBytes int64
	// TotalBytes is 0 while unknown.
	TotalBytes int64
	// Speed is bytes per second, 0 while unknown.
	Speed float64
	// ETA is 0 while unknown.
	ETA   time.Duration
	Tool  string
	Title string
	Err   error
}

type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCompleted
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

type composite struct {
	Prober
	Transferer
}

// Compose joins separate probe and transfer adapters into one Gateway.
func Compose(p Prober, t Transferer) Gateway {
	return composite{Prober: p, Transferer: t}
}
