package extractor

import (
	"context"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

// Pooled runs every probe and transfer of the wrapped gateway on bounded worker pools.
type Pooled struct {
	gateway      Gateway
	probes       *WorkerPool
	transfers    *WorkerPool
	probeTimeout time.Duration
}

func NewPooled(gateway Gateway, probes, transfers *WorkerPool, probeTimeout time.Duration) *Pooled {
	return &Pooled{
		gateway:      gateway,
		probes:       probes,
		transfers:    transfers,
		probeTimeout: probeTimeout,
	}
}

func (p *Pooled) Probe(ctx context.Context, mediaID string) (*models.MediaInfo, error) {
	if p.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.probeTimeout)
		defer cancel()
	}

	var (
		info *models.MediaInfo
		err  error
	)
	if poolErr := p.probes.Do(ctx, func(jobCtx context.Context) {
		info, err = p.gateway.Probe(jobCtx, mediaID)
	}); poolErr != nil {
		return nil, poolErr
	}
	return info, err
}

// Transfer waits for a free transfer worker. A request canceled while waiting reports OutcomeCanceled.
func (p *Pooled) Transfer(ctx context.Context, req TransferRequest, handler ProgressHandler) (Outcome, error) {
	outcome := OutcomeFailed
	var err error
	poolErr := p.transfers.Do(ctx, func(jobCtx context.Context) {
		outcome, err = p.gateway.Transfer(jobCtx, req, handler)
	})
	if req.Cancel != nil && req.Cancel.Canceled() {
		return OutcomeCanceled, nil
	}
	if poolErr != nil {
		return OutcomeFailed, poolErr
	}
	return outcome, err
}
