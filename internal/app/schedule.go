package app

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/jobs"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/jonboulle/clockwork"
)

// Schedule publishes req as an extraction job right away and then every
// interval until ctx is done. A failed publish is logged and retried on the
// next tick.
func Schedule(ctx context.Context, clock clockwork.Clock, interval time.Duration, pub jobs.Publisher, req Request) error {
	if interval <= 0 {
		return errors.New("Schedule: interval must be positive")
	}
	log := logger.FromContext(ctx)

	publish := func() {
		job := &jobs.ExtractionJob{
			Objects:     req.Objects,
			Incremental: req.Incremental,
			Dependents:  req.Dependents,
		}
		if err := pub.PublishExtraction(ctx, job); err != nil {
			if errors.Is(err, jobs.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Failed to schedule extraction run")
			return
		}
		log.Info().Str("job_id", job.JobID).Msg("Scheduled extraction run")
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	publish()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			publish()
		}
	}
}
