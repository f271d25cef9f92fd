package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/jobs"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []*jobs.ExtractionJob
	err  error
}

func (p *recordingPublisher) PublishExtraction(ctx context.Context, job *jobs.ExtractionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	job.JobID = "job"
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func TestSchedule_PublishesEveryInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	pub := &recordingPublisher{}

	done := make(chan error, 1)
	go func() {
		done <- Schedule(ctx, clock, time.Hour, pub, Request{Objects: []string{"expense"}, Incremental: true})
	}()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"expense"}, pub.jobs[1].Objects)
	assert.True(t, pub.jobs[1].Incremental)
}

func TestSchedule_PublishErrorIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{err: errors.New("full")}

	done := make(chan error, 1)
	go func() { done <- Schedule(ctx, clockwork.NewFakeClock(), time.Minute, pub, Request{}) }()

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, pub.count())
}

func TestSchedule_RejectsZeroInterval(t *testing.T) {
	require.Error(t, Schedule(context.Background(), clockwork.NewFakeClock(), 0, &recordingPublisher{}, Request{}))
}
