package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, s *Store, id string, status jobs.JobStatus) *jobs.ExtractionJob {
	t.Helper()
	var job *jobs.ExtractionJob
	require.Eventually(t, func() bool {
		var err error
		job, err = s.GetJob(context.Background(), id)
		return err == nil && job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueue_ProcessesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueOptions{BufferSize: 4}, store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		assert.Equal(t, jobs.JobTypeExtraction, job.GetType())
		return nil
	}))

	job := &jobs.ExtractionJob{Objects: []string{"user"}}
	require.NoError(t, q.PublishExtraction(ctx, job))
	require.NotEmpty(t, job.JobID)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
}

func TestQueue_SingleWorkerRunsSequentially(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueOptions{Workers: 1}, store)
	defer q.Close()

	var mu sync.Mutex
	running, maxRunning := 0, 0
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}))

	var ids []string
	for i := 0; i < 3; i++ {
		job := &jobs.ExtractionJob{}
		require.NoError(t, q.PublishExtraction(ctx, job))
		ids = append(ids, job.JobID)
	}
	for _, id := range ids {
		waitForStatus(t, store, id, jobs.JobStatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRunning)
}

func TestQueue_FailureWithoutRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(QueueOptions{}, store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("authentication failed")
	}))

	job := &jobs.ExtractionJob{}
	require.NoError(t, q.PublishExtraction(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "authentication failed", failed.Error)
	assert.Equal(t, 0, failed.RetryCount)
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(QueueOptions{}, nil)
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishExtraction(context.Background(), &jobs.ExtractionJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), jobs.ErrQueueClosed)
}
