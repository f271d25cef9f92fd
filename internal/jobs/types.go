package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
)

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeExtraction represents one extraction run over a set of objects.
	JobTypeExtraction JobType = "extraction"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the run finished. Individual objects
	// may still have failed; see Result.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the run could not start or was aborted.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ExtractionJob is a queued extraction run.
type ExtractionJob struct {
	// JobID is the unique identifier for this job; it doubles as the run id.
	JobID string `json:"job_id"`

	// Objects lists the objects to extract; empty means the configured set.
	Objects []string `json:"objects,omitempty"`

	Incremental bool `json:"incremental"`
	Dependents  bool `json:"dependents"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Result is the per-object summary once the run has finished.
	Result *pipeline.RunResult `json:"result,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ExtractionJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ExtractionJob) GetType() JobType {
	return JobTypeExtraction
}

// GetStatus implements the Job interface.
func (j *ExtractionJob) GetStatus() JobStatus {
	return j.Status
}

// Clone returns a copy that shares no slices with j.
func (j *ExtractionJob) Clone() *ExtractionJob {
	cp := *j
	cp.Objects = append([]string(nil), j.Objects...)
	return &cp
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishExtraction enqueues an extraction run.
	PublishExtraction(ctx context.Context, job *ExtractionJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractionJob) error

	// GetJob retrieves a job by ID, or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*ExtractionJob, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractionJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Object keeps jobs that include this object.
	Object string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
