package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Job tracks the state of a single package import.
type Job struct {
	mu sync.Mutex

	ID      string `json:"job_id"`
	OwnerID string `json:"owner_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`

	PackageID  string   `json:"package_id,omitempty"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings"`
	Error      string   `json:"error,omitempty"`
	Retryable  bool     `json:"retryable"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	cancel   context.CancelFunc
}

// NewJob creates a queued job for one uploaded file.
func NewJob(ownerID, filename string, data []byte, maxAttempts int) *Job {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		MaxAttempts: maxAttempts,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs older than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// begin marks the job running under ctx and returns the context that
// Cancel interrupts. ok is false when the job was cancelled while queued.
func (j *Job) begin(ctx context.Context) (context.Context, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return nil, false
	}
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.Status = StatusRunning
	j.Phase = "extracting"
	j.UpdatedAt = time.Now()
	return jobCtx, true
}

// startAttempt counts one import attempt. ok is false once the job has
// been cancelled.
func (j *Job) startAttempt() (n int, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return j.Attempts, false
	}
	j.Attempts++
	j.Status = StatusRunning
	j.Phase = "importing"
	j.RetryAfter = nil
	j.UpdatedAt = time.Now()
	return j.Attempts, true
}

// scheduleRetry records a retryable failure and when the next attempt runs.
func (j *Job) scheduleRetry(err error, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return
	}
	j.Status = StatusQueued
	j.Phase = "retry_wait"
	j.Error = err.Error()
	j.Retryable = true
	j.RetryAfter = &at
	j.UpdatedAt = time.Now()
}

// SetResult records what extraction produced.
func (j *Job) SetResult(confidence float64, warnings []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Phase = "parsed"
	j.Confidence = confidence
	j.Warnings = append([]string(nil), warnings...)
	j.UpdatedAt = time.Now()
}

// Succeed marks the job done. A committed import is authoritative, so it
// replaces a cancel that arrived while the transaction was committing.
func (j *Job) Succeed(packageID string, warnings []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusSucceeded
	j.Phase = "done"
	j.PackageID = packageID
	j.Warnings = append([]string(nil), warnings...)
	j.Error = ""
	j.Retryable = false
	j.RetryAfter = nil
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Fail marks the job failed during phase.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return
	}
	j.Status = StatusFailed
	j.Phase = phase
	j.Error = err.Error()
	j.Retryable = IsRetryable(err)
	j.RetryAfter = nil
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Cancel stops a queued or running job. It returns false when the job has
// already finished.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	j.Status = StatusCancelled
	j.Phase = "cancelled"
	j.RetryAfter = nil
	j.fileData = nil
	j.UpdatedAt = time.Now()
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

// finish releases the job context.
func (j *Job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
}

// Cancelled reports whether Cancel has been called.
func (j *Job) Cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status == StatusCancelled
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string     `json:"job_id"`
	OwnerID     string     `json:"owner_id"`
	Status      JobStatus  `json:"status"`
	Phase       string     `json:"phase"`
	Filename    string     `json:"filename"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`
	PackageID   string     `json:"package_id,omitempty"`
	Confidence  float64    `json:"confidence"`
	Warnings    []string   `json:"warnings"`
	Error       string     `json:"error,omitempty"`
	Retryable   bool       `json:"retryable"`
	ContentHash string     `json:"content_hash,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	warnings := append([]string{}, j.Warnings...)
	var retryAfter *time.Time
	if j.RetryAfter != nil {
		t := *j.RetryAfter
		retryAfter = &t
	}
	return JobSnapshot{
		ID:          j.ID,
		OwnerID:     j.OwnerID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		RetryAfter:  retryAfter,
		PackageID:   j.PackageID,
		Confidence:  j.Confidence,
		Warnings:    warnings,
		Error:       j.Error,
		Retryable:   j.Retryable,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
