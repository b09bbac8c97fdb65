package web

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/photo-sentry/internal/scanner"
)

// JobStatus represents the status of an async scan job.
type JobStatus string

// JobStatus constants define the lifecycle states of a scan job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ScanJob tracks one in-process scan run.
type ScanJob struct {
	ID      string
	AssetID string

	mu          sync.RWMutex
	status      JobStatus
	errMsg      string
	startedAt   time.Time
	completedAt *time.Time
	result      *scanner.ScanResult
	cancel      context.CancelFunc
}

func (j *ScanJob) setRunning(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	alreadyCancelled := j.status == JobStatusCancelled
	if !alreadyCancelled {
		j.status = JobStatusRunning
	}
	j.mu.Unlock()

	if alreadyCancelled {
		cancel()
	}
}

// complete records the scan outcome. A cancelled job keeps its status; the
// partial result is still attached for inspection.
func (j *ScanJob) complete(result *scanner.ScanResult) {
	now := time.Now()
	j.mu.Lock()
	if j.status != JobStatusCancelled {
		j.status = JobStatusCompleted
	}
	j.result = result
	j.completedAt = &now
	j.mu.Unlock()
}

func (j *ScanJob) fail(message string) {
	now := time.Now()
	j.mu.Lock()
	if j.status != JobStatusCancelled {
		j.status = JobStatusFailed
		j.errMsg = message
	}
	j.completedAt = &now
	j.mu.Unlock()
}

// Cancel stops the scan's context. The pipeline winds down on its own; the
// status flips immediately so polls see the intent.
func (j *ScanJob) Cancel() {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.status = JobStatusCancelled
	j.mu.Unlock()
}

// Status returns the current lifecycle state.
func (j *ScanJob) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Snapshot returns a race-free copy of the job for JSON responses.
func (j *ScanJob) Snapshot() scanJobPayload {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return scanJobPayload{
		ID:          j.ID,
		AssetID:     j.AssetID,
		Status:      j.status,
		Error:       j.errMsg,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
		Result:      newScanResultPayload(j.result),
	}
}

// JobManager tracks in-process scan jobs by id.
type JobManager struct {
	jobs map[string]*ScanJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*ScanJob),
	}
}

// CreateJob registers a new pending scan job.
func (m *JobManager) CreateJob(id, assetID string) *ScanJob {
	job := &ScanJob{
		ID:        id,
		AssetID:   assetID,
		status:    JobStatusPending,
		startedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*ScanJob {
	m.mu.RLock()
	jobs := make([]*ScanJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].startedAt.After(jobs[k].startedAt)
	})
	return jobs
}
