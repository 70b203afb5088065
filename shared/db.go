// shared/db.go
package shared

import (
	"fmt"
	"sync"
	"time"
)

// DatabaseClient is the job store the gateway reads and the worker writes.
type DatabaseClient interface {
	CreateJob(job *Job) error
	GetJob(jobID string) (*Job, error)
	// UpdateJob applies fn to the current record atomically and returns the stored result.
	// Returning an error from fn aborts the update.
	UpdateJob(jobID string, fn func(*Job) error) (*Job, error)
}

// InMemoryDB implements DatabaseClient using an in-memory map
type InMemoryDB struct {
	jobs      map[string]*Job
	expiresAt map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	jobsMutex sync.RWMutex
}

// NewInMemoryDB creates a new in-memory database instance. Terminal jobs expire
// after resultTTL; zero disables expiry.
func NewInMemoryDB(resultTTL time.Duration) *InMemoryDB {
	return &InMemoryDB{
		jobs:      make(map[string]*Job),
		expiresAt: make(map[string]time.Time),
		ttl:       resultTTL,
		now:       time.Now,
	}
}

// CreateJob adds a new job to the database
func (db *InMemoryDB) CreateJob(job *Job) error {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	// expired jobs are swept on every creation, polled or not
	db.evictExpiredLocked()
	if _, exists := db.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s: %w", job.ID, ErrJobExists)
	}
	db.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob retrieves a job by its ID
func (db *InMemoryDB) GetJob(jobID string) (*Job, error) {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	db.evictLocked(jobID)
	job, exists := db.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job with ID %s: %w", jobID, ErrJobNotFound)
	}
	// Return a copy to prevent external modification without UpdateJob
	return job.Clone(), nil
}

// UpdateJob updates an existing job in the database
func (db *InMemoryDB) UpdateJob(jobID string, fn func(*Job) error) (*Job, error) {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	db.evictLocked(jobID)
	current, exists := db.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job with ID %s not found for update: %w", jobID, ErrJobNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = jobID
	db.jobs[jobID] = next
	if next.Status.IsTerminal() && db.ttl > 0 {
		db.expiresAt[jobID] = db.now().Add(db.ttl)
	}
	return next.Clone(), nil
}

func (db *InMemoryDB) evictLocked(jobID string) {
	if exp, ok := db.expiresAt[jobID]; ok && !db.now().Before(exp) {
		delete(db.jobs, jobID)
		delete(db.expiresAt, jobID)
	}
}

// evictExpiredLocked drops every expired job, looked up or not.
func (db *InMemoryDB) evictExpiredLocked() {
	now := db.now()
	for id, exp := range db.expiresAt {
		if !now.Before(exp) {
			delete(db.jobs, id)
			delete(db.expiresAt, id)
		}
	}
}
