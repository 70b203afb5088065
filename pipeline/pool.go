package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"media-download-api/shared"
)

// JobRunner runs one job to completion and returns its terminal snapshot.
type JobRunner interface {
	Run(ctx context.Context, job *shared.Job) (*shared.Progress, error)
}

// Pool consumes job messages and runs up to a fixed number of jobs at once.
type Pool struct {
	db      shared.DatabaseClient
	mq      shared.MessageQueueClient
	runner  JobRunner
	limiter chan struct{} // semaphore bounding concurrent jobs
}

func NewPool(db shared.DatabaseClient, mq shared.MessageQueueClient, runner JobRunner, maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Pool{db: db, mq: mq, runner: runner, limiter: make(chan struct{}, maxWorkers)}
}

// Active returns the number of jobs currently running.
func (p *Pool) Active() int { return len(p.limiter) }

func (p *Pool) Capacity() int { return cap(p.limiter) }

// Run consumes the queue until it closes or ctx is cancelled, then waits for
// running jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	messages, err := p.mq.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue: %w", err)
	}
	log.Println("INFO: Worker started consuming messages from queue...")

	defer p.drain()
	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: Queue consumer stopped.")
			return nil
		case msg, ok := <-messages:
			if !ok {
				log.Println("INFO: Queue closed, consumer stopped.")
				return nil
			}
			// blocks while every worker is busy
			select {
			case p.limiter <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			log.Printf("INFO: Worker acquired token for job %s. Current active jobs: %d/%d", msg.JobID, p.Active(), p.Capacity())
			go func(m shared.JobMessage) {
				defer func() {
					<-p.limiter
					log.Printf("INFO: Worker released token for job %s. Remaining active jobs: %d/%d", m.JobID, p.Active(), p.Capacity())
				}()
				p.ProcessJob(ctx, m)
			}(msg)
		}
	}
}

// drain waits for every running job by taking all semaphore slots.
func (p *Pool) drain() {
	for i := 0; i < cap(p.limiter); i++ {
		p.limiter <- struct{}{}
	}
	for i := 0; i < cap(p.limiter); i++ {
		<-p.limiter
	}
}

// ProcessJob runs the job named by msg and records its outcome. The message is
// acknowledged whatever happens; a job is never run twice.
func (p *Pool) ProcessJob(ctx context.Context, msg shared.JobMessage) {
	defer func() {
		if err := p.mq.Ack(msg); err != nil {
			log.Printf("WARN: Failed to ack job %s: %v", msg.JobID, err)
		}
	}()

	job, err := p.db.GetJob(msg.JobID)
	if err != nil {
		if errors.Is(err, shared.ErrJobNotFound) {
			log.Printf("WARN: Job %s no longer exists, dropping message", msg.JobID)
		} else {
			log.Printf("ERROR: Worker failed to retrieve job %s from DB: %v", msg.JobID, err)
		}
		return
	}
	if job.Status.IsTerminal() {
		log.Printf("WARN: Job %s is already %s, skipping", job.ID, job.Status)
		return
	}
	log.Printf("INFO: Worker processing job %s for URL: %s", job.ID, job.OriginalURL)

	final, err := p.runner.Run(ctx, job)
	if err != nil {
		p.handleJobFailure(job.ID, err)
		return
	}
	p.handleJobSuccess(job.ID, final)
}

func (p *Pool) handleJobSuccess(jobID string, final *shared.Progress) {
	_, err := p.db.UpdateJob(jobID, func(j *shared.Job) error {
		now := time.Now()
		j.Status = shared.JobStatusCompleted
		j.Progress = final.Clone()
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		log.Printf("ERROR: Worker failed to update job %s status to Completed in DB: %v", jobID, err)
		return
	}
	log.Printf("INFO: Job %s completed: %s (%d file(s))", jobID, final.Status, len(final.Files))
}

// handleJobFailure marks the job failed, keeping whatever progress it made.
func (p *Pool) handleJobFailure(jobID string, cause error) {
	_, err := p.db.UpdateJob(jobID, func(j *shared.Job) error {
		now := time.Now()
		msg := fmt.Sprintf("job failed: %v", cause)
		j.Status = shared.JobStatusFailed
		j.Error = cause.Error()
		j.Progress.Status = msg
		j.Progress.Percent = 100
		j.Progress.NewlyCompleted = nil
		j.Progress.Log.Append(now, msg)
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		log.Printf("ERROR: Worker failed to update job %s status to Failed in DB: %v", jobID, err)
	}
	log.Printf("ERROR: Job %s failed: %v", jobID, cause)
}
