package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"media-download-api/shared"
)

// Terminal status texts.
const (
	statusAllComplete = "all downloads complete"
	statusNoFiles     = "no files downloaded"
)

// Driver owns a job for its whole run and is the only writer of its state.
type Driver struct {
	db        shared.DatabaseClient
	processor *ItemProcessor
	tempDir   string
}

func NewDriver(db shared.DatabaseClient, processor *ItemProcessor, tempDir string) *Driver {
	return &Driver{db: db, processor: processor, tempDir: tempDir}
}

// Run processes every item of job in order and returns the terminal snapshot.
// Item failures are absorbed; an error means the job itself failed.
func (d *Driver) Run(ctx context.Context, job *shared.Job) (final *shared.Progress, err error) {
	defer func() {
		if r := recover(); r != nil {
			final = nil
			err = fmt.Errorf("job %s aborted: %v", job.ID, r)
		}
	}()

	sources, err := ExpandSources(job.Request)
	if err != nil {
		return nil, err
	}
	dir := shared.JobDir(d.tempDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create job directory %s: %v", shared.ErrJobExpansion, dir, err)
	}

	run := &jobRun{
		jobID:   job.ID,
		dir:     dir,
		request: job.Request,
		sources: sources,
		state:   NewJobState(d.existingLog(job)),
	}
	run.persist = func(p shared.Progress) { d.persist(job.ID, p) }

	total := len(sources)
	startMsg := fmt.Sprintf("job started (ID: %s), temp dir: %s", job.ID, dir)
	log.Printf("INFO: Job %s - %s, %d item(s)", job.ID, startMsg, total)
	run.apply(Update{Status: "initializing...", Line: startMsg})

	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("job %s interrupted before item %d/%d: %w", job.ID, i+1, total, err)
		}
		run.setCurrent(i)
		prefix := itemPrefix(i, total)
		base := shared.ItemBoundary(i, total)
		log.Printf("INFO: Job %s - %sstarting: %s", job.ID, prefix, source)
		run.apply(Update{Status: "starting: " + path.Base(source), Percent: base, Line: "starting: " + source, Prefix: prefix})

		item := &SubItem{Index: i, Source: source}
		if err := d.processItem(ctx, run, item); err != nil {
			// the failed item still consumes its share of the progress
			run.apply(Update{Status: "skipped", Percent: shared.ItemBoundary(i+1, total), Prefix: prefix})
		}
	}

	status := terminalStatus(run.state.Completed(), total)
	log.Printf("INFO: Job %s - finished: %s", job.ID, status)
	p := run.state.Finalize(status)
	return &p, nil
}

// processItem runs the processor and turns a panic inside one item into an item error.
func (d *Driver) processItem(ctx context.Context, run *jobRun, item *SubItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			prefix := itemPrefix(item.Index, run.total())
			msg := fmt.Sprintf("general error: %v", r)
			log.Printf("ERROR: Job %s - %sgeneral error for %s: %v", run.jobID, prefix, item.Source, r)
			run.apply(Update{Status: "general error", Percent: shared.ItemBoundary(item.Index, run.total()), Line: msg, Prefix: prefix})
			err = fmt.Errorf("%s: %v", item.Source, r)
		}
	}()
	return d.processor.Process(ctx, run, item)
}

// existingLog recovers the log already stored for the job so this run appends to it.
func (d *Driver) existingLog(job *shared.Job) shared.ProgressLog {
	stored, err := d.db.GetJob(job.ID)
	if err != nil {
		return job.Progress.Log
	}
	return stored.Progress.Log
}

// persist replaces the stored snapshot. Store errors are logged; the job keeps going.
func (d *Driver) persist(jobID string, p shared.Progress) {
	_, err := d.db.UpdateJob(jobID, func(j *shared.Job) error {
		if j.Status.IsTerminal() {
			return fmt.Errorf("job %s is already %s", jobID, j.Status)
		}
		if j.Status != shared.JobStatusProcessing {
			now := time.Now()
			j.Status = shared.JobStatusProcessing
			j.StartedAt = &now
		}
		j.Progress = p
		return nil
	})
	if err != nil {
		log.Printf("WARN: Job %s - failed to store progress: %v", jobID, err)
	}
}

func terminalStatus(completed, total int) string {
	switch {
	case total > 0 && completed == 0:
		return statusNoFiles
	case completed < total:
		return fmt.Sprintf("partial download (%d/%d)", completed, total)
	default:
		return statusAllComplete
	}
}
