package pipeline

import (
	"sync"
	"time"

	"media-download-api/shared"
)

// Update is one write to a JobState.
type Update struct {
	Status  string
	Percent float64
	// Line is appended to the progress log when non-empty.
	Line   string
	Prefix string
	// Completed records a produced artifact. It is reported as the most recently
	// completed artifact by this write only; the next write clears it.
	Completed *shared.Artifact
}

// JobState is the mutable progress of one job. Exactly one driver writes it;
// any number of readers may take snapshots concurrently.
type JobState struct {
	mu       sync.RWMutex
	status   string
	percent  float64
	log      shared.ProgressLog
	manifest shared.Manifest
	newly    *shared.Artifact
	current  int
	terminal bool
	now      func() time.Time
}

// NewJobState starts from a previously stored log, if any.
func NewJobState(existing shared.ProgressLog) *JobState {
	return &JobState{log: existing.Clone(), now: time.Now}
}

// Apply records u and returns the resulting snapshot. The percentage never
// decreases and stays below 100 until Finalize.
func (s *JobState) Apply(u Update) shared.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return s.snapshotLocked()
	}
	s.status = u.Prefix + u.Status
	if p := clampPercent(u.Percent); p > s.percent {
		s.percent = p
	}
	if u.Line != "" {
		s.log.Append(s.now(), u.Prefix+u.Line)
	}
	s.newly = nil
	if u.Completed != nil {
		s.newly = s.manifest.Add(*u.Completed)
	}
	return s.snapshotLocked()
}

func (s *JobState) SetCurrentItem(i int) {
	s.mu.Lock()
	s.current = i
	s.mu.Unlock()
}

// Finalize produces the terminal snapshot: 100%, the full manifest and no
// transient completion signal.
func (s *JobState) Finalize(status string) shared.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	s.percent = 100
	s.newly = nil
	s.log.Append(s.now(), status)
	s.terminal = true
	return s.snapshotLocked()
}

func (s *JobState) Snapshot() shared.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Completed returns how many artifacts the job has produced so far.
func (s *JobState) Completed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Len()
}

func (s *JobState) snapshotLocked() shared.Progress {
	p := shared.Progress{
		Status:      s.status,
		Percent:     shared.RoundPercent(s.percent),
		Log:         s.log.Clone(),
		Files:       s.manifest.Items(),
		CurrentItem: s.current,
	}
	if s.newly != nil {
		a := *s.newly
		p.NewlyCompleted = &a
	}
	return p
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > shared.MaxRunningPercent {
		return shared.MaxRunningPercent
	}
	return p
}
