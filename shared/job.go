// shared/job.go
package shared

import (
	"time"
)

// Request is the job creation payload accepted by the gateway.
type Request struct {
	URL                  string   `json:"url"`
	VideoFormatID        string   `json:"video_format_id,omitempty"`
	AudioFormatID        string   `json:"audio_format_id,omitempty"`
	AudioOnly            bool     `json:"audio_only"`
	PlaylistItems        []string `json:"playlist_items,omitempty"` // item ids or URLs, in processing order
	UseThumbnailAsCover  bool     `json:"use_thumbnail_as_cover"`
	TitleOverride        string   `json:"title_override,omitempty"`
	ThumbnailURLOverride string   `json:"thumbnail_url_override,omitempty"`
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// State labels exposed by the status query.
const (
	StatePending   = "Pending"
	StateRunning   = "Running"
	StateSucceeded = "Succeeded"
	StateFailed    = "Failed"
	StateUnknown   = "Unknown"
)

// StateLabel maps the store's native status vocabulary to the public state label.
func StateLabel(s JobStatus) string {
	switch s {
	case JobStatusPending:
		return StatePending
	case JobStatusProcessing:
		return StateRunning
	case JobStatusCompleted:
		return StateSucceeded
	case JobStatusFailed:
		return StateFailed
	default:
		return StateUnknown
	}
}

// Artifact describes one produced file.
type Artifact struct {
	Name  string `json:"name"`
	JobID string `json:"job_id"`
}

// Progress is a snapshot of a job's state as written by its driver.
type Progress struct {
	Status         string      `json:"status"`
	Percent        float64     `json:"progress"`
	Log            ProgressLog `json:"logs"`
	Files          []Artifact  `json:"all_completed_files"`
	NewlyCompleted *Artifact   `json:"newly_completed_file"`
	CurrentItem    int         `json:"current_item_index"`
}

// Job is the record kept in the job store
type Job struct {
	ID          string     `json:"job_id"`
	OriginalURL string     `json:"original_url"` // The URL submitted by the user
	Request     Request    `json:"request"`
	Status      JobStatus  `json:"status"`
	Progress    Progress   `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate it without touching the stored value.
func (j *Job) Clone() *Job {
	c := *j
	c.Request.PlaylistItems = append([]string(nil), j.Request.PlaylistItems...)
	c.Progress = j.Progress.Clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Clone returns a deep copy of the snapshot.
func (p Progress) Clone() Progress {
	c := p
	c.Log = p.Log.Clone()
	c.Files = append([]Artifact(nil), p.Files...)
	if p.NewlyCompleted != nil {
		a := *p.NewlyCompleted
		c.NewlyCompleted = &a
	}
	return c
}
