package shared

import (
	"testing"
	"time"
)

func TestStateLabel(t *testing.T) {
	tests := map[JobStatus]string{
		JobStatusPending:    StatePending,
		JobStatusProcessing: StateRunning,
		JobStatusCompleted:  StateSucceeded,
		JobStatusFailed:     StateFailed,
		JobStatus("paused"): StateUnknown,
		JobStatus(""):       StateUnknown,
	}
	for status, want := range tests {
		if got := StateLabel(status); got != want {
			t.Errorf("StateLabel(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestJobCloneIsDeep(t *testing.T) {
	started := time.Now()
	j := &Job{
		ID:        "j1",
		Request:   Request{PlaylistItems: []string{"a", "b"}},
		StartedAt: &started,
		Progress: Progress{
			Files:          []Artifact{{Name: "a.mp3", JobID: "j1"}},
			NewlyCompleted: &Artifact{Name: "a.mp3", JobID: "j1"},
		},
	}
	j.Progress.Log.Append(started, "hello")

	c := j.Clone()
	c.Request.PlaylistItems[0] = "changed"
	c.Progress.Files[0].Name = "changed"
	c.Progress.NewlyCompleted.Name = "changed"
	c.Progress.Log.Append(started, "more")
	*c.StartedAt = started.Add(time.Hour)

	if j.Request.PlaylistItems[0] != "a" {
		t.Error("playlist items shared with clone")
	}
	if j.Progress.Files[0].Name != "a.mp3" || j.Progress.NewlyCompleted.Name != "a.mp3" {
		t.Error("artifacts shared with clone")
	}
	if j.Progress.Log.Len() != 1 {
		t.Error("log shared with clone")
	}
	if !j.StartedAt.Equal(started) {
		t.Error("timestamps shared with clone")
	}
}

func TestManifestKeepsCompletionOrder(t *testing.T) {
	var m Manifest
	first := m.Add(Artifact{Name: "1.mp3", JobID: "j"})
	m.Add(Artifact{Name: "2.mp3", JobID: "j"})
	first.Name = "mutated"

	items := m.Items()
	if len(items) != 2 || items[0].Name != "1.mp3" || items[1].Name != "2.mp3" {
		t.Fatalf("unexpected manifest %+v", items)
	}
	items[0].Name = "mutated"
	if m.Items()[0].Name != "1.mp3" {
		t.Error("Items returned the backing slice")
	}
}
