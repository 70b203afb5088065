package shared

import (
	"encoding/json"
	"time"
)

// MaxLogEntries bounds the log kept on a job.
const MaxLogEntries = 50

// LogEntry is one timestamped status line.
type LogEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// String renders the entry as "[HH:MM:SS] text".
func (e LogEntry) String() string {
	return "[" + e.At.Format("15:04:05") + "] " + e.Text
}

// ProgressLog is an ordered log capped at MaxLogEntries. The oldest entries are
// evicted first and an entry repeating the previous entry's text is dropped.
type ProgressLog struct {
	entries []LogEntry
}

// Append adds text stamped with at. It reports whether the entry was kept.
func (l *ProgressLog) Append(at time.Time, text string) bool {
	if n := len(l.entries); n > 0 && l.entries[n-1].Text == text {
		return false
	}
	l.entries = append(l.entries, LogEntry{At: at, Text: text})
	if over := len(l.entries) - MaxLogEntries; over > 0 {
		l.entries = append([]LogEntry(nil), l.entries[over:]...)
	}
	return true
}

func (l *ProgressLog) Len() int { return len(l.entries) }

// Entries returns a copy of the entries, oldest first.
func (l *ProgressLog) Entries() []LogEntry {
	return append([]LogEntry(nil), l.entries...)
}

// Lines renders every entry.
func (l *ProgressLog) Lines() []string {
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.String())
	}
	return out
}

func (l ProgressLog) Clone() ProgressLog {
	return ProgressLog{entries: l.Entries()}
}

func (l ProgressLog) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

// UnmarshalJSON re-applies the capacity and duplicate rules to whatever was stored.
func (l *ProgressLog) UnmarshalJSON(b []byte) error {
	var entries []LogEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	l.entries = nil
	for _, e := range entries {
		l.Append(e.At, e.Text)
	}
	return nil
}
