package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"media-download-api/shared"
)

const watchURLTemplate = "https://www.youtube.com/watch?v=%s"

// Default format selectors used when the request does not name stream ids.
const (
	defaultAudioFormat = "bestaudio[ext=m4a]/bestaudio[ext=mp3]/bestaudio/best"
	defaultVideoFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best"
)

// SubItem is one unit of work within a job.
type SubItem struct {
	Index     int
	Source    string
	Title     string
	Thumbnail string
	Percent   float64
}

// ExpandSources turns a request into the ordered list of item URLs. Explicit
// items win over the top-level URL; bare ids become watch URLs.
func ExpandSources(req shared.Request) ([]string, error) {
	var sources []string
	for _, item := range req.PlaylistItems {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.HasPrefix(item, "http://") || strings.HasPrefix(item, "https://") {
			sources = append(sources, item)
		} else {
			sources = append(sources, fmt.Sprintf(watchURLTemplate, item))
		}
	}
	if len(sources) == 0 {
		if u := strings.TrimSpace(req.URL); u != "" {
			sources = append(sources, u)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: request has no source URL or items", shared.ErrJobExpansion)
	}
	return sources, nil
}

// FormatSelection is the acquisition preference derived from a request.
type FormatSelection struct {
	Format       string
	AudioCodec   string
	AudioQuality string
	MergeFormat  string
}

// SelectFormat derives the format selector and post-processing for a request.
func SelectFormat(req shared.Request) FormatSelection {
	if req.AudioOnly {
		sel := FormatSelection{Format: defaultAudioFormat, AudioCodec: "m4a", AudioQuality: "192"}
		if req.AudioFormatID != "" {
			sel.Format = req.AudioFormatID
			if strings.Contains(strings.ToLower(req.AudioFormatID), "mp3") {
				sel.AudioCodec = "mp3"
			}
		}
		return sel
	}
	format := defaultVideoFormat
	switch {
	case req.VideoFormatID != "" && req.AudioFormatID != "":
		format = req.VideoFormatID + "+" + req.AudioFormatID + "/" + defaultVideoFormat
	case req.VideoFormatID != "":
		format = req.VideoFormatID + "/" + defaultVideoFormat
	}
	return FormatSelection{Format: format, MergeFormat: "mp4"}
}

// fallbackTitle is used when metadata could not be resolved.
func fallbackTitle(override string, index, total int) string {
	override = shared.SanitizeFilename(override)
	switch {
	case override != "" && total > 1:
		return fmt.Sprintf("%s_item_%d", override, index+1)
	case override != "":
		return override
	default:
		return shared.PlaceholderTitle
	}
}

func itemPrefix(index, total int) string {
	return fmt.Sprintf("(%d/%d) ", index+1, total)
}

// jobRun is the per-job context handed to the item processor and the progress
// callback: the ordered sources, the item being processed and the state writer.
type jobRun struct {
	jobID   string
	dir     string
	request shared.Request
	sources []string
	state   *JobState
	persist func(shared.Progress)

	mu      sync.Mutex
	current int
}

func (r *jobRun) total() int { return len(r.sources) }

func (r *jobRun) setCurrent(i int) {
	r.mu.Lock()
	r.current = i
	r.mu.Unlock()
	r.state.SetCurrentItem(i)
}

// indexOf resolves the item a progress event belongs to: exact source match
// first, otherwise the last index the driver started.
func (r *jobRun) indexOf(source string) int {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if source == "" || r.sources[current] == source {
		return current
	}
	for i, s := range r.sources {
		if s == source {
			return i
		}
	}
	return current
}

// apply writes one update to the job state and persists the resulting snapshot.
// Writes are serialized so the stored snapshots follow the state's order.
func (r *jobRun) apply(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.state.Apply(u)
	if r.persist != nil {
		r.persist(snap)
	}
}
