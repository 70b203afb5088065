package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"media-download-api/shared"
)

// percentPattern pulls the first "NN.N%" out of a progress string that may
// carry padding or terminal colour codes.
var percentPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)

// finishedItemPercent is reported for an item whose raw download is done but
// whose merge or conversion may still be running.
const finishedItemPercent = 99.9

// ItemProcessor drives a single item through metadata, acquisition and cover art.
type ItemProcessor struct {
	resolver        Resolver
	acquirer        Acquirer
	artwork         ArtworkEmbedder
	metadataTimeout time.Duration
}

// NewItemProcessor wires the external collaborators. artwork may be nil.
func NewItemProcessor(resolver Resolver, acquirer Acquirer, artwork ArtworkEmbedder, metadataTimeout time.Duration) *ItemProcessor {
	if metadataTimeout <= 0 {
		metadataTimeout = shared.DefaultMetadataTimeout
	}
	return &ItemProcessor{
		resolver:        resolver,
		acquirer:        acquirer,
		artwork:         artwork,
		metadataTimeout: metadataTimeout,
	}
}

// Process runs one item. Failures are written to the job log and returned;
// they never abort the job.
func (p *ItemProcessor) Process(ctx context.Context, run *jobRun, item *SubItem) error {
	total := run.total()
	prefix := itemPrefix(item.Index, total)
	base := shared.ItemBoundary(item.Index, total)

	// Step 1: metadata. A failure only costs us the real title.
	run.apply(Update{Status: "fetching info...", Percent: base, Prefix: prefix})
	meta, err := p.resolve(ctx, item.Source)
	if err != nil {
		msg := fmt.Sprintf("failed to fetch item info: %v", err)
		log.Printf("WARN: Job %s - %s%s (%s)", run.jobID, prefix, msg, item.Source)
		run.apply(Update{Status: "info unavailable", Percent: base, Line: msg, Prefix: prefix})
		item.Title = fallbackTitle(run.request.TitleOverride, item.Index, total)
	} else {
		item.Title = meta.Title
		if item.Title == "" {
			item.Title = fmt.Sprintf("item_%d", item.Index+1)
		}
		item.Thumbnail = meta.Thumbnail
	}
	if item.Thumbnail == "" {
		item.Thumbnail = run.request.ThumbnailURLOverride
	}
	name := shared.SanitizeFilename(item.Title)
	if name == "" {
		name = shared.PlaceholderTitle
	}

	// Step 2: acquisition.
	sel := SelectFormat(run.request)
	res, err := p.acquirer.Acquire(ctx, AcquireOptions{
		Source:         item.Source,
		Format:         sel.Format,
		AudioOnly:      run.request.AudioOnly,
		AudioCodec:     sel.AudioCodec,
		AudioQuality:   sel.AudioQuality,
		MergeFormat:    sel.MergeFormat,
		OutputTemplate: filepath.Join(run.dir, name+".%(ext)s"),
		Progress:       func(ev ProgressEvent) { p.report(run, ev) },
	})
	if err != nil {
		msg := fmt.Sprintf("download error: %v", err)
		log.Printf("ERROR: Job %s - %sdownload failed for %s: %v", run.jobID, prefix, item.Source, err)
		run.apply(Update{Status: "download error", Percent: base, Line: msg, Prefix: prefix})
		return fmt.Errorf("%w: %s: %v", shared.ErrAcquisition, item.Source, err)
	}

	// Step 3: find what was written.
	path, ok := locateFile(res)
	if !ok {
		log.Printf("ERROR: Job %s - %sfile path not found (URL: %s), result: %+v", run.jobID, prefix, item.Source, res)
		run.apply(Update{Status: "file path error", Percent: base, Line: "error: downloaded file path not found", Prefix: prefix})
		return fmt.Errorf("%w: %s", shared.ErrFileNotLocated, item.Source)
	}

	// Step 4: record the artifact.
	filename := filepath.Base(path)
	item.Percent = 100
	done := shared.ItemBoundary(item.Index+1, total)
	log.Printf("INFO: Job %s - %sitem complete: %s", run.jobID, prefix, filename)
	run.apply(Update{
		Status:    "complete: " + filename,
		Percent:   done,
		Line:      "item complete: " + filename,
		Prefix:    prefix,
		Completed: &shared.Artifact{Name: filename, JobID: run.jobID},
	})

	// Step 5: cover art, best effort.
	if run.request.AudioOnly && run.request.UseThumbnailAsCover && item.Thumbnail != "" && p.artwork != nil {
		run.apply(Update{Status: "adding cover art...", Percent: done, Line: "adding cover art: " + filename, Prefix: prefix})
		run.apply(Update{Status: "cover art done", Percent: done, Line: p.embedArtwork(ctx, run.jobID, path, item.Thumbnail), Prefix: prefix})
	}
	return nil
}

func (p *ItemProcessor) resolve(ctx context.Context, source string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, p.metadataTimeout)
	defer cancel()
	meta, err := p.resolver.Resolve(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMetadataResolution, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: empty result", shared.ErrMetadataResolution)
	}
	return meta, nil
}

// embedArtwork returns the log line describing the outcome.
func (p *ItemProcessor) embedArtwork(ctx context.Context, jobID, path, thumbnail string) string {
	filename := filepath.Base(path)
	err := p.artwork.Embed(ctx, path, thumbnail)
	switch {
	case err == nil:
		log.Printf("INFO: Job %s - cover art added: %s", jobID, filename)
		return "cover art added: " + filename
	case errors.Is(err, shared.ErrUnsupportedArtwork):
		log.Printf("INFO: Job %s - cover art unsupported: %v", jobID, err)
		return fmt.Sprintf("cover art not supported (%s)", filename)
	default:
		log.Printf("ERROR: Job %s - cover art failed for %s: %v", jobID, filename, err)
		return fmt.Sprintf("cover art failed (%s)", filename)
	}
}

// report turns an acquirer event into a job state write.
func (p *ItemProcessor) report(run *jobRun, ev ProgressEvent) {
	idx := run.indexOf(ev.Source)
	total := run.total()
	name := filepath.Base(ev.Filename)
	if ev.Filename == "" || ev.Filename == "-" {
		name = ""
	}

	var itemPercent float64
	var text string
	switch ev.Phase {
	case PhaseDownloading:
		if ev.TotalBytes > 0 && ev.DownloadedBytes > 0 {
			itemPercent = float64(ev.DownloadedBytes) / float64(ev.TotalBytes) * 100
			speed := ""
			if ev.Speed > 0 {
				speed = fmt.Sprintf(" (%.1f KB/s)", ev.Speed/1024)
			}
			text = fmt.Sprintf("%s %.1f%% downloading%s", name, itemPercent, speed)
		} else {
			itemPercent = parsePercent(ev.PercentText)
			text = fmt.Sprintf("%s %.1fMB downloading...", name, float64(ev.DownloadedBytes)/1024/1024)
		}
	case PhaseFinished:
		itemPercent = finishedItemPercent
		text = name + " post-processing (merge etc.)..."
	case PhaseError:
		// the item is over either way; its slot is consumed
		itemPercent = 100
		text = name + " error during processing"
	default:
		return
	}

	run.apply(Update{
		Status:  text,
		Percent: shared.OverallPercent(idx, total, itemPercent),
		Line:    text,
		Prefix:  itemPrefix(idx, total),
	})
}

// parsePercent reads a progress string such as " 42.5%"; anything unreadable is 0.
func parsePercent(s string) float64 {
	m := percentPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// locateFile returns the primary output path, falling back to the per-stream
// outputs, and only if the file exists.
func locateFile(res *AcquireResult) (string, bool) {
	if res == nil {
		return "", false
	}
	if res.FilePath != "" {
		return res.FilePath, fileExists(res.FilePath)
	}
	for _, c := range res.Downloads {
		if c != "" {
			return c, fileExists(c)
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
