package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// progressInterval throttles yt-dlp progress callbacks
const progressInterval = 500 * time.Millisecond

var streamSuffix = regexp.MustCompile(`\.f[0-9a-zA-Z_-]+$`)

// YtDlp resolves metadata and downloads items through the yt-dlp binary.
type YtDlp struct {
	// Executable overrides the yt-dlp binary; empty uses the one on PATH.
	Executable string
}

func NewYtDlp(executable string) *YtDlp {
	return &YtDlp{Executable: executable}
}

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().NoWarnings()
	if y.Executable != "" {
		cmd.SetExecutable(y.Executable)
	}
	return cmd
}

// Resolve implements Resolver.
func (y *YtDlp) Resolve(ctx context.Context, source string) (*Metadata, error) {
	res, err := y.command().NoPlaylist().SkipDownload().DumpSingleJSON().Run(ctx, source)
	if err != nil {
		return nil, err
	}
	info, err := res.GetExtractedInfo()
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("yt-dlp returned no info for %s", source)
	}
	meta := &Metadata{}
	if info[0].Title != nil {
		meta.Title = *info[0].Title
	}
	if info[0].Thumbnail != nil {
		meta.Thumbnail = *info[0].Thumbnail
	}
	return meta, nil
}

// Acquire implements Acquirer.
func (y *YtDlp) Acquire(ctx context.Context, opts AcquireOptions) (*AcquireResult, error) {
	dl := y.command().
		NoPlaylist().
		ForceOverwrites().
		Format(opts.Format).
		Output(opts.OutputTemplate)
	if opts.AudioOnly {
		dl.ExtractAudio().AudioFormat(opts.AudioCodec)
		if opts.AudioQuality != "" {
			dl.AudioQuality(opts.AudioQuality)
		}
	} else if opts.MergeFormat != "" {
		dl.MergeOutputFormat(opts.MergeFormat)
	}
	var (
		mu   sync.Mutex
		seen []string
	)
	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		if update.Filename != "" {
			mu.Lock()
			seen = append(seen, update.Filename)
			mu.Unlock()
		}
		if ev, ok := progressEvent(opts.Source, &update); ok && opts.Progress != nil {
			opts.Progress(ev)
		}
	})

	res, err := dl.Run(ctx, opts.Source)
	if err != nil {
		return nil, err
	}

	var candidates []string
	if info, err := res.GetExtractedInfo(); err == nil {
		for _, it := range info {
			if it.Filename != nil && *it.Filename != "" {
				candidates = append(candidates, *it.Filename)
			}
		}
	}
	mu.Lock()
	for i := len(seen) - 1; i >= 0; i-- {
		stem := strings.TrimSuffix(seen[i], filepath.Ext(seen[i]))
		switch {
		case opts.AudioOnly && opts.AudioCodec != "":
			// audio extraction rewrites the extension after the download finished
			candidates = append(candidates, stem+"."+opts.AudioCodec)
		case opts.MergeFormat != "":
			// per-stream downloads are named <title>.f<id>.<ext> before the merge
			candidates = append(candidates, streamSuffix.ReplaceAllString(stem, "")+"."+opts.MergeFormat)
		}
		candidates = append(candidates, seen[i])
	}
	mu.Unlock()
	return collectOutputs(candidates), nil
}

// collectOutputs picks the first candidate that exists on disk as the primary
// output and keeps the rest, deduplicated, as per-stream outputs.
func collectOutputs(candidates []string) *AcquireResult {
	out := &AcquireResult{}
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if out.FilePath == "" && fileExists(c) {
			out.FilePath = c
			continue
		}
		out.Downloads = append(out.Downloads, c)
	}
	return out
}

func progressEvent(source string, update *ytdlp.ProgressUpdate) (ProgressEvent, bool) {
	ev := ProgressEvent{
		Source:          source,
		Filename:        update.Filename,
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		PercentText:     update.PercentString(),
	}
	switch update.Status {
	case ytdlp.ProgressStatusDownloading:
		ev.Phase = PhaseDownloading
	case ytdlp.ProgressStatusPostProcessing, ytdlp.ProgressStatusFinished:
		ev.Phase = PhaseFinished
	case ytdlp.ProgressStatusError:
		ev.Phase = PhaseError
	default:
		return ev, false
	}
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			ev.Speed = float64(update.DownloadedBytes) / elapsed
		}
	}
	return ev, true
}
