// Package pipeline runs download jobs: it expands a request into items, drives
// each item through metadata resolution, acquisition and cover art, and keeps
// the job's progress snapshot current in the job store.
package pipeline

import (
	"context"
)

// Metadata is what the resolver knows about one item before downloading it.
type Metadata struct {
	Title     string
	Thumbnail string
}

// Resolver fetches item metadata without downloading content.
type Resolver interface {
	Resolve(ctx context.Context, source string) (*Metadata, error)
}

// EventPhase tags acquisition progress events.
type EventPhase string

const (
	PhaseDownloading EventPhase = "downloading"
	// PhaseFinished means raw acquisition is done; merging or conversion may still run.
	PhaseFinished EventPhase = "finished"
	PhaseError    EventPhase = "error"
)

// ProgressEvent is reported by the acquirer while it works.
type ProgressEvent struct {
	Phase           EventPhase
	Source          string // source URL the event belongs to, if known
	Filename        string
	DownloadedBytes int64
	TotalBytes      int64   // 0 when unknown
	PercentText     string  // acquirer's own rendering, e.g. " 42.0%"
	Speed           float64 // bytes per second, 0 when unknown
}

// AcquireOptions describes one acquisition.
type AcquireOptions struct {
	Source         string
	Format         string
	AudioOnly      bool
	AudioCodec     string
	AudioQuality   string
	MergeFormat    string
	OutputTemplate string
	Progress       func(ProgressEvent)
}

// AcquireResult lists what the acquirer produced. FilePath is the primary
// output; Downloads holds per-stream outputs when FilePath is unknown.
type AcquireResult struct {
	FilePath  string
	Downloads []string
}

// Acquirer downloads one item. It calls opts.Progress before returning.
type Acquirer interface {
	Acquire(ctx context.Context, opts AcquireOptions) (*AcquireResult, error)
}

// ArtworkEmbedder attaches a cover image to a media file. It returns an error
// wrapping shared.ErrUnsupportedArtwork for containers it cannot tag.
type ArtworkEmbedder interface {
	Embed(ctx context.Context, filePath, imageURL string) error
}
