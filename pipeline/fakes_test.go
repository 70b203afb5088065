package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"media-download-api/shared"
)

type fakeResolver struct {
	titles map[string]string
	thumbs map[string]string
	fail   map[string]bool
	// block makes Resolve wait for its context to expire
	block bool
}

func (f *fakeResolver) Resolve(ctx context.Context, source string) (*Metadata, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.fail[source] {
		return nil, errors.New("metadata unavailable")
	}
	return &Metadata{Title: f.titles[source], Thumbnail: f.thumbs[source]}, nil
}

// fakeAcquirer writes an empty file for every source it does not fail and
// reports a short download through the progress callback.
type fakeAcquirer struct {
	ext  string
	fail map[string]bool
	// noFile reports success without writing anything
	noFile map[string]bool

	mu    sync.Mutex
	calls []AcquireOptions
}

func (f *fakeAcquirer) Acquire(ctx context.Context, opts AcquireOptions) (*AcquireResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	ext := f.ext
	if ext == "" {
		ext = "mp3"
	}
	path := strings.Replace(opts.OutputTemplate, "%(ext)s", ext, 1)
	if opts.Progress != nil {
		opts.Progress(ProgressEvent{Phase: PhaseDownloading, Source: opts.Source, Filename: path, DownloadedBytes: 25, TotalBytes: 100})
		opts.Progress(ProgressEvent{Phase: PhaseDownloading, Source: opts.Source, Filename: path, DownloadedBytes: 75, TotalBytes: 100, Speed: 2048})
	}
	if f.fail[opts.Source] {
		if opts.Progress != nil {
			opts.Progress(ProgressEvent{Phase: PhaseError, Source: opts.Source, Filename: path})
		}
		return nil, errors.New("HTTP Error 403: Forbidden")
	}
	if opts.Progress != nil {
		opts.Progress(ProgressEvent{Phase: PhaseFinished, Source: opts.Source, Filename: path})
	}
	if f.noFile[opts.Source] {
		return &AcquireResult{FilePath: path}, nil
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	return &AcquireResult{FilePath: path}, nil
}

type fakeArtwork struct {
	err   error
	mu    sync.Mutex
	calls [][2]string
}

func (f *fakeArtwork) Embed(ctx context.Context, filePath, imageURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{filePath, imageURL})
	return f.err
}

// recordingDB keeps every progress snapshot the driver stores.
type recordingDB struct {
	*shared.InMemoryDB
	mu        sync.Mutex
	snapshots []shared.Progress
}

func newRecordingDB() *recordingDB {
	return &recordingDB{InMemoryDB: shared.NewInMemoryDB(0)}
}

func (r *recordingDB) UpdateJob(jobID string, fn func(*shared.Job) error) (*shared.Job, error) {
	j, err := r.InMemoryDB.UpdateJob(jobID, fn)
	if err == nil {
		r.mu.Lock()
		r.snapshots = append(r.snapshots, j.Progress.Clone())
		r.mu.Unlock()
	}
	return j, err
}

func (r *recordingDB) percents() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.snapshots))
	for i, s := range r.snapshots {
		out[i] = s.Percent
	}
	return out
}
