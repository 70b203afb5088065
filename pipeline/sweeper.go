package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper removes job directories older than a retention age.
type Sweeper struct {
	baseDir string
	maxAge  time.Duration
}

func NewSweeper(baseDir string, maxAge time.Duration) *Sweeper {
	return &Sweeper{baseDir: baseDir, maxAge: maxAge}
}

// Sweep deletes every directory directly under the base directory whose
// modification time is more than maxAge before now, and returns how many it
// removed. A missing base directory is not an error. Failures on individual
// directories are logged and skipped.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", s.baseDir, err)
	}

	cutoff := now.Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.baseDir, e.Name())
		info, err := e.Info()
		if err != nil {
			log.Printf("WARN: Sweep - cannot stat %s: %v", dir, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("ERROR: Sweep - failed to remove %s: %v", dir, err)
			continue
		}
		log.Printf("INFO: Sweep - removed %s (modified %s)", dir, info.ModTime().Format(time.RFC3339))
		removed++
	}
	return removed, nil
}

// ScheduleSweeps runs s on the cron schedule spec. The caller starts and stops
// the returned scheduler.
func ScheduleSweeps(spec string, s *Sweeper) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := s.Sweep(time.Now())
		if err != nil {
			log.Printf("ERROR: Sweep - %v", err)
			return
		}
		log.Printf("INFO: Sweep - removed %d expired job directories from %s", n, s.baseDir)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return c, nil
}
