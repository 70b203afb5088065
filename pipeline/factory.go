package pipeline

import (
	"media-download-api/shared"
)

// NewFromConfig builds a driver backed by yt-dlp and the cover embedder.
func NewFromConfig(cfg *shared.Config, db shared.DatabaseClient) *Driver {
	yt := NewYtDlp(cfg.YtDlpPath)
	processor := NewItemProcessor(yt, yt, NewCoverEmbedder(cfg.ArtworkTimeout, cfg.FFmpegPath), cfg.MetadataTimeout)
	return NewDriver(db, processor, cfg.TempDir)
}
