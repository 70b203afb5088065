// shared/errors.go
package shared

import "errors"

// Item-level errors are absorbed by the pipeline and only surface as log lines.
var (
	ErrMetadataResolution = errors.New("metadata resolution failed")
	ErrAcquisition        = errors.New("acquisition failed")
	ErrArtworkEmbedding   = errors.New("artwork embedding failed")
	ErrUnsupportedArtwork = errors.New("artwork not supported for this format")
	ErrFileNotLocated     = errors.New("downloaded file not found")
)

// Job-level and store errors.
var (
	ErrJobExpansion     = errors.New("job expansion failed")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobExists        = errors.New("job already exists")
	ErrStoreUnavailable = errors.New("job store unavailable")
)
