package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"
	_ "golang.org/x/image/webp"

	"media-download-api/shared"
)

// maxCoverBytes caps the thumbnail download.
const maxCoverBytes = 10 << 20

// CoverEmbedder fetches a thumbnail and attaches it as front cover art.
// MP3 files are tagged in place; MP4/M4A files are remuxed through ffmpeg.
type CoverEmbedder struct {
	client *http.Client
	ffmpeg string
}

func NewCoverEmbedder(timeout time.Duration, ffmpegPath string) *CoverEmbedder {
	if timeout <= 0 {
		timeout = shared.DefaultArtworkTimeout
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &CoverEmbedder{client: &http.Client{Timeout: timeout}, ffmpeg: ffmpegPath}
}

// Embed implements ArtworkEmbedder.
func (c *CoverEmbedder) Embed(ctx context.Context, filePath, imageURL string) error {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3", ".m4a", ".mp4":
	default:
		return fmt.Errorf("%w: %s", shared.ErrUnsupportedArtwork, ext)
	}

	raw, err := c.fetch(ctx, imageURL)
	if err != nil {
		return fmt.Errorf("%w: fetch cover: %v", shared.ErrArtworkEmbedding, err)
	}
	data, mime, err := normalizeCover(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrArtworkEmbedding, err)
	}
	if ext == ".mp3" {
		err = embedID3(filePath, data, mime)
	} else {
		err = c.embedMP4(ctx, filePath, data, mime)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrArtworkEmbedding, err)
	}
	return nil
}

func (c *CoverEmbedder) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
}

// normalizeCover returns the cover as JPEG or PNG, the two formats both ID3
// and MP4 cover atoms accept, along with its MIME type. Anything else
// (webp thumbnails, gif) is re-encoded as JPEG.
func normalizeCover(data []byte) ([]byte, string, error) {
	switch kind := http.DetectContentType(data); kind {
	case "image/jpeg", "image/png":
		return data, kind, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode cover: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("re-encode %s cover: %w", format, err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

func embedID3(filePath string, data []byte, mime string) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.DeleteFrames(tag.CommonID("Attached picture"))
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    mime,
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     data,
	})
	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}

func (c *CoverEmbedder) embedMP4(ctx context.Context, filePath string, data []byte, mime string) error {
	dir := filepath.Dir(filePath)
	coverExt := ".jpg"
	if mime == "image/png" {
		coverExt = ".png"
	}
	cover, err := os.CreateTemp(dir, "cover-*"+coverExt)
	if err != nil {
		return err
	}
	defer os.Remove(cover.Name())
	if _, err := cover.Write(data); err != nil {
		cover.Close()
		return err
	}
	if err := cover.Close(); err != nil {
		return err
	}

	out := filepath.Join(dir, ".cover-"+filepath.Base(filePath))
	defer os.Remove(out)
	cmd := exec.CommandContext(ctx, c.ffmpeg, "-y", "-loglevel", "error",
		"-i", filePath, "-i", cover.Name(),
		"-map", "0", "-map", "1", "-c", "copy",
		"-disposition:v:0", "attached_pic", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %v: %s", err, strings.TrimSpace(string(output)))
	}
	return os.Rename(out, filePath)
}
