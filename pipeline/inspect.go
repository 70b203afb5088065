package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Preferred stream ids, most preferred first.
var (
	DefaultVideoFormatPrefs = []string{"616", "22", "18"}
	DefaultAudioFormatPrefs = []string{"140", "251", "250", "249", "139"}
)

// FormatInfo is what a client needs to build a download request.
type FormatInfo struct {
	Title                string          `json:"title"`
	ThumbnailURL         string          `json:"thumbnail_url,omitempty"`
	OriginalURL          string          `json:"original_url"`
	VideoFormats         []StreamFormat  `json:"video_formats"`
	AudioFormats         []StreamFormat  `json:"audio_formats"`
	DefaultVideoFormatID string          `json:"default_video_format_id,omitempty"`
	DefaultAudioFormatID string          `json:"default_audio_format_id,omitempty"`
	PlaylistEntries      []PlaylistEntry `json:"playlist_entries"`
}

type StreamFormat struct {
	FormatID       string   `json:"format_id"`
	FormatNote     string   `json:"format_note,omitempty"`
	Ext            string   `json:"ext"`
	FilesizeApprox *int64   `json:"filesize_approx,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	ABR            *float64 `json:"abr,omitempty"`
}

type PlaylistEntry struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// rawInfo is the subset of yt-dlp's JSON dump we read.
type rawInfo struct {
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail"`
	Entries   []*rawEntry `json:"entries"`
	Formats   []rawFormat `json:"formats"`
}

type rawEntry struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	FormatNote     string   `json:"format_note"`
	Ext            string   `json:"ext"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	FPS            *float64 `json:"fps"`
	TBR            *float64 `json:"tbr"`
	ABR            *float64 `json:"abr"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
	Resolution     string   `json:"resolution"`
}

// Inspect lists the playlist entries of url (if it is a playlist) and the
// formats of its first item.
func (y *YtDlp) Inspect(ctx context.Context, url string) (*FormatInfo, error) {
	listing, err := y.command().SkipDownload().FlatPlaylist().DumpSingleJSON().Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", url, err)
	}
	var playlist rawInfo
	if err := json.Unmarshal([]byte(listing.Stdout), &playlist); err != nil {
		return nil, fmt.Errorf("parsing listing for %s: %w", url, err)
	}

	entries := playlistEntries(playlist.Entries)
	first := url
	if len(entries) > 0 {
		first = entries[0].URL
	}
	detail, err := y.command().NoPlaylist().SkipDownload().DumpSingleJSON().Run(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("reading formats of %s: %w", first, err)
	}
	var item rawInfo
	if err := json.Unmarshal([]byte(detail.Stdout), &item); err != nil {
		return nil, fmt.Errorf("parsing formats of %s: %w", first, err)
	}
	return buildFormatInfo(url, &playlist, &item), nil
}

func buildFormatInfo(url string, playlist, item *rawInfo) *FormatInfo {
	title := playlist.Title
	if title == "" {
		title = "untitled"
	}
	info := &FormatInfo{
		Title:           title,
		ThumbnailURL:    playlist.Thumbnail,
		OriginalURL:     url,
		PlaylistEntries: playlistEntries(playlist.Entries),
		VideoFormats:    []StreamFormat{},
		AudioFormats:    []StreamFormat{},
	}
	// a single video's own thumbnail beats the listing's
	if len(info.PlaylistEntries) == 0 && item.Thumbnail != "" {
		info.ThumbnailURL = item.Thumbnail
	}

	var video, audio []rawFormat
	for _, f := range item.Formats {
		if f.VCodec != "none" && f.ACodec == "none" {
			video = append(video, f)
		}
		if f.ACodec != "none" && f.VCodec == "none" {
			audio = append(audio, f)
		}
	}
	if len(video) == 0 {
		for _, f := range item.Formats {
			if f.VCodec != "none" {
				video = append(video, f)
			}
		}
	}

	sort.SliceStable(video, func(i, j int) bool {
		a, b := video[i], video[j]
		if ha, hb := intOr(a.Height, -1), intOr(b.Height, -1); ha != hb {
			return ha > hb
		}
		if fa, fb := floatOr(a.FPS, -1), floatOr(b.FPS, -1); fa != fb {
			return fa > fb
		}
		if ta, tb := floatOr(a.TBR, -1), floatOr(b.TBR, -1); ta != tb {
			return ta > tb
		}
		return extRank(a.Ext, "mp4", "webm") < extRank(b.Ext, "mp4", "webm")
	})
	sort.SliceStable(audio, func(i, j int) bool {
		a, b := audio[i], audio[j]
		if ra, rb := floatOr(a.ABR, -1), floatOr(b.ABR, -1); ra != rb {
			return ra > rb
		}
		return extRank(a.Ext, "m4a", "opus", "webm") < extRank(b.Ext, "m4a", "opus", "webm")
	})

	for _, f := range video {
		res := f.Resolution
		if res == "" {
			res = "N/A"
			if f.Width != nil && f.Height != nil {
				res = fmt.Sprintf("%dx%d", *f.Width, *f.Height)
			}
		}
		info.VideoFormats = append(info.VideoFormats, StreamFormat{
			FormatID: f.FormatID, FormatNote: f.FormatNote, Ext: f.Ext,
			FilesizeApprox: sizeOf(f), Resolution: res,
		})
	}
	for _, f := range audio {
		note := f.FormatNote
		if note == "" {
			note = "N/A"
			if f.ABR != nil {
				note = fmt.Sprintf("%gk", *f.ABR)
			}
		}
		info.AudioFormats = append(info.AudioFormats, StreamFormat{
			FormatID: f.FormatID, FormatNote: note, Ext: f.Ext,
			FilesizeApprox: sizeOf(f), ABR: f.ABR,
		})
	}
	info.DefaultVideoFormatID = bestFormatID(info.VideoFormats, DefaultVideoFormatPrefs)
	info.DefaultAudioFormatID = bestFormatID(info.AudioFormats, DefaultAudioFormatPrefs)
	return info
}

func playlistEntries(raw []*rawEntry) []PlaylistEntry {
	out := []PlaylistEntry{}
	for i, e := range raw {
		if e == nil {
			continue
		}
		u := e.URL
		if u == "" {
			u = fmt.Sprintf(watchURLTemplate, e.ID)
		}
		t := e.Title
		if t == "" {
			t = fmt.Sprintf("item %d", i+1)
		}
		out = append(out, PlaylistEntry{ID: e.ID, URL: u, Title: t})
	}
	return out
}

// bestFormatID picks the first preferred id present, else the top-ranked format.
func bestFormatID(formats []StreamFormat, prefs []string) string {
	for _, id := range prefs {
		for _, f := range formats {
			if f.FormatID == id {
				return id
			}
		}
	}
	if len(formats) > 0 {
		return formats[0].FormatID
	}
	return ""
}

func sizeOf(f rawFormat) *int64 {
	if f.FilesizeApprox != nil {
		return f.FilesizeApprox
	}
	return f.Filesize
}

func extRank(ext string, preferred ...string) int {
	for i, p := range preferred {
		if ext == p {
			return i
		}
	}
	return len(preferred)
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
