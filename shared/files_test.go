package shared

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`My Song: Live/Remix?`, "My Song LiveRemix"},
		{`a<b>c"d|e*f\g`, "abcdefg"},
		{"  spaced   out  title  ", "spaced out title"},
		{"tab\x01control", "tabcontrol"},
		{"日本語 タイトル", "日本語 タイトル"},
		{"???", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("é", 300)
	if got := SanitizeFilename(long); utf8.RuneCountInString(got) != maxFilenameRunes {
		t.Errorf("expected truncation to %d runes, got %d", maxFilenameRunes, utf8.RuneCountInString(got))
	}
}

func TestDownloadPath(t *testing.T) {
	tests := []struct {
		base, job, name, want string
	}{
		{"", "job1", "song.mp3", "/task_files/job1/song.mp3"},
		{"https://api.example.com/", "job1", "a#b?.m4a", "https://api.example.com/task_files/job1/a%23b%3F.m4a"},
		{"https://api.example.com", "job2", "plain name.mp4", "https://api.example.com/task_files/job2/plain name.mp4"},
	}
	for _, tt := range tests {
		if got := DownloadPath(tt.base, tt.job, tt.name); got != tt.want {
			t.Errorf("DownloadPath(%q, %q, %q) = %q, want %q", tt.base, tt.job, tt.name, got, tt.want)
		}
	}
}

func TestHasTraversal(t *testing.T) {
	for _, s := range []string{"..", "../x", "a..b", "x/.."} {
		if !HasTraversal(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
	for _, s := range []string{"song.mp3", "a.b.c", "job-123"} {
		if HasTraversal(s) {
			t.Errorf("expected %q to be accepted", s)
		}
	}
}
