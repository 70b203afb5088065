package shared

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// maxFilenameRunes keeps generated names well under common filesystem limits
	maxFilenameRunes = 200
	// PlaceholderTitle is used when neither metadata nor an override supplies a title
	PlaceholderTitle = "untitled"
)

var (
	reservedFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedWhitespace    = regexp.MustCompile(`\s+`)
)

// SanitizeFilename strips characters that are invalid in file names on common
// platforms, collapses whitespace and truncates the result.
func SanitizeFilename(name string) string {
	name = reservedFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(repeatedWhitespace.ReplaceAllString(name, " "))
	if r := []rune(name); len(r) > maxFilenameRunes {
		name = strings.TrimSpace(string(r[:maxFilenameRunes]))
	}
	return name
}

// JobDir returns the job-scoped temporary directory.
func JobDir(base, jobID string) string {
	return filepath.Join(base, jobID)
}

// DownloadPath builds the retrieval path for an artifact. '#' and '?' are
// percent-encoded so the name stays inside a single path segment.
func DownloadPath(baseURL, jobID, name string) string {
	safe := strings.NewReplacer("#", "%23", "?", "%3F").Replace(name)
	return fmt.Sprintf("%s/task_files/%s/%s", strings.TrimRight(baseURL, "/"), jobID, safe)
}

// HasTraversal reports whether a path segment tries to escape its directory.
func HasTraversal(segment string) bool {
	return strings.Contains(segment, "..")
}
