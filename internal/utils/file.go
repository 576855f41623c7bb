package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// GenerateOutputFilename builds <dir>/<name><suffix>.<ext> from an input path
// or URL. An empty outputDir places the file next to the input.
func GenerateOutputFilename(input, outputDir, suffix, ext string) string {
	base := path.Base(filepath.ToSlash(input))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	name := SanitizeFilename(strings.TrimSuffix(base, path.Ext(base)))
	if name == "" {
		name = "thumbnail"
	}

	if outputDir == "" && !strings.Contains(input, "://") {
		outputDir = filepath.Dir(input)
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", name, suffix, ext))
}

// CacheKey returns the storage key of a rendered thumbnail. size should be a
// canonical request key. The source path is hashed so that keys stay flat and
// free of traversal sequences.
func CacheKey(domain, size, sourcePath, ext string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	return fmt.Sprintf("%s/%s/%s.%s",
		SanitizeFilename(strings.ToLower(domain)),
		SanitizeFilename(size),
		hex.EncodeToString(sum[:16]),
		ext)
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	return result
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
