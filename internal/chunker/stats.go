package chunker

import "strings"

// DefaultExportSeparator divides chunks in the copy/paste export format.
const DefaultExportSeparator = "\n\n---\n\n"

// ThreadStats summarizes the rendered chunks of a thread.
type ThreadStats struct {
	TotalChunks     int     `json:"total_chunks"`
	TotalCharacters int     `json:"total_characters"`
	AvgLength       float64 `json:"avg_length"`
	MaxLength       int     `json:"max_length"`
	MinLength       int     `json:"min_length"`
	OverLimit       int     `json:"over_limit"`
}

// Stats computes display statistics for a thread against the given limit.
func Stats(t Thread, limit int) ThreadStats {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if t.Empty() {
		return ThreadStats{}
	}

	stats := ThreadStats{
		TotalChunks: len(t.Chunks),
		MinLength:   t.Chunks[0].Length,
	}
	for _, chunk := range t.Chunks {
		stats.TotalCharacters += chunk.Length
		if chunk.Length > stats.MaxLength {
			stats.MaxLength = chunk.Length
		}
		if chunk.Length < stats.MinLength {
			stats.MinLength = chunk.Length
		}
		if chunk.Length > limit {
			stats.OverLimit++
		}
	}
	stats.AvgLength = float64(stats.TotalCharacters) / float64(len(t.Chunks))

	return stats
}

// Export joins the rendered chunks with the separator for copying into
// other tools. An empty separator falls back to DefaultExportSeparator.
func Export(t Thread, separator string) string {
	if separator == "" {
		separator = DefaultExportSeparator
	}
	rendered := make([]string, len(t.Chunks))
	for i, chunk := range t.Chunks {
		rendered[i] = chunk.Text
	}
	return strings.Join(rendered, separator)
}
