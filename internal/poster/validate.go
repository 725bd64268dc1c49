package poster

import (
	"fmt"
	"strings"
	"time"

	"github.com/samhotchkiss/threadline/internal/chunker"
)

// DefaultMaxThreadLength caps how many chunks a single posting session
// will accept before it even starts.
const DefaultMaxThreadLength = 25

// Validate runs pre-flight checks on a thread and returns human-readable
// issues. An empty slice means the thread is postable.
func Validate(t chunker.Thread, limit, maxChunks int) []string {
	if limit <= 0 {
		limit = chunker.DefaultLimit
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxThreadLength
	}

	if t.Empty() {
		return []string{"thread has no chunks to post"}
	}

	var issues []string
	if len(t.Chunks) > maxChunks {
		issues = append(issues, fmt.Sprintf("thread is too long: %d chunks (max %d)", len(t.Chunks), maxChunks))
	}
	for _, chunk := range t.Chunks {
		if chunk.Length > limit {
			issues = append(issues, fmt.Sprintf("chunk %d exceeds %d characters (%d)", chunk.Index, limit, chunk.Length))
		}
		if strings.TrimSpace(chunk.Text) == "" {
			issues = append(issues, fmt.Sprintf("chunk %d is empty", chunk.Index))
		}
	}
	return issues
}

// EstimateDuration approximates how long posting will take from the pacing
// delay alone: one gap between each consecutive pair of chunks.
func EstimateDuration(chunkCount int, delay time.Duration) time.Duration {
	if chunkCount <= 1 {
		return 0
	}
	return time.Duration(chunkCount-1) * delay
}
