// Package chunker splits long free-form text into bounded-length chunks
// suitable for posting as a thread. Splitting happens at whitespace
// boundaries and each chunk carries a position label such as "2/5".
package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultLimit is the per-chunk character limit when none is configured.
	DefaultLimit = 280
	// DefaultTemplate is the numbering label appended to each chunk when a
	// thread has two or more chunks. {i} is the 1-based chunk position and
	// {n} the total chunk count.
	DefaultTemplate = "{i}/{n}"

	// The label width depends on the chunk count, which depends on the
	// label width. The count is monotone in the reserved width, so the
	// loop settles quickly; the bound guards against a broken template.
	maxNumberingIterations = 8

	warningWordPreviewLen = 20
)

// Options configures a Split call. Zero values fall back to the defaults.
type Options struct {
	// Limit is the maximum rendered length of a chunk, in characters
	// (runes, not bytes). The numbering label counts against it.
	Limit int
	// Template is the numbering label format, containing {i} and {n}
	// placeholders.
	Template string
}

// Chunk is one bounded-length segment of the input text.
type Chunk struct {
	// Index is the 1-based position of the chunk within its thread.
	Index int `json:"index"`
	// Body is the chunk's share of the input text, without the label.
	Body string `json:"body"`
	// Text is the rendered chunk: body plus label for multi-chunk threads.
	Text string `json:"text"`
	// Length is the character count of Text.
	Length int `json:"length"`
}

// Thread is the ordered chunk list produced from one input text.
type Thread struct {
	Chunks   []Chunk  `json:"chunks"`
	Warnings []string `json:"warnings,omitempty"`
}

// Empty reports whether the thread has no chunks.
func (t Thread) Empty() bool { return len(t.Chunks) == 0 }

// ConfigurationError indicates the chunker options cannot produce a valid
// thread for the given input.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return "chunker configuration: " + e.Reason
}

// Split breaks text into chunks whose rendered length never exceeds the
// configured limit. Words are kept whole unless a single word alone exceeds
// the effective limit, in which case it is force-split at the boundary.
// Whitespace runs between words that land in the same chunk are preserved;
// each chunk is trimmed at its edges. Empty or all-whitespace input yields
// an empty thread. A single-chunk thread carries no numbering label.
func Split(text string, opts Options) (Thread, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	template := opts.Template
	if template == "" {
		template = DefaultTemplate
	}
	if !strings.Contains(template, "{i}") || !strings.Contains(template, "{n}") {
		return Thread{}, ConfigurationError{Reason: fmt.Sprintf("numbering template %q must contain {i} and {n}", template)}
	}

	words, gaps := tokenize(text)
	if len(words) == 0 {
		return Thread{}, nil
	}

	bodies := splitBodies(words, gaps, limit)
	effective := limit

	if len(bodies) > 1 {
		converged := false
		for iter := 0; iter < maxNumberingIterations; iter++ {
			reserve := labelReserve(template, len(bodies))
			if limit-reserve < 1 {
				return Thread{}, ConfigurationError{Reason: fmt.Sprintf("limit %d leaves no room for content once the %q label is reserved", limit, template)}
			}
			next := splitBodies(words, gaps, limit-reserve)
			if len(next) == len(bodies) {
				bodies = next
				effective = limit - reserve
				converged = true
				break
			}
			bodies = next
		}
		if !converged {
			return Thread{}, ConfigurationError{Reason: fmt.Sprintf("numbering width for template %q did not stabilize", template)}
		}
	}

	n := len(bodies)
	chunks := make([]Chunk, n)
	for i, body := range bodies {
		rendered := body
		if n > 1 {
			rendered = body + " " + renderLabel(template, i+1, n)
		}
		chunks[i] = Chunk{
			Index:  i + 1,
			Body:   body,
			Text:   rendered,
			Length: utf8.RuneCountInString(rendered),
		}
	}

	return Thread{Chunks: chunks, Warnings: collectWarnings(words, effective)}, nil
}

// tokenize splits text into words and the whitespace runs between them.
// gaps[i] is the run separating words[i-1] from words[i]; gaps[0] is empty.
// Leading and trailing whitespace is dropped.
func tokenize(text string) (words []string, gaps []string) {
	var word, gap strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) {
			if word.Len() > 0 {
				words = append(words, word.String())
				word.Reset()
			}
			gap.WriteRune(r)
			continue
		}
		if gap.Len() > 0 {
			if len(words) == 0 {
				gaps = append(gaps, "")
			} else {
				gaps = append(gaps, gap.String())
			}
			gap.Reset()
		} else if word.Len() == 0 {
			gaps = append(gaps, "")
		}
		word.WriteRune(r)
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	if len(gaps) > len(words) {
		gaps = gaps[:len(words)]
	}
	return words, gaps
}

// splitBodies greedily packs words into bodies of at most limit characters.
// A word longer than the limit is force-split at the limit boundary and its
// remainder starts the next body.
func splitBodies(words, gaps []string, limit int) []string {
	var bodies []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			bodies = append(bodies, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for i, word := range words {
		wordLen := utf8.RuneCountInString(word)
		if wordLen > limit {
			flush()
			runes := []rune(word)
			for len(runes) > limit {
				bodies = append(bodies, string(runes[:limit]))
				runes = runes[limit:]
			}
			cur.WriteString(string(runes))
			curLen = len(runes)
			continue
		}
		if curLen == 0 {
			cur.WriteString(word)
			curLen = wordLen
			continue
		}
		gapLen := utf8.RuneCountInString(gaps[i])
		if curLen+gapLen+wordLen > limit {
			flush()
			cur.WriteString(word)
			curLen = wordLen
			continue
		}
		cur.WriteString(gaps[i])
		cur.WriteString(word)
		curLen += gapLen + wordLen
	}
	flush()

	return bodies
}

// labelReserve is the character count the numbering label consumes at its
// widest position (i == n), plus the separating space.
func labelReserve(template string, n int) int {
	return utf8.RuneCountInString(renderLabel(template, n, n)) + 1
}

func renderLabel(template string, i, n int) string {
	return strings.NewReplacer(
		"{i}", strconv.Itoa(i),
		"{n}", strconv.Itoa(n),
	).Replace(template)
}

func collectWarnings(words []string, effectiveLimit int) []string {
	var warnings []string
	for _, word := range words {
		if utf8.RuneCountInString(word) <= effectiveLimit {
			continue
		}
		preview := word
		if runes := []rune(word); len(runes) > warningWordPreviewLen {
			preview = string(runes[:warningWordPreviewLen]) + "..."
		}
		warnings = append(warnings, fmt.Sprintf("word %q is longer than the %d character content limit and was split", preview, effectiveLimit))
	}
	return warnings
}
