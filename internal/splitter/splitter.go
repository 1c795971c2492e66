// Package splitter breaks extracted document text into overlapping chunks
// for embedding, following the RecursiveCharacterTextSplitter separator
// cascade: try splitting on the highest-priority separator first, recurse
// into any piece still too large with the next separator, and fall back to
// a hard rune-boundary window when nothing else fits.
package splitter

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators is the cascade tried in order: paragraph breaks, line
// breaks, sentence-ending punctuation, then plain spaces.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// MarkdownSeparators leads with heading boundaries before falling back to
// the default prose cascade, so a markdown section never gets split mid
// heading.
var MarkdownSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", ". ", " "}

// JapaneseSeparators cascades through the Japanese full-stop and comma
// before the ASCII sentence terminator, for documents written in Japanese
// where ". " never appears.
var JapaneseSeparators = []string{"\n\n", "\n", "。", "、", " "}

// Config configures a RecursiveSplitter.
type Config struct {
	// ChunkSize is the target maximum chunk length, in runes.
	ChunkSize int
	// ChunkOverlap is how many trailing runes of one chunk are repeated at
	// the start of the next, so retrieval doesn't lose context that fell on
	// a chunk boundary.
	ChunkOverlap int
	// Separators is the cascade to try, in priority order.
	Separators []string
}

// DefaultConfig returns the chunk size/overlap used for prose documents.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200, Separators: DefaultSeparators}
}

// MarkdownConfig returns the chunk size/overlap used for markdown
// documents, leading the separator cascade with heading boundaries.
func MarkdownConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200, Separators: MarkdownSeparators}
}

// JapaneseConfig returns the chunk size/overlap used for Japanese-language
// prose, where sentence boundaries are marked by "。" rather than ". ".
func JapaneseConfig() Config {
	return Config{ChunkSize: 300, ChunkOverlap: 80, Separators: JapaneseSeparators}
}

// RecursiveSplitter implements the separator-cascade splitting algorithm.
type RecursiveSplitter struct {
	cfg Config
}

// New builds a RecursiveSplitter. ChunkOverlap is clamped below ChunkSize so
// the splitter always makes forward progress.
func New(cfg Config) *RecursiveSplitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	return &RecursiveSplitter{cfg: cfg}
}

// Split breaks text into chunks of about ChunkSize runes, each starting with
// the last ChunkOverlap runes of the previous chunk. Because of that carried
// overlap and the joining spaces, a chunk can exceed ChunkSize by up to
// ChunkOverlap+1 runes.
func (s *RecursiveSplitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	pieces := s.splitWithSeparators(text, s.cfg.Separators)
	return mergeWithOverlap(pieces, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
}

// splitWithSeparators recursively applies the separator cascade, returning
// pieces no larger than ChunkSize runes wherever a separator allows it.
func (s *RecursiveSplitter) splitWithSeparators(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.cfg.ChunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return splitFixedWindow(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	}

	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		parts = splitFixedWindow(text, s.cfg.ChunkSize, 0)
	} else {
		parts = strings.Split(text, sep)
	}

	var out []string
	for i, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) > s.cfg.ChunkSize {
			out = append(out, s.splitWithSeparators(part, rest)...)
		} else {
			out = append(out, part)
		}
		_ = i
	}
	return out
}

// mergeWithOverlap packs small pieces together up to ChunkSize and, when a
// pack boundary falls between two pieces, carries ChunkOverlap runes of
// trailing context into the next pack.
func mergeWithOverlap(pieces []string, chunkSize, overlap int) []string {
	if len(pieces) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
	}

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)

		if currentLen > 0 && currentLen+pieceLen > chunkSize {
			flush()
			tail := lastRunes(current.String(), overlap)
			current.Reset()
			current.WriteString(tail)
			currentLen = utf8.RuneCountInString(tail)
		}

		if current.Len() > 0 {
			current.WriteString(" ")
			currentLen++
		}
		current.WriteString(piece)
		currentLen += pieceLen
	}
	flush()

	return chunks
}

// splitFixedWindow is the last-resort splitter: a pure rune-boundary sliding
// window, used when no separator in the cascade can break a piece down
// further (e.g. one unbroken 5000-rune line).
func splitFixedWindow(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}

	idxs := runeBoundaries(text)
	var chunks []string
	for start := 0; start < len(idxs)-1; start += step {
		end := start + size
		if end >= len(idxs)-1 {
			end = len(idxs) - 1
		}
		if end <= start {
			break
		}
		chunks = append(chunks, text[idxs[start]:idxs[end]])
		if end == len(idxs)-1 {
			break
		}
	}
	return chunks
}

// runeBoundaries returns the byte offset of every rune in text, plus
// len(text) as the final sentinel, so slicing by rune index never splits a
// multi-byte rune.
func runeBoundaries(text string) []int {
	idxs := make([]int, 0, utf8.RuneCountInString(text)+1)
	idxs = append(idxs, 0)
	for i := 0; i < len(text); {
		_, w := utf8.DecodeRuneInString(text[i:])
		i += w
		idxs = append(idxs, i)
	}
	return idxs
}

// lastRunes returns the trailing n runes of s (fewer if s is shorter).
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	idxs := runeBoundaries(s)
	total := len(idxs) - 1
	if total <= n {
		return s
	}
	return s[idxs[total-n]:]
}
