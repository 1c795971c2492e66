package splitter_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/splitter"
)

func TestSplitRespectsChunkSize(t *testing.T) {
	s := splitter.New(splitter.Config{ChunkSize: 50, ChunkOverlap: 10})
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 60) // allow overlap slack
	}
}

func TestSplitEmptyReturnsNil(t *testing.T) {
	s := splitter.New(splitter.DefaultConfig())
	assert.Nil(t, s.Split(""))
}

func TestSplitShortTextReturnsSingleChunk(t *testing.T) {
	s := splitter.New(splitter.DefaultConfig())
	chunks := s.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitHandlesUnicodeWithoutCorruption(t *testing.T) {
	s := splitter.New(splitter.Config{ChunkSize: 5, ChunkOverlap: 1})
	text := strings.Repeat("日本語", 5) // Japanese, multi-byte runes
	chunks := s.Split(text)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
}

func TestSplitCSVRepeatsHeader(t *testing.T) {
	data := "name,dept\nalice,hr\nbob,legal\ncarol,hr\n"
	chunks, err := splitter.SplitCSV(data, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Contains(t, c, "name, dept")
	}
}
