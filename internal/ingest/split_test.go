package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/extract"
)

func TestSplitDocumentTagsPDFChunksWithPageNumber(t *testing.T) {
	extracted := extract.Result{
		Text: "page one body text.\n\npage two body text.",
		Pages: []string{
			"page one body text that is short enough to stay in one chunk.",
			"page two body text that is also short enough to stay in one chunk.",
		},
	}

	pieces := splitDocument("application/pdf", extracted)
	require.Len(t, pieces, 2)

	require.NotNil(t, pieces[0].page)
	assert.Equal(t, 1, *pieces[0].page)
	require.NotNil(t, pieces[1].page)
	assert.Equal(t, 2, *pieces[1].page)
}

func TestSplitDocumentSkipsEmptyPDFPages(t *testing.T) {
	extracted := extract.Result{
		Pages: []string{"first page with real text content here.", "", "third page with more real text content."},
	}

	pieces := splitDocument("application/pdf", extracted)
	require.Len(t, pieces, 2)
	assert.Equal(t, 1, *pieces[0].page)
	assert.Equal(t, 3, *pieces[1].page)
}

func TestSplitDocumentLeavesNonPDFPiecesUnpaged(t *testing.T) {
	extracted := extract.Result{Text: "plain text body for a non-pdf document."}
	pieces := splitDocument("text/plain", extracted)
	require.Len(t, pieces, 1)
	assert.Nil(t, pieces[0].page)
}
