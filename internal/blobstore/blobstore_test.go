package blobstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/blobstore"
)

func TestSaveReadDelete(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("hr", "doc-1", "handbook.pdf", strings.NewReader("hello world"))
	require.NoError(t, err)

	data, err := store.ReadBytes(rel)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, store.Delete(rel))
	_, err = store.ReadBytes(rel)
	assert.Error(t, err)
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete("hr/doc-missing/file.pdf"))
}

func TestSaveSanitizesTraversalSegments(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	rel, err := store.Save("../../escape", "../doc-1", "../../f.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "escape/doc-1/f.pdf", rel)
}
