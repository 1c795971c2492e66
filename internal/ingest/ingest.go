// Package ingest drives one document through extraction, chunking,
// embedding, and persistence: the pipeline that turns uploaded bytes into
// searchable vectors. It is invoked both on upload (synchronous, single
// document) and on a full reindex-all sweep (one call per document).
package ingest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/deptqa/internal/embedding"
	qerrors "github.com/northbound/deptqa/internal/errors"
	"github.com/northbound/deptqa/internal/extract"
	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/splitter"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

// Result summarizes one document's ingestion, enough detail for the audit
// log and for a reindex-all summary to tally engine/warning counts.
type Result struct {
	ChunkCount      int
	ExtractEngine   string
	ExtractWarnings []string
}

// Service wires extraction, splitting, embedding, and storage together.
type Service struct {
	store    *storage.Store
	index    vectorindex.Index
	embedder embedding.Provider
	logger   *slog.Logger
}

// New builds an ingestion Service.
func New(store *storage.Store, index vectorindex.Index, embedder embedding.Provider, logger *slog.Logger) *Service {
	return &Service{store: store, index: index, embedder: embedder, logger: logger}
}

// Ingest extracts text, splits it into chunks, embeds every chunk, and
// persists both the chunk rows and their vectors. Any chunks the document
// already had (e.g. a reindex) must be deleted by the caller first so this
// call always starts from zero chunks for the document.
func (s *Service) Ingest(ctx context.Context, doc model.Document, data []byte) (Result, error) {
	extracted, err := extract.Dispatch(doc.ContentType, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			return Result{}, qerrors.New(qerrors.ErrCodeUnsupportedType,
				fmt.Sprintf("unsupported content type for %s: %v", doc.Filename, err), err)
		}
		return Result{}, qerrors.New(qerrors.ErrCodeExtractFailed,
			fmt.Sprintf("extract %s: %v", doc.Filename, err), err)
	}

	if doc.ContentType == "application/pdf" && isScanPDF(extracted.Warnings) {
		return Result{}, qerrors.New(qerrors.ErrCodeScanPDFNotSupported,
			fmt.Sprintf("%s looks like a scanned PDF with no extractable text layer", doc.Filename), nil)
	}

	pieces := splitDocument(doc.ContentType, extracted)
	if len(pieces) == 0 {
		return Result{ExtractEngine: extracted.Engine, ExtractWarnings: extracted.Warnings}, nil
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.text
	}
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return Result{}, qerrors.New(qerrors.ErrCodeEmbeddingProvider,
			fmt.Sprintf("embed chunks for %s: %v", doc.Filename, err), err)
	}

	chunks := make([]model.Chunk, len(pieces))
	chunkIDs := make([]string, len(pieces))
	departments := make([]string, len(pieces))
	now := time.Now().UTC()
	for i, p := range pieces {
		id := uuid.NewString()
		chunks[i] = model.Chunk{
			ID:             id,
			DocumentID:     doc.ID,
			DepartmentSlug: doc.DepartmentSlug,
			SeqNo:          i,
			Page:           p.page,
			Text:           p.text,
			TokenEstimate:  estimateTokens(p.text),
			CreatedAt:      now,
		}
		chunkIDs[i] = id
		departments[i] = doc.DepartmentSlug
	}

	if err := s.index.Upsert(ctx, chunkIDs, departments, vectors); err != nil {
		return Result{}, qerrors.New(qerrors.ErrCodeIndexFailed,
			fmt.Sprintf("index chunks for %s: %v", doc.Filename, err), err)
	}

	if err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return storage.InsertChunks(ctx, tx, chunks)
	}); err != nil {
		// Best-effort rollback of the vectors we just wrote so the index
		// and the chunk table don't drift apart.
		_ = s.index.Delete(ctx, chunkIDs)
		return Result{}, qerrors.New(qerrors.ErrCodeIngestFailed,
			fmt.Sprintf("persist chunks for %s: %v", doc.Filename, err), err)
	}

	s.logger.Info("document ingested",
		slog.String("document_id", doc.ID),
		slog.String("department", doc.DepartmentSlug),
		slog.Int("chunk_count", len(chunks)),
		slog.String("extract_engine", extracted.Engine))

	return Result{
		ChunkCount:      len(chunks),
		ExtractEngine:   extracted.Engine,
		ExtractWarnings: extracted.Warnings,
	}, nil
}

// isScanPDF reports whether a PDF extraction's warnings indicate a
// scanned, image-only document with no usable text layer rather than a
// merely low-quality one — the case ingestion refuses rather than silently
// indexing an empty or near-empty document.
func isScanPDF(warnings []string) bool {
	for _, w := range warnings {
		if w == extract.WarnNoTextExtracted || w == extract.WarnImagePDFSuspected {
			return true
		}
	}
	return false
}

// piece is one chunk of split text, tagged with the 1-based source page
// when the document it came from is paginated.
type piece struct {
	page *int
	text string
}

// splitDocument picks the separator cascade that fits the document's shape:
// a PDF is split per page so each resulting chunk can be tagged with the
// page it came from, markdown gets heading-aware splitting, CSV is
// row-chunked rather than run through the prose splitter, and everything
// else gets the default recursive-character cascade.
func splitDocument(contentType string, extracted extract.Result) []piece {
	switch contentType {
	case "application/pdf":
		return splitPDFPages(extracted.Pages)
	case "text/markdown":
		return tagPieces(splitter.New(splitter.MarkdownConfig()).Split(extracted.Text), nil)
	case "text/csv":
		rows, err := splitter.SplitCSV(extracted.Text, 50)
		if err != nil {
			return nil
		}
		return tagPieces(rows, nil)
	default:
		return tagPieces(splitter.New(splitter.DefaultConfig()).Split(extracted.Text), nil)
	}
}

// splitPDFPages splits each page's text independently through the default
// splitter and tags every resulting chunk with its 1-based page number. A
// page with no extractable text contributes no chunks.
func splitPDFPages(pages []string) []piece {
	if len(pages) == 0 {
		return nil
	}
	s := splitter.New(splitter.DefaultConfig())
	var out []piece
	for i, pageText := range pages {
		pageNum := i + 1
		out = append(out, tagPieces(s.Split(pageText), &pageNum)...)
	}
	return out
}

// tagPieces wraps split text fragments with a shared page number (nil for
// non-paginated content).
func tagPieces(texts []string, page *int) []piece {
	out := make([]piece, len(texts))
	for i, t := range texts {
		out[i] = piece{page: page, text: t}
	}
	return out
}

// estimateTokens is a rough token count (roughly 4 bytes per token for
// English prose) used for logging and UI display only; embedding calls
// never depend on it.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ContentHash fingerprints a document's bytes; Upload stores it on the
// document row. No duplicate-upload check reads it.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectContentType maps a filename's extension to the content type
// extract.Dispatch understands, falling back to the extension's registered
// MIME type and finally to application/octet-stream.
func DetectContentType(filename string) string {
	ext := extOf(filename)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".txt":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0 && filename[i] != '/'; i-- {
		if filename[i] == '.' {
			return filename[i:]
		}
	}
	return ""
}
