// Package docsvc implements document lifecycle operations — upload,
// delete, and reindex-all — each of which records its outcome in the audit
// log (only delete's row changes run inside a database transaction),
// grounded on the same upload/delete/reindex-all flow the rest of this
// service's chat and routing packages assume documents go through.
package docsvc

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/deptqa/internal/blobstore"
	"github.com/northbound/deptqa/internal/embedding"
	qerrors "github.com/northbound/deptqa/internal/errors"
	"github.com/northbound/deptqa/internal/ingest"
	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

// rebuildEmbedBatchSize is how many chunk texts are re-embedded per batch
// while rebuilding the vector index from scratch, matching the batch size
// Rebuild uses internally when inserting into the fresh graph.
const rebuildEmbedBatchSize = 256

// ReindexSummary tallies a reindex-all sweep across every document.
type ReindexSummary struct {
	TotalDocuments   int
	SuccessDocuments int
	FailedDocuments  int
	Failures         []ReindexFailure
	EngineCounts     map[string]int
	WarningCounts    map[string]int
}

// ReindexFailure names one document that failed reindexing and why.
type ReindexFailure struct {
	DocumentID string
	Filename   string
	Error      string
}

// maxRecordedFailures caps how many failure details a reindex-all summary
// keeps, so a department with thousands of broken uploads doesn't blow up
// the audit log row.
const maxRecordedFailures = 50

// Service implements upload, delete, and reindex-all against a store, blob
// store, vector index, and ingestion pipeline.
type Service struct {
	store    *storage.Store
	blobs    *blobstore.Store
	index    vectorindex.Index
	ingest   *ingest.Service
	embedder embedding.Provider
	logger   *slog.Logger
}

// New builds a document Service.
func New(store *storage.Store, blobs *blobstore.Store, index vectorindex.Index, ingester *ingest.Service, embedder embedding.Provider, logger *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, index: index, ingest: ingester, embedder: embedder, logger: logger}
}

// Upload saves the uploaded bytes, creates the Document row, ingests it
// synchronously, and records an audit entry either way. On ingestion
// failure the document row and blob are removed (best-effort compensating
// delete) so a half-ingested document never lingers in "pending".
func (s *Service) Upload(ctx context.Context, departmentSlug, actorID, filename, contentType string, data []byte) (model.Document, error) {
	doc := model.Document{
		ID:             uuid.NewString(),
		DepartmentSlug: departmentSlug,
		Filename:       filename,
		ContentType:    contentType,
		SizeBytes:      int64(len(data)),
		ContentHash:    ingest.ContentHash(data),
		Status:         model.DocumentStatusPending,
		UploadedBy:     actorID,
		CreatedAt:      time.Now().UTC(),
	}

	blobPath, err := s.blobs.Save(departmentSlug, doc.ID, filename, bytes.NewReader(data))
	if err != nil {
		s.auditUploadFailure(ctx, departmentSlug, actorID, filename, err)
		return model.Document{}, qerrors.New(qerrors.ErrCodeStorageFailed, "save uploaded file", err)
	}
	doc.BlobPath = blobPath

	if err := s.store.InsertDocument(ctx, doc); err != nil {
		s.blobs.Delete(blobPath)
		s.auditUploadFailure(ctx, departmentSlug, actorID, filename, err)
		return model.Document{}, qerrors.New(qerrors.ErrCodeStorageFailed, "insert document row", err)
	}

	result, err := s.ingest.Ingest(ctx, doc, data)
	if err != nil {
		s.compensateFailedUpload(ctx, doc)
		s.auditUploadFailure(ctx, departmentSlug, actorID, filename, err)
		return model.Document{}, err
	}

	doc.Status = model.DocumentStatusIndexed
	doc.ChunkCount = result.ChunkCount
	doc.IndexedAt = time.Now().UTC()
	if err := s.store.UpdateDocumentStatus(ctx, doc.ID, doc.Status, doc.ChunkCount, "", sql.NullTime{Time: doc.IndexedAt, Valid: true}); err != nil {
		s.auditUploadFailure(ctx, departmentSlug, actorID, filename, err)
		return model.Document{}, qerrors.New(qerrors.ErrCodeStorageFailed, "update document status", err)
	}

	s.recordAudit(ctx, departmentSlug, actorID, model.AuditActionUpload, model.AuditOutcomeSuccess,
		fmt.Sprintf("uploaded %s: %d chunks via %s", filename, result.ChunkCount, result.ExtractEngine))

	return doc, nil
}

// compensateFailedUpload removes a document and its blob after ingestion
// fails partway through, best-effort: a cleanup failure here is logged but
// never masks the original ingestion error.
func (s *Service) compensateFailedUpload(ctx context.Context, doc model.Document) {
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		s.logger.Warn("compensating delete of document row failed", slog.String("document_id", doc.ID), slog.Any("error", err))
	}
	if err := s.blobs.Delete(doc.BlobPath); err != nil {
		s.logger.Warn("compensating delete of blob failed", slog.String("document_id", doc.ID), slog.Any("error", err))
	}
}

// Delete removes a document's chunks and row and records the success audit
// entry inside one transaction. The vectors and the blob are removed after
// that transaction commits and are not part of it: a failure there is
// logged and Delete still returns nil.
func (s *Service) Delete(ctx context.Context, documentID, actorID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return qerrors.NotFoundError(fmt.Sprintf("document %s", documentID), err)
	}

	var chunkIDs []string
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		ids, err := storage.DeleteChunksByDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		chunkIDs = ids

		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
			return fmt.Errorf("docsvc: delete document row: %w", err)
		}

		return storage.RecordAudit(ctx, tx, model.AuditLog{
			ID:             uuid.NewString(),
			DepartmentSlug: doc.DepartmentSlug,
			Action:         model.AuditActionDelete,
			Outcome:        model.AuditOutcomeSuccess,
			ActorID:        actorID,
			Detail:         fmt.Sprintf("deleted %s (%d chunks)", doc.Filename, len(ids)),
			CreatedAt:      time.Now().UTC(),
		})
	})
	if err != nil {
		s.auditDeleteFailure(ctx, doc, actorID, err)
		return qerrors.New(qerrors.ErrCodeStorageFailed, "delete document", err)
	}

	if len(chunkIDs) > 0 {
		if err := s.index.Delete(ctx, chunkIDs); err != nil {
			s.logger.Warn("vector index cleanup failed after document delete", slog.String("document_id", documentID), slog.Any("error", err))
		}
	}
	if err := s.blobs.Delete(doc.BlobPath); err != nil {
		s.logger.Warn("blob cleanup failed after document delete", slog.String("document_id", documentID), slog.Any("error", err))
	}

	return nil
}

// ReindexAll deletes and re-ingests every document across every
// department, then rebuilds the vector index from scratch. Individual
// document failures don't abort the sweep; they're tallied into the
// summary.
func (s *Service) ReindexAll(ctx context.Context, actorID string) (ReindexSummary, error) {
	docs, err := s.store.AllDocuments(ctx)
	if err != nil {
		return ReindexSummary{}, qerrors.New(qerrors.ErrCodeStorageFailed, "list documents for reindex", err)
	}

	summary := ReindexSummary{
		TotalDocuments: len(docs),
		EngineCounts:   map[string]int{},
		WarningCounts:  map[string]int{},
	}

	for _, doc := range docs {
		if err := s.reindexOne(ctx, doc, &summary); err != nil {
			summary.FailedDocuments++
			if len(summary.Failures) < maxRecordedFailures {
				summary.Failures = append(summary.Failures, ReindexFailure{
					DocumentID: doc.ID, Filename: doc.Filename, Error: err.Error(),
				})
			}
			continue
		}
		summary.SuccessDocuments++
	}

	if err := s.rebuildIndex(ctx); err != nil {
		s.logger.Warn("vector index rebuild failed after reindex-all", slog.Any("error", err))
	}

	outcome := model.AuditOutcomeSuccess
	if summary.FailedDocuments > 0 {
		outcome = model.AuditOutcomeFailure
	}
	s.recordAudit(ctx, "", actorID, model.AuditActionReindexAll, outcome,
		fmt.Sprintf("reindexed %d/%d documents", summary.SuccessDocuments, summary.TotalDocuments))

	return summary, nil
}

// rebuildIndex reads every chunk left in the store after the reindex sweep,
// ordered by id, re-embeds it in batches, and hands the whole set to the
// index's Rebuild so the on-disk graph starts clean instead of carrying
// forward nodes orphaned by the incremental delete/upsert dance each
// document went through. An empty chunk store (e.g. every document failed,
// or there are no documents at all) is left untouched: Index.Rebuild aborts
// without writing when given no chunks, so a previously-persisted index is
// never clobbered by a failed sweep.
func (s *Service) rebuildIndex(ctx context.Context) error {
	chunks, err := s.store.AllChunksOrdered(ctx)
	if err != nil {
		return fmt.Errorf("list chunks for rebuild: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	rebuild := make([]vectorindex.RebuildChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += rebuildEmbedBatchSize {
		end := start + rebuildEmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return fmt.Errorf("re-embed chunks %d-%d for rebuild: %w", start, end, err)
		}

		for i, c := range batch {
			rebuild = append(rebuild, vectorindex.RebuildChunk{
				ChunkID:    c.ID,
				Department: c.DepartmentSlug,
				Vector:     vectors[i],
			})
		}
	}

	return s.index.Rebuild(rebuild)
}

func (s *Service) reindexOne(ctx context.Context, doc model.Document, summary *ReindexSummary) error {
	data, err := s.blobs.ReadBytes(doc.BlobPath)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}

	var chunkIDs []string
	if err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		ids, err := storage.DeleteChunksByDocument(ctx, tx, doc.ID)
		chunkIDs = ids
		return err
	}); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}
	if len(chunkIDs) > 0 {
		if err := s.index.Delete(ctx, chunkIDs); err != nil {
			s.logger.Warn("index delete during reindex failed", slog.String("document_id", doc.ID), slog.Any("error", err))
		}
	}

	result, err := s.ingest.Ingest(ctx, doc, data)
	if err != nil {
		_ = s.store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentStatusFailed, 0, err.Error(), sql.NullTime{})
		return err
	}

	summary.EngineCounts[result.ExtractEngine]++
	for _, w := range result.ExtractWarnings {
		summary.WarningCounts[w]++
	}

	return s.store.UpdateDocumentStatus(ctx, doc.ID, model.DocumentStatusIndexed, result.ChunkCount, "",
		sql.NullTime{Time: time.Now().UTC(), Valid: true})
}

func (s *Service) recordAudit(ctx context.Context, departmentSlug, actorID string, action model.AuditAction, outcome model.AuditOutcome, detail string) {
	err := s.store.RecordAuditDirect(ctx, model.AuditLog{
		ID:             uuid.NewString(),
		DepartmentSlug: departmentSlug,
		Action:         action,
		Outcome:        outcome,
		ActorID:        actorID,
		Detail:         detail,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit log write failed", slog.Any("error", err))
	}
}

func (s *Service) auditUploadFailure(ctx context.Context, departmentSlug, actorID, filename string, cause error) {
	s.recordAudit(ctx, departmentSlug, actorID, model.AuditActionUpload, model.AuditOutcomeFailure,
		fmt.Sprintf("upload %s failed: %v", filename, cause))
}

func (s *Service) auditDeleteFailure(ctx context.Context, doc model.Document, actorID string, cause error) {
	s.recordAudit(ctx, doc.DepartmentSlug, actorID, model.AuditActionDelete, model.AuditOutcomeFailure,
		fmt.Sprintf("delete %s failed: %v", doc.Filename, cause))
}
