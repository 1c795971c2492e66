// Package model defines the plain data types shared across the department
// Q&A service: departments, documents, chunks, chat sessions, and the
// audit trail.
package model

import "time"

// Department is a scope under which documents are uploaded and searched.
// Every document and chat session belongs to exactly one department.
type Department struct {
	Slug        string
	Name        string
	Description string
	CreatedAt   time.Time
}

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusIndexed  DocumentStatus = "indexed"
	DocumentStatusFailed   DocumentStatus = "failed"
	DocumentStatusDeleting DocumentStatus = "deleting"
)

// Document is an uploaded file scoped to a department.
type Document struct {
	ID              string
	DepartmentSlug  string
	Filename        string
	ContentType     string
	SizeBytes       int64
	ContentHash     string
	BlobPath        string
	Status          DocumentStatus
	FailureReason   string
	ChunkCount      int
	UploadedBy      string
	CreatedAt       time.Time
	IndexedAt       time.Time
}

// Chunk is one retrievable slice of a document's extracted text, with the
// vector index ID it was stored under. Page is 1-based and set only for
// chunks split out of a PDF page; it is nil for every other content type.
type Chunk struct {
	ID             string
	DocumentID     string
	DepartmentSlug string
	SeqNo          int
	Page           *int
	Text           string
	TokenEstimate  int
	VectorID       uint64
	CreatedAt      time.Time
}

// CitationLocatorType distinguishes a page-addressed citation from a
// chunk-addressed one, depending on whether any of its underlying hits
// carried a page number.
type CitationLocatorType string

const (
	LocatorPageSet  CitationLocatorType = "page_set"
	LocatorChunkSet CitationLocatorType = "chunk_set"
)

// CitationLocator points at the specific pages or chunks within a document
// that backed an answer.
type CitationLocator struct {
	Type   CitationLocatorType
	Pages  []int // sorted, unique, 1-based page numbers
	Chunks []int // sorted, unique, 1-based chunk indices (seqNo + 1)
}

// Citation is one source document surfaced as supporting evidence for an
// answer, with every retrieved chunk from that document aggregated into a
// single locator.
type Citation struct {
	DocumentID string
	Title      string
	Locator    CitationLocator
}

// ChatRole distinguishes user turns from assistant turns.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatSession is a single conversation scoped to a department and a user.
type ChatSession struct {
	ID             string
	DepartmentSlug string
	UserID         string
	Title          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChatMessage is one turn in a ChatSession.
type ChatMessage struct {
	ID         string
	SessionID  string
	Role       ChatRole
	Content    string
	Citations  []Citation
	CreatedAt  time.Time
}

// AuditAction names a mutating operation recorded in the audit trail.
type AuditAction string

const (
	AuditActionUpload      AuditAction = "document.upload"
	AuditActionDelete      AuditAction = "document.delete"
	AuditActionReindexAll  AuditAction = "index.reindex_all"
	AuditActionChatMessage AuditAction = "chat.message"
)

// AuditOutcome is the terminal result of a mutating operation.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
)

// AuditLog is one append-only row recording a mutating operation.
type AuditLog struct {
	ID             string
	DepartmentSlug string
	Action         AuditAction
	Outcome        AuditOutcome
	ActorID        string
	Detail         string
	CreatedAt      time.Time
}
