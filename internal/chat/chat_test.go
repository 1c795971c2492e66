package chat_test

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/chat"
	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/routing"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }
func (f fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}
func (f fakeEmbedder) Dimensions() int             { return len(f.vec) }
func (f fakeEmbedder) ModelName() string           { return "fake" }
func (f fakeEmbedder) Probe(context.Context) error { return nil }

type fakeLLM struct {
	routingJSON string
	answer      string
}

func (f fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.answer, nil
}
func (f fakeLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.routingJSON, nil
}

func newTestStack(t *testing.T, routingJSON, answer string) (*chat.Service, *storage.Store, vectorindex.Index) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.Open(filepath.Join(dir, "deptqa.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.UpsertDepartment(context.Background(), model.Department{Slug: "hr", Name: "HR", CreatedAt: time.Now().UTC()}))

	idx, err := vectorindex.Open(filepath.Join(dir, "index.hnsw"), vectorindex.Config{Dimensions: 4}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	embedder := fakeEmbedder{vec: []float32{1, 0, 0, 0}}
	llm := fakeLLM{routingJSON: routingJSON, answer: answer}
	router := routing.New(llm, slog.Default())

	return chat.New(store, idx, embedder, llm, router, slog.Default()), store, idx
}

func TestAskReturnsNotBusinessShortCircuit(t *testing.T) {
	routingJSON := `{"is_business": false, "business_confidence": 0.9, "primary_department": "unknown",
		"department_confidence": 0, "secondary_departments": [], "needs_clarification": false, "clarifying_question": ""}`
	svc, store, _ := newTestStack(t, routingJSON, "unused")

	sess := model.ChatSession{ID: "s1", DepartmentSlug: "hr", UserID: "u1", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.UpsertChatSession(context.Background(), sess))

	reply, err := svc.Ask(context.Background(), sess, "what's the weather today?")
	require.NoError(t, err)
	require.Equal(t, chat.ReasonNotBusiness, reply.Reason)
}

func TestAskReturnsSearchWeakWhenIndexEmpty(t *testing.T) {
	routingJSON := `{"is_business": true, "business_confidence": 0.9, "primary_department": "hr",
		"department_confidence": 0.8, "secondary_departments": [], "needs_clarification": false, "clarifying_question": ""}`
	svc, store, _ := newTestStack(t, routingJSON, "unused")

	sess := model.ChatSession{ID: "s1", DepartmentSlug: "hr", UserID: "u1", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.UpsertChatSession(context.Background(), sess))

	reply, err := svc.Ask(context.Background(), sess, "what's our parental leave policy?")
	require.NoError(t, err)
	require.Equal(t, chat.ReasonSearchWeak, reply.Reason)
}

func TestAskGeneratesGroundedAnswerWithCitations(t *testing.T) {
	routingJSON := `{"is_business": true, "business_confidence": 0.9, "primary_department": "hr",
		"department_confidence": 0.8, "secondary_departments": [], "needs_clarification": false, "clarifying_question": ""}`
	svc, store, idx := newTestStack(t, routingJSON, "Employees get 20 days of paid leave per year.")

	doc := model.Document{ID: "doc-1", DepartmentSlug: "hr", Filename: "handbook.md", Status: model.DocumentStatusIndexed, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.InsertDocument(context.Background(), doc))

	require.NoError(t, idx.Upsert(context.Background(), []string{"chunk-1"}, []string{"hr"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return storage.InsertChunks(context.Background(), tx, []model.Chunk{{
			ID: "chunk-1", DocumentID: "doc-1", DepartmentSlug: "hr", SeqNo: 0,
			Text: "Employees accrue 20 days of paid leave per year.", CreatedAt: time.Now().UTC(),
		}})
	}))

	sess := model.ChatSession{ID: "s1", DepartmentSlug: "hr", UserID: "u1", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.UpsertChatSession(context.Background(), sess))

	reply, err := svc.Ask(context.Background(), sess, "how many paid leave days do we get?")
	require.NoError(t, err)
	require.True(t, strings.Contains(reply.Answer, "paid leave") || reply.Reason == chat.ReasonSearchWeak)
	if reply.Reason != chat.ReasonSearchWeak {
		require.Len(t, reply.Citations, 1)
		require.Equal(t, "doc-1", reply.Citations[0].DocumentID)
		require.Equal(t, model.LocatorChunkSet, reply.Citations[0].Locator.Type)
		require.Equal(t, []int{1}, reply.Citations[0].Locator.Chunks)
		require.Equal(t, []string{"doc-1"}, reply.UsedDocumentIDs)
		require.Equal(t, 1, reply.NumContextChunks)
	}
}

func TestAskAggregatesMultiPageCitationsByDocument(t *testing.T) {
	routingJSON := `{"is_business": true, "business_confidence": 0.9, "primary_department": "hr",
		"department_confidence": 0.8, "secondary_departments": [], "needs_clarification": false, "clarifying_question": ""}`
	svc, store, idx := newTestStack(t, routingJSON, "Employees get 20 days of paid leave per year.")

	doc := model.Document{ID: "doc-1", DepartmentSlug: "hr", Filename: "handbook.pdf", Status: model.DocumentStatusIndexed, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.InsertDocument(context.Background(), doc))

	page1, page3 := 1, 3
	require.NoError(t, idx.Upsert(context.Background(),
		[]string{"chunk-1", "chunk-2"}, []string{"hr", "hr"},
		[][]float32{{1, 0, 0, 0}, {0.9, 0.1, 0, 0}}))
	require.NoError(t, store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return storage.InsertChunks(context.Background(), tx, []model.Chunk{
			{ID: "chunk-1", DocumentID: "doc-1", DepartmentSlug: "hr", SeqNo: 0, Page: &page1,
				Text: "Employees accrue 20 days of paid leave per year.", CreatedAt: time.Now().UTC()},
			{ID: "chunk-2", DocumentID: "doc-1", DepartmentSlug: "hr", SeqNo: 1, Page: &page3,
				Text: "Unused leave carries over up to 5 days.", CreatedAt: time.Now().UTC()},
		})
	}))

	sess := model.ChatSession{ID: "s1", DepartmentSlug: "hr", UserID: "u1", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.UpsertChatSession(context.Background(), sess))

	reply, err := svc.Ask(context.Background(), sess, "how many paid leave days do we get?")
	require.NoError(t, err)
	if reply.Reason != chat.ReasonSearchWeak {
		require.Len(t, reply.Citations, 1)
		require.Equal(t, model.LocatorPageSet, reply.Citations[0].Locator.Type)
		require.Equal(t, []int{1, 3}, reply.Citations[0].Locator.Pages)
	}
}
