// Package chat implements the RAG chat turn: route the message to a
// department, search that department's chunks (falling back to company-wide
// search when the scoped search comes back weak), assemble a grounded
// prompt, and generate an answer with citations back to the source chunks.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/deptqa/internal/embedding"
	qerrors "github.com/northbound/deptqa/internal/errors"
	"github.com/northbound/deptqa/internal/llmclient"
	"github.com/northbound/deptqa/internal/model"
	"github.com/northbound/deptqa/internal/routing"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

const (
	defaultTopK           = 5
	defaultScoreThreshold = 0.55
	historyLimit          = 20
	historyCharBudget     = 1000
	historySnippetChars   = 200
)

// ReasonNotBusiness, ReasonNeedsClarification, and ReasonSearchWeak explain
// why a turn short-circuited before generating an answer.
const (
	ReasonNotBusiness        = "not_business"
	ReasonNeedsClarification = "needs_clarification"
	ReasonSearchWeak         = "search_weak"
)

// RetrievalMeta records what the scoped-fallback search actually did, kept
// alongside the answer for debugging and for the audit trail.
type RetrievalMeta struct {
	ScopeUsed         string
	FallbackTriggered bool
	TopScore          float32
	HitCount          int
	ScoreThreshold    float32
}

// Reply is the result of one chat turn.
type Reply struct {
	Answer           string
	Routing          routing.Result
	Retrieval        RetrievalMeta
	Citations        []model.Citation
	UsedDocumentIDs  []string
	NumContextChunks int
	Reason           string
}

// Service orchestrates one chat turn end to end.
type Service struct {
	store    *storage.Store
	index    vectorindex.Index
	embedder embedding.Provider
	llm      llmclient.Provider
	router   *routing.Classifier
	logger   *slog.Logger

	topK           int
	scoreThreshold float32
}

// New builds a chat Service.
func New(store *storage.Store, index vectorindex.Index, embedder embedding.Provider, llm llmclient.Provider, router *routing.Classifier, logger *slog.Logger) *Service {
	return &Service{
		store: store, index: index, embedder: embedder, llm: llm, router: router, logger: logger,
		topK: defaultTopK, scoreThreshold: defaultScoreThreshold,
	}
}

// Ask runs one chat turn for a session: it loads recent history, routes the
// message to a department, retrieves context, generates an answer, and
// appends both the user and assistant turns to the session's history.
func (s *Service) Ask(ctx context.Context, sess model.ChatSession, userMessage string) (Reply, error) {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return Reply{}, qerrors.New(qerrors.ErrCodeStorageFailed, "list departments", err)
	}
	codes := make([]string, len(departments))
	for i, d := range departments {
		codes[i] = d.Slug
	}

	history, err := s.store.ChatHistory(ctx, sess.ID, historyLimit)
	if err != nil {
		return Reply{}, qerrors.New(qerrors.ErrCodeStorageFailed, "load chat history", err)
	}
	sessionContext := summarizeHistory(history)

	route := s.router.Route(ctx, userMessage, codes, sessionContext)

	if err := s.appendMessage(ctx, sess.ID, model.ChatRoleUser, userMessage, nil); err != nil {
		return Reply{}, err
	}

	if route.NeedsClarification {
		reply := Reply{
			Answer:  route.ClarifyingQuestion,
			Routing: route,
			Reason:  ReasonNeedsClarification,
		}
		if err := s.appendMessage(ctx, sess.ID, model.ChatRoleAssistant, reply.Answer, nil); err != nil {
			return Reply{}, err
		}
		return reply, nil
	}

	if !route.IsBusiness {
		reply := Reply{
			Answer:  "This doesn't look like a work-related question. If it is, could you name the specific policy, procedure, or topic?",
			Routing: route,
			Reason:  ReasonNotBusiness,
		}
		if err := s.appendMessage(ctx, sess.ID, model.ChatRoleAssistant, reply.Answer, nil); err != nil {
			return Reply{}, err
		}
		return reply, nil
	}

	queryVector, err := s.embedder.EmbedOne(ctx, userMessage)
	if err != nil {
		return Reply{}, qerrors.New(qerrors.ErrCodeEmbeddingProvider, "embed chat query", err)
	}

	results, retrievalMeta, err := s.searchWithFallback(ctx, queryVector, route)
	if err != nil {
		return Reply{}, qerrors.New(qerrors.ErrCodeSearchFailed, "scoped search", err)
	}

	searchWeak := retrievalMeta.HitCount == 0 || retrievalMeta.TopScore < retrievalMeta.ScoreThreshold
	if searchWeak {
		reply := Reply{
			Answer:    "I couldn't find anything relevant in the indexed documents. Could you name the specific policy, procedure, or topic, or which department it falls under?",
			Routing:   route,
			Retrieval: retrievalMeta,
			Reason:    ReasonSearchWeak,
		}
		if err := s.appendMessage(ctx, sess.ID, model.ChatRoleAssistant, reply.Answer, nil); err != nil {
			return Reply{}, err
		}
		return reply, nil
	}

	chunkIDs := make([]string, len(results))
	for i, r := range results {
		chunkIDs[i] = r.ChunkID
	}
	chunks, err := s.store.ChunksByIDs(ctx, chunkIDs)
	if err != nil {
		return Reply{}, qerrors.New(qerrors.ErrCodeStorageFailed, "load matched chunks", err)
	}

	citations, contextBlock, usedDocumentIDs := s.buildContextAndCitations(ctx, chunks, results)

	systemPrompt := systemPromptFor(route.PrimaryDepartment)
	prompt := buildPrompt(systemPrompt, history, contextBlock, userMessage)

	answer, err := s.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return Reply{}, qerrors.New(qerrors.ErrCodeLLMProvider, "generate chat answer", err)
	}

	if err := s.appendMessage(ctx, sess.ID, model.ChatRoleAssistant, answer, citations); err != nil {
		return Reply{}, err
	}

	return Reply{
		Answer:           answer,
		Routing:          route,
		Retrieval:        retrievalMeta,
		Citations:        citations,
		UsedDocumentIDs:  usedDocumentIDs,
		NumContextChunks: len(chunks),
	}, nil
}

// searchWithFallback tries the primary department scope, then each
// secondary scope, returning the first that clears the score threshold; if
// none do, it falls back to an unscoped, company-wide search.
func (s *Service) searchWithFallback(ctx context.Context, queryVector []float32, route routing.Result) ([]vectorindex.Result, RetrievalMeta, error) {
	var scopes []string
	if route.PrimaryDepartment != "" && route.PrimaryDepartment != routing.UnknownDepartment {
		scopes = append(scopes, route.PrimaryDepartment)
	}
	for _, d := range route.SecondaryDepartments {
		if d != "" && d != routing.UnknownDepartment && !contains(scopes, d) {
			scopes = append(scopes, d)
		}
	}

	for _, scope := range scopes {
		results, err := s.index.Search(ctx, queryVector, s.topK, []string{scope})
		if err != nil {
			return nil, RetrievalMeta{}, err
		}
		if len(results) > 0 && results[0].Score >= s.scoreThreshold {
			return results, RetrievalMeta{
				ScopeUsed:      scope,
				TopScore:       results[0].Score,
				HitCount:       len(results),
				ScoreThreshold: s.scoreThreshold,
			}, nil
		}
	}

	results, err := s.index.Search(ctx, queryVector, s.topK, nil)
	if err != nil {
		return nil, RetrievalMeta{}, err
	}
	var topScore float32
	if len(results) > 0 {
		topScore = results[0].Score
	}
	return results, RetrievalMeta{
		ScopeUsed:         "company",
		FallbackTriggered: true,
		TopScore:          topScore,
		HitCount:          len(results),
		ScoreThreshold:    s.scoreThreshold,
	}, nil
}

// docAggregate accumulates the pages or chunk indices a document's matched
// chunks touched, en route to a single citation per document.
type docAggregate struct {
	title   string
	hasPage bool
	pages   map[int]struct{}
	chunks  map[int]struct{}
}

// buildContextAndCitations joins matched chunk text for the prompt and
// aggregates the matches by owning document into one citation per document:
// a page_set locator if any matched chunk carried a page number, otherwise
// a chunk_set locator of 1-based chunk indices. Document lookups are cached
// per call since the same document commonly contributes more than one
// matching chunk. The returned document ID slice is meta.usedDocumentIds,
// in the same (title, documentId) order as the citations themselves.
func (s *Service) buildContextAndCitations(ctx context.Context, chunks []model.Chunk, results []vectorindex.Result) ([]model.Citation, string, []string) {
	docNames := make(map[string]string)
	aggByDoc := make(map[string]*docAggregate)
	var docOrder []string
	var parts []string

	for _, c := range chunks {
		parts = append(parts, c.Text)

		name, ok := docNames[c.DocumentID]
		if !ok {
			if doc, err := s.store.GetDocument(ctx, c.DocumentID); err == nil {
				name = doc.Filename
			} else {
				name = c.DocumentID
			}
			docNames[c.DocumentID] = name
		}

		agg, ok := aggByDoc[c.DocumentID]
		if !ok {
			agg = &docAggregate{title: name, pages: map[int]struct{}{}, chunks: map[int]struct{}{}}
			aggByDoc[c.DocumentID] = agg
			docOrder = append(docOrder, c.DocumentID)
		}
		if c.Page != nil {
			agg.hasPage = true
			agg.pages[*c.Page] = struct{}{}
		}
		agg.chunks[c.SeqNo+1] = struct{}{}
	}

	citations := make([]model.Citation, 0, len(aggByDoc))
	for _, docID := range docOrder {
		agg := aggByDoc[docID]
		locator := model.CitationLocator{Type: model.LocatorChunkSet, Chunks: sortedInts(agg.chunks)}
		if agg.hasPage {
			locator = model.CitationLocator{Type: model.LocatorPageSet, Pages: sortedInts(agg.pages)}
		}
		citations = append(citations, model.Citation{
			DocumentID: docID,
			Title:      agg.title,
			Locator:    locator,
		})
	}

	sort.Slice(citations, func(i, j int) bool {
		if citations[i].Title != citations[j].Title {
			return citations[i].Title < citations[j].Title
		}
		return citations[i].DocumentID < citations[j].DocumentID
	})

	usedDocumentIDs := make([]string, len(citations))
	for i, c := range citations {
		usedDocumentIDs[i] = c.DocumentID
	}

	return citations, strings.Join(parts, "\n\n"), usedDocumentIDs
}

// sortedInts returns the keys of a set in ascending order.
func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (s *Service) appendMessage(ctx context.Context, sessionID string, role model.ChatRole, content string, citations []model.Citation) error {
	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Citations: citations,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendChatMessage(ctx, msg); err != nil {
		return qerrors.New(qerrors.ErrCodeStorageFailed, "append chat message", err)
	}
	return nil
}

// summarizeHistory folds recent turns into a bounded block of text for the
// routing classifier, newest turns first until the character budget runs
// out, then reversed back into chronological order.
func summarizeHistory(history []model.ChatMessage) string {
	var lines []string
	budget := historyCharBudget
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		line := fmt.Sprintf("%s: %s\n", m.Role, snippet(m.Content, historySnippetChars))
		if len(line) > budget {
			break
		}
		budget -= len(line)
		lines = append([]string{line}, lines...)
	}
	return strings.Join(lines, "")
}

func buildPrompt(systemPrompt string, history []model.ChatMessage, context, userMessage string) string {
	var historyLines []string
	for _, m := range history {
		role := "User"
		if m.Role == model.ChatRoleAssistant {
			role = "Assistant"
		}
		historyLines = append(historyLines, fmt.Sprintf("%s: %s", role, m.Content))
	}
	if len(history) == 0 || history[len(history)-1].Role != model.ChatRoleUser || history[len(history)-1].Content != userMessage {
		historyLines = append(historyLines, "User: "+userMessage)
	}

	return fmt.Sprintf(`[system]
%s

[Conversation history]
%s

[Retrieved context]
%s

[Instruction]
Answer only the Question below.
Base your answer only on the Retrieved context and Conversation history.
If the context is insufficient to answer confidently, reply with the literal phrase "手元の資料からは判断できません" instead of guessing.

[Question]
%s`, systemPrompt, strings.Join(historyLines, "\n"), context, userMessage)
}

func systemPromptFor(departmentSlug string) string {
	base := "You are an internal company Q&A assistant. Answer concisely and politely, grounded only in the provided internal documents. If the context is insufficient, say you can't determine the answer from the available material rather than guessing."

	roles := map[string]string{
		"hr":      "You specialize in HR and general affairs questions.",
		"finance": "You specialize in finance and accounting questions.",
		"legal":   "You specialize in legal and compliance questions.",
		"it":      "You specialize in IT and systems questions.",
	}

	role, ok := roles[departmentSlug]
	if !ok {
		role = "You handle general inquiries across all departments."
	}
	return base + "\n" + role
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
