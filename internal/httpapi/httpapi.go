// Package httpapi exposes the department Q&A service over HTTP: document
// upload/delete/reindex and chat turns. It is a thin JSON layer over
// docsvc and chat — no business logic lives here.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/northbound/deptqa/internal/chat"
	"github.com/northbound/deptqa/internal/docsvc"
	qerrors "github.com/northbound/deptqa/internal/errors"
	"github.com/northbound/deptqa/internal/ingest"
)

// Server wires docsvc and chat into a net/http.Handler. No routing
// framework is pulled in: the multiplexer is the standard library's method-and-path ServeMux
// introduced in Go 1.22, which covers every route this API needs without
// an extra dependency.
type Server struct {
	docs     *docsvc.Service
	chat     *chat.Service
	sessions *chat.SessionManager
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New builds a Server with all routes registered.
func New(docs *docsvc.Service, chatSvc *chat.Service, sessions *chat.SessionManager, logger *slog.Logger) *Server {
	s := &Server{docs: docs, chat: chatSvc, sessions: sessions, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/departments/{dept}/documents", s.handleUpload)
	s.mux.HandleFunc("DELETE /v1/documents/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /v1/reindex", s.handleReindexAll)
	s.mux.HandleFunc("POST /v1/chat", s.handleChat)
	s.mux.HandleFunc("GET /v1/healthz", s.handleHealthz)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
	ActorID  string `json:"actor_id"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	dept := r.PathValue("dept")

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	contentType := ingest.DetectContentType(req.Filename)
	doc, err := s.docs.Upload(r.Context(), dept, req.ActorID, req.Filename, contentType, req.Content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	actorID := r.URL.Query().Get("actor_id")

	if err := s.docs.Delete(r.Context(), id, actorID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reindexRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *Server) handleReindexAll(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	summary, err := s.docs.ReindexAll(r.Context(), req.ActorID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type chatRequest struct {
	SessionID      string `json:"session_id"`
	DepartmentSlug string `json:"department_slug"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
}

type chatResponse struct {
	SessionID string      `json:"session_id"`
	Reply     chat.Reply  `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, err := s.sessions.Open(r.Context(), req.SessionID, req.DepartmentSlug, req.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	reply, err := s.chat.Ask(r.Context(), sess, req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: sess.ID, Reply: reply})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch qerrors.GetCode(err) {
	case qerrors.ErrCodeDocumentNotFound, qerrors.ErrCodeSessionNotFound:
		status = http.StatusNotFound
	default:
		if qerrors.GetCategory(err) == qerrors.CategoryValidation {
			status = http.StatusBadRequest
		}
	}
	s.logger.Error("request failed", "error", err, "status", status)
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
