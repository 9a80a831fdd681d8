package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"deepbuild/internal/gateway/repository/artifact"
	"deepbuild/internal/gateway/repository/projectstore"
	"deepbuild/internal/gateway/service/generation"
	"deepbuild/internal/gateway/service/transcript"
	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/payload"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the project API.
type Handler struct {
	orch       *generation.Orchestrator
	transcript *transcript.Service
	exporter   *artifact.Exporter
}

// New builds a handler. exporter may be nil, which disables export.
func New(orch *generation.Orchestrator, tr *transcript.Service, exporter *artifact.Exporter) *Handler {
	return &Handler{orch: orch, transcript: tr, exporter: exporter}
}

// Register adds every route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /api/projects", h.listProjects)
	mux.HandleFunc("POST /api/projects", h.createProject)
	mux.HandleFunc("GET /api/projects/{id}", h.getProject)
	mux.HandleFunc("DELETE /api/projects/{id}", h.deleteProject)
	mux.HandleFunc("GET /api/projects/{id}/question", h.pendingQuestion)
	mux.HandleFunc("POST /api/projects/{id}/answers", h.submitAnswer)
	mux.HandleFunc("POST /api/projects/{id}/generate", h.generate)
	mux.HandleFunc("POST /api/projects/{id}/files/regenerate", h.regenerate)
	mux.HandleFunc("GET /api/projects/{id}/transcript", h.history)
	mux.HandleFunc("GET /api/projects/{id}/transcript/ws", h.transcriptWS)
	mux.HandleFunc("POST /api/projects/{id}/export", h.export)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	var (
		pe   *payload.Error
		ne   *llmclient.NetworkError
		ae   *llmclient.AuthError
		pre  *llmclient.ProviderError
		perm *llmclient.PermanentError
	)
	switch {
	case errors.Is(err, generation.ErrNoProject),
		errors.Is(err, generation.ErrUnknownFile),
		errors.Is(err, projectstore.ErrNotFound),
		errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generation.ErrBusy),
		errors.Is(err, generation.ErrQuestionsPending),
		errors.Is(err, generation.ErrNoPendingQuestion),
		errors.Is(err, artifact.ErrNothingToExport):
		return http.StatusConflict
	case errors.Is(err, generation.ErrEmptyDescription),
		errors.Is(err, generation.ErrEmptyAnswer),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &pe), errors.As(err, &ne), errors.As(err, &ae),
		errors.As(err, &pre), errors.As(err, &perm),
		errors.Is(err, llmclient.ErrEmptyReply):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

// decodeBody reads a JSON object into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", errBadRequest, err)
	}
	return nil
}

func projectID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
