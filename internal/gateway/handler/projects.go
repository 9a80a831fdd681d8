package handler

import (
	"net/http"
	"strings"

	"deepbuild/internal/types"
)

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	ps := h.orch.List(r.Context())
	if ps == nil {
		ps = []types.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": ps})
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Description string `json:"description"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.orch.CreateProject(r.Context(), in.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.orch.Project(r.Context(), projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Delete(r.Context(), projectID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pendingQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok, err := h.orch.PendingQuestion(r.Context(), projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"question": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q})
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Answer string `json:"answer"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	next, err := h.orch.SubmitAnswer(r.Context(), projectID(r), in.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"next_question": next, "done": next == nil})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	id := projectID(r)
	if err := h.orch.StartGenerateAll(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"project_id": id, "started": true})
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	id := projectID(r)
	path := strings.TrimSpace(in.Path)
	if err := h.orch.StartRegenerateFile(r.Context(), id, path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"project_id": id, "path": path, "started": true})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id := projectID(r)
	if _, err := h.orch.Project(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	msgs := h.transcript.History(id)
	if msgs == nil {
		msgs = []types.TranscriptMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "export is not configured"})
		return
	}
	p, err := h.orch.Project(r.Context(), projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.exporter.Export(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
