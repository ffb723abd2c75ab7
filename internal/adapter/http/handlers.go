package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Strob0t/LLManager/internal/adapter/litellm"
	"github.com/Strob0t/LLManager/internal/config"
	"github.com/Strob0t/LLManager/internal/domain/decision"
	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
	"github.com/Strob0t/LLManager/internal/logger"
	"github.com/Strob0t/LLManager/internal/service"
)

// HeaderRunID carries the id of a run that was created but failed.
const HeaderRunID = "X-Run-ID"

// defaultListLimit caps GET /examples when no limit is given.
const defaultListLimit = 100

// Handlers holds the HTTP handlers of the decision API.
type Handlers struct {
	Workflow *service.WorkflowService
	LiteLLM  *litellm.Client // optional, serves GET /models
	Limits   config.Limits
}

func (h *Handlers) bodyLimit() int64 {
	if h.Limits.MaxRequestBodyBytes > 0 {
		return h.Limits.MaxRequestBodyBytes
	}
	return 1 << 20
}

type startRunRequest struct {
	ThreadID string             `json:"thread_id,omitempty"`
	Query    string             `json:"query,omitempty"`
	Messages []workflow.Message `json:"messages,omitempty"`
	Config   decision.Criteria  `json:"config"`
}

// StartRun handles POST /api/v1/runs. The run executes up to the review
// gate before the response is written.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startRunRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	run, err := h.Workflow.Start(r.Context(), workflow.StartRequest{
		TenantID: logger.Tenant(r.Context()),
		ThreadID: req.ThreadID,
		Query:    req.Query,
		Messages: req.Messages,
		Config:   req.Config,
	})
	if err != nil {
		if run != nil {
			w.Header().Set(HeaderRunID, run.ID)
		}
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Workflow.Get(r.Context(), logger.Tenant(r.Context()), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListReviews handles GET /api/v1/reviews: runs waiting for a reviewer.
func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Workflow.ListPending(r.Context(), logger.Tenant(r.Context()))
	if err != nil {
		writeDomainError(w, err, "no pending reviews")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// ResumeRun handles POST /api/v1/runs/{id}/resume. Malformed bodies are
// invalid human responses, not bad requests.
func (h *Handlers) ResumeRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.bodyLimit()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := review.ParseResponse(body)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}

	run, err := h.Workflow.Resume(r.Context(), logger.Tenant(r.Context()), urlParam(r, "id"), resp)
	if err != nil {
		if run != nil {
			w.Header().Set(HeaderRunID, run.ID)
		}
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListExamples handles GET /api/v1/examples?query=&limit=.
func (h *Handlers) ListExamples(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	examples, err := h.Workflow.ListExamples(r.Context(), logger.Tenant(r.Context()), r.URL.Query().Get("query"), limit)
	if err != nil {
		writeDomainError(w, err, "no examples")
		return
	}
	writeJSON(w, http.StatusOK, examples)
}

// ListReflections handles GET /api/v1/reflections.
func (h *Handlers) ListReflections(w http.ResponseWriter, r *http.Request) {
	refl, err := h.Workflow.ListReflections(r.Context(), logger.Tenant(r.Context()))
	if err != nil {
		writeDomainError(w, err, "no reflections")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"reflections": refl})
}

// ListModels handles GET /api/v1/models.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	if h.LiteLLM == nil {
		writeError(w, http.StatusServiceUnavailable, "model proxy not configured")
		return
	}
	models, err := h.LiteLLM.ListModels(r.Context())
	if err != nil {
		slog.Error("litellm unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "LLM service unavailable")
		return
	}
	if models == nil {
		models = []litellm.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, models)
}
