package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/kiranshivaraju/genforge/internal/api/response"
	"github.com/kiranshivaraju/genforge/internal/jobs"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// maxJSONBody bounds request bodies on JSON endpoints.
const maxJSONBody = 1 << 20

// JobService is the part of jobs.Service the job endpoints use.
type JobService interface {
	CreateJob(ctx context.Context, p jobs.CreateJobParams) (*models.Job, error)
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID, limit, offset int) (jobs.JobPage, error)
}

type createJobRequest struct {
	Tool   string         `json:"tool"`
	Prompt string         `json:"prompt"`
	Inputs map[string]any `json:"inputs"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req createJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		job, err := svc.CreateJob(r.Context(), jobs.CreateJobParams{
			Tool:      req.Tool,
			Prompt:    req.Prompt,
			Inputs:    req.Inputs,
			UserID:    id.UserID,
			SessionID: id.SessionID,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.OK(w, response.Fields{"job": job.Summary()})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/jobs/{id}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		jobID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			// Malformed ids cannot name a job.
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}

		job, err := svc.GetJob(r.Context(), jobID, id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.OK(w, response.Fields{"job": job})
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		limit, ok := intParam(w, r, "limit")
		if !ok {
			return
		}
		offset, ok := intParam(w, r, "offset")
		if !ok {
			return
		}

		page, err := svc.ListJobs(r.Context(), id.UserID, limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		list := page.Jobs
		if list == nil {
			list = []*models.Job{}
		}
		response.OK(w, response.Fields{
			"jobs": list,
			"pagination": response.Pagination{
				Limit:   page.Limit,
				Offset:  page.Offset,
				Total:   page.Total,
				HasMore: page.HasMore(),
			},
		})
	}
}

// intParam reads an optional non-negative integer query parameter. Absent
// parameters read as 0, which the service replaces with its default.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a non-negative integer",
			map[string]any{"field": name})
		return 0, false
	}
	return n, true
}

func identity(w http.ResponseWriter, r *http.Request) (mw.Identity, bool) {
	id, ok := mw.GetIdentity(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session", nil)
	}
	return id, ok
}
