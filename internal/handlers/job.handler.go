package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/fasthttp/router"
)

const headerIdempotencyKey = "Idempotency-Key"

type JobService interface {
	Create(ctx context.Context, req model.CreateJobRequest) (*model.Job, bool, error)
	Get(ctx context.Context, id string) (*model.Job, error)
}

type JobHandler struct {
	svc JobService
}

func RegisterJobRoutes(g *router.Group, h *JobHandler) {
	g.POST("/jobs", h.CreateJob)
	g.GET("/jobs/{jobId}", h.GetJob)
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

type createJobRequest struct {
	OwnerID        string          `json:"ownerId"`
	Kind           model.JobKind   `json:"kind"`
	Params         json.RawMessage `json:"params"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type createJobResponse struct {
	JobID  string          `json:"jobId"`
	Status model.JobStatus `json:"status"`
}

func (h *JobHandler) CreateJob(ctx *xhttp.RequestCtx) {
	var req createJobRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(string(ctx.Request.Header.Peek(headerIdempotencyKey)))
	}

	job, created, err := h.svc.Create(ctx, model.CreateJobRequest{
		OwnerID:        req.OwnerID,
		Kind:           req.Kind,
		Params:         req.Params,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(ctx, err, xhttp.StatusServiceUnavailable)
		return
	}

	status := xhttp.StatusOK
	if created {
		status = xhttp.StatusCreated
	}
	writeJSON(ctx, status, createJobResponse{JobID: job.ID, Status: job.Status})
}

func (h *JobHandler) GetJob(ctx *xhttp.RequestCtx) {
	id := pathParam(ctx, "jobId")
	job, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err, xhttp.StatusServiceUnavailable)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, job)
}
