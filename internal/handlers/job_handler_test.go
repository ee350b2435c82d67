package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestJobHandler_CreateJob(t *testing.T) {
	body := []byte(`{"ownerId":"user-1","kind":"transformation","params":{"text":"hello"}}`)

	t.Run("new job is 201", func(t *testing.T) {
		svc := new(MockJobService)
		h := NewJobHandler(svc)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(r model.CreateJobRequest) bool {
			return r.OwnerID == "user-1" && r.Kind == model.JobKindTransformation &&
				string(r.Params) == `{"text":"hello"}` && r.IdempotencyKey == "k-1"
		})).Return(&model.Job{ID: "job-1", Status: model.JobStatusQueued}, true, nil)

		ctx := setupTestContext("POST", "/api/v1/jobs", body)
		ctx.Request.Header.Set("Idempotency-Key", "k-1")
		h.CreateJob(ctx)

		assert.Equal(t, xhttp.StatusCreated, ctx.Response.StatusCode())
		out := decodeBody(t, ctx)
		assert.Equal(t, "job-1", out["jobId"])
		assert.Equal(t, "queued", out["status"])
		svc.AssertExpectations(t)
	})

	t.Run("body key wins over header and replay is 200", func(t *testing.T) {
		svc := new(MockJobService)
		h := NewJobHandler(svc)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(r model.CreateJobRequest) bool {
			return r.IdempotencyKey == "from-body"
		})).Return(&model.Job{ID: "job-1", Status: model.JobStatusCompleted}, false, nil)

		ctx := setupTestContext("POST", "/api/v1/jobs",
			[]byte(`{"ownerId":"user-1","kind":"transformation","params":{"text":"x"},"idempotencyKey":"from-body"}`))
		ctx.Request.Header.Set("Idempotency-Key", "from-header")
		h.CreateJob(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "completed", decodeBody(t, ctx)["status"])
	})

	t.Run("invalid json", func(t *testing.T) {
		h := NewJobHandler(new(MockJobService))
		ctx := setupTestContext("POST", "/api/v1/jobs", []byte(`{`))
		h.CreateJob(ctx)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "invalid_json", decodeBody(t, ctx)["error"])
	})

	errCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", model.NewValidationError("params.text", "is required"), xhttp.StatusBadRequest, "validation"},
		{"insufficient balance", fmt.Errorf("estimate 10: %w", model.ErrInsufficientBalance), xhttp.StatusPaymentRequired, "insufficient_balance"},
		{"storage", fmt.Errorf("create job: %w", model.ErrStorageUnavailable), xhttp.StatusServiceUnavailable, "storage_unavailable"},
		{"unknown", errors.New("boom"), xhttp.StatusInternalServerError, "internal"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockJobService)
			h := NewJobHandler(svc)
			svc.On("Create", mock.Anything, mock.Anything).Return(nil, false, tc.err)

			ctx := setupTestContext("POST", "/api/v1/jobs", body)
			h.CreateJob(ctx)

			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.Equal(t, tc.code, decodeBody(t, ctx)["error"])
		})
	}
}

func TestJobHandler_ValidationFieldIsReported(t *testing.T) {
	svc := new(MockJobService)
	h := NewJobHandler(svc)
	svc.On("Create", mock.Anything, mock.Anything).
		Return(nil, false, model.NewValidationError("kind", "unknown kind %q", "poem"))

	ctx := setupTestContext("POST", "/api/v1/jobs", []byte(`{"ownerId":"u","kind":"poem"}`))
	h.CreateJob(ctx)

	out := decodeBody(t, ctx)
	assert.Equal(t, "kind", out["field"])
	assert.Contains(t, out["message"], "poem")
}

func TestJobHandler_GetJob(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockJobService)
		h := NewJobHandler(svc)
		svc.On("Get", mock.Anything, "job-1").Return(&model.Job{
			ID:      "job-1",
			OwnerID: "user-1",
			Kind:    model.JobKindTransformation,
			Status:  model.JobStatusCompleted,
			Params:  model.TransformationParams{Text: "hi"},
			Output:  model.TransformationOutput{Text: "hello"},
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/jobs/job-1", nil)
		ctx.SetUserValue("jobId", "job-1")
		h.GetJob(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		out := decodeBody(t, ctx)
		assert.Equal(t, "job-1", out["id"])
		assert.Equal(t, "completed", out["status"])
		assert.NotNil(t, out["outputs"])
	})

	t.Run("missing", func(t *testing.T) {
		svc := new(MockJobService)
		h := NewJobHandler(svc)
		svc.On("Get", mock.Anything, "nope").Return(nil, fmt.Errorf("job nope: %w", model.ErrNotFound))

		ctx := setupTestContext("GET", "/api/v1/jobs/nope", nil)
		ctx.SetUserValue("jobId", "nope")
		h.GetJob(ctx)

		assert.Equal(t, xhttp.StatusNotFound, ctx.Response.StatusCode())
	})
}
