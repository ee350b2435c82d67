package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	return json.Unmarshal(ctx.PostBody(), dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("response encoding failed", "error", err, "path", string(ctx.Path()))
		status = xhttp.StatusInternalServerError
		b = []byte(`{"error":"internal","message":"response encoding failed"}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, code, msg string) {
	writeJSON(ctx, status, errorResponse{Error: code, Message: msg})
}

// writeServiceError maps a service error to a status code. storageStatus is
// what StorageUnavailable becomes on this route.
func writeServiceError(ctx *xhttp.RequestCtx, err error, storageStatus int) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(ctx, xhttp.StatusBadRequest, errorResponse{Error: "validation", Message: verr.Reason, Field: verr.Field})
	case errors.Is(err, model.ErrValidation):
		writeError(ctx, xhttp.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, model.ErrInsufficientBalance):
		writeError(ctx, xhttp.StatusPaymentRequired, "insufficient_balance", err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, model.ErrIllegalTransition), errors.Is(err, model.ErrJobNotQueued):
		writeError(ctx, xhttp.StatusConflict, "conflict", err.Error())
	case errors.Is(err, model.ErrRateLimited):
		writeError(ctx, xhttp.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, model.ErrStorageUnavailable):
		logger.Error("storage unavailable", "error", err, "path", string(ctx.Path()))
		writeError(ctx, storageStatus, "storage_unavailable", "storage is temporarily unavailable")
	default:
		logger.Error("unhandled service error", "error", err, "path", string(ctx.Path()))
		writeError(ctx, xhttp.StatusInternalServerError, "internal", "internal error")
	}
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string, def int) (int, error) {
	v := query(ctx, key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.NewValidationError(key, "must be an integer")
	}
	return n, nil
}
