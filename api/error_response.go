package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/clipjobs"
)

// APIError is the standard error response body.
// Example: { "error": { "code": "not_found", "message": "job not found" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// jsonError sends a structured error response.
func jsonError(ctx *gin.Context, status int, code, msg string) {
	ctx.JSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func badRequest(ctx *gin.Context, msg string) {
	jsonError(ctx, http.StatusBadRequest, "bad_request", msg)
}

func notFound(ctx *gin.Context, msg string) {
	jsonError(ctx, http.StatusNotFound, "not_found", msg)
}

func internal(ctx *gin.Context, msg string) {
	jsonError(ctx, http.StatusInternalServerError, "internal_error", msg)
}

// storeError maps store sentinels to HTTP responses.
func storeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, clipjobs.ErrJobNotFound):
		notFound(ctx, "job not found")
	case errors.Is(err, clipjobs.ErrInvalidTransition), errors.Is(err, clipjobs.ErrJobTerminal):
		jsonError(ctx, http.StatusConflict, "conflict", err.Error())
	default:
		internal(ctx, err.Error())
	}
}
