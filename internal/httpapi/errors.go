package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"levi/internal/embedding"
	"levi/internal/logger"
	"levi/internal/service"
	"levi/internal/session"
	"levi/internal/vectorindex"
)

// apiError is an error with the status and code it is reported under.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(code, message string) *apiError {
	return &apiError{status: http.StatusBadRequest, code: code, message: message}
}

var errorCodes = []struct {
	target error
	status int
	code   string
}{
	{session.ErrNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{service.ErrEmptyDocument, http.StatusBadRequest, "EMPTY_DOCUMENT"},
	{service.ErrEmptyQuery, http.StatusBadRequest, "MISSING_QUERY"},
	{service.ErrNoCorpus, http.StatusServiceUnavailable, "CORPUS_UNAVAILABLE"},
	{service.ErrNoLoader, http.StatusNotImplemented, "REINDEX_UNSUPPORTED"},
	{embedding.ErrUnavailable, http.StatusServiceUnavailable, "EMBEDDING_UNAVAILABLE"},
	{vectorindex.ErrCorruptIndex, http.StatusInternalServerError, "CORRUPT_INDEX"},
	{vectorindex.ErrDimensionMismatch, http.StatusInternalServerError, "DIMENSION_MISMATCH"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
}

// writeError renders err in the error envelope:
//
//	{"success": false, "error": {"code": "...", "message": "..."}}
func writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", err.Error()
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		status, code, message = apiErr.status, apiErr.code, apiErr.message
	} else {
		for _, ec := range errorCodes {
			if errors.Is(err, ec.target) {
				status, code = ec.status, ec.code
				break
			}
		}
	}
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
