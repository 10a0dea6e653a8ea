package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrInvalidState, http.StatusBadRequest, "invalid_state"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// classify maps an error to its HTTP status and wire code.
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}
