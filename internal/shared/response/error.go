// Package response writes the JSON error bodies shared by every handler.
package response

import (
	"cmp"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error replies with status and message.
func Error(c *gin.Context, status int, message string) {
	ErrorWithCode(c, status, "", message)
}

// ErrorWithCode replies with status, a machine readable code and message.
func ErrorWithCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// BadRequest replies 400 with message.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized replies 401 with message.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, cmp.Or(message, "unauthorized"))
}

// InternalError replies 500. Causes are never echoed; message defaults to
// "internal error".
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, cmp.Or(message, "internal error"))
}

// ErrorMapping ties a sentinel error to the reply it produces. An empty
// Message falls back to the sentinel's text.
type ErrorMapping struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// HandleError writes the reply of the first mapping err matches and
// reports whether one did.
func HandleError(c *gin.Context, err error, mappings []ErrorMapping) bool {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			ErrorWithCode(c, m.Status, m.Code, cmp.Or(m.Message, m.Err.Error()))
			return true
		}
	}
	return false
}
