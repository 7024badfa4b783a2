package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/record-workflow/internal/domain/apperror"
)

// StatusClientClosedRequest is reported when the caller went away mid-operation
const StatusClientClosedRequest = 499

// Response represents a standard JSON response
type Response struct {
	Success bool                  `json:"success"`
	Data    interface{}           `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
	Code    string                `json:"code,omitempty"`
	Details []apperror.FieldError `json:"details,omitempty"`
}

// StatusOf maps an error code to an HTTP status
func StatusOf(code apperror.Code) int {
	switch code {
	case apperror.CodeValidation:
		return http.StatusBadRequest
	case apperror.CodeAuthorization:
		return http.StatusForbidden
	case apperror.CodeInvalidTransition:
		return http.StatusConflict
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail writes err as an error response. Persistence causes are not echoed to the caller.
func fail(c *gin.Context, logger Logger, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.Canceled) {
			appErr = apperror.Canceled(c.Request.Method+" "+c.FullPath(), err)
		} else {
			appErr = &apperror.Error{Code: apperror.CodePersistence, Message: "internal error", Err: err}
		}
	}

	status := StatusOf(appErr.Code)
	msg := appErr.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "path", c.FullPath(), "code", string(appErr.Code), "error", err)
		msg = string(appErr.Code) + ": " + appErr.Message
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    string(appErr.Code),
		Details: appErr.Details,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    string(apperror.CodeValidation),
	})
}
