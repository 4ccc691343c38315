package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/backend"
	"rollcall/internal/roster"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUpstream        Code = "UPSTREAM_UNAVAILABLE"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string         { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func errInvalid(msg string) *APIError     { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func errNotFound(msg string) *APIError    { return &APIError{Code: CodeNotFound, Message: msg} }
func errUnavailable(msg string) *APIError { return &APIError{Code: CodeUnavailable, Message: msg} }

// toAPIError classifies err. A failed pass surfaces one upstream message and
// nothing else.
func toAPIError(err error) *APIError {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	var te *roster.TransportError
	if errors.As(err, &te) {
		return &APIError{Code: CodeUpstream, Message: fmt.Sprintf("could not %s for course %s", te.Op, te.CourseID)}
	}
	if errors.Is(err, backend.ErrNotFound) {
		return errNotFound("not found")
	}
	if errors.Is(err, attendance.ErrNoSnapshot) {
		return errNotFound("no roster snapshot")
	}
	var se *backend.StatusError
	if errors.As(err, &se) {
		return &APIError{Code: CodeUpstream, Message: fmt.Sprintf("school backend answered %d", se.Code)}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &APIError{Code: CodeUpstream, Message: "school backend unreachable"}
	}
	return &APIError{Code: CodeInternal, Message: "internal error"}
}

func toHTTPStatus(api *APIError) int {
	switch api.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	api := toAPIError(err)
	status := toHTTPStatus(api)
	if status >= 500 {
		h.logger.Error("request failed", "route", c.FullPath(), "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": api})
}
