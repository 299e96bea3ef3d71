package api

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// apiError is the body of every error response.
type apiError struct {
	Status            int        `json:"status"`
	Kind              pixel.Kind `json:"kind"`
	Message           string     `json:"message"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	Details           []string   `json:"details,omitempty"`

	headers http.Header
}

func (e *apiError) Error() string           { return e.Message }
func (e *apiError) GetStatus() int          { return e.Status }
func (e *apiError) GetHeaders() http.Header { return e.headers }

func newAPIError(status int, msg string, errs ...error) *apiError {
	e := &apiError{
		Status:  status,
		Kind:    kindForStatus(status),
		Message: msg,
	}
	for _, err := range errs {
		if err != nil {
			e.Details = append(e.Details, err.Error())
		}
	}
	return e
}

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, errs...)
	}
}

func kindForStatus(status int) pixel.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pixel.KindInvalidArgument
	case http.StatusUnauthorized:
		return pixel.KindUnauthenticated
	case http.StatusTooManyRequests:
		return pixel.KindRateLimited
	case http.StatusServiceUnavailable:
		return pixel.KindStoreUnavailable
	default:
		if status >= 400 && status < 500 {
			return pixel.KindInvalidArgument
		}
		return pixel.KindInternal
	}
}

// domainError maps a coordinator error onto its HTTP form. Infrastructure
// details stay in the server log.
func domainError(logger *slog.Logger, err error) error {
	switch pixel.KindOf(err) {
	case pixel.KindInvalidArgument:
		return newAPIError(http.StatusBadRequest, err.Error())
	case pixel.KindUnauthenticated:
		return newAPIError(http.StatusUnauthorized, "a valid bearer token is required")
	case pixel.KindRateLimited:
		secs := retryAfterSeconds(pixel.RetryAfter(err))
		e := newAPIError(http.StatusTooManyRequests, "cooldown active, retry in "+strconv.Itoa(secs)+"s")
		e.RetryAfterSeconds = secs
		e.headers = http.Header{"Retry-After": []string{strconv.Itoa(secs)}}
		return e
	case pixel.KindStoreUnavailable:
		return newAPIError(http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		logger.Error("unclassified error", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal server error")
	}
}

// retryAfterSeconds rounds up so a client that waits exactly that long is
// never rejected again.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

var _ huma.HeadersError = (*apiError)(nil)
