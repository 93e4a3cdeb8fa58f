package delivery

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeInternal    = "INTERNAL_ERROR"
	ErrorCodeUnavailable = "SERVICE_UNAVAILABLE"
)

var (
	ErrQueueFull = goerrors.New("delivery: event queue is full", goerrors.CategoryRateLimit).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(ErrorCodeUnavailable)
	ErrPoolStopped = goerrors.New("delivery: pool is stopped", goerrors.CategoryOperation).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(ErrorCodeUnavailable)
)

func storeError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorCodeInternal)
}
