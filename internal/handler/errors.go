package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"bff-gateway/internal/service"
)

// errorBody is the envelope for every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

// mapError writes the response for a failed service call. The status
// follows the error kind: upstream statuses are relayed verbatim.
func mapError(c echo.Context, logger *slog.Logger, err error) error {
	status, detail := classify(err)

	attrs := []any{
		"err", err,
		"status", status,
		"path", c.Request().URL.Path,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	return c.JSON(status, errorBody{Detail: detail})
}

func classify(err error) (int, string) {
	var (
		upstreamErr *service.UpstreamError
		unavailable *service.UnavailableError
		storageErr  *service.StorageError
		internalErr *service.InternalError
	)

	switch {
	case errors.As(err, &upstreamErr):
		status := upstreamErr.StatusCode
		if status < 100 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, upstreamErr.Detail
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, unavailable.Error()
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, storageErr.Error()
	case errors.As(err, &internalErr):
		return http.StatusInternalServerError, internalErr.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// ErrorHandler renders errors returned by handlers and middleware (routing,
// binding, validation, body limits) with the same envelope as mapError.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			detail string
			he     *echo.HTTPError
		)
		if errors.As(err, &he) {
			status = he.Code
			detail = fmt.Sprint(he.Message)
		} else {
			status, detail = classify(err)
		}
		if status >= http.StatusInternalServerError {
			logger.Error("unhandled error", "err", err, "path", c.Request().URL.Path)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorBody{Detail: detail})
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
