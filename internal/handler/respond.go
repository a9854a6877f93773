package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"bff-gateway/internal/client"
	"bff-gateway/internal/service"
)

// respond copies upstream cookies onto the response and relays the JSON body.
func respond(c echo.Context, res *service.Result) error {
	for _, cookie := range res.Cookies {
		c.SetCookie(cookie)
	}
	return c.JSONBlob(http.StatusOK, res.Body)
}

// requestContext returns the request's context carrying its request ID.
func requestContext(c echo.Context) context.Context {
	id := c.Response().Header().Get(echo.HeaderXRequestID)
	if id == "" {
		id = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	return client.WithRequestID(c.Request().Context(), id)
}

// readJSONBody returns the raw request body, which must be a JSON document.
func readJSONBody(c echo.Context) ([]byte, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 || !json.Valid(data) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON document")
	}
	return data, nil
}
