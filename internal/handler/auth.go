package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"bff-gateway/internal/model"
	"bff-gateway/internal/service"
)

// AuthHandler exposes the auth service under /api/auth.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  logger.With("component", "auth_handler"),
	}
}

// Register forwards the registration body and returns the created account.
func (h *AuthHandler) Register(c echo.Context) error {
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	res, err := h.service.Register(requestContext(c), body)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Login forwards credentials. Session cookies set by the auth service are
// copied onto the response.
func (h *AuthHandler) Login(c echo.Context) error {
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}
	res, err := h.service.Login(requestContext(c), body)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Logout ends the caller's session.
func (h *AuthHandler) Logout(c echo.Context) error {
	res, err := h.service.Logout(requestContext(c), c.Request().Cookies())
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Refresh extends the caller's session.
func (h *AuthHandler) Refresh(c echo.Context) error {
	res, err := h.service.RefreshSession(requestContext(c), c.Request().Cookies())
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Status reports the caller's session state.
func (h *AuthHandler) Status(c echo.Context) error {
	res, err := h.service.SessionStatus(requestContext(c), c.Request().Cookies())
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Validate checks the USER_INFO cookie. It always answers 200; an invalid
// session is reported in the body.
func (h *AuthHandler) Validate(c echo.Context) error {
	req := c.Request()
	result := h.service.ValidateSession(requestContext(c), req.Cookies(), model.ClientInfo{
		IPAddress: c.RealIP(),
		UserAgent: req.UserAgent(),
	})
	return c.JSON(http.StatusOK, result)
}
