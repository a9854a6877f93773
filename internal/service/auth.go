package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bff-gateway/internal/client"
	"bff-gateway/internal/config"
	"bff-gateway/internal/model"
)

// UserInfoCookie carries "sessionId:userId:username:email".
const UserInfoCookie = "USER_INFO"

// authDetailKeys are the auth service's error message fields.
var authDetailKeys = []string{"message", "detail"}

var errSessionNotFound = errors.New("session not found")

// AuthService forwards authentication and session calls to the auth service.
type AuthService struct {
	forwarder *Forwarder
	notifier  SessionNotifier
	logger    *slog.Logger
}

// NewAuthService creates an AuthService. notifier may be nil, in which case
// validated sessions are not reported to the connection tracker.
func NewAuthService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, notifier SessionNotifier) (*AuthService, error) {
	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	fwd, err := NewForwarder(c, "auth", cfg.Auth.BaseURL, timeout, authDetailKeys, logger)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		forwarder: fwd,
		notifier:  notifier,
		logger:    logger.With("component", "auth_service"),
	}, nil
}

// Register forwards a registration payload unmodified.
func (s *AuthService) Register(ctx context.Context, payload []byte) (*Result, error) {
	return s.postPayload(ctx, "/api/auth/register", payload)
}

// Login forwards a login payload unmodified.
func (s *AuthService) Login(ctx context.Context, payload []byte) (*Result, error) {
	return s.postPayload(ctx, "/api/auth/login", payload)
}

// Logout ends the session identified by the caller's cookies.
func (s *AuthService) Logout(ctx context.Context, cookies []*http.Cookie) (*Result, error) {
	return s.withCookies(ctx, http.MethodPost, "/api/auth/logout", cookies)
}

// RefreshSession asks the auth service to extend the caller's session.
func (s *AuthService) RefreshSession(ctx context.Context, cookies []*http.Cookie) (*Result, error) {
	return s.withCookies(ctx, http.MethodPost, "/api/auth/refresh", cookies)
}

// SessionStatus reports the state of the caller's session.
func (s *AuthService) SessionStatus(ctx context.Context, cookies []*http.Cookie) (*Result, error) {
	return s.withCookies(ctx, http.MethodGet, "/api/auth/status", cookies)
}

// ValidateSession checks the USER_INFO cookie against the auth service. It
// never fails: a missing or malformed cookie, an unknown session and every
// upstream error all produce the invalid result. A valid session is
// reported to the connection tracker without waiting for it.
func (s *AuthService) ValidateSession(ctx context.Context, cookies []*http.Cookie, info model.ClientInfo) model.SessionValidation {
	ident, ok := parseUserInfo(cookies)
	if !ok {
		return model.InvalidSession()
	}

	if _, err := s.lookupSession(ctx, ident.sessionID); err != nil {
		s.logger.Debug("session rejected", "session_id", ident.sessionID, "err", err)
		return model.InvalidSession()
	}

	if s.notifier != nil {
		s.notifier.Track(ctx, model.ConnectionEvent{
			SocketID:  ident.sessionID,
			SessionID: ident.sessionID,
			Username:  ident.user.Username,
			IPAddress: info.IPAddress,
			UserAgent: info.UserAgent,
		})
	}

	user := ident.user
	return model.SessionValidation{Valid: true, User: &user}
}

// lookupSession fetches a session by ID. An empty body means the session
// does not exist.
func (s *AuthService) lookupSession(ctx context.Context, sessionID string) (json.RawMessage, error) {
	res, err := s.forwarder.Forward(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/api/session/id/" + url.PathEscape(sessionID),
	})
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if isEmptyJSON(res.Body) {
		return nil, errSessionNotFound
	}
	return res.Body, nil
}

func (s *AuthService) postPayload(ctx context.Context, path string, payload []byte) (*Result, error) {
	return s.forwarder.Forward(ctx, &Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        bytes.NewReader(payload),
		ContentType: "application/json",
	})
}

func (s *AuthService) withCookies(ctx context.Context, method, path string, cookies []*http.Cookie) (*Result, error) {
	return s.forwarder.Forward(ctx, &Request{
		Method:  method,
		Path:    path,
		Cookies: cookies,
	})
}

type sessionIdentity struct {
	sessionID string
	user      model.SessionUser
}

// parseUserInfo reads the USER_INFO cookie. Surrounding double quotes are
// stripped; fewer than four colon-separated fields is malformed.
func parseUserInfo(cookies []*http.Cookie) (sessionIdentity, bool) {
	var raw string
	for _, c := range cookies {
		if c != nil && c.Name == UserInfoCookie {
			raw = c.Value
			break
		}
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return sessionIdentity{}, false
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 4 {
		return sessionIdentity{}, false
	}
	return sessionIdentity{
		sessionID: parts[0],
		user: model.SessionUser{
			UserID:   parts[1],
			Username: parts[2],
			Email:    parts[3],
		},
	}, true
}

// isEmptyJSON reports whether raw is null, false, zero, or an empty string,
// array or object.
func isEmptyJSON(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
