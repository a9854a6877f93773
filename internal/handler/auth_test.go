package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"bff-gateway/internal/model"
)

func TestAuthHandler_Login_CopiesCookies(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/auth/login")
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"username":"alice","password":"pw"}` {
			t.Errorf("body = %s", body)
		}
		http.SetCookie(w, &http.Cookie{Name: "SESSION", Value: "abc", Domain: "auth.internal", Path: "/", HttpOnly: true})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":"alice"}`))
	}))
	defer upstream.Close()

	e := newTestEcho(t, testConfig(t, upstream.URL, deadURL(t)))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"alice","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(e, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"user":"alice"}` {
		t.Errorf("body = %s, want upstream body", got)
	}

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "SESSION" {
			session = c
		}
	}
	if session == nil {
		t.Fatal("SESSION cookie not set on response")
	}
	if session.Value != "abc" {
		t.Errorf("SESSION = %q, want %q", session.Value, "abc")
	}
	if session.Domain != "" {
		t.Errorf("Domain = %q, want empty", session.Domain)
	}
	if !session.HttpOnly {
		t.Error("HttpOnly attribute lost")
	}
}

func TestAuthHandler_Register_InvalidBody(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer upstream.Close()

	e := newTestEcho(t, testConfig(t, upstream.URL, deadURL(t)))

	for _, body := range []string{"", "not json", "{"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
		rec := serve(e, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("upstream called %d times for invalid bodies", calls.Load())
	}
}

func TestAuthHandler_Logout_ForwardsCookies(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/logout" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if vals := r.Header.Values("Cookie"); len(vals) != 1 || vals[0] != "a=1; b=2" {
			t.Errorf("Cookie headers = %q, want one %q", vals, "a=1; b=2")
		}
		_, _ = w.Write([]byte(`{"message":"logged out"}`))
	}))
	defer upstream.Close()

	e := newTestEcho(t, testConfig(t, upstream.URL, deadURL(t)))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "a", Value: "1"})
	req.AddCookie(&http.Cookie{Name: "b", Value: "2"})
	rec := serve(e, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthHandler_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantDetail  string
		contentType string
	}{
		{"message field", http.StatusNotFound, `{"message":"not found"}`, "not found", "application/json"},
		{"detail field", http.StatusUnauthorized, `{"detail":"session expired"}`, "session expired", "application/json"},
		{"raw text", http.StatusInternalServerError, "boom", "boom", "text/plain"},
		{"empty message falls through", http.StatusForbidden, `{"message":"","detail":"denied"}`, "denied", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer upstream.Close()

			e := newTestEcho(t, testConfig(t, upstream.URL, deadURL(t)))
			rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/auth/status", http.NoBody))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decodeDetail(t, rec); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
		})
	}
}

func TestAuthHandler_Unavailable(t *testing.T) {
	e := newTestEcho(t, testConfig(t, deadURL(t), deadURL(t)))

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/auth/register", `{"username":"bob"}`},
		{http.MethodPost, "/api/auth/login", `{"username":"bob"}`},
		{http.MethodPost, "/api/auth/logout", ""},
		{http.MethodPost, "/api/auth/refresh", ""},
		{http.MethodGet, "/api/auth/status", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(e, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
			}
			if got := decodeDetail(t, rec); !strings.HasPrefix(got, "Service unavailable: ") {
				t.Errorf("detail = %q, want Service unavailable prefix", got)
			}
		})
	}
}

func TestAuthHandler_Validate(t *testing.T) {
	var lookups atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		switch r.URL.Path {
		case "/api/session/id/s1":
			_, _ = w.Write([]byte(`{"id":"s1","userId":"u1"}`))
		case "/api/session/id/gone":
			_, _ = w.Write([]byte(`null`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	defer upstream.Close()

	e := newTestEcho(t, testConfig(t, upstream.URL, deadURL(t)))

	tests := []struct {
		name       string
		cookie     string
		wantValid  bool
		wantLookup bool
	}{
		{"valid session", "s1:u1:alice:alice@x.com", true, true},
		{"quoted value", `"s1:u1:alice:alice@x.com"`, true, true},
		{"no cookie", "", false, false},
		{"too few segments", "s1:u1:alice", false, false},
		{"empty session body", "gone:u1:alice:alice@x.com", false, true},
		{"unknown session", "nope:u1:alice:alice@x.com", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookups.Store(0)
			req := httptest.NewRequest(http.MethodGet, "/api/auth/validate", http.NoBody)
			if tt.cookie != "" {
				req.Header.Set("Cookie", "USER_INFO="+tt.cookie)
			}
			rec := serve(e, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			var got model.SessionValidation
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if (lookups.Load() > 0) != tt.wantLookup {
				t.Errorf("lookups = %d, want lookup %v", lookups.Load(), tt.wantLookup)
			}

			if !tt.wantValid {
				if got.User != nil {
					t.Errorf("user = %+v, want nil", got.User)
				}
				return
			}
			want := model.SessionUser{UserID: "u1", Username: "alice", Email: "alice@x.com"}
			if got.User == nil || *got.User != want {
				t.Errorf("user = %+v, want %+v", got.User, want)
			}
		})
	}
}
