package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gluk-w/boxterm/internal/auth"
)

func protected(store *auth.SessionStore) http.Handler {
	return RequireAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUsername(r)))
	}))
}

func TestRequireAuthRejects(t *testing.T) {
	store := auth.NewSessionStore(time.Hour)
	h := protected(store)

	tests := []struct {
		name     string
		path     string
		accept   string
		cookie   string
		wantJSON bool
	}{
		{"api without cookie", "/api/sessions", "", "", true},
		{"auth path", "/auth/logout", "", "", true},
		{"page without cookie", "/", "text/html", "", false},
		{"page asking for json", "/", "application/json", "", true},
		{"unknown session", "/api/me", "", "nope", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			ct := rec.Header().Get("Content-Type")
			if tt.wantJSON {
				if ct != "application/json" || !strings.Contains(rec.Body.String(), Unauthorized) {
					t.Errorf("got %q %q, want JSON error", ct, rec.Body.String())
				}
			} else if !strings.HasPrefix(ct, "text/html") {
				t.Errorf("content type = %q, want login page", ct)
			}
		})
	}
}

func TestRequireAuthRefreshesCookie(t *testing.T) {
	store := auth.NewSessionStore(time.Hour)
	id, err := store.Create("admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: id})
	rec := httptest.NewRecorder()
	protected(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "admin" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Value != id || c.MaxAge != 3600 || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie = %+v", c)
	}
	if c.Secure {
		t.Error("cookie marked Secure on plain HTTP")
	}
}

func TestSecureCookieBehindTLSProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, req, "abc", time.Minute)
	if c := rec.Result().Cookies()[0]; !c.Secure {
		t.Error("expected Secure cookie")
	}

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, req)
	if c := rec.Result().Cookies()[0]; c.MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", c.MaxAge)
	}
}
