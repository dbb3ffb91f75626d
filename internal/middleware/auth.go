package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gluk-w/boxterm/internal/auth"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Unauthorized is the error body sent to API clients without a valid session.
const Unauthorized = "UNAUTHORIZED"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequireAuth admits requests carrying a live session cookie. The session's
// expiry slides forward and the cookie is re-issued with a fresh Max-Age.
func RequireAuth(store *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				deny(w, r)
				return
			}

			sess, ok := store.Resolve(cookie.Value)
			if !ok {
				deny(w, r)
				return
			}

			SetSessionCookie(w, r, sess.ID, store.TTL())
			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": Unauthorized})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(loginPage))
}

func wantsJSON(r *http.Request) bool {
	p := r.URL.Path
	if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/auth/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// SetSessionCookie issues the session cookie. Secure is set when the request
// arrived over TLS or through a TLS-terminating proxy.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, id string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   isTLS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie in the browser.
func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isTLS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func isTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// GetSession returns the session attached by RequireAuth.
func GetSession(r *http.Request) (auth.Session, bool) {
	sess, ok := r.Context().Value(sessionContextKey).(auth.Session)
	return sess, ok
}

// GetUsername returns the authenticated user's name, or "".
func GetUsername(r *http.Request) string {
	sess, _ := GetSession(r)
	return sess.Username
}

const loginPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>boxterm - sign in</title></head>
<body>
<form id="login">
  <input name="username" placeholder="Username" autocomplete="username">
  <input name="password" type="password" placeholder="Password" autocomplete="current-password">
  <button type="submit">Sign in</button>
  <p id="err"></p>
</form>
<script>
document.getElementById("login").addEventListener("submit", async (e) => {
  e.preventDefault();
  const f = new FormData(e.target);
  const res = await fetch("/auth/login", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({username: f.get("username"), password: f.get("password")}),
  });
  if (res.ok) { location.reload(); return; }
  const body = await res.json().catch(() => ({}));
  document.getElementById("err").textContent = body.error || "Login failed";
});
</script>
</body>
</html>
`
