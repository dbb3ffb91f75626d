package handlers

import "net/http"

// Index serves a bare page for signed-in browsers. The API is the product;
// this only confirms the session and links the endpoints.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

const indexPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>boxterm</title></head>
<body>
<h1>boxterm</h1>
<ul>
  <li><a href="/api/me">/api/me</a></li>
  <li><a href="/api/sessions">/api/sessions</a></li>
  <li><a href="/api/terminals">/api/terminals</a></li>
  <li><a href="/health">/health</a></li>
</ul>
<form method="post" action="/auth/logout"><button type="submit">Sign out</button></form>
</body>
</html>
`
