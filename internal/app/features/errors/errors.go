// internal/app/features/errors/errors.go
package errors

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"go.uber.org/zap"
)

// pageData is the basic view model for error pages.
type pageData struct {
	Title    string
	UserName string
	Message  string
	BackURL  string
}

var errorPage = template.Must(template.New("error").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>groupsync · {{.Title}}</title></head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .UserName}}<p>Signed in as {{.UserName}}.</p>{{end}}
<p><a href="{{.BackURL}}">Back</a></p>
</main>
</body>
</html>
`))

// Handler is the errors feature handler.
// No DB needed; it just renders pages.
type Handler struct {
	Log *zap.Logger
}

// NewHandler constructs an errors Handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Log: logger}
}

// Forbidden renders an "access denied" page.
// GET /forbidden
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, pageData{
		Title:   "Access denied",
		Message: "You don't have permission to view this page.",
		BackURL: "/",
	})
}

// Unauthorized renders a "sign in required" page.
// GET /unauthorized
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusUnauthorized, pageData{
		Title:   "Sign in required",
		Message: "Please sign in to continue.",
		BackURL: "/login",
	})
}

// NotFound is the router's fallback handler.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, pageData{
		Title:   "Not found",
		Message: "There is nothing at " + r.URL.Path + ".",
		BackURL: "/",
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Error(w, strings.ToLower(data.Title), status)
		return
	}
	if u, ok := auth.CurrentUser(r); ok {
		data.UserName = u.Name
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorPage.Execute(w, data); err != nil {
		h.Log.Warn("error page render failed", zap.Error(err))
	}
}
