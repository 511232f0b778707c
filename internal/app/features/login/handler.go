// internal/app/features/login/handler.go
package login

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"github.com/dalemusser/groupsync/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// Handler serves the operator sign-in form.
type Handler struct {
	Sessions     *auth.SessionManager
	AdminUser    string
	PasswordHash string // bcrypt
	Limiter      *ratelimit.LoginLimiter
	Log          *zap.Logger
}

func NewHandler(sm *auth.SessionManager, adminUser, passwordHash string, limiter *ratelimit.LoginLimiter, logger *zap.Logger) *Handler {
	if limiter == nil {
		limiter = ratelimit.NewLoginLimiter()
	}
	return &Handler{
		Sessions:     sm,
		AdminUser:    adminUser,
		PasswordHash: passwordHash,
		Limiter:      limiter,
		Log:          logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Template-data                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type loginFormData struct {
	Error     string
	LoginID   string
	ReturnURL string
}

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>groupsync · sign in</title></head>
<body>
<main>
<h1>Sign in</h1>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="return" value="{{.ReturnURL}}">
<label>Login <input name="login" value="{{.LoginID}}" autocomplete="username" required></label>
<label>Password <input type="password" name="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
</form>
</main>
</body>
</html>
`))

/*─────────────────────────────────────────────────────────────────────────────*
| GET /login                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, loginFormData{ReturnURL: query.Get(r, "return")})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	loginID := strings.TrimSpace(r.FormValue("login"))
	ret := strings.TrimSpace(r.FormValue("return"))
	data := loginFormData{LoginID: loginID, ReturnURL: ret}

	if loginID == "" {
		data.Error = "Please enter your login."
		h.render(w, http.StatusOK, data)
		return
	}

	if ok, reason := h.Limiter.Check(r, loginID); !ok {
		h.Log.Warn("login rate limited",
			zap.String("login", loginID),
			zap.String("ip", ratelimit.ClientIP(r)))
		data.Error = reason
		h.render(w, http.StatusTooManyRequests, data)
		return
	}

	if !strings.EqualFold(loginID, h.AdminUser) || auth.CheckPassword(h.PasswordHash, r.FormValue("password")) != nil {
		h.Log.Info("login failed", zap.String("login", loginID), zap.String("ip", ratelimit.ClientIP(r)))
		data.Error = "Invalid login or password."
		h.render(w, http.StatusOK, data)
		return
	}

	if _, err := h.Sessions.GetSession(r); err != nil {
		if scErr, ok := err.(securecookie.Error); ok && scErr.IsDecode() {
			h.Log.Warn("session cookie invalid, using fresh session", zap.Error(err))
		} else {
			h.Log.Error("session store error during login, using fresh session", zap.Error(err))
		}
	}
	if err := h.Sessions.SignIn(w, r, auth.SessionUser{Name: h.AdminUser, Role: auth.RoleAdmin}); err != nil {
		h.Log.Error("save session failed", zap.Error(err), zap.String("login", loginID))
		data.Error = "Unable to create session. Please try again."
		h.render(w, http.StatusOK, data)
		return
	}
	h.Limiter.Reset(loginID)
	h.Log.Info("operator signed in", zap.String("login", h.AdminUser))

	dest := urlutil.SafeReturn(ret, "", "/admin")
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, status int, data loginFormData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginPage.Execute(w, data); err != nil {
		h.Log.Warn("render login page", zap.Error(err))
	}
}
