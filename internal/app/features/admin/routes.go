package admin

import (
	"net/http"

	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(auth.RoleAdmin))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/status", http.StatusSeeOther)
	})
	r.Get("/status", h.ServeStatus)

	r.Post("/reconcile/step", h.HandleReconcileStep)
	r.Post("/reconcile/reset", h.HandleReconcileReset)
	r.Post("/hierarchy/build", h.HandleHierarchyBuild)
	r.Post("/hierarchy/collapse", h.HandleHierarchyCollapse)
	r.Post("/legacy/convert", h.HandleLegacyConvert)
	r.Post("/settings/container", h.HandleContainer)
	r.Post("/settings/enabled", h.HandleEnabled)
	return r
}
