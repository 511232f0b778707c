package groupsapi

import (
	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(auth.RoleAdmin))

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", h.ListGroups)
		r.Post("/", h.CreateGroup)
		r.Get("/{id}", h.GetGroup)
		r.Patch("/{id}", h.UpdateGroup)
		r.Delete("/{id}", h.DeleteGroup)
		r.Get("/{id}/members", h.ListMembers)
		r.Post("/{id}/members", h.MemberAction)
		r.Put("/{id}/roles", h.BulkRoles)
	})
	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	return r
}
