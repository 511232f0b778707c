package crmhooks

import (
	"github.com/dalemusser/groupsync/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the intake behind a per-IP limiter; a nil limiter disables
// throttling.
func Routes(h *Handler, limiter *ratelimit.Keyed) chi.Router {
	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Post("/", h.Serve)
	return r
}
