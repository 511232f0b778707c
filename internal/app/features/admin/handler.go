// Package admin serves the operator actions of the sync service: reconcile
// stepping, hierarchy rebuilds, legacy conversion, and the settings toggles.
package admin

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/groupsync/internal/app/groupsync/engine"
	"github.com/dalemusser/groupsync/internal/app/groupsync/reconcile"
	"github.com/dalemusser/groupsync/internal/app/system/auth"
	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Handler runs admin actions against a sync engine.
type Handler struct {
	Engine   *engine.Engine
	Settings engine.Settings
	Log      *zap.Logger
}

func NewHandler(e *engine.Engine, settings engine.Settings, logger *zap.Logger) *Handler {
	return &Handler{Engine: e, Settings: settings, Log: logger}
}

type reconcileStatus struct {
	Configured bool                   `json:"configured"`
	InProgress bool                   `json:"in_progress"`
	Step       string                 `json:"step,omitempty"`
	State      *models.ReconcileState `json:"state,omitempty"`
}

type statusResponse struct {
	Settings  models.SyncSettings `json:"settings"`
	Reconcile reconcileStatus     `json:"reconcile"`
	Updated   bool                `json:"updated,omitempty"`
}

// ServeStatus handles GET /admin/status.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	set, err := h.Settings.Get(ctx)
	if err != nil {
		h.Log.Error("admin status: load settings", zap.Error(err))
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}
	resp := statusResponse{Settings: set, Updated: r.URL.Query().Get("updated") == "1"}

	if d := h.Engine.Driver; d != nil {
		resp.Reconcile.Configured = true
		st, ok, err := d.State(ctx)
		if err != nil {
			h.Log.Error("admin status: load reconcile state", zap.Error(err))
			http.Error(w, "reconcile state unavailable", http.StatusInternalServerError)
			return
		}
		if ok {
			resp.Reconcile.InProgress = true
			resp.Reconcile.State = &st
			if st.Step >= 0 && st.Step < len(reconcile.Steps) {
				resp.Reconcile.Step = reconcile.Steps[st.Step]
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Warn("admin status: encode", zap.Error(err))
	}
}

// HandleReconcileStep handles POST /admin/reconcile/step.
func (h *Handler) HandleReconcileStep(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "reconcile step", timeouts.Batch(), func(ctx context.Context) error {
		res, err := h.Engine.ReconcileStep(ctx)
		if err == nil {
			h.Log.Info("admin reconcile step",
				zap.String("run_id", res.RunID),
				zap.String("step", res.Step),
				zap.Int("processed", res.Page.Processed),
				zap.Int("changed", res.Page.Changed),
				zap.Bool("finished", res.Finished),
				zap.Bool("idle", res.Idle))
		}
		return err
	})
}

// HandleReconcileReset handles POST /admin/reconcile/reset.
func (h *Handler) HandleReconcileReset(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "reconcile reset", timeouts.Short(), func(ctx context.Context) error {
		if h.Engine.Driver == nil {
			return engine.ErrNoDriver
		}
		return h.Engine.Driver.Reset(ctx)
	})
}

// HandleHierarchyBuild handles POST /admin/hierarchy/build.
func (h *Handler) HandleHierarchyBuild(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "hierarchy build", timeouts.Batch(), h.Engine.Hierarchy.Build)
}

// HandleHierarchyCollapse handles POST /admin/hierarchy/collapse.
func (h *Handler) HandleHierarchyCollapse(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "hierarchy collapse", timeouts.Batch(), h.Engine.Hierarchy.Collapse)
}

// HandleLegacyConvert handles POST /admin/legacy/convert.
func (h *Handler) HandleLegacyConvert(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "legacy convert", timeouts.Batch(), func(ctx context.Context) error {
		n, err := h.Engine.Lifecycle.ConvertLegacy(ctx)
		if err == nil {
			h.Log.Info("admin legacy convert", zap.Int("converted", n))
		}
		return err
	})
}

// HandleContainer handles POST /admin/settings/container with enabled=true|false.
func (h *Handler) HandleContainer(w http.ResponseWriter, r *http.Request) {
	enabled, ok := h.enabledParam(w, r)
	if !ok {
		return
	}
	h.run(w, r, "use container", timeouts.Batch(), func(ctx context.Context) error {
		return h.Engine.SetUseContainer(ctx, enabled, operator(r))
	})
}

// HandleEnabled handles POST /admin/settings/enabled with enabled=true|false.
func (h *Handler) HandleEnabled(w http.ResponseWriter, r *http.Request) {
	enabled, ok := h.enabledParam(w, r)
	if !ok {
		return
	}
	h.run(w, r, "sync enabled", timeouts.Short(), func(ctx context.Context) error {
		return h.Engine.SetEnabled(ctx, enabled, operator(r))
	})
}

// run executes an action and redirects back. Failures are logged; the
// redirect happens either way.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, op string, d time.Duration, fn func(context.Context) error) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), d, h.Log, "admin "+op)
	defer cancel()

	if err := fn(ctx); err != nil {
		h.Log.Error("admin action failed",
			zap.String("action", op),
			zap.String("by", operator(r)),
			zap.Error(err))
	} else {
		h.Log.Info("admin action done", zap.String("action", op), zap.String("by", operator(r)))
	}
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

func (h *Handler) enabledParam(w http.ResponseWriter, r *http.Request) (bool, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(r.FormValue("enabled")))
	if err != nil {
		http.Error(w, "enabled must be true or false", http.StatusBadRequest)
		return false, false
	}
	return v, true
}

func operator(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok {
		return u.Name
	}
	return ""
}

// backTo returns the same-host referring path with updated=1, or the status
// page.
func backTo(r *http.Request) string {
	dest := &url.URL{Path: "/admin/status"}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" &&
		strings.HasPrefix(ref.Path, "/") && !strings.HasPrefix(ref.Path, "//") &&
		(ref.Host == "" || ref.Host == r.Host) {
		dest = &url.URL{Path: ref.Path, RawQuery: ref.RawQuery}
	}
	q := dest.Query()
	q.Set("updated", "1")
	dest.RawQuery = q.Encode()
	return dest.String()
}
