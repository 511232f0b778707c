package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// Settings provides the sync settings document.
type Settings interface {
	Get(ctx context.Context) (models.SyncSettings, error)
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB       Pinger
	Settings Settings
	Log      *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(db Pinger, settings Settings, logger *zap.Logger) *Handler {
	return &Handler{
		DB:       db,
		Settings: settings,
		Log:      logger,
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Database     string `json:"database"`
	SyncEnabled  *bool  `json:"sync_enabled,omitempty"`
	UseContainer *bool  `json:"use_container,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "sync_enabled":true, "use_container":true }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.DB.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	// Settings are informational; a read failure does not fail the check.
	if h.Settings != nil {
		if st, err := h.Settings.Get(ctx); err == nil {
			resp.SyncEnabled = &st.SyncEnabled
			resp.UseContainer = &st.UseContainer
		} else {
			h.Log.Warn("health-check: settings read failed", zap.Error(err))
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
