// Package crmhooks receives CRM webhook deliveries and republishes them as
// events on the CRM bus.
package crmhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"github.com/dalemusser/groupsync/internal/app/system/validation"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header names used by the CRM when delivering.
const (
	SignatureHeader = "X-Signature"
	DeliveryHeader  = "X-Delivery-ID"
)

const maxBody = 1 << 20

// Entities a delivery can describe.
const (
	EntityGroupContact = "GroupContact"
	EntityGroup        = "Group"
	EntityEmail        = "Email"
)

// Delivery is one webhook body.
type Delivery struct {
	Entity     string     `json:"entity" validate:"required,oneof=GroupContact Group Email"`
	Action     crm.Op     `json:"action" validate:"required,oneof=create edit delete"`
	GroupID    int64      `json:"group_id,omitempty" validate:"gte=0"`
	ContactIDs []int64    `json:"contact_ids,omitempty" validate:"dive,gt=0"`
	Status     crm.Status `json:"status,omitempty" validate:"omitempty,oneof=Added Pending Removed"`
	Group      *crm.Group `json:"group,omitempty"`
	ContactID  int64      `json:"contact_id,omitempty" validate:"gte=0"`
	Email      string     `json:"email,omitempty" validate:"omitempty,email"`
}

var errIncomplete = errors.New("delivery is missing fields for its entity")

// Handler verifies and publishes deliveries.
type Handler struct {
	Bus    *events.Bus
	Secret string
	Echoes *Echoes
	Log    *zap.Logger
}

// NewHandler builds the webhook handler. A blank secret disables the
// endpoint; echoes may be nil, which turns off echo and duplicate filtering.
func NewHandler(bus *events.Bus, secret string, echoes *Echoes, logger *zap.Logger) *Handler {
	return &Handler{Bus: bus, Secret: secret, Echoes: echoes, Log: logger}
}

type response struct {
	DeliveryID string `json:"delivery_id"`
	Entity     string `json:"entity,omitempty"`
	Published  bool   `json:"published"`
	Suppressed int    `json:"suppressed,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Serve handles POST /hooks/crm.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.Secret == "" {
		http.Error(w, "webhooks are not enabled", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if !verifySignature(body, r.Header.Get(SignatureHeader), h.Secret) {
		h.Log.Warn("crm webhook signature rejected", zap.String("remote", r.RemoteAddr))
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		http.Error(w, "webhook signature verification failed", http.StatusUnauthorized)
		return
	}

	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid payload"})
		return
	}
	if err := validation.Struct(d); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, response{Entity: d.Entity, Error: err.Error()})
		return
	}

	id := strings.TrimSpace(r.Header.Get(DeliveryHeader))
	tracked := id != "" && h.Echoes != nil
	if tracked && h.Echoes.Delivered(id) {
		metrics.WebhookDeliveries.WithLabelValues("echo").Inc()
		writeJSON(w, http.StatusOK, response{DeliveryID: id, Entity: d.Entity, Duplicate: true})
		return
	}
	if id == "" {
		id = uuid.NewString()
	}
	log := h.Log.With(
		zap.String("delivery_id", id),
		zap.String("entity", d.Entity),
		zap.String("action", string(d.Action)))

	ev, suppressed, err := h.event(d)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, response{DeliveryID: id, Entity: d.Entity, Error: err.Error()})
		return
	}
	resp := response{DeliveryID: id, Entity: d.Entity, Suppressed: suppressed}
	if ev == nil {
		log.Debug("crm webhook was an echo", zap.Int("suppressed", suppressed))
		metrics.WebhookDeliveries.WithLabelValues("echo").Inc()
		if tracked {
			h.Echoes.MarkDelivered(id)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Sync(), log, "crm webhook")
	defer cancel()
	if err := h.Bus.Publish(ctx, ev); err != nil {
		log.Error("crm webhook listeners failed", zap.Error(err))
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		resp.Error = "listener failure"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	if tracked {
		h.Echoes.MarkDelivered(id)
	}
	resp.Published = true
	metrics.WebhookDeliveries.WithLabelValues("accepted").Inc()
	log.Info("crm webhook published", zap.Int("suppressed", suppressed))
	writeJSON(w, http.StatusOK, resp)
}

// event maps d to a bus event. It returns nil when every contact in a group
// contact delivery was an echo of our own write.
func (h *Handler) event(d Delivery) (events.Event, int, error) {
	switch d.Entity {
	case EntityGroupContact:
		if d.GroupID == 0 || len(d.ContactIDs) == 0 {
			return nil, 0, errIncomplete
		}
		status := d.Status
		switch {
		case d.Action == crm.OpDelete:
			status = crm.StatusRemoved
		case status == "":
			status = crm.StatusAdded
		}
		kept := make([]int64, 0, len(d.ContactIDs))
		for _, cid := range d.ContactIDs {
			if h.Echoes != nil && h.Echoes.Consume(d.GroupID, status, cid) {
				continue
			}
			kept = append(kept, cid)
		}
		suppressed := len(d.ContactIDs) - len(kept)
		if len(kept) == 0 {
			return nil, suppressed, nil
		}
		return crm.GroupContactEvent{Op: d.Action, GroupID: d.GroupID, ContactIDs: kept}, suppressed, nil

	case EntityGroup:
		if d.Group == nil || d.Group.ID == 0 {
			return nil, 0, errIncomplete
		}
		return crm.GroupEvent{Op: d.Action, Group: *d.Group}, 0, nil

	default:
		if d.ContactID == 0 || d.Email == "" {
			return nil, 0, errIncomplete
		}
		return crm.EmailEvent{ContactID: d.ContactID, Email: d.Email}, 0, nil
	}
}

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(body, secret)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
