// Package groupsapi exposes the social group platform over JSON so groups,
// memberships and users can be changed over HTTP. Every change goes through
// social.Service and so fires the social bus.
package groupsapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/paging"
	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"github.com/dalemusser/groupsync/internal/app/system/validation"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// Handler serves the social API.
type Handler struct {
	Social *social.Service
	Log    *zap.Logger
}

func NewHandler(svc *social.Service, logger *zap.Logger) *Handler {
	return &Handler{Social: svc, Log: logger}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Request bodies                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	CreatorID   int64  `json:"creator_id" validate:"gte=0"`
	ParentID    int64  `json:"parent_id" validate:"gte=0"`
}

type updateGroupRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	ParentID    *int64  `json:"parent_id,omitempty" validate:"omitempty,gte=0"`
}

type memberActionRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Action string `json:"action" validate:"required,oneof=join invite accept leave remove promote demote ban unban"`
	Role   string `json:"role,omitempty" validate:"omitempty,oneof=admin mod"`
}

type bulkRolesRequest struct {
	Roles map[int64]string `json:"roles" validate:"required,min=1,dive,keys,gt=0,endkeys,oneof=admin mod member"`
}

type createUserRequest struct {
	Username    string `json:"username" validate:"required,max=60"`
	DisplayName string `json:"display_name" validate:"max=250"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type envelope struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| Groups                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r, "api create group")
	defer cancel()

	g, err := h.Social.CreateGroup(ctx, social.NewGroup{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   req.CreatorID,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, g)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	page := paging.Parse(r)
	ctx, cancel := h.ctx(r, "api list groups")
	defer cancel()

	groups, err := h.Social.Groups(ctx, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	respond(w, http.StatusOK, groups)
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r, "api get group")
	defer cancel()

	g, err := h.Social.Group(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, g)
}

// UpdateGroup applies the fields present in the body: details first, then
// status, then parent.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r, "api update group")
	defer cancel()

	g, err := h.Social.Group(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if req.Name != nil || req.Description != nil {
		name, desc := g.Name, g.Description
		if req.Name != nil {
			name = *req.Name
		}
		if req.Description != nil {
			desc = *req.Description
		}
		if g, err = h.Social.UpdateDetails(ctx, id, name, desc); err != nil {
			h.fail(w, err)
			return
		}
	}
	if req.Status != nil && *req.Status != g.Status {
		if g, err = h.Social.SetStatus(ctx, id, *req.Status); err != nil {
			h.fail(w, err)
			return
		}
	}
	if req.ParentID != nil {
		if err := h.Social.SetParent(ctx, id, *req.ParentID); err != nil {
			h.fail(w, err)
			return
		}
		if g, err = h.Social.Group(ctx, id); err != nil {
			h.fail(w, err)
			return
		}
	}
	respond(w, http.StatusOK, g)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r, "api delete group")
	defer cancel()

	if err := h.Social.DeleteGroup(ctx, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Memberships                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r, "api list members")
	defer cancel()

	if _, err := h.Social.Group(ctx, id); err != nil {
		h.fail(w, err)
		return
	}
	members, err := h.Social.Members(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if members == nil {
		members = []models.GroupMembership{}
	}
	respond(w, http.StatusOK, members)
}

// MemberAction runs one membership action and returns the resulting row, or
// 204 when the action removed it.
func (h *Handler) MemberAction(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req memberActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r, "api member "+req.Action)
	defer cancel()

	var err error
	switch req.Action {
	case "join":
		err = h.Social.Join(ctx, groupID, req.UserID)
	case "invite":
		err = h.Social.Invite(ctx, groupID, req.UserID)
	case "accept":
		err = h.Social.AcceptInvite(ctx, groupID, req.UserID)
	case "leave":
		err = h.Social.Leave(ctx, groupID, req.UserID)
	case "remove":
		err = h.Social.Remove(ctx, groupID, req.UserID)
	case "promote":
		err = h.Social.Promote(ctx, groupID, req.UserID, req.Role)
	case "demote":
		err = h.Social.Demote(ctx, groupID, req.UserID)
	case "ban":
		err = h.Social.Ban(ctx, groupID, req.UserID)
	case "unban":
		err = h.Social.Unban(ctx, groupID, req.UserID)
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	m, err := h.Social.Membership(ctx, groupID, req.UserID)
	if errors.Is(err, social.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, m)
}

func (h *Handler) BulkRoles(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bulkRolesRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r, "api bulk roles")
	defer cancel()

	changes, err := h.Social.BulkSave(ctx, groupID, req.Roles)
	if err != nil {
		h.fail(w, err)
		return
	}
	if changes == nil {
		changes = []social.RoleChange{}
	}
	respond(w, http.StatusOK, changes)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Users                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r, "api create user")
	defer cancel()

	u, err := h.Social.CreateUser(ctx, models.User{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, u)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := h.ctx(r, "api get user")
	defer cancel()

	u, err := h.Social.User(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ctx(r *http.Request, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(r.Context(), timeouts.Sync(), h.Log, op)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return false
	}
	if err := validation.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

// fail maps service errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, social.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, social.ErrInvalid):
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, social.ErrAlreadyMember), errors.Is(err, social.ErrNotMember),
		errors.Is(err, social.ErrBanned), errors.Is(err, social.ErrDuplicate):
		respondError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		h.Log.Error("social api request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Status: "error", Error: &apiError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

