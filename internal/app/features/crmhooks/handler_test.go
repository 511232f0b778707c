package crmhooks_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/features/crmhooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/synctest"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const secret = "hook-secret"

func newEchoes(t *testing.T) *crmhooks.Echoes {
	t.Helper()
	e, err := crmhooks.NewEchoes(0)
	if err != nil {
		t.Fatalf("NewEchoes: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func deliver(h *crmhooks.Handler, d crmhooks.Delivery, sig, id string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(d)
	req := httptest.NewRequest("POST", "/hooks/crm", bytes.NewReader(body))
	if sig == "" {
		sig = crmhooks.Sign(body, secret)
	}
	req.Header.Set(crmhooks.SignatureHeader, sig)
	if id != "" {
		req.Header.Set(crmhooks.DeliveryHeader, id)
	}
	rec := httptest.NewRecorder()
	h.Serve(rec, req)
	return rec
}

func capture(bus *events.Bus) *[]crm.GroupContactEvent {
	var got []crm.GroupContactEvent
	events.On(bus, crm.TopicGroupContact, "test.capture", events.DefaultPriority,
		func(_ context.Context, ev crm.GroupContactEvent) error {
			got = append(got, ev)
			return nil
		})
	return &got
}

func TestServe_PublishesGroupContact(t *testing.T) {
	bus := events.NewBus("crm", zap.NewNop())
	got := capture(bus)
	h := crmhooks.NewHandler(bus, secret, newEchoes(t), zap.NewNop())

	rec := deliver(h, crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7, ContactIDs: []int64{3, 4}}, "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if len(*got) != 1 || (*got)[0].GroupID != 7 || len((*got)[0].ContactIDs) != 2 {
		t.Errorf("published = %+v", *got)
	}
}

func TestServe_RejectsBadSignature(t *testing.T) {
	bus := events.NewBus("crm", zap.NewNop())
	got := capture(bus)
	h := crmhooks.NewHandler(bus, secret, nil, zap.NewNop())

	rec := deliver(h, crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7, ContactIDs: []int64{3}}, "deadbeef", "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if len(*got) != 0 {
		t.Error("event published despite bad signature")
	}
}

func TestServe_DisabledWithoutSecret(t *testing.T) {
	h := crmhooks.NewHandler(events.NewBus("crm", zap.NewNop()), "", nil, zap.NewNop())

	rec := deliver(h, crmhooks.Delivery{Entity: "Group", Action: crm.OpEdit}, "x", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServe_InvalidDeliveries(t *testing.T) {
	h := crmhooks.NewHandler(events.NewBus("crm", zap.NewNop()), secret, nil, zap.NewNop())

	tests := []struct {
		name string
		d    crmhooks.Delivery
	}{
		{"unknown entity", crmhooks.Delivery{Entity: "Activity", Action: crm.OpCreate}},
		{"unknown action", crmhooks.Delivery{Entity: "Group", Action: "merge", Group: &crm.Group{ID: 1}}},
		{"group contact without contacts", crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7}},
		{"group without body", crmhooks.Delivery{Entity: "Group", Action: crm.OpDelete}},
		{"bad email", crmhooks.Delivery{Entity: "Email", Action: crm.OpEdit, ContactID: 3, Email: "not-an-email"}},
		{"bad status", crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7, ContactIDs: []int64{3}, Status: "Gone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := deliver(h, tt.d, "", ""); rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestServe_DropsEchoes(t *testing.T) {
	bus := events.NewBus("crm", zap.NewNop())
	got := capture(bus)
	echoes := newEchoes(t)
	h := crmhooks.NewHandler(bus, secret, echoes, zap.NewNop())

	echoes.RecordGroupContacts(7, crm.StatusAdded, []int64{3})
	rec := deliver(h, crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7, ContactIDs: []int64{3, 4}}, "", "")

	var resp struct {
		Published  bool `json:"published"`
		Suppressed int  `json:"suppressed"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Published || resp.Suppressed != 1 {
		t.Errorf("response = %+v, want published with 1 suppressed", resp)
	}
	if len(*got) != 1 || len((*got)[0].ContactIDs) != 1 || (*got)[0].ContactIDs[0] != 4 {
		t.Fatalf("published = %+v, want only contact 4", *got)
	}

	// The echo is spent; a second delivery of contact 3 is real.
	deliver(h, crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7, ContactIDs: []int64{3}}, "", "")
	if len(*got) != 2 {
		t.Errorf("second delivery not published")
	}
}

func TestServe_DuplicateDelivery(t *testing.T) {
	bus := events.NewBus("crm", zap.NewNop())
	got := capture(bus)
	h := crmhooks.NewHandler(bus, secret, newEchoes(t), zap.NewNop())
	d := crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpDelete, GroupID: 7, ContactIDs: []int64{3}}

	deliver(h, d, "", "delivery-1")
	rec := deliver(h, d, "", "delivery-1")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if len(*got) != 1 {
		t.Errorf("published %d times, want 1", len(*got))
	}
}

func TestServe_RetryAfterListenerFailure(t *testing.T) {
	bus := events.NewBus("crm", zap.NewNop())
	calls := 0
	events.On(bus, crm.TopicGroupContact, "test.flaky", events.DefaultPriority,
		func(_ context.Context, ev crm.GroupContactEvent) error {
			calls++
			if calls == 1 {
				return errors.New("crm unavailable")
			}
			return nil
		})
	h := crmhooks.NewHandler(bus, secret, newEchoes(t), zap.NewNop())
	d := crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpCreate, GroupID: 7, ContactIDs: []int64{3}}

	if rec := deliver(h, d, "", "delivery-9"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("first attempt: expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}

	rec := deliver(h, d, "", "delivery-9")
	if rec.Code != http.StatusOK {
		t.Fatalf("retry: expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp struct {
		Published bool `json:"published"`
		Duplicate bool `json:"duplicate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Published || resp.Duplicate {
		t.Errorf("retry response = %+v, want published", resp)
	}
	if calls != 2 {
		t.Errorf("listener calls = %d, want 2", calls)
	}

	deliver(h, d, "", "delivery-9")
	if calls != 2 {
		t.Errorf("delivery processed again after success: calls = %d", calls)
	}
}

func TestServe_RemovesMembership(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	g := env.Group(t, "Board", owner.ID, 0)
	u := env.User(t, "jo", "jo@example.org")
	if err := env.Social.Join(env.Ctx, g.ID, u.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	member, _ := env.Records(t, g.ID)
	cid := env.Contact(t, u.ID)
	h := crmhooks.NewHandler(env.CRMBus, secret, newEchoes(t), zap.NewNop())

	rec := deliver(h, crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpDelete, GroupID: member.ID, ContactIDs: []int64{cid}}, "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if _, ok := env.Member(t, g.ID, u.ID); ok {
		t.Error("membership survived crm removal")
	}
}

func TestServe_EchoLeavesMembership(t *testing.T) {
	env := synctest.New(t)
	owner := env.User(t, "owner", "owner@example.org")
	g := env.Group(t, "Board", owner.ID, 0)
	u := env.User(t, "jo", "jo@example.org")
	if err := env.Social.Join(env.Ctx, g.ID, u.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	member, _ := env.Records(t, g.ID)
	cid := env.Contact(t, u.ID)
	echoes := newEchoes(t)
	h := crmhooks.NewHandler(env.CRMBus, secret, echoes, zap.NewNop())

	echoes.RecordGroupContacts(member.ID, crm.StatusRemoved, []int64{cid})
	deliver(h, crmhooks.Delivery{Entity: "GroupContact", Action: crm.OpDelete, GroupID: member.ID, ContactIDs: []int64{cid}}, "", "")

	if _, ok := env.Member(t, g.ID, u.ID); !ok {
		t.Error("echo of our own write removed the membership")
	}
}
