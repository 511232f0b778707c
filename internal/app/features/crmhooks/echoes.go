package crmhooks

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dgraph-io/ristretto/v2"
)

// DefaultEchoTTL is how long a write made by this service is remembered.
const DefaultEchoTTL = 2 * time.Minute

// Echoes remembers recent group contact writes made through the CRM client so
// the webhook deliveries they trigger can be dropped. It implements
// crm.WriteRecorder. Each recorded write suppresses one delivery.
type Echoes struct {
	cache *ristretto.Cache[string, struct{}]
	ttl   time.Duration
}

// NewEchoes builds an Echoes; ttl <= 0 uses DefaultEchoTTL.
func NewEchoes(ttl time.Duration) (*Echoes, error) {
	if ttl <= 0 {
		ttl = DefaultEchoTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters:        1e5,
		MaxCost:            1e4,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("echo cache: %w", err)
	}
	return &Echoes{cache: cache, ttl: ttl}, nil
}

var _ crm.WriteRecorder = (*Echoes)(nil)

// RecordGroupContacts implements crm.WriteRecorder.
func (e *Echoes) RecordGroupContacts(groupID int64, status crm.Status, contactIDs []int64) {
	for _, cid := range contactIDs {
		e.cache.SetWithTTL(echoKey(groupID, status, cid), struct{}{}, 1, e.ttl)
	}
	e.cache.Wait()
}

// Consume reports whether (groupID, status, contactID) was written by this
// service recently, and forgets it.
func (e *Echoes) Consume(groupID int64, status crm.Status, contactID int64) bool {
	key := echoKey(groupID, status, contactID)
	if _, ok := e.cache.Get(key); !ok {
		return false
	}
	e.cache.Del(key)
	return true
}

// Delivered reports whether delivery id was already processed.
func (e *Echoes) Delivered(id string) bool {
	_, ok := e.cache.Get(deliveryKey(id))
	return ok
}

// MarkDelivered remembers delivery id as processed. Retries of a delivery
// that failed must still be handled, so call it only after success.
func (e *Echoes) MarkDelivered(id string) {
	e.cache.SetWithTTL(deliveryKey(id), struct{}{}, 1, e.ttl)
	e.cache.Wait()
}

// Close releases the cache.
func (e *Echoes) Close() { e.cache.Close() }

func deliveryKey(id string) string { return "d:" + id }

func echoKey(groupID int64, status crm.Status, contactID int64) string {
	return "gc:" + strconv.FormatInt(groupID, 10) + ":" + string(status) + ":" + strconv.FormatInt(contactID, 10)
}
