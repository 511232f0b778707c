package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/normalize"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserDirectory is the account surface of the social platform.
type UserDirectory interface {
	User(ctx context.Context, id int64) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	SetUserEmail(ctx context.Context, id int64, email string) error
}

const maxUsernameAttempts = 1000

// Persons resolves and creates person identity links (CRM UFMatch rows).
type Persons struct {
	crm   crm.API
	users UserDirectory
	hooks *hooks.Registry
	bus   *events.Bus // CRM bus, for deferred emails
	log   *zap.Logger

	// PasswordCost is the bcrypt cost of generated passwords.
	PasswordCost int

	mu      sync.Mutex
	pending map[int64]*events.Subscription // contact id -> email listener
}

// NewPersons builds Persons. crmBus may be nil, in which case users created
// without an email keep none.
func NewPersons(api crm.API, users UserDirectory, reg *hooks.Registry, crmBus *events.Bus, logger *zap.Logger) *Persons {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persons{
		crm:          api,
		users:        users,
		hooks:        reg,
		bus:          crmBus,
		log:          logger,
		PasswordCost: bcrypt.DefaultCost,
		pending:      map[int64]*events.Subscription{},
	}
}

func unresolved(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPersonUnresolved, fmt.Sprintf(format, args...))
}

// ContactFor returns the CRM contact linked to userID, creating the contact
// and the link on first touch.
func (p *Persons) ContactFor(ctx context.Context, userID int64) (int64, error) {
	m := memoFrom(ctx)
	if id, ok := m.contactOf(userID); ok {
		return id, nil
	}

	links, err := p.crm.UFMatches(ctx, crm.UFMatchFilter{UFID: userID})
	if err != nil {
		return 0, unresolved("user %d: %v", userID, err)
	}
	if len(links) > 0 {
		m.link(userID, links[0].ContactID)
		return links[0].ContactID, nil
	}

	u, err := p.users.User(ctx, userID)
	if err != nil {
		return 0, unresolved("user %d: %v", userID, err)
	}

	contactID, err := p.contactByEmail(ctx, u.Email)
	if err != nil {
		return 0, unresolved("user %d: %v", userID, err)
	}
	if contactID == 0 {
		c, err := p.crm.CreateContact(ctx, crm.ContactParams{
			ContactType: "Individual",
			DisplayName: u.DisplayName,
			Email:       u.Email,
		})
		if err != nil {
			p.log.Warn("create contact failed", zap.Int64("user_id", userID), zap.Error(err))
			return 0, unresolved("create contact for user %d: %v", userID, err)
		}
		contactID = c.ID
		p.log.Info("contact created", zap.Int64("user_id", userID), zap.Int64("contact_id", contactID))
	}

	if _, err := p.crm.CreateUFMatch(ctx, crm.UFMatchParams{UFID: userID, UFName: u.Username, ContactID: contactID}); err != nil {
		p.log.Warn("create identity link failed",
			zap.Int64("user_id", userID),
			zap.Int64("contact_id", contactID),
			zap.Error(err))
		return 0, unresolved("link user %d: %v", userID, err)
	}
	m.link(userID, contactID)
	return contactID, nil
}

// contactByEmail returns an unlinked contact with email, or 0.
func (p *Persons) contactByEmail(ctx context.Context, email string) (int64, error) {
	if email == "" {
		return 0, nil
	}
	contacts, err := p.crm.Contacts(ctx, crm.ContactFilter{Email: email})
	if err != nil {
		return 0, err
	}
	for _, c := range contacts {
		links, err := p.crm.UFMatches(ctx, crm.UFMatchFilter{ContactID: c.ID})
		if err != nil {
			return 0, err
		}
		if len(links) == 0 {
			return c.ID, nil
		}
	}
	return 0, nil
}

// UserFor returns the social user linked to contact c. When there is none it
// adopts an unlinked user with the same email or creates a new account.
func (p *Persons) UserFor(ctx context.Context, c crm.Contact) (int64, error) {
	m := memoFrom(ctx)
	if id, ok := m.userOf(c.ID); ok {
		return id, nil
	}

	links, err := p.crm.UFMatches(ctx, crm.UFMatchFilter{ContactID: c.ID})
	if err != nil {
		return 0, unresolved("contact %d: %v", c.ID, err)
	}
	if len(links) > 0 {
		m.link(links[0].UFID, c.ID)
		return links[0].UFID, nil
	}

	var u models.User
	if email := normalize.Email(c.Email); email != "" {
		u, err = p.users.UserByEmail(ctx, email)
		switch {
		case err == nil:
		case errors.Is(err, social.ErrNotFound):
			u = models.User{}
		default:
			return 0, unresolved("contact %d: %v", c.ID, err)
		}
	}

	if u.ID == 0 {
		if u, err = p.createUser(ctx, c); err != nil {
			p.log.Warn("create user for contact failed", zap.Int64("contact_id", c.ID), zap.Error(err))
			return 0, unresolved("create user for contact %d: %v", c.ID, err)
		}
	}

	if _, err := p.crm.CreateUFMatch(ctx, crm.UFMatchParams{UFID: u.ID, UFName: u.Username, ContactID: c.ID}); err != nil {
		p.log.Warn("create identity link failed",
			zap.Int64("user_id", u.ID),
			zap.Int64("contact_id", c.ID),
			zap.Error(err))
		return 0, unresolved("link contact %d: %v", c.ID, err)
	}
	if u.Email == "" {
		p.awaitEmail(c.ID, u.ID)
	}
	m.link(u.ID, c.ID)
	return u.ID, nil
}

func (p *Persons) createUser(ctx context.Context, c crm.Contact) (models.User, error) {
	display := displayName(c)
	username, err := p.uniqueUsername(ctx, display, c)
	if err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword(securecookie.GenerateRandomKey(32), p.PasswordCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := p.users.CreateUser(ctx, models.User{
		Username:     username,
		DisplayName:  display,
		Email:        c.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return models.User{}, err
	}
	p.log.Info("user created from contact",
		zap.Int64("contact_id", c.ID),
		zap.Int64("user_id", u.ID),
		zap.String("username", u.Username))
	return u, nil
}

func displayName(c crm.Contact) string {
	if n := normalize.Name(c.DisplayName); n != "" {
		return n
	}
	if n := normalize.Name(c.FirstName + " " + c.LastName); n != "" {
		return n
	}
	return "Contact " + strconv.FormatInt(c.ID, 10)
}

// uniqueUsername derives a login handle from display, passes it through the
// new_username hook and appends a counter until it is free.
func (p *Persons) uniqueUsername(ctx context.Context, display string, c crm.Contact) (string, error) {
	base := normalize.Username(display)
	if base == "" {
		base = "user"
	}
	base = strings.TrimSpace(p.hooks.FilterUsername(ctx, base, c))
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 2; i < maxUsernameAttempts; i++ {
		taken, err := p.users.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return "", fmt.Errorf("no free username for %q", base)
}

// awaitEmail sets userID's email the first time the CRM reports one for
// contactID.
func (p *Persons) awaitEmail(contactID, userID int64) {
	if p.bus == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[contactID]; ok {
		return
	}
	var sub *events.Subscription
	sub = events.On(p.bus, crm.TopicEmail, "persons.deferred-email", events.DefaultPriority,
		func(ctx context.Context, ev crm.EmailEvent) error {
			if ev.ContactID != contactID || strings.TrimSpace(ev.Email) == "" {
				return nil
			}
			sub.Unsubscribe()
			p.mu.Lock()
			delete(p.pending, contactID)
			p.mu.Unlock()

			if err := p.users.SetUserEmail(ctx, userID, ev.Email); err != nil {
				p.log.Warn("deferred email not applied",
					zap.Int64("user_id", userID),
					zap.Int64("contact_id", contactID),
					zap.Error(err))
				return err
			}
			p.log.Info("deferred email applied", zap.Int64("user_id", userID), zap.Int64("contact_id", contactID))
			return nil
		})
	p.pending[contactID] = sub
}

// Pending returns how many deferred email listeners are outstanding.
func (p *Persons) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close removes outstanding deferred email listeners.
func (p *Persons) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.pending {
		sub.Unsubscribe()
		delete(p.pending, id)
	}
}
