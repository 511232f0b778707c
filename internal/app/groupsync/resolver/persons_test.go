package resolver_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/crm/crmtest"
	"github.com/dalemusser/groupsync/internal/app/groupsync/hooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/resolver"
	"github.com/dalemusser/groupsync/internal/app/social"
	"github.com/dalemusser/groupsync/internal/app/social/socialtest"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type personsEnv struct {
	persons *resolver.Persons
	fake    *crmtest.Fake
	svc     *social.Service
	hooks   *hooks.Registry
	bus     *events.Bus
}

func newPersons(t *testing.T) personsEnv {
	t.Helper()
	bus := events.NewBus("crm", zap.NewNop())
	fake := crmtest.New(bus)
	svc, _ := socialtest.NewService(nil)
	reg := hooks.New()
	p := resolver.NewPersons(fake, svc, reg, bus, zap.NewNop())
	p.PasswordCost = bcrypt.MinCost
	t.Cleanup(p.Close)
	return personsEnv{persons: p, fake: fake, svc: svc, hooks: reg, bus: bus}
}

func TestContactFor_CreatesOnceAndIsIdempotent(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()
	u, err := env.svc.CreateUser(ctx, models.User{Username: "jane", DisplayName: "Jane Doe", Email: "jane@example.org"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	first, err := env.persons.ContactFor(ctx, u.ID)
	if err != nil {
		t.Fatalf("ContactFor: %v", err)
	}
	second, err := env.persons.ContactFor(ctx, u.ID)
	if err != nil {
		t.Fatalf("ContactFor again: %v", err)
	}
	if first != second {
		t.Errorf("contact ids differ: %d vs %d", first, second)
	}
	if n := env.fake.Calls("Contact", "create"); n != 1 {
		t.Errorf("Contact.create calls = %d, want 1", n)
	}
	links, _ := env.fake.UFMatches(ctx, crm.UFMatchFilter{UFID: u.ID})
	if len(links) != 1 || links[0].ContactID != first {
		t.Errorf("links = %+v", links)
	}
}

func TestContactFor_ReusesUnlinkedContactByEmail(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()
	existing := env.fake.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Sam", Email: "sam@example.org"})
	u, _ := env.svc.CreateUser(ctx, models.User{Username: "sam", DisplayName: "Sam", Email: "sam@example.org"})

	got, err := env.persons.ContactFor(ctx, u.ID)
	if err != nil {
		t.Fatalf("ContactFor: %v", err)
	}
	if got != existing.ID {
		t.Errorf("contact = %d, want existing %d", got, existing.ID)
	}
	if n := env.fake.Calls("Contact", "create"); n != 0 {
		t.Errorf("Contact.create calls = %d, want 0", n)
	}
}

func TestContactFor_Failures(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()

	if _, err := env.persons.ContactFor(ctx, 404); !errors.Is(err, resolver.ErrPersonUnresolved) {
		t.Errorf("unknown user: err = %v, want ErrPersonUnresolved", err)
	}

	u, _ := env.svc.CreateUser(ctx, models.User{Username: "kim", DisplayName: "Kim"})
	env.fake.FailOn("Contact", "create", crm.ErrAPI)
	if _, err := env.persons.ContactFor(ctx, u.ID); !errors.Is(err, resolver.ErrPersonUnresolved) {
		t.Errorf("create failure: err = %v, want ErrPersonUnresolved", err)
	}
}

func TestUserFor_LinksExistingUserByEmail(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()
	u, _ := env.svc.CreateUser(ctx, models.User{Username: "ann", DisplayName: "Ann", Email: "ann@example.org"})
	c := env.fake.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Ann", Email: "ANN@example.org"})

	got, err := env.persons.UserFor(ctx, c)
	if err != nil {
		t.Fatalf("UserFor: %v", err)
	}
	if got != u.ID {
		t.Errorf("user = %d, want %d", got, u.ID)
	}
	back, err := env.persons.ContactFor(ctx, u.ID)
	if err != nil || back != c.ID {
		t.Errorf("ContactFor = %d, %v; want %d", back, err, c.ID)
	}
}

func TestUserFor_CreatesUniqueUsername(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()
	if _, err := env.svc.CreateUser(ctx, models.User{Username: "pat-lee"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	c := env.fake.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Pat Lee", Email: "pat@example.org"})

	id, err := env.persons.UserFor(ctx, c)
	if err != nil {
		t.Fatalf("UserFor: %v", err)
	}
	u, _ := env.svc.User(ctx, id)
	if u.Username != "pat-lee-2" {
		t.Errorf("username = %q, want pat-lee-2", u.Username)
	}
	if u.PasswordHash == "" {
		t.Error("no password hash set")
	}
	if u.Email != "pat@example.org" {
		t.Errorf("email = %q", u.Email)
	}
}

func TestUserFor_UsernameHook(t *testing.T) {
	env := newPersons(t)
	env.hooks.AddUsernameFilter(func(ctx context.Context, u string, c crm.Contact) string {
		return "crm-" + u
	})
	c := env.fake.SeedContact(crm.Contact{ContactType: "Individual", FirstName: "Lee", LastName: "Ray"})

	id, err := env.persons.UserFor(context.Background(), c)
	if err != nil {
		t.Fatalf("UserFor: %v", err)
	}
	u, _ := env.svc.User(context.Background(), id)
	if !strings.HasPrefix(u.Username, "crm-lee-ray") {
		t.Errorf("username = %q, want crm-lee-ray prefix", u.Username)
	}
}

func TestUserFor_DefersEmail(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()
	c := env.fake.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "No Mail"})
	other := env.fake.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Other"})

	id, err := env.persons.UserFor(ctx, c)
	if err != nil {
		t.Fatalf("UserFor: %v", err)
	}
	if env.persons.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", env.persons.Pending())
	}

	_ = env.fake.SetContactEmail(ctx, other.ID, "other@example.org")
	if u, _ := env.svc.User(ctx, id); u.Email != "" {
		t.Fatalf("email set from another contact's event: %q", u.Email)
	}

	if err := env.fake.SetContactEmail(ctx, c.ID, "Late@Example.org"); err != nil {
		t.Fatalf("SetContactEmail: %v", err)
	}
	u, _ := env.svc.User(ctx, id)
	if u.Email != "late@example.org" {
		t.Errorf("email = %q, want late@example.org", u.Email)
	}
	if env.persons.Pending() != 0 {
		t.Errorf("Pending = %d after email, want 0", env.persons.Pending())
	}
	if n := env.bus.Listeners(crm.TopicEmail); n != 0 {
		t.Errorf("email listeners = %d, want 0", n)
	}
}

func TestUserFor_ExistingLink(t *testing.T) {
	env := newPersons(t)
	ctx := context.Background()
	u, _ := env.svc.CreateUser(ctx, models.User{Username: "linked"})
	c := env.fake.SeedContact(crm.Contact{ContactType: "Individual", DisplayName: "Linked"})
	if _, err := env.fake.CreateUFMatch(ctx, crm.UFMatchParams{UFID: u.ID, ContactID: c.ID}); err != nil {
		t.Fatalf("CreateUFMatch: %v", err)
	}

	got, err := env.persons.UserFor(ctx, c)
	if err != nil || got != u.ID {
		t.Errorf("UserFor = %d, %v; want %d", got, err, u.ID)
	}
}
