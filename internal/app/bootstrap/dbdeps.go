// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/features/crmhooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/engine"
	"github.com/dalemusser/groupsync/internal/app/social"
	settingsstore "github.com/dalemusser/groupsync/internal/app/store/settings"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Hooks receive DBDeps by value, so the services built in Startup live behind
// the Runtime pointer allocated by ConnectDB.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	*Runtime
}

// Runtime holds the long-lived services assembled in Startup.
type Runtime struct {
	SocialBus  *events.Bus
	CRMBus     *events.Bus
	Social     *social.Service
	CRM        *crm.Client
	Settings   *settingsstore.Store
	Echoes     *crmhooks.Echoes
	Engine     *engine.Engine
	Reconciler *workers.Reconciler // nil when reconcile_interval is 0
}
