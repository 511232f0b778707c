// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/groupsync/internal/app/crm"
	"github.com/dalemusser/groupsync/internal/app/features/crmhooks"
	"github.com/dalemusser/groupsync/internal/app/groupsync/engine"
	"github.com/dalemusser/groupsync/internal/app/social"
	groupmetastore "github.com/dalemusser/groupsync/internal/app/store/groupmeta"
	groupstore "github.com/dalemusser/groupsync/internal/app/store/groups"
	membershipstore "github.com/dalemusser/groupsync/internal/app/store/memberships"
	reconcilestatestore "github.com/dalemusser/groupsync/internal/app/store/reconcilestate"
	settingsstore "github.com/dalemusser/groupsync/internal/app/store/settings"
	userstore "github.com/dalemusser/groupsync/internal/app/store/users"
	"github.com/dalemusser/groupsync/internal/app/system/events"
	"github.com/dalemusser/groupsync/internal/app/system/timeouts"
	"github.com/dalemusser/groupsync/internal/app/system/txn"
	"github.com/dalemusser/groupsync/internal/app/system/workers"
	"github.com/dalemusser/groupsync/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

// Startup assembles the sync service after the database is connected and
// indexed: stores, both event buses, the Subsystem A service, the CRM client
// and the engine. The background reconciler starts last.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Runtime == nil {
		return fmt.Errorf("startup: runtime not allocated by ConnectDB")
	}
	rt := deps.Runtime

	timeouts.Configure(timeouts.Config{
		Sync:  appCfg.SyncTimeout,
		Batch: appCfg.BatchTimeout,
	})

	db := deps.MongoDatabase
	rt.SocialBus = events.NewBus("social", logger.Named("bus.social"))
	rt.CRMBus = events.NewBus("crm", logger.Named("bus.crm"))
	rt.Social = social.New(socialStores(db, logger), rt.SocialBus, logger.Named("social"))

	echoes, err := crmhooks.NewEchoes(appCfg.EchoTTL)
	if err != nil {
		return fmt.Errorf("echo cache: %w", err)
	}
	rt.Echoes = echoes

	rt.CRM, err = crm.NewClient(ctx, crmConfig(appCfg, echoes), logger.Named("crm"))
	if err != nil {
		return fmt.Errorf("crm client: %w", err)
	}

	rt.Settings = settingsstore.New(db)
	seeded, err := rt.Settings.Seed(ctx, initialSettings(appCfg))
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if seeded {
		logger.Info("initialized sync settings from config",
			zap.Bool("sync_enabled", appCfg.SyncEnabledDefault),
			zap.Bool("use_container", appCfg.UseContainerDefault))
	}

	rt.Engine = engine.New(engine.Config{
		CRM:             rt.CRM,
		CRMBus:          rt.CRMBus,
		Social:          rt.Social,
		Settings:        rt.Settings,
		State:           reconcilestatestore.New(db),
		Logger:          logger.Named("sync"),
		Chunk:           appCfg.ReconcileChunk,
		LegacyCreatorID: appCfg.LegacyCreatorID,
	})
	rt.Engine.Start(ctx)

	if appCfg.ReconcileInterval > 0 {
		rt.Reconciler = workers.NewReconciler(rt.Engine, logger.Named("reconciler"), appCfg.ReconcileInterval)
		rt.Reconciler.Start()
	}
	return nil
}

// socialStores binds the Mongo stores behind social.Service. Multi-document
// writes run in one transaction.
func socialStores(db *mongo.Database, logger *zap.Logger) social.Stores {
	return social.Stores{
		Groups:      groupstore.New(db),
		Memberships: membershipstore.New(db),
		Meta:        groupmetastore.New(db),
		Users:       userstore.New(db),
		Tx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return txn.Run(ctx, db, logger, fn)
		},
	}
}

// crmConfig maps app config onto the CRM client. OAuth is used only when a
// client ID is configured.
func crmConfig(appCfg AppConfig, recorder crm.WriteRecorder) crm.Config {
	cfg := crm.Config{
		BaseURL:   appCfg.CRMBaseURL,
		APIKey:    appCfg.CRMAPIKey,
		SiteKey:   appCfg.CRMSiteKey,
		Timeout:   appCfg.CRMTimeout,
		RateLimit: float64(appCfg.CRMRateLimit),
		Burst:     appCfg.CRMBurst,
		Recorder:  recorder,
	}
	if appCfg.CRMOAuthClientID != "" {
		cfg.OAuth = &clientcredentials.Config{
			ClientID:     appCfg.CRMOAuthClientID,
			ClientSecret: appCfg.CRMOAuthClientSecret,
			TokenURL:     appCfg.CRMOAuthTokenURL,
		}
	}
	return cfg
}

func initialSettings(appCfg AppConfig) models.SyncSettings {
	limit := appCfg.EagerResyncLimit
	if limit <= 0 {
		limit = models.DefaultEagerResyncLimit
	}
	return models.SyncSettings{
		SyncEnabled:      appCfg.SyncEnabledDefault,
		UseContainer:     appCfg.UseContainerDefault,
		EagerResyncLimit: limit,
		UpdatedBy:        "config",
	}
}
