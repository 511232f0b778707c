// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// HTTP listener, TLS, logging and CORS; everything here is about the sync
// service itself.
type AppConfig struct {
	// MongoDB connection configuration (Subsystem A storage)
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// CRM REST endpoint (Subsystem B)
	CRMBaseURL           string
	CRMAPIKey            string
	CRMSiteKey           string
	CRMOAuthClientID     string // blank disables client-credentials auth
	CRMOAuthClientSecret string
	CRMOAuthTokenURL     string
	CRMRateLimit         int // requests per second; 0 disables limiting
	CRMBurst             int
	CRMTimeout           time.Duration

	// Inbound CRM webhooks
	WebhookSecret    string        // HMAC key; blank disables /hooks/crm
	WebhookRateLimit int           // deliveries per client IP per minute
	EchoTTL          time.Duration // how long our own CRM writes are ignored when echoed back

	// Operator sessions
	SessionKey        string // Secret key for signing session cookies (must be strong in production)
	SessionName       string // Cookie name for sessions (default: groupsync-session)
	SessionDomain     string // Cookie domain (blank means current host)
	SessionMaxAge     time.Duration
	AdminUser         string
	AdminPasswordHash string // bcrypt hash; blank disables sign-in

	// Sync behaviour
	ReconcileInterval   time.Duration // 0 disables the background reconciler
	ReconcileChunk      int
	EagerResyncLimit    int
	LegacyCreatorID     int64
	UseContainerDefault bool
	SyncEnabledDefault  bool

	// Deadlines
	SyncTimeout  time.Duration
	BatchTimeout time.Duration
}
