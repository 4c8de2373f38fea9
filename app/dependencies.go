package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/augustinmaps01/risk-profiling/cognito"
	"github.com/augustinmaps01/risk-profiling/config"
	"github.com/augustinmaps01/risk-profiling/handlers"
	"github.com/augustinmaps01/risk-profiling/internal/observability"
	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/augustinmaps01/risk-profiling/middleware"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/augustinmaps01/risk-profiling/repositories/postgres"
	"github.com/augustinmaps01/risk-profiling/services"
	"github.com/augustinmaps01/risk-profiling/services/audit"
	"github.com/augustinmaps01/risk-profiling/services/identity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// AppPrefix is where the SPA pages are mounted
	AppPrefix = "/app"

	cacheCleanupInterval = time.Minute
	auditStopTimeout     = 5 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Redis   *redis.Client

	// Permission catalog shared by every decision
	Catalog *permissions.Catalog

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Identities repositories.IdentityRepository
	AuditLogs  repositories.AuditRepository
	TxManager  repositories.TransactionManager

	// Services
	Snapshots       *identity.RedisSnapshotStore
	IdentityService *identity.Service
	AuditService    *audit.AuditService

	// HTTP
	AuthMiddleware   *middleware.AuthMiddleware
	AccessMiddleware *middleware.AccessMiddleware
	AccessHandler    *handlers.AccessHandler
	AuditHandler     *handlers.AuditHandler
	HealthHandler    *handlers.HealthHandler
	PageHandler      *handlers.PageHandler

	stopCleanup chan struct{}
}

// NewDependencies opens the database and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithDB(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithDB wires the application over an existing pool
func NewDependenciesWithDB(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *postgres.DB) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		DB:          db,
		Logger:      logger,
		Metrics:     observability.NewMetrics(),
		Catalog:     permissions.Default(),
		stopCleanup: make(chan struct{}),
	}

	if err := deps.initCatalog(cfg); err != nil {
		return nil, err
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initSnapshots(ctx, cfg)

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initAuth(cfg)
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initCatalog checks the catalog tables against each other
func (d *Dependencies) initCatalog(cfg *config.Config) error {
	err := d.Catalog.Validate()
	if err == nil {
		return nil
	}
	if cfg.Access.StrictCatalog {
		return services.ErrCatalogInconsistent.Wrap(err)
	}
	d.Logger.Warn("permission catalog is inconsistent", zap.Error(err))
	return nil
}

func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := d.DB.InitSchema(ctx); err != nil {
			return err
		}
	}
	if cfg.Database.SeedRoles {
		if err := d.DB.SeedRoles(ctx, d.roleAssignments()); err != nil {
			return err
		}
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) roleAssignments() map[string][]string {
	assignments := make(map[string][]string)
	for _, role := range d.Catalog.RoleSlugs() {
		assignments[role] = d.Catalog.RolePermissions(role)
	}
	return assignments
}

func (d *Dependencies) initRepositories() {
	d.RepoFactory = postgres.NewRepositoryFactoryWithDB(d.DB, d.Logger)
	repos := d.RepoFactory.NewRepositories()

	d.Identities = repos.Identities
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initSnapshots connects the shared snapshot store. A missing Redis only
// costs cross-instance reuse, so startup carries on without it.
func (d *Dependencies) initSnapshots(ctx context.Context, cfg *config.Config) {
	if !cfg.Redis.Enabled {
		d.Logger.Info("redis disabled, identity snapshots off")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		d.Logger.Warn("redis unreachable, identity snapshots off",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err))
		_ = client.Close()
		return
	}

	d.Redis = client
	d.Snapshots = identity.NewRedisSnapshotStore(client, cfg.Redis.KeyPrefix, cfg.Access.SnapshotTTL)
	d.Logger.Info("identity snapshot store connected", zap.String("addr", cfg.Redis.Addr))
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	var store identity.SnapshotStore
	if d.Snapshots != nil {
		store = d.Snapshots
	}

	d.IdentityService = identity.NewService(
		d.Identities,
		d.TxManager,
		store,
		d.Catalog,
		d.Metrics,
		d.Logger,
		identity.Config{
			CacheSize: cfg.Access.SessionCacheSize,
			CacheTTL:  cfg.Access.SessionCacheTTL,
		},
	)
	go d.IdentityService.Cache().StartCleanupWorker(cacheCleanupInterval, d.stopCleanup)

	if cfg.Access.AuditDenials {
		d.AuditService = audit.NewAuditService(d.AuditLogs, d.TxManager, d.Logger, audit.DefaultConfig())
		if err := d.AuditService.Start(); err != nil {
			return fmt.Errorf("failed to start audit service: %w", err)
		}
	}

	d.Logger.Info("services initialized",
		zap.Bool("snapshots", store != nil),
		zap.Bool("audit", d.AuditService != nil))
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	var denials middleware.DenialRecorder
	if d.AuditService != nil {
		denials = d.AuditService
	}
	d.AccessMiddleware = middleware.NewAccessMiddleware(
		d.IdentityService,
		denials,
		d.Metrics,
		cfg.Access.UnauthorizedPath,
		d.Logger,
	)

	if cfg.Cognito.UserPoolID == "" || cfg.Cognito.ClientID == "" {
		d.Logger.Warn("cognito not configured, every request is anonymous")
		// Use reject-all validator so protected routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}
	cognitoValidator := cognito.NewCognitoValidator(cognito.Config{
		Region:      cfg.Cognito.Region,
		UserPoolID:  cfg.Cognito.UserPoolID,
		ClientID:    cfg.Cognito.ClientID,
		CacheTTL:    time.Hour,
		HTTPTimeout: 10 * time.Second,
	})
	d.AuthMiddleware = middleware.NewAuthMiddleware(&cognitoTokenValidatorAdapter{validator: cognitoValidator}, d.Logger)
	d.Logger.Info("cognito token validation enabled", zap.String("issuer", cognitoValidator.Issuer()))
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	var auditor handlers.AccessAuditor
	if d.AuditService != nil {
		auditor = d.AuditService
	}
	d.AccessHandler = handlers.NewAccessHandler(
		d.Catalog,
		d.IdentityService,
		d.Identities,
		auditor,
		d.Metrics,
		d.Logger,
	)
	d.AuditHandler = handlers.NewAuditHandler(d.AuditLogs, d.Logger)

	d.HealthHandler = handlers.NewHealthHandler(d.Logger).
		WithCheck("database", d.DB).
		WithCheck("catalog", handlers.CheckFunc(func(context.Context) error {
			return d.Catalog.Validate()
		}))
	if d.Snapshots != nil {
		d.HealthHandler.WithCheck("redis", d.Snapshots)
	}
	if d.AuditService != nil {
		d.HealthHandler.WithCheck("audit", d.AuditService)
	}

	d.PageHandler = handlers.NewPageHandler(AppPrefix, cfg.Server.SPAIndexFile)
}

// ClaimsValidator is the part of cognito.CognitoValidator the adapter needs
type ClaimsValidator interface {
	ValidateToken(ctx context.Context, token string) (*cognito.ParsedClaims, error)
}

// cognitoTokenValidatorAdapter adapts cognito.CognitoValidator to middleware.TokenValidator
type cognitoTokenValidatorAdapter struct {
	validator ClaimsValidator
}

func (a *cognitoTokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return claimsFromCognito(parsed), nil
}

func claimsFromCognito(parsed *cognito.ParsedClaims) *middleware.Claims {
	claims := &middleware.Claims{
		Sub:           parsed.Sub.String(),
		Email:         parsed.Email,
		EmailVerified: parsed.EmailVerified,
		Username:      parsed.Username,
		Groups:        parsed.Groups,
		Roles:         parsed.Roles,
	}
	if !parsed.ExpiresAt.IsZero() {
		claims.Exp = parsed.ExpiresAt.Unix()
	}
	if !parsed.IssuedAt.IsZero() {
		claims.Iat = parsed.IssuedAt.Unix()
	}
	return claims
}

// rejectAllValidator rejects all tokens (used when Cognito is not configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		close(d.stopCleanup)
		d.stopCleanup = nil
	}

	// Drain queued audit events before the pool goes away
	if d.AuditService != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.AuditService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}
