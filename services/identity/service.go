package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/augustinmaps01/risk-profiling/middleware"
	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/augustinmaps01/risk-profiling/services"
	"go.uber.org/zap"
)

// Session sources reported to metrics
const (
	SourceCache    = "cache"
	SourceSnapshot = "snapshot"
	SourceDatabase = "database"
)

// Metrics receives cache and load observations
type Metrics interface {
	RecordSessionCache(result string)
	ObserveIdentityLoad(source string, d time.Duration)
}

// Config tunes the in-process session cache
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Service resolves permission sessions for authenticated subjects. Lookups go
// through the session cache, then the snapshot store, then the database.
type Service struct {
	repo      repositories.IdentityRepository
	txManager repositories.TransactionManager
	store     SnapshotStore
	cache     *SessionCache
	catalog   *permissions.Catalog
	metrics   Metrics
	logger    *zap.Logger
	anonymous *permissions.Session

	mu          sync.Mutex
	generations map[string]uint64
	now         func() time.Time
}

// NewService creates a Service. txManager, store and metrics may be nil.
func NewService(
	repo repositories.IdentityRepository,
	txManager repositories.TransactionManager,
	store SnapshotStore,
	catalog *permissions.Catalog,
	metrics Metrics,
	logger *zap.Logger,
	config Config,
) *Service {
	if catalog == nil {
		catalog = permissions.Default()
	}
	return &Service{
		repo:        repo,
		txManager:   txManager,
		store:       store,
		cache:       NewSessionCache(config.CacheSize, config.CacheTTL),
		catalog:     catalog,
		metrics:     metrics,
		logger:      logger,
		anonymous:   permissions.Anonymous(catalog),
		generations: make(map[string]uint64),
		now:         time.Now,
	}
}

// Anonymous returns the shared unauthenticated session
func (s *Service) Anonymous() *permissions.Session {
	return s.anonymous
}

// Cache exposes the session cache for stats and cleanup
func (s *Service) Cache() *SessionCache {
	return s.cache
}

// version combines the token issue time with the subject's reload generation,
// so a refreshed token or a profile reload yields a new identity version
func (s *Service) version(claims *middleware.Claims) string {
	s.mu.Lock()
	generation := s.generations[claims.Sub]
	s.mu.Unlock()
	return fmt.Sprintf("%d.%d", claims.Iat, generation)
}

// Resolve returns the session for validated claims
func (s *Service) Resolve(ctx context.Context, claims *middleware.Claims) (*permissions.Session, error) {
	if claims == nil || claims.Sub == "" {
		return nil, services.ErrInvalidToken
	}

	key := CacheKey{Subject: claims.Sub, Version: s.version(claims)}
	if session := s.cache.Get(key); session != nil {
		s.recordCache("hit")
		return session, nil
	}
	s.recordCache("miss")

	if session := s.fromSnapshot(ctx, key); session != nil {
		s.cache.Set(key, session)
		return session, nil
	}

	start := s.now()
	payload, err := s.load(ctx, claims.Sub)
	if err != nil {
		return nil, err
	}
	s.observe(SourceDatabase, s.now().Sub(start))

	session, err := s.sessionFromPayload(key, payload)
	if err != nil {
		return nil, err
	}

	s.storeSnapshot(ctx, key, payload)
	s.cache.Set(key, session)

	s.logger.Debug("identity loaded from database",
		zap.String("sub", key.Subject),
		zap.String("version", key.Version),
		zap.Strings("roles", session.Roles()))

	return session, nil
}

// Reload forces the next Resolve for subject to read the database
func (s *Service) Reload(ctx context.Context, subject string) error {
	if subject == "" {
		return services.ErrInvalidInput
	}

	s.mu.Lock()
	s.generations[subject]++
	generation := s.generations[subject]
	s.mu.Unlock()

	s.cache.InvalidateSubject(subject)

	if s.store != nil {
		if err := s.store.Delete(ctx, subject); err != nil {
			// stale snapshots carry the old version and are ignored
			s.logger.Warn("failed to delete identity snapshot",
				zap.String("sub", subject),
				zap.Error(err))
		}
	}

	s.logger.Info("identity reload requested",
		zap.String("sub", subject),
		zap.Uint64("generation", generation))
	return nil
}

// load reads the user's roles and stamps last_seen_at in one transaction
func (s *Service) load(ctx context.Context, subject string) ([]byte, error) {
	read := func(ctx context.Context, repo repositories.IdentityRepository) (*models.UserIdentity, error) {
		identity, err := repo.GetBySubject(ctx, subject)
		if err != nil {
			return nil, err
		}
		if err := repo.Touch(ctx, subject, s.now().UTC()); err != nil {
			return nil, err
		}
		return identity, nil
	}

	var (
		identity *models.UserIdentity
		err      error
	)
	if s.txManager != nil {
		identity, err = services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.UserIdentity, error) {
			return read(ctx, s.repo.WithTx(tx))
		})
	} else {
		identity, err = read(ctx, s.repo)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		s.logger.Error("failed to load identity",
			zap.String("sub", subject),
			zap.Error(err))
		return nil, services.ErrIdentityUnavailable.Wrap(err)
	}

	payload, err := json.Marshal(identity.Payload())
	if err != nil {
		return nil, services.WrapInternal("failed to encode identity", err)
	}
	return payload, nil
}

func (s *Service) fromSnapshot(ctx context.Context, key CacheKey) *permissions.Session {
	if s.store == nil {
		return nil
	}

	start := s.now()
	snapshot, err := s.store.Get(ctx, key.Subject)
	if err != nil {
		s.logger.Warn("identity snapshot unavailable",
			zap.String("sub", key.Subject),
			zap.Error(err))
		return nil
	}
	if snapshot == nil || snapshot.Version != key.Version {
		return nil
	}

	session, err := s.sessionFromPayload(key, snapshot.Payload)
	if err != nil {
		s.logger.Warn("discarding unreadable identity snapshot",
			zap.String("sub", key.Subject),
			zap.Error(err))
		return nil
	}
	s.observe(SourceSnapshot, s.now().Sub(start))
	return session
}

func (s *Service) storeSnapshot(ctx context.Context, key CacheKey, payload []byte) {
	if s.store == nil {
		return
	}
	err := s.store.Put(ctx, &Snapshot{
		Subject:  key.Subject,
		Version:  key.Version,
		Payload:  payload,
		StoredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to store identity snapshot",
			zap.String("sub", key.Subject),
			zap.Error(err))
	}
}

// sessionFromPayload normalizes a raw auth payload into a session. A payload
// in no known shape yields an authenticated session without roles.
func (s *Service) sessionFromPayload(key CacheKey, raw []byte) (*permissions.Session, error) {
	payload, err := permissions.ParseAuthPayload(raw)
	if err != nil {
		return nil, services.ErrInvalidPayload.Wrap(err)
	}

	identity, ok := payload.Identity()
	if !ok {
		s.logger.Warn("auth payload has no roles list",
			zap.String("sub", key.Subject))
	}
	identity.Subject = key.Subject
	identity.Version = key.Version

	return permissions.NewSession(s.catalog, identity, true), nil
}

func (s *Service) recordCache(result string) {
	if s.metrics != nil {
		s.metrics.RecordSessionCache(result)
	}
}

func (s *Service) observe(source string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveIdentityLoad(source, d)
	}
}
