package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/augustinmaps01/risk-profiling/middleware"
	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/augustinmaps01/risk-profiling/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockIdentityRepository is a mock implementation of IdentityRepository
type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) GetBySubject(ctx context.Context, subject string) (*models.UserIdentity, error) {
	args := m.Called(ctx, subject)
	if identity := args.Get(0); identity != nil {
		return identity.(*models.UserIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	args := m.Called(ctx)
	if roles := args.Get(0); roles != nil {
		return roles.([]models.Role), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityRepository) Touch(ctx context.Context, subject string, at time.Time) error {
	args := m.Called(ctx, subject, at)
	return args.Error(0)
}

func (m *MockIdentityRepository) WithTx(tx repositories.Transaction) repositories.IdentityRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.IdentityRepository)
}

type stubTx struct{ ctx context.Context }

func (t *stubTx) Commit() error            { return nil }
func (t *stubTx) Rollback() error          { return nil }
func (t *stubTx) Context() context.Context { return t.ctx }

type stubTxManager struct{ begun int }

func (m *stubTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	m.begun++
	return &stubTx{ctx: ctx}, nil
}

func (m *stubTxManager) InTransaction(ctx context.Context, fn func(context.Context, repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	return fn(ctx, tx)
}

type recordingMetrics struct {
	mu    sync.Mutex
	cache map[string]int
	loads map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{cache: map[string]int{}, loads: map[string]int{}}
}

func (r *recordingMetrics) RecordSessionCache(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[result]++
}

func (r *recordingMetrics) ObserveIdentityLoad(source string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads[source]++
}

func userIdentity(subject string, roles ...string) *models.UserIdentity {
	identity := &models.UserIdentity{
		User:     *models.NewUser(subject+"@bank.example", subject, "Test User"),
		LoadedAt: time.Now(),
	}
	for _, slug := range roles {
		role := models.Role{ID: uuid.New(), Slug: slug, Name: slug}
		for _, perm := range permissions.GetRolePermissions(slug) {
			role.Permissions = append(role.Permissions, models.Permission{ID: uuid.New(), Slug: perm, Name: perm})
		}
		identity.Roles = append(identity.Roles, role)
	}
	return identity
}

const issuedAt = int64(1767225600)

func claimsFor(subject string) *middleware.Claims {
	return &middleware.Claims{Sub: subject, Iat: issuedAt}
}

func newTestService(repo repositories.IdentityRepository, store SnapshotStore, metrics Metrics) *Service {
	return NewService(repo, nil, store, permissions.Default(), metrics, zap.NewNop(), Config{
		CacheSize: 100,
		CacheTTL:  time.Minute,
	})
}

func TestService_ResolveLoadsAndCaches(t *testing.T) {
	repo := new(MockIdentityRepository)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleManager), nil).Once()
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil).Once()
	metrics := newRecordingMetrics()

	service := newTestService(repo, nil, metrics)

	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)
	assert.True(t, session.IsAuthenticated())
	assert.True(t, session.IsManager())
	assert.Equal(t, "sub-1", session.Subject())
	assert.Equal(t, "1767225600.0", session.Version())
	assert.True(t, session.CanAccessRoute("/reports"))
	assert.False(t, session.CanAccessRoute("/settings"))

	again, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)
	assert.Same(t, session, again)

	repo.AssertExpectations(t)
	assert.Equal(t, 1, metrics.cache["hit"])
	assert.Equal(t, 1, metrics.cache["miss"])
	assert.Equal(t, 1, metrics.loads[SourceDatabase])
}

func TestService_RefreshedTokenIsNewVersion(t *testing.T) {
	repo := new(MockIdentityRepository)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleUser), nil).Twice()
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil)

	service := newTestService(repo, nil, nil)

	first, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	refreshed := claimsFor("sub-1")
	refreshed.Iat = issuedAt + 3600
	second, err := service.Resolve(context.Background(), refreshed)
	require.NoError(t, err)

	assert.NotEqual(t, first.Version(), second.Version())
	repo.AssertNumberOfCalls(t, "GetBySubject", 2)
}

func TestService_ResolveWritesSnapshot(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)

	repo := new(MockIdentityRepository)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleCompliance), nil)
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil)

	service := newTestService(repo, store, nil)
	_, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	snapshot, err := store.Get(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "1767225600.0", snapshot.Version)

	payload, err := permissions.ParseAuthPayload(snapshot.Payload)
	require.NoError(t, err)
	identity, ok := payload.Identity()
	require.True(t, ok)
	assert.Equal(t, []string{permissions.RoleCompliance}, identity.RoleSlugs())
}

func TestService_ResolveFromSnapshot(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)
	metrics := newRecordingMetrics()

	// snapshot written by another instance using the data.roles shape
	raw := json.RawMessage(`{"data":{"roles":[{"slug":"users","permissions":[{"slug":"view-dashboard"},{"slug":"create-customers"}]}]}}`)
	require.NoError(t, store.Put(context.Background(), &Snapshot{Subject: "sub-1", Version: "1767225600.0", Payload: raw}))

	repo := new(MockIdentityRepository)
	service := newTestService(repo, store, metrics)

	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	assert.True(t, session.IsRegularUser())
	assert.ElementsMatch(t, []string{"view-dashboard", "create-customers"}, session.Permissions())
	assert.True(t, session.CanAccessRoute("/risk-form"))
	repo.AssertNotCalled(t, "GetBySubject", mock.Anything, mock.Anything)
	assert.Equal(t, 1, metrics.loads[SourceSnapshot])
}

func TestService_SnapshotVersionMismatch(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)
	raw := json.RawMessage(`{"roles":[{"slug":"admin","permissions":[]}]}`)
	require.NoError(t, store.Put(context.Background(), &Snapshot{Subject: "sub-1", Version: "1000.0", Payload: raw}))

	repo := new(MockIdentityRepository)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleUser), nil)
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil)

	service := newTestService(repo, store, nil)
	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	assert.False(t, session.IsAdmin())
	assert.True(t, session.IsRegularUser())
	repo.AssertExpectations(t)
}

func TestService_SnapshotStoreDown(t *testing.T) {
	mr, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)
	mr.Close()

	repo := new(MockIdentityRepository)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleManager), nil)
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil)

	service := newTestService(repo, store, nil)
	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)
	assert.True(t, session.IsManager())
}

func TestService_UnknownPayloadShape(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)
	raw := json.RawMessage(`{"profile":{"roles":[{"slug":"admin"}]}}`)
	require.NoError(t, store.Put(context.Background(), &Snapshot{Subject: "sub-1", Version: "1767225600.0", Payload: raw}))

	service := newTestService(new(MockIdentityRepository), store, nil)
	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	assert.True(t, session.IsAuthenticated())
	assert.Empty(t, session.Roles())
	assert.Empty(t, session.Permissions())
}

func TestService_ResolveErrors(t *testing.T) {
	t.Run("missing claims", func(t *testing.T) {
		service := newTestService(new(MockIdentityRepository), nil, nil)

		_, err := service.Resolve(context.Background(), nil)
		assert.ErrorIs(t, err, services.ErrInvalidToken)

		_, err = service.Resolve(context.Background(), &middleware.Claims{})
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("no backend account", func(t *testing.T) {
		repo := new(MockIdentityRepository)
		repo.On("GetBySubject", mock.Anything, "ghost").
			Return(nil, errors.Join(repositories.ErrNotFound, errors.New("user for cognito_sub ghost")))
		service := newTestService(repo, nil, nil)

		_, err := service.Resolve(context.Background(), claimsFor("ghost"))
		assert.ErrorIs(t, err, services.ErrUserNotFound)
		assert.True(t, services.IsUnauthorizedError(err))
	})

	t.Run("database down", func(t *testing.T) {
		repo := new(MockIdentityRepository)
		repo.On("GetBySubject", mock.Anything, "sub-1").Return(nil, errors.New("connection refused"))
		service := newTestService(repo, nil, nil)

		_, err := service.Resolve(context.Background(), claimsFor("sub-1"))
		assert.ErrorIs(t, err, services.ErrIdentityUnavailable)
		assert.True(t, services.IsUnavailableError(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("touch fails after deactivation", func(t *testing.T) {
		repo := new(MockIdentityRepository)
		repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleUser), nil)
		repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(repositories.ErrNotFound)
		service := newTestService(repo, nil, nil)

		_, err := service.Resolve(context.Background(), claimsFor("sub-1"))
		assert.ErrorIs(t, err, services.ErrUserNotFound)
	})
}

func TestService_ResolveInTransaction(t *testing.T) {
	repo := new(MockIdentityRepository)
	repo.On("WithTx", mock.Anything).Return(repo)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleAdmin), nil)
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil)
	txManager := &stubTxManager{}

	service := NewService(repo, txManager, nil, nil, nil, zap.NewNop(), Config{CacheSize: 10, CacheTTL: time.Minute})
	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	assert.True(t, session.IsAdmin())
	assert.Equal(t, 1, txManager.begun)
	repo.AssertCalled(t, "WithTx", mock.Anything)
}

func TestService_Reload(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)

	repo := new(MockIdentityRepository)
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleUser), nil).Once()
	repo.On("GetBySubject", mock.Anything, "sub-1").Return(userIdentity("sub-1", permissions.RoleUser, permissions.RoleManager), nil).Once()
	repo.On("Touch", mock.Anything, "sub-1", mock.Anything).Return(nil)

	service := newTestService(repo, store, nil)
	ctx := context.Background()

	before, err := service.Resolve(ctx, claimsFor("sub-1"))
	require.NoError(t, err)
	assert.False(t, before.IsManager())

	require.NoError(t, service.Reload(ctx, "sub-1"))
	snapshot, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	after, err := service.Resolve(ctx, claimsFor("sub-1"))
	require.NoError(t, err)
	assert.True(t, after.IsManager())
	assert.Equal(t, "1767225600.1", after.Version())

	assert.ErrorIs(t, service.Reload(ctx, ""), services.ErrInvalidInput)
	repo.AssertExpectations(t)
}

func TestService_Anonymous(t *testing.T) {
	service := newTestService(new(MockIdentityRepository), nil, nil)

	anon := service.Anonymous()
	assert.False(t, anon.IsAuthenticated())
	assert.Same(t, anon, service.Anonymous())
	assert.True(t, anon.CanAccessRoute("/login"))
	assert.False(t, anon.CanAccessRoute("/dashboard"))
}

func TestService_SnapshotWithWronglyTypedKeys(t *testing.T) {
	_, client := newRedis(t)
	store := NewRedisSnapshotStore(client, "risk", time.Hour)
	raw := json.RawMessage(`{"data":[1,2],"user":"x","roles":[{"slug":"manager","permissions":[{"slug":7},{"slug":"view-customers"}]}]}`)
	require.NoError(t, store.Put(context.Background(), &Snapshot{Subject: "sub-1", Version: "1767225600.0", Payload: raw}))

	repo := new(MockIdentityRepository)
	service := newTestService(repo, store, nil)
	session, err := service.Resolve(context.Background(), claimsFor("sub-1"))
	require.NoError(t, err)

	assert.True(t, session.IsManager())
	assert.Equal(t, []string{"view-customers"}, session.Permissions())
	repo.AssertNotCalled(t, "GetBySubject", mock.Anything, mock.Anything)
}
