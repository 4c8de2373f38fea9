package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/augustinmaps01/risk-profiling/models"
)

// TransactionManager handles database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context carrying the transaction, so repositories
	// called with it run inside the transaction
	Context() context.Context
}

// IdentityRepository reads users with their role and permission assignments
type IdentityRepository interface {
	// GetBySubject loads the active user for a Cognito subject with roles in
	// assignment order and permissions ordered by slug
	GetBySubject(ctx context.Context, subject string) (*models.UserIdentity, error)

	// ListRoles lists every backend role with its permissions, ordered by slug
	ListRoles(ctx context.Context) ([]models.Role, error)

	// Touch records the time the identity was last resolved from the store
	Touch(ctx context.Context, subject string, at time.Time) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) IdentityRepository
}

// AuditFilter narrows audit log listings
type AuditFilter struct {
	Subject string
	Action  models.AuditAction
	Since   time.Time
	Limit   int
	Offset  int
}

// AuditRepository stores access audit logs
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AccessAuditLog) error

	// InsertBatch inserts several entries in one round trip
	InsertBatch(ctx context.Context, logs []*models.AccessAuditLog) error

	// List retrieves audit logs matching the filter, newest first
	List(ctx context.Context, filter AuditFilter) ([]*models.AccessAuditLog, error)

	// CountByAction counts entries per action since the given time
	CountByAction(ctx context.Context, since time.Time) (map[models.AuditAction]int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) AuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Identities IdentityRepository
	AuditLogs  AuditRepository
}

// ErrNotFound is wrapped by repositories when a lookup matches no row
var ErrNotFound = errors.New("record not found")
