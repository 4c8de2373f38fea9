package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdentityRepository implements the repositories.IdentityRepository interface
type IdentityRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *DB, logger *zap.Logger) repositories.IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

const selectUserBySubject = `
	SELECT id, cognito_sub, email, name, active, created_at, updated_at
	FROM users
	WHERE cognito_sub = $1 AND active = true
`

const selectUserRoles = `
	SELECT r.id, r.slug, r.name, p.id, p.slug, p.name
	FROM role_user ru
	JOIN roles r ON r.id = ru.role_id
	LEFT JOIN permission_role pr ON pr.role_id = r.id
	LEFT JOIN permissions p ON p.id = pr.permission_id
	WHERE ru.user_id = $1
	ORDER BY ru.assigned_at, r.slug, p.slug
`

const selectAllRoles = `
	SELECT r.id, r.slug, r.name, p.id, p.slug, p.name
	FROM roles r
	LEFT JOIN permission_role pr ON pr.role_id = r.id
	LEFT JOIN permissions p ON p.id = pr.permission_id
	ORDER BY r.slug, p.slug
`

// GetBySubject loads the active user for a Cognito subject with its roles
func (r *IdentityRepository) GetBySubject(ctx context.Context, subject string) (*models.UserIdentity, error) {
	executor := executorFor(ctx, r.db, r.tx)
	user := models.User{}

	err := executor.QueryRowContext(ctx, selectUserBySubject, subject).Scan(
		&user.ID,
		&user.CognitoSub,
		&user.Email,
		&user.Name,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user for cognito_sub %s", repositories.ErrNotFound, subject)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := executor.QueryContext(ctx, selectUserRoles, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	roles, err := collectRoles(rows)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("identity loaded",
		zap.String("subject", subject),
		zap.Int("roles", len(roles)))

	return &models.UserIdentity{
		User:     user,
		Roles:    roles,
		LoadedAt: time.Now().UTC(),
	}, nil
}

// ListRoles lists every backend role with its permissions
func (r *IdentityRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	executor := executorFor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, selectAllRoles)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	return collectRoles(rows)
}

// Touch records when the identity was last resolved from the database
func (r *IdentityRepository) Touch(ctx context.Context, subject string, at time.Time) error {
	executor := executorFor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx,
		`UPDATE users SET last_seen_at = $2 WHERE cognito_sub = $1`,
		subject, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: user for cognito_sub %s", repositories.ErrNotFound, subject)
	}
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *IdentityRepository) WithTx(tx repositories.Transaction) repositories.IdentityRepository {
	return &IdentityRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

// collectRoles folds role/permission join rows into roles. Rows of one role
// are contiguous; a role without permissions yields a single row of NULLs.
func collectRoles(rows *sql.Rows) ([]models.Role, error) {
	roles := make([]models.Role, 0)
	for rows.Next() {
		var (
			roleID   uuid.UUID
			roleSlug string
			roleName string
			permID   uuid.NullUUID
			permSlug sql.NullString
			permName sql.NullString
		)
		if err := rows.Scan(&roleID, &roleSlug, &roleName, &permID, &permSlug, &permName); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		if n := len(roles); n == 0 || roles[n-1].ID != roleID {
			roles = append(roles, models.Role{
				ID:          roleID,
				Slug:        roleSlug,
				Name:        roleName,
				Permissions: []models.Permission{},
			})
		}
		if permID.Valid {
			current := &roles[len(roles)-1]
			current.Permissions = append(current.Permissions, models.Permission{
				ID:   permID.UUID,
				Slug: permSlug.String,
				Name: permName.String,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}
	return roles, nil
}
