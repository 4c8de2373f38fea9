package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/augustinmaps01/risk-profiling/config"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return WrapDB(db, logger), nil
}

// WrapDB wraps an already opened pool
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// schema mirrors the backend tables the gateway reads, plus its own audit table
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		cognito_sub VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		last_seen_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS roles (
		id UUID PRIMARY KEY,
		slug VARCHAR(100) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS permissions (
		id UUID PRIMARY KEY,
		slug VARCHAR(100) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS role_user (
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, role_id)
	);

	CREATE TABLE IF NOT EXISTS permission_role (
		role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	);

	CREATE TABLE IF NOT EXISTS access_audit_logs (
		id UUID PRIMARY KEY,
		subject VARCHAR(255) NOT NULL DEFAULT '',
		user_id UUID REFERENCES users(id) ON DELETE SET NULL,
		action VARCHAR(50) NOT NULL,
		target VARCHAR(255) NOT NULL,
		mode VARCHAR(50) NOT NULL DEFAULT '',
		matched_rule VARCHAR(255) NOT NULL DEFAULT '',
		roles TEXT[] NOT NULL DEFAULT '{}',
		details JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(255),
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_cognito_sub ON users(cognito_sub);
	CREATE INDEX IF NOT EXISTS idx_role_user_user_id ON role_user(user_id);
	CREATE INDEX IF NOT EXISTS idx_permission_role_role_id ON permission_role(role_id);

	CREATE INDEX IF NOT EXISTS idx_access_audit_logs_subject ON access_audit_logs(subject);
	CREATE INDEX IF NOT EXISTS idx_access_audit_logs_action ON access_audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_access_audit_logs_timestamp ON access_audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_access_audit_logs_request_id ON access_audit_logs(request_id);
`

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// SeedRoles inserts the given role to permission assignments when they are
// missing. Existing rows and extra backend assignments are left untouched.
func (db *DB) SeedRoles(ctx context.Context, assignments map[string][]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	roles := make([]string, 0, len(assignments))
	for role := range assignments {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		perms := assignments[role]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, slug, name) VALUES ($1, $2, $2) ON CONFLICT (slug) DO NOTHING`,
			uuid.New(), role,
		); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role, err)
		}
		for _, perm := range perms {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO permissions (id, slug, name) VALUES ($1, $2, $2) ON CONFLICT (slug) DO NOTHING`,
				uuid.New(), perm,
			); err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", perm, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO permission_role (role_id, permission_id)
				SELECT r.id, p.id FROM roles r, permissions p
				WHERE r.slug = $1 AND p.slug = $2
				ON CONFLICT DO NOTHING`,
				role, perm,
			); err != nil {
				return fmt.Errorf("failed to seed %s -> %s: %w", role, perm, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	db.logger.Info("role assignments seeded", zap.Int("roles", len(assignments)))
	return nil
}
