package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultAuditPageSize = 50

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const insertAuditLog = `
	INSERT INTO access_audit_logs (
		id, subject, user_id, action, target, mode, matched_rule, roles,
		details, ip_address, user_agent, request_id, timestamp
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)
`

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AccessAuditLog) error {
	executor := executorFor(ctx, r.db, r.tx)
	if err := r.insert(ctx, executor, log); err != nil {
		return err
	}

	r.logger.Debug("audit log inserted",
		zap.String("id", log.ID.String()),
		zap.String("action", string(log.Action)))
	return nil
}

// InsertBatch inserts the entries within the caller's transaction when one
// is bound, otherwise one statement at a time on the pool.
func (r *AuditRepository) InsertBatch(ctx context.Context, logs []*models.AccessAuditLog) error {
	executor := executorFor(ctx, r.db, r.tx)
	for _, log := range logs {
		if err := r.insert(ctx, executor, log); err != nil {
			return err
		}
	}

	r.logger.Debug("audit batch inserted", zap.Int("count", len(logs)))
	return nil
}

func (r *AuditRepository) insert(ctx context.Context, executor Executor, log *models.AccessAuditLog) error {
	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	_, err := executor.ExecContext(ctx, insertAuditLog,
		log.ID,
		log.Subject,
		log.UserID,
		log.Action,
		log.Target,
		log.Mode,
		log.MatchedRule,
		pq.Array(log.Roles),
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// List retrieves audit logs matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AccessAuditLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		where = append(where, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	args = append(args, limit, filter.Offset)

	query := `
		SELECT id, subject, user_id, action, target, mode, matched_rule, roles,
		       details, ip_address, user_agent, request_id, timestamp
		FROM access_audit_logs`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf("\n\t\tORDER BY timestamp DESC\n\t\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.queryAuditLogs(ctx, query, args...)
}

// CountByAction counts entries per action since the given time
func (r *AuditRepository) CountByAction(ctx context.Context, since time.Time) (map[models.AuditAction]int64, error) {
	executor := executorFor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM access_audit_logs
		WHERE timestamp >= $1
		GROUP BY action
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AuditAction]int64)
	for rows.Next() {
		var (
			action models.AuditAction
			count  int64
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit counts: %w", err)
	}
	return counts, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *AuditRepository) WithTx(tx repositories.Transaction) repositories.AuditRepository {
	return &AuditRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

// queryAuditLogs is a helper method to query multiple audit logs
func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AccessAuditLog, error) {
	executor := executorFor(ctx, r.db, r.tx)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AccessAuditLog, 0)
	for rows.Next() {
		log := &models.AccessAuditLog{}
		var (
			details   []byte
			ipAddress sql.NullString
			userAgent sql.NullString
			requestID sql.NullString
		)
		err := rows.Scan(
			&log.ID,
			&log.Subject,
			&log.UserID,
			&log.Action,
			&log.Target,
			&log.Mode,
			&log.MatchedRule,
			pq.Array(&log.Roles),
			&details,
			&ipAddress,
			&userAgent,
			&requestID,
			&log.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(details) > 0 {
			log.Details = details
		}
		log.IPAddress = ipAddress.String
		log.UserAgent = userAgent.String
		log.RequestID = requestID.String
		if log.Roles == nil {
			log.Roles = []string{}
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}
