package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/augustinmaps01/risk-profiling/services"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AccessAuditLog
}

// AccessEvent describes a denied access decision
type AccessEvent struct {
	Subject     string
	Roles       []string
	Target      string
	Mode        string
	MatchedRule string
	Required    []string
	RequestID   string
	IPAddress   string
	UserAgent   string
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	txManager   repositories.TransactionManager
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	batchSize   int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.RWMutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
	BatchSize   int // Max events a worker writes per round trip
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  4096,
		WorkerCount: 2,
		BatchSize:   32,
	}
}

// NewAuditService creates a new AuditService instance. txManager may be nil,
// in which case batches are written without a transaction.
func NewAuditService(auditRepo repositories.AuditRepository, txManager repositories.TransactionManager, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}

	return &AuditService{
		auditRepo:   auditRepo,
		txManager:   txManager,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		batchSize:   config.BatchSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("audit service already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Int("batch_size", s.batchSize))

	return nil
}

// Stop stops accepting events and waits for queued events to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. The event is dropped with a
// warning when the buffer is full.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("subject", event.Log.Subject),
			zap.String("target", event.Log.Target))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking waits until the event is queued or ctx is cancelled
func (s *AuditService) LogEventBlocking(ctx context.Context, event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("audit service stopped")
	}
}

// worker drains events in batches until the channel is closed
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		batch := s.collect(event)
		if err := s.processBatch(batch); err != nil {
			s.logger.Error("failed to process audit events",
				zap.Int("worker_id", id),
				zap.Int("count", len(batch)),
				zap.Error(err))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// collect gathers already queued events behind first, up to the batch size
func (s *AuditService) collect(first *AuditEvent) []*models.AccessAuditLog {
	batch := []*models.AccessAuditLog{first.Log}
	for len(batch) < s.batchSize {
		select {
		case event, ok := <-s.eventChan:
			if !ok {
				return batch
			}
			batch = append(batch, event.Log)
		default:
			return batch
		}
	}
	return batch
}

func (s *AuditService) processBatch(batch []*models.AccessAuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(batch) == 1 {
		if err := s.auditRepo.Insert(ctx, batch[0]); err != nil {
			return fmt.Errorf("failed to insert audit log: %w", err)
		}
		return nil
	}

	if s.txManager == nil {
		return s.auditRepo.InsertBatch(ctx, batch)
	}
	return services.WithTransaction(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) error {
		return s.auditRepo.WithTx(tx).InsertBatch(ctx, batch)
	})
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}

// HealthCheck fails when the service is stopped or its buffer is full
func (s *AuditService) HealthCheck(ctx context.Context) error {
	stats := s.GetStats()
	if !stats.Started {
		return fmt.Errorf("audit service not started")
	}
	if stats.PendingEvents >= stats.BufferSize {
		return fmt.Errorf("audit buffer full: %d pending events", stats.PendingEvents)
	}
	return nil
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
}

// Convenience methods for logging access events

// LogRouteDenied records a denied route decision
func (s *AuditService) LogRouteDenied(event AccessEvent) error {
	return s.logAccess(models.AuditActionRouteDenied, event)
}

// LogFeatureDenied records a denied feature decision
func (s *AuditService) LogFeatureDenied(event AccessEvent) error {
	return s.logAccess(models.AuditActionFeatureDenied, event)
}

// LogGateDenied records a gate that failed at a stage. The stage is stored as
// the decision mode.
func (s *AuditService) LogGateDenied(event AccessEvent) error {
	return s.logAccess(models.AuditActionGateDenied, event)
}

// LogIdentityReload records a profile reload requested by the subject. It
// waits for buffer space instead of dropping the event.
func (s *AuditService) LogIdentityReload(ctx context.Context, subject, requestID string) error {
	log := models.NewAccessAuditLog(subject, models.AuditActionIdentityReload, subject).
		WithRequest(requestID, "", "")
	return s.LogEventBlocking(ctx, &AuditEvent{Log: log})
}

func (s *AuditService) logAccess(action models.AuditAction, event AccessEvent) error {
	log := models.NewAccessAuditLog(event.Subject, action, event.Target).
		WithDecision(event.Mode, event.MatchedRule).
		WithRoles(event.Roles).
		WithRequest(event.RequestID, event.IPAddress, event.UserAgent)
	if len(event.Required) > 0 {
		log.WithDetails(map[string]interface{}{"required": event.Required})
	}
	return s.LogEvent(&AuditEvent{Log: log})
}
