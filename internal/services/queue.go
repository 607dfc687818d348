package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/metrics"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QueueService is the signal dispatch core. Every status change goes
// through a conditional UPDATE guarded by the current status, so
// transitions stay linearizable per signal without any in-process lock
// and the design ports unchanged to a multi-instance deployment.
type QueueService struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
}

// NewQueueService creates a new queue service
func NewQueueService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *QueueService {
	return &QueueService{db: db, cfg: cfg, log: log}
}

// isUniqueViolation matches sqlite and postgres unique index errors.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "duplicate key")
}

// ResultReport is the execution outcome posted by the EA.
type ResultReport struct {
	Success          bool             `json:"success"`
	Ticket           *int64           `json:"ticket,omitempty"`
	ExecutedPrice    *decimal.Decimal `json:"executed_price,omitempty"`
	ExecutedQuantity *decimal.Decimal `json:"executed_quantity,omitempty"`
	ErrorCode        *int             `json:"error_code,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	Balance          *decimal.Decimal `json:"balance,omitempty"`
	Equity           *decimal.Decimal `json:"equity,omitempty"`
}

// transition is the single CAS primitive: move a signal from one status
// to another, applying extra column updates atomically. Returns false
// when the signal was not in the expected status.
func (s *QueueService) transition(ctx context.Context, signalID, from, to string, updates map[string]interface{}) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("id = ? AND status = ?", signalID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition signal %s: %w", signalID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Enqueue persists a new pending signal. A duplicate idempotency key
// returns the previously accepted signal instead of a new row.
func (s *QueueService) Enqueue(ctx context.Context, signal *models.Signal) (*models.Signal, bool, error) {
	var pending int64
	err := s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("account_id = ? AND status = ?", signal.AccountID, models.StatusPending).
		Count(&pending).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to count pending signals: %w", err)
	}
	if pending >= int64(s.cfg.Signals.MaxPendingPerAccount) {
		return nil, false, relay.RiskLimit("too many pending signals for account")
	}

	err = s.db.WithContext(ctx).Create(signal).Error
	if err == nil {
		metrics.SignalsCreated.Inc()
		return signal, true, nil
	}

	if signal.IdempotencyKey != nil && isUniqueViolation(err) {
		var existing models.Signal
		lookupErr := s.db.WithContext(ctx).
			Where("idempotency_key = ?", *signal.IdempotencyKey).
			First(&existing).Error
		if lookupErr == nil {
			return &existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to enqueue signal: %w", err)
}

// ClaimPending atomically claims the account's deliverable signals in
// FIFO order and moves them to sent. A signal lost to a concurrent poll
// is skipped, never returned twice.
func (s *QueueService) ClaimPending(ctx context.Context, accountID string, limit int) ([]models.Signal, error) {
	now := time.Now().UTC()

	var candidates []models.Signal
	query := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND expires_at > ?", accountID, models.StatusPending, now).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending signals: %w", err)
	}

	claimed := make([]models.Signal, 0, len(candidates))
	for i := range candidates {
		ok, err := s.transition(ctx, candidates[i].ID, models.StatusPending, models.StatusSent,
			map[string]interface{}{"sent_at": now})
		if err != nil {
			return claimed, err
		}
		if !ok {
			// Raced with a concurrent poll, cancellation or sweep.
			continue
		}
		candidates[i].Status = models.StatusSent
		candidates[i].SentAt = &now
		claimed = append(claimed, candidates[i])
		metrics.SignalsDelivered.Inc()
	}
	return claimed, nil
}

// Report closes the lifecycle for a sent signal with the EA's execution
// outcome. A report against a terminal signal is a conflict, not a
// server error.
func (s *QueueService) Report(ctx context.Context, signalID, accountID string, report ResultReport) (*models.Signal, error) {
	var signal models.Signal
	err := s.db.WithContext(ctx).First(&signal, "id = ?", signalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, relay.NotFound("signal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signal: %w", err)
	}
	if signal.AccountID != accountID {
		return nil, relay.NotFound("signal not found")
	}

	target := models.StatusFailed
	if report.Success {
		target = models.StatusExecuted
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"resolved_at": now}
	if report.Ticket != nil {
		updates["broker_ticket"] = *report.Ticket
	}
	if report.ExecutedPrice != nil {
		updates["executed_price"] = *report.ExecutedPrice
	}
	if report.ExecutedQuantity != nil {
		updates["executed_quantity"] = *report.ExecutedQuantity
	}
	if !report.Success {
		msg := report.ErrorMessage
		if msg == "" {
			msg = "execution failed"
		}
		if report.ErrorCode != nil {
			msg = fmt.Sprintf("%s (code %d)", msg, *report.ErrorCode)
		}
		updates["error_message"] = msg
	}

	ok, err := s.transition(ctx, signalID, models.StatusSent, target, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, relay.Conflict("signal %s is no longer awaiting confirmation", signalID)
	}

	metrics.SignalsResolved.WithLabelValues(target).Inc()
	s.log.Infow("signal resolved", "signal_id", signalID, "status", target, "ticket", report.Ticket)

	if err := s.db.WithContext(ctx).First(&signal, "id = ?", signalID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload signal: %w", err)
	}
	return &signal, nil
}

// Cancel transitions a pending signal to cancelled. Signals already
// claimed, resolved or expired cannot be cancelled.
func (s *QueueService) Cancel(ctx context.Context, signalID, userID string) error {
	var signal models.Signal
	err := s.db.WithContext(ctx).First(&signal, "id = ? AND user_id = ?", signalID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return relay.NotFound("signal not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load signal: %w", err)
	}

	now := time.Now().UTC()
	ok, err := s.transition(ctx, signalID, models.StatusPending, models.StatusCancelled,
		map[string]interface{}{"resolved_at": now})
	if err != nil {
		return err
	}
	if !ok {
		return relay.Conflict("signal %s is not pending", signalID)
	}
	metrics.SignalsResolved.WithLabelValues(models.StatusCancelled).Inc()
	return nil
}

// ExpireSweep moves stale pending and sent signals to expired. Safe to
// run concurrently with request handlers: the guarded UPDATE is the same
// primitive the handlers use.
func (s *QueueService) ExpireSweep(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("status IN ? AND expires_at <= ?", []string{models.StatusPending, models.StatusSent}, now).
		Updates(map[string]interface{}{"status": models.StatusExpired, "resolved_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expiry sweep failed: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.SignalsResolved.WithLabelValues(models.StatusExpired).Add(float64(res.RowsAffected))
		s.log.Infow("expired stale signals", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// RunSweeper runs the expiry sweep on a ticker until the context is
// cancelled.
func (s *QueueService) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ExpireSweep(ctx); err != nil {
				s.log.Errorw("expiry sweep error", "error", err)
			}
		}
	}
}

// GetSignal loads a signal scoped to its owning user.
func (s *QueueService) GetSignal(ctx context.Context, signalID, userID string) (*models.Signal, error) {
	var signal models.Signal
	err := s.db.WithContext(ctx).First(&signal, "id = ? AND user_id = ?", signalID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, relay.NotFound("signal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signal: %w", err)
	}
	return &signal, nil
}

// SignalFilter narrows signal listings.
type SignalFilter struct {
	AccountID string
	Status    string
	Symbol    string
	From      *time.Time
	To        *time.Time
}

// ListSignals returns a page of the user's signal log, newest first.
// Listing reads only; it never blocks queue mutations.
func (s *QueueService) ListSignals(ctx context.Context, userID string, filter SignalFilter, page, perPage int) ([]models.Signal, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Signal{}).Where("user_id = ?", userID)
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Symbol != "" {
		query = query.Where("symbol = ?", filter.Symbol)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var signals []models.Signal
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&signals).Error
	if err != nil {
		return nil, 0, err
	}
	return signals, total, nil
}
