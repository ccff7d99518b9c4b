// Package settlement implements the daily per-merchant settlement roll-up
// and its pending -> transferred -> notified lifecycle.
package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
	"github.com/oxzoid/foodcourt-hub/internal/store"
)

// BackTxRepository is the read surface the engine needs from the
// back-transaction log.
type BackTxRepository interface {
	SumByMerchantAndDay(ctx context.Context, start, end time.Time) ([]store.MerchantDaySum, error)
}

// Repository is the persistence surface the engine needs for settlement
// rows themselves.
type Repository interface {
	ByMerchantAndDate(ctx context.Context, merchantID int64, date time.Time) (*domain.Settlement, error)
	Create(ctx context.Context, merchantID int64, date time.Time, amountMinor int64) (*domain.Settlement, error)
	ByID(ctx context.Context, id int64) (*domain.Settlement, error)
	UpdateStatus(ctx context.Context, id int64, expectedStatus, newStatus domain.SettlementStatus) (bool, error)
	ForReceipt(ctx context.Context, merchantID int64, notifiedOnly bool) ([]domain.Settlement, error)
	Overdue(ctx context.Context, now time.Time) ([]domain.Settlement, error)
	List(ctx context.Context, date *time.Time, status *domain.SettlementStatus) ([]domain.Settlement, error)
}

// Engine implements the create/transfer/notify settlement lifecycle.
type Engine struct {
	repo      Repository
	backTxSum BackTxRepository
}

func New(repo Repository, backTxSum BackTxRepository) *Engine {
	return &Engine{repo: repo, backTxSum: backTxSum}
}

// dayBounds returns the [00:00:00, 23:59:59.999] UTC window for a calendar
// day.
func dayBounds(date time.Time) (time.Time, time.Time) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Millisecond)
	return start, end
}

// CreateDaily rolls up every merchant's confirmed back-transaction total for
// date into a pending settlement row, skipping merchants that already have
// one for that day (idempotent on re-run).
func (e *Engine) CreateDaily(ctx context.Context, date time.Time) ([]domain.Settlement, error) {
	start, end := dayBounds(date)
	sums, err := e.backTxSum.SumByMerchantAndDay(ctx, start, end)
	if err != nil {
		return nil, err
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	var created []domain.Settlement
	for _, sum := range sums {
		existing, err := e.repo.ByMerchantAndDate(ctx, sum.MerchantID, day)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		s, err := e.repo.Create(ctx, sum.MerchantID, day, sum.AmountMinor)
		if err != nil {
			return nil, err
		}
		created = append(created, *s)
	}

	log.Info().Time("settlement_date", day).Int("created", len(created)).Msg("daily settlement roll-up complete")
	return created, nil
}

// MarkTransferred advances a pending settlement to transferred.
func (e *Engine) MarkTransferred(ctx context.Context, id int64) (*domain.Settlement, error) {
	s, err := e.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Status.CanTransitionTo(domain.SettlementTransferred) {
		return nil, domain.NewConflictError("settlement is not pending")
	}
	ok, err := e.repo.UpdateStatus(ctx, id, domain.SettlementPending, domain.SettlementTransferred)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewConflictError("settlement status changed concurrently")
	}
	return e.repo.ByID(ctx, id)
}

// NotifyMerchant advances a transferred settlement to notified. A direct
// pending->notified jump is treated as an explicit, logged escape hatch
// (force=true) rather than the default path.
func (e *Engine) NotifyMerchant(ctx context.Context, id int64, force bool) (*domain.Settlement, error) {
	s, err := e.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := s.Status
	if from == domain.SettlementPending && force {
		log.Warn().Int64("settlement_id", id).Msg("notifying merchant directly from pending, skipping transferred")
	} else if !from.CanTransitionTo(domain.SettlementNotified) {
		return nil, domain.NewConflictError("settlement must be transferred before it can be notified")
	}

	ok, err := e.repo.UpdateStatus(ctx, id, from, domain.SettlementNotified)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewConflictError("settlement status changed concurrently")
	}
	return e.repo.ByID(ctx, id)
}

// ForReceipt lists up to 100 of a merchant's most recent settlements.
func (e *Engine) ForReceipt(ctx context.Context, merchantID int64, notifiedOnly bool) ([]domain.Settlement, error) {
	return e.repo.ForReceipt(ctx, merchantID, notifiedOnly)
}

// List returns settlement rows filtered by calendar day and/or status, the
// operator's end-of-day transfer worklist.
func (e *Engine) List(ctx context.Context, date *time.Time, status *domain.SettlementStatus) ([]domain.Settlement, error) {
	return e.repo.List(ctx, date, status)
}

// OverdueReport surfaces pending settlements older than the one-day custody
// constraint instead of silently dropping them.
func (e *Engine) OverdueReport(ctx context.Context, now time.Time) ([]domain.Settlement, error) {
	return e.repo.Overdue(ctx, now)
}
