// Package refund implements the e-money guard: operators without an e-money
// license may not hold stored value overnight, so a nightly sweep notifies
// every holder of a remaining balance and then zeroes the token. A second,
// configurable sweep retries notifications that failed to deliver.
package refund

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// Repository is the persistence surface the sweeper needs; internal/store's
// RefundRepo implements it.
type Repository interface {
	ListActiveWithBalance(ctx context.Context) ([]*domain.FCID, error)
	NotifiedOn(ctx context.Context, code string, day time.Time) (bool, error)
	CreateNotification(ctx context.Context, n *domain.RefundNotification) (int64, error)
	ListUnsent(ctx context.Context, limit int) ([]*domain.RefundNotification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
}

// Expirer zeroes a token's balance; the escrow engine's Expire operation.
type Expirer interface {
	Expire(ctx context.Context, code string) (int64, error)
}

// Notifier delivers a refund notification to the holder. The concrete
// channel (LINE OA, push) is an external collaborator; LogNotifier stands in
// until one is wired.
type Notifier interface {
	Notify(ctx context.Context, n *domain.RefundNotification) error
}

// LogNotifier records the notification in the service log and reports
// success.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n *domain.RefundNotification) error {
	log.Info().
		Str("fcid", n.FCIDCode).
		Int64("amount_minor", n.AmountMinor).
		Msg("refund notification dispatched")
	return nil
}

// maxUnsentBatch bounds one delivery sweep.
const maxUnsentBatch = 500

// Sweeper drives the nightly balance reset and the notification retry sweep.
type Sweeper struct {
	repo     Repository
	expirer  Expirer
	notifier Notifier
}

func NewSweeper(repo Repository, expirer Expirer, notifier Notifier) *Sweeper {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Sweeper{repo: repo, expirer: expirer, notifier: notifier}
}

// DailyBalanceReset notifies and expires every active FCID still carrying
// value. Idempotent within a day: a token already notified today is not
// notified again, and an already-expired token simply no longer appears in
// the active listing. One token's failure does not stop the sweep.
func (s *Sweeper) DailyBalanceReset(ctx context.Context) error {
	tokens, err := s.repo.ListActiveWithBalance(ctx)
	if err != nil {
		return err
	}

	today := time.Now().UTC()
	reset := 0
	for _, f := range tokens {
		if err := s.notifyOnce(ctx, f, today); err != nil {
			log.Error().Err(err).Str("fcid", f.Code).Msg("refund notification failed, token left for retry sweep")
		}
		if _, err := s.expirer.Expire(ctx, f.Code); err != nil {
			if domain.Kind(err) == domain.KindConflict {
				continue // raced with a debit-to-zero or refund; nothing left to reset
			}
			log.Error().Err(err).Str("fcid", f.Code).Msg("balance reset failed for token")
			continue
		}
		reset++
	}

	log.Info().Int("candidates", len(tokens)).Int("reset", reset).Msg("daily balance reset completed")
	return nil
}

// notifyOnce creates today's notification for f if none exists yet and
// attempts delivery. A delivery failure leaves the row unsent for
// SendPending to retry.
func (s *Sweeper) notifyOnce(ctx context.Context, f *domain.FCID, day time.Time) error {
	already, err := s.repo.NotifiedOn(ctx, f.Code, day)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	n := &domain.RefundNotification{
		FCIDCode:    f.Code,
		CustomerID:  f.CustomerID,
		AmountMinor: f.CurrentBalanceMinor,
	}
	id, err := s.repo.CreateNotification(ctx, n)
	if err != nil {
		return err
	}
	n.ID = id

	if err := s.notifier.Notify(ctx, n); err != nil {
		return err
	}
	return s.repo.MarkSent(ctx, id, time.Now().UTC())
}

// SendPending retries delivery for notifications the reset sweep (or a
// previous run of this sweep) could not deliver.
func (s *Sweeper) SendPending(ctx context.Context) error {
	pending, err := s.repo.ListUnsent(ctx, maxUnsentBatch)
	if err != nil {
		return err
	}

	sent := 0
	for _, n := range pending {
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.Error().Err(err).Int64("notification_id", n.ID).Msg("refund notification delivery failed")
			continue
		}
		if err := s.repo.MarkSent(ctx, n.ID, time.Now().UTC()); err != nil {
			return err
		}
		sent++
	}

	if len(pending) > 0 {
		log.Info().Int("pending", len(pending)).Int("sent", sent).Msg("refund notification sweep completed")
	}
	return nil
}
