package crypto

import (
	"context"
	"math/big"

	"github.com/rs/zerolog/log"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// TopUpStore is the pending-claim persistence surface the poller needs.
type TopUpStore interface {
	Pending(ctx context.Context) ([]domain.CryptoTopUp, error)
	MarkConfirmed(ctx context.Context, id int64) (bool, error)
	MarkAttempt(ctx context.Context, id int64, lastError string, terminal bool) error
}

// maxPollAttempts bounds how many 5-minute sweeps a pending claim survives
// before the poller gives up and marks it failed; an operator can always
// resubmit with the same tx_hash once a genuine transfer actually lands.
const maxPollAttempts = 12

// Poller drains CryptoTopUp claims on a schedule, verifying each against
// the chain and crediting the FCID on confirmation.
type Poller struct {
	verifier *Verifier
	store    TopUpStore
	credit   func(ctx context.Context, code string, amountMinor int64, method domain.PaymentMethod) error
}

func NewPoller(verifier *Verifier, store TopUpStore, credit func(ctx context.Context, code string, amountMinor int64, method domain.PaymentMethod) error) *Poller {
	return &Poller{verifier: verifier, store: store, credit: credit}
}

// PollOnce verifies every pending claim once. It never returns an error for
// an individual claim's verification failure — those are recorded on the
// claim itself — only for a failure to even list the work.
func (p *Poller) PollOnce(ctx context.Context) error {
	pending, err := p.store.Pending(ctx)
	if err != nil {
		return err
	}
	for _, claim := range pending {
		p.pollOne(ctx, claim)
	}
	return nil
}

func (p *Poller) pollOne(ctx context.Context, claim domain.CryptoTopUp) {
	expected := big.NewInt(claim.ExpectedAmountMinor)
	ok, err := p.verifier.VerifyTransfer(ctx, claim.PaymentMethod, claim.TxHash, claim.DestAddress, expected)
	if err != nil {
		terminal := claim.Attempts+1 >= maxPollAttempts
		if mErr := p.store.MarkAttempt(ctx, claim.ID, err.Error(), terminal); mErr != nil {
			log.Error().Err(mErr).Int64("crypto_topup_id", claim.ID).Msg("failed to record crypto poll attempt")
		}
		if terminal {
			log.Warn().Int64("crypto_topup_id", claim.ID).Str("tx_hash", claim.TxHash).Msg("crypto top-up exhausted poll attempts, marked failed")
		}
		return
	}
	if !ok {
		// Not yet visible on chain, or amount/destination mismatch; keep
		// polling until attempts run out.
		terminal := claim.Attempts+1 >= maxPollAttempts
		if mErr := p.store.MarkAttempt(ctx, claim.ID, "transfer not yet confirmed", terminal); mErr != nil {
			log.Error().Err(mErr).Int64("crypto_topup_id", claim.ID).Msg("failed to record crypto poll attempt")
		}
		return
	}

	if err := p.credit(ctx, claim.FCIDCode, claim.ExpectedAmountMinor, claim.PaymentMethod); err != nil {
		log.Error().Err(err).Int64("crypto_topup_id", claim.ID).Str("fcid", claim.FCIDCode).Msg("verified crypto transfer but failed to credit fcid")
		return
	}
	confirmed, err := p.store.MarkConfirmed(ctx, claim.ID)
	if err != nil {
		log.Error().Err(err).Int64("crypto_topup_id", claim.ID).Msg("failed to mark crypto top-up confirmed after crediting")
		return
	}
	if confirmed {
		log.Info().Int64("crypto_topup_id", claim.ID).Str("fcid", claim.FCIDCode).Str("tx_hash", claim.TxHash).Msg("crypto top-up confirmed and credited")
	}
}
