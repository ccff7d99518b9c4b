package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// RefundRepo persists refund notifications and answers the nightly
// balance-reset sweep's "who still holds value" query.
type RefundRepo struct {
	db *sql.DB
}

func NewRefundRepo(db *sql.DB) *RefundRepo {
	return &RefundRepo{db: db}
}

// ListActiveWithBalance returns every active FCID still carrying a non-zero
// balance, the population the nightly reset notifies and expires.
func (r *RefundRepo) ListActiveWithBalance(ctx context.Context) ([]*domain.FCID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+fcidColumns+` FROM fcids
		WHERE status = ? AND current_balance_minor > 0
		ORDER BY code
	`, string(domain.FCIDActive))
	if err != nil {
		return nil, domain.NewInternalError("listing active fcids with balance", err)
	}
	defer rows.Close()

	var out []*domain.FCID
	for rows.Next() {
		f, err := scanFCID(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewInternalError("iterating active fcids", err)
	}
	return out, nil
}

// NotifiedOn reports whether a refund notification for code was already
// created on day, the once-per-day dedup the sweep relies on to stay
// idempotent across re-runs.
func (r *RefundRepo) NotifiedOn(ctx context.Context, code string, day time.Time) (bool, error) {
	dayStr := day.UTC().Format("2006-01-02")
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM refund_notifications
		WHERE fcid_code = ? AND date(created_at) = ?
		LIMIT 1
	`, code, dayStr).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewInternalError("checking refund notification", err)
	}
	return true, nil
}

// CreateNotification inserts a new unsent notification row.
func (r *RefundRepo) CreateNotification(ctx context.Context, n *domain.RefundNotification) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO refund_notifications (fcid_code, customer_id, amount_minor, sent)
		VALUES (?, ?, ?, 0)
	`, n.FCIDCode, n.CustomerID, n.AmountMinor)
	if err != nil {
		return 0, domain.NewInternalError("inserting refund notification", err)
	}
	return res.LastInsertId()
}

// ListUnsent returns up to limit notifications still awaiting delivery,
// oldest first.
func (r *RefundRepo) ListUnsent(ctx context.Context, limit int) ([]*domain.RefundNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, fcid_code, customer_id, amount_minor, sent, sent_at, created_at
		FROM refund_notifications
		WHERE sent = 0
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, domain.NewInternalError("listing unsent refund notifications", err)
	}
	defer rows.Close()

	var out []*domain.RefundNotification
	for rows.Next() {
		var n domain.RefundNotification
		var sent int
		var sentAt sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.FCIDCode, &n.CustomerID, &n.AmountMinor, &sent, &sentAt, &createdAt); err != nil {
			return nil, domain.NewInternalError("scanning refund notification", err)
		}
		n.Sent = sent == 1
		if sentAt.Valid {
			t := parseSQLiteTime(sentAt.String)
			n.SentAt = &t
		}
		n.CreatedAt = parseSQLiteTime(createdAt)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewInternalError("iterating refund notifications", err)
	}
	return out, nil
}

// MarkSent stamps a notification as delivered.
func (r *RefundRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refund_notifications SET sent = 1, sent_at = ? WHERE id = ?
	`, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return domain.NewInternalError("marking refund notification sent", err)
	}
	return nil
}
