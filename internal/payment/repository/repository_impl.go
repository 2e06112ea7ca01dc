package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, booking_id, customer_id, amount_cents, currency, method, status,
	session_id, charge_id, payment_intent_id, transaction_id,
	refund_amount_cents, refund_reason, created_at, paid_at, refunded_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, booking_id, customer_id, amount_cents, currency, method, status,
			session_id, charge_id, payment_intent_id, transaction_id,
			refund_amount_cents, refund_reason, created_at, paid_at, refunded_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.BookingID,
		payment.CustomerID,
		payment.AmountCents,
		payment.Currency,
		payment.Method,
		payment.Status,
		payment.SessionID,
		payment.ChargeID,
		payment.PaymentIntentID,
		payment.TransactionID,
		payment.RefundAmountCents,
		payment.RefundReason,
		payment.CreatedAt,
		payment.PaidAt,
		payment.RefundedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ? ORDER BY created_at`,
		bookingID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindSucceededByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE booking_id = ? AND status = 'SUCCEEDED'
		 LIMIT 1`,
		bookingID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, ref string) (*domain.Payment, error) {
	if ref == "" {
		return nil, nil
	}
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE session_id = ? OR payment_intent_id = ? OR charge_id = ?
		 LIMIT 1`,
		ref,
		ref,
		ref,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		updatedAt,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ApplyRefund(ctx context.Context, db *gorm.DB, payment *domain.Payment, fromStatus domain.Status, fromRefundCents int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, refund_amount_cents = ?, refund_reason = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND refund_amount_cents = ?`,
		payment.Status,
		payment.RefundAmountCents,
		payment.RefundReason,
		payment.RefundedAt,
		payment.UpdatedAt,
		payment.ID,
		fromStatus,
		fromRefundCents,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, session_id = ?, charge_id = ?, payment_intent_id = ?,
		     refund_amount_cents = ?, refund_reason = ?, paid_at = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ?`,
		payment.Status,
		payment.SessionID,
		payment.ChargeID,
		payment.PaymentIntentID,
		payment.RefundAmountCents,
		payment.RefundReason,
		payment.PaidAt,
		payment.RefundedAt,
		payment.UpdatedAt,
		payment.ID,
	).Error
}
