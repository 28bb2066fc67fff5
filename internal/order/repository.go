package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"placemats-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository is the single source of truth for orders. Status and payment
// status only change through ApplyTransition; every write is guarded by the
// version column.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)

	AttachGatewaySession(
		ctx context.Context,
		orderID uuid.UUID,
		sessionID string,
		checkoutURL string,
		expectedVersion int64,
	) (*Order, error)

	UpdateShippingAddress(ctx context.Context, orderID uuid.UUID, address string, expectedVersion int64) error

	ApplyTransition(ctx context.Context, orderID uuid.UUID, ev Event, paymentID string) (*Order, error)
}

// maxTransitionAttempts bounds the CAS retry loop in ApplyTransition.
// Contention is scoped to a single order, so more than a couple of retries
// means something is genuinely wrong.
const maxTransitionAttempts = 5

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, reference, customer_name, customer_email, shipping_address,
	items, subtotal, shipping_fee, total,
	status, payment_status,
	stripe_session_id, stripe_payment_id, checkout_url, idempotency_key,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var items []byte

	err := row.Scan(
		&o.ID, &o.Reference, &o.CustomerName, &o.CustomerEmail, &o.ShippingAddress,
		&items, &o.Subtotal, &o.ShippingFee, &o.Total,
		&o.Status, &o.PaymentStatus,
		&o.StripeSessionID, &o.StripePaymentID, &o.CheckoutURL, &o.IdempotencyKey,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}

	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("method", "Create"),
		zap.String("order_id", o.ID.String()),
	)

	if err := o.ValidateDraft(); err != nil {
		return err
	}

	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.Version = 1

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, reference, customer_name, customer_email, shipping_address,
			items, subtotal, shipping_fee, total,
			status, payment_status, idempotency_key,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		o.ID, o.Reference, o.CustomerName, o.CustomerEmail, o.ShippingAddress,
		items, o.Subtotal, o.ShippingFee, o.Total,
		o.Status, o.PaymentStatus, o.IdempotencyKey,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	log.Info("order created",
		zap.String("reference", o.Reference),
		zap.Int64("total", o.Total),
	)
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	return r.one(row)
}

func (r *repository) GetBySessionID(ctx context.Context, sessionID string) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE stripe_session_id = $1`, sessionID)
	return r.one(row)
}

func (r *repository) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE stripe_payment_id = $1`, paymentID)
	return r.one(row)
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
	return r.one(row)
}

func (r *repository) one(row rowScanner) (*Order, error) {
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) AttachGatewaySession(
	ctx context.Context,
	orderID uuid.UUID,
	sessionID string,
	checkoutURL string,
	expectedVersion int64,
) (*Order, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("method", "AttachGatewaySession"),
		zap.String("order_id", orderID.String()),
		zap.String("session_id", sessionID),
	)

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET stripe_session_id = $1,
		    checkout_url = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4 AND version = $5
	`, sessionID, checkoutURL, time.Now().UTC(), orderID, expectedVersion)
	if err != nil {
		log.Error("failed to attach gateway session", zap.Error(err))
		return nil, err
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Row either moved on since the caller read it, or never existed.
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return nil, getErr
		}
		log.Warn("stale version attaching gateway session",
			zap.Int64("expected_version", expectedVersion),
		)
		return nil, ErrConcurrentModification
	}

	return r.GetByID(ctx, orderID)
}

func (r *repository) UpdateShippingAddress(ctx context.Context, orderID uuid.UUID, address string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET shipping_address = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3 AND version = $4
	`, address, time.Now().UTC(), orderID, expectedVersion)
	if err != nil {
		return err
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, getErr := r.GetByID(ctx, orderID); getErr != nil {
			return getErr
		}
		return ErrConcurrentModification
	}
	return nil
}

// ApplyTransition is the only path by which status and payment status change
// after creation. It re-reads the row, computes the next state with the pure
// transition function and writes it back only if the version is unchanged;
// on a lost race it retries against fresh state. The transition function is
// idempotent and order-independent, so retries converge regardless of how
// concurrent deliveries interleave.
func (r *repository) ApplyTransition(
	ctx context.Context,
	orderID uuid.UUID,
	ev Event,
	paymentID string,
) (*Order, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("method", "ApplyTransition"),
		zap.String("order_id", orderID.String()),
		zap.String("event", string(ev)),
	)

	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		o, err := r.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		cur := Snapshot{
			Status:          o.Status,
			PaymentStatus:   o.PaymentStatus,
			StripePaymentID: o.StripePaymentID,
		}

		next, changed := Transition(cur, ev, paymentID)
		if !changed {
			log.Debug("transition is a no-op",
				zap.String("status", string(o.Status)),
				zap.String("payment_status", string(o.PaymentStatus)),
			)
			return o, nil
		}

		now := time.Now().UTC()
		res, err := r.db.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    payment_status = $2,
			    stripe_payment_id = $3,
			    version = version + 1,
			    updated_at = $4
			WHERE id = $5 AND version = $6
		`, next.Status, next.PaymentStatus, next.StripePaymentID, now, o.ID, o.Version)
		if err != nil {
			log.Error("failed to write transition", zap.Error(err))
			return nil, err
		}

		affected, _ := res.RowsAffected()
		if affected == 1 {
			o.Status = next.Status
			o.PaymentStatus = next.PaymentStatus
			o.StripePaymentID = next.StripePaymentID
			o.Version++
			o.UpdatedAt = now

			log.Info("transition applied",
				zap.String("status", string(o.Status)),
				zap.String("payment_status", string(o.PaymentStatus)),
				zap.Int("attempt", attempt),
			)
			return o, nil
		}

		log.Debug("version conflict, retrying", zap.Int("attempt", attempt))
	}

	log.Error("transition retries exhausted")
	return nil, ErrConcurrentModification
}
