package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{
	"id", "reference", "customer_name", "customer_email", "shipping_address",
	"items", "subtotal", "shipping_fee", "total",
	"status", "payment_status",
	"stripe_session_id", "stripe_payment_id", "checkout_url", "idempotency_key",
	"version", "created_at", "updated_at",
}

func orderRow(id uuid.UUID, status OrderStatus, payStatus PaymentStatus, version int64, sessionID, paymentID any) *sqlmock.Rows {
	return sqlmock.NewRows(orderCols).AddRow(
		id, "ORD-20260101-120000-001-0001", "Jane Smith", "jane@example.com", "1 High Street, London, SW1A 1AA",
		[]byte(`[{"product_id":"p1","name":"Oak Placemat Set","unit_price":2000,"quantity":2}]`),
		4000, 895, 4895,
		status, payStatus,
		sessionID, paymentID, nil, nil,
		version, time.Now(), time.Now(),
	)
}

func draftOrder() *Order {
	return &Order{
		ID:              uuid.New(),
		Reference:       "ORD-20260101-120000-001-0001",
		CustomerName:    "Jane Smith",
		CustomerEmail:   "jane@example.com",
		ShippingAddress: "1 High Street, London, SW1A 1AA",
		Items: []OrderItem{
			{ProductID: "p1", Name: "Oak Placemat Set", UnitPrice: 2000, Quantity: 2},
		},
		Subtotal:    4000,
		ShippingFee: 895,
		Total:       4895,
	}
}

func TestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		o := draftOrder()

		mock.ExpectExec(`INSERT INTO orders`).
			WithArgs(
				o.ID, o.Reference, o.CustomerName, o.CustomerEmail, o.ShippingAddress,
				sqlmock.AnyArg(), o.Subtotal, o.ShippingFee, o.Total,
				StatusPending, PaymentPending, nil,
				int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, o)
		assert.NoError(t, err)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, PaymentPending, o.PaymentStatus)
		assert.Equal(t, int64(1), o.Version)
	})

	t.Run("Empty items rejected before any write", func(t *testing.T) {
		o := draftOrder()
		o.Items = nil

		err := repo.Create(ctx, o)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	})

	t.Run("Amount invariant enforced", func(t *testing.T) {
		o := draftOrder()
		o.Total = 9999

		err := repo.Create(ctx, o)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	})

	t.Run("Invalid email rejected", func(t *testing.T) {
		o := draftOrder()
		o.CustomerEmail = "not-an-email"

		err := repo.Create(ctx, o)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	})

	t.Run("DBError", func(t *testing.T) {
		o := draftOrder()

		mock.ExpectExec(`INSERT INTO orders`).
			WillReturnError(errors.New("db down"))

		err := repo.Create(ctx, o)
		assert.Error(t, err)
	})
}

func TestRepository_Lookups(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("GetBySessionID success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE stripe_session_id = \$1`).
			WithArgs("cs_123").
			WillReturnRows(orderRow(id, StatusPending, PaymentPending, 1, "cs_123", nil))

		o, err := repo.GetBySessionID(ctx, "cs_123")
		require.NoError(t, err)
		assert.Equal(t, id, o.ID)
		require.NotNil(t, o.StripeSessionID)
		assert.Equal(t, "cs_123", *o.StripeSessionID)
		require.Len(t, o.Items, 1)
		assert.Equal(t, int64(2000), o.Items[0].UnitPrice)
	})

	t.Run("GetBySessionID not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE stripe_session_id = \$1`).
			WithArgs("cs_missing").
			WillReturnRows(sqlmock.NewRows(orderCols))

		_, err := repo.GetBySessionID(ctx, "cs_missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("GetByPaymentID success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE stripe_payment_id = \$1`).
			WithArgs("pi_123").
			WillReturnRows(orderRow(id, StatusConfirmed, PaymentPaid, 2, "cs_123", "pi_123"))

		o, err := repo.GetByPaymentID(ctx, "pi_123")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
	})

	t.Run("GetByIdempotencyKey not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE idempotency_key = \$1`).
			WithArgs("key-1").
			WillReturnRows(sqlmock.NewRows(orderCols))

		_, err := repo.GetByIdempotencyKey(ctx, "key-1")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepository_AttachGatewaySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET stripe_session_id = \$1`).
			WithArgs("cs_123", "https://checkout.stripe.com/c/pay/cs_123", sqlmock.AnyArg(), id, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusPending, PaymentPending, 2, "cs_123", nil))

		o, err := repo.AttachGatewaySession(ctx, id, "cs_123", "https://checkout.stripe.com/c/pay/cs_123", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), o.Version)
	})

	t.Run("Stale version", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET stripe_session_id = \$1`).
			WithArgs("cs_456", "https://checkout.stripe.com/c/pay/cs_456", sqlmock.AnyArg(), id, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusPending, PaymentPending, 3, nil, nil))

		_, err := repo.AttachGatewaySession(ctx, id, "cs_456", "https://checkout.stripe.com/c/pay/cs_456", 1)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("Order missing", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET stripe_session_id = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(orderCols))

		_, err := repo.AttachGatewaySession(ctx, id, "cs_789", "url", 1)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepository_UpdateShippingAddress(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET shipping_address = \$1`).
			WithArgs("2 New Road, Leeds, LS1 1AA", sqlmock.AnyArg(), id, int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateShippingAddress(ctx, id, "2 New Road, Leeds, LS1 1AA", 2)
		assert.NoError(t, err)
	})

	t.Run("Stale version", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET shipping_address = \$1`).
			WithArgs("2 New Road, Leeds, LS1 1AA", sqlmock.AnyArg(), id, int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusConfirmed, PaymentPaid, 3, "cs_123", "pi_123"))

		err := repo.UpdateShippingAddress(ctx, id, "2 New Road, Leeds, LS1 1AA", 2)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("Order missing", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET shipping_address = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(orderCols))

		err := repo.UpdateShippingAddress(ctx, id, "2 New Road, Leeds, LS1 1AA", 2)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepository_ApplyTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("Applies on first attempt", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusPending, PaymentPending, 1, "cs_123", nil))
		mock.ExpectExec(`UPDATE orders SET status = \$1, payment_status = \$2, stripe_payment_id = \$3`).
			WithArgs(StatusConfirmed, PaymentPaid, "pi_123", sqlmock.AnyArg(), id, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		o, err := repo.ApplyTransition(ctx, id, EventCheckoutCompleted, "pi_123")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
		assert.Equal(t, PaymentPaid, o.PaymentStatus)
		assert.Equal(t, int64(2), o.Version)
	})

	t.Run("No-op skips the write", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusConfirmed, PaymentPaid, 2, "cs_123", "pi_123"))

		o, err := repo.ApplyTransition(ctx, id, EventCheckoutCompleted, "pi_123")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
		assert.Equal(t, int64(2), o.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Retries on version conflict and converges", func(t *testing.T) {
		// First attempt loses the race: another writer bumped the version.
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusPending, PaymentPending, 1, "cs_123", nil))
		mock.ExpectExec(`UPDATE orders SET status = \$1, payment_status = \$2, stripe_payment_id = \$3`).
			WithArgs(StatusConfirmed, PaymentPaid, nil, sqlmock.AnyArg(), id, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		// Second attempt sees the fresh state written by the competing
		// checkout-completed delivery; payment-succeeded is now a no-op.
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(orderRow(id, StatusConfirmed, PaymentPaid, 2, "cs_123", "pi_123"))

		o, err := repo.ApplyTransition(ctx, id, EventPaymentSucceeded, "")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, o.Status)
		assert.Equal(t, PaymentPaid, o.PaymentStatus)
	})

	t.Run("Exhausted retries surface a conflict", func(t *testing.T) {
		for i := 0; i < maxTransitionAttempts; i++ {
			mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
				WithArgs(id).
				WillReturnRows(orderRow(id, StatusPending, PaymentPending, int64(i+1), "cs_123", nil))
			mock.ExpectExec(`UPDATE orders SET status = \$1`).
				WillReturnResult(sqlmock.NewResult(0, 0))
		}

		_, err := repo.ApplyTransition(ctx, id, EventPaymentSucceeded, "")
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("Unknown order", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(orderCols))

		_, err := repo.ApplyTransition(ctx, id, EventPaymentFailed, "")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}
