package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"placemats-be/internal/catalog"
	"placemats-be/internal/logger"
	"placemats-be/internal/payment"
	"placemats-be/internal/pricing"
	"placemats-be/internal/reference"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutItem struct {
	ProductID string
	Quantity  int
}

// CheckoutInput is untrusted client input. Prices are never part of it;
// they are re-derived from the catalog on every checkout.
type CheckoutInput struct {
	Items           []CheckoutItem
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string

	// Optional client-supplied key protecting against double submission.
	IdempotencyKey string
}

type CheckoutResult struct {
	OrderID     uuid.UUID
	Reference   string
	SessionID   string
	CheckoutURL string
}

// SessionSnapshot is what the post-payment page polls for. The local order
// is authoritative; the gateway's own view is advisory.
type SessionSnapshot struct {
	Found bool

	OrderID       uuid.UUID
	Reference     string
	CustomerName  string
	CustomerEmail string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Total         int64
	Items         []OrderItem
	CreatedAt     time.Time

	// From the gateway's live session, when reachable. Empty otherwise.
	GatewayPaymentStatus string
}

// ConfirmationNotifier is invoked after an order confirms. Failures are
// logged and never block or roll back confirmation.
type ConfirmationNotifier interface {
	OrderConfirmed(ctx context.Context, o *Order) error
}

type Service interface {
	CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	VerifySession(ctx context.Context, sessionID string) (*SessionSnapshot, error)

	HandleCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID, shippingAddress string) error
	HandlePaymentSucceeded(ctx context.Context, paymentIntentID, orderIDHint string) error
	HandlePaymentFailed(ctx context.Context, paymentIntentID string) error

	MarkShipped(ctx context.Context, orderID uuid.UUID) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	repo     Repository
	catalog  catalog.Repository
	gateway  payment.Gateway
	notifier ConfirmationNotifier

	freeShippingThreshold int64
	flatShippingFee       int64
}

func NewService(
	repo Repository,
	cat catalog.Repository,
	gateway payment.Gateway,
	notifier ConfirmationNotifier,
	freeShippingThreshold int64,
	flatShippingFee int64,
) Service {
	return &service{
		repo:                  repo,
		catalog:               cat,
		gateway:               gateway,
		notifier:              notifier,
		freeShippingThreshold: freeShippingThreshold,
		flatShippingFee:       flatShippingFee,
	}
}

// ----------------- Checkout -----------------

// CreateCheckoutSession turns a cart into a durable pending order and hands
// payment off to the gateway. The order row is written before the gateway
// call so every external charge traces back to a local record; if the
// gateway call fails the order stays behind as a session-less orphan for
// the reconciliation sweep to cancel.
func (s *service) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("method", "CreateCheckoutSession"),
		zap.Int("item_count", len(input.Items)),
	)

	if err := validateCheckoutInput(input); err != nil {
		return nil, err
	}

	// Double-submit protection: a replayed key returns the original
	// checkout instead of opening a second order.
	if input.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
		switch {
		case err == nil && existing.StripeSessionID != nil && existing.CheckoutURL != nil:
			log.Info("idempotent checkout replay",
				zap.String("order_id", existing.ID.String()),
			)
			return &CheckoutResult{
				OrderID:     existing.ID,
				Reference:   existing.Reference,
				SessionID:   *existing.StripeSessionID,
				CheckoutURL: *existing.CheckoutURL,
			}, nil
		case err == nil:
			// Orphan from an earlier attempt: retry the gateway handoff
			// for the same order rather than creating a sibling.
			return s.startGatewaySession(ctx, existing)
		case !errors.Is(err, ErrOrderNotFound):
			return nil, err
		}
	}

	ids := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]OrderItem, 0, len(input.Items))
	lines := make([]pricing.LineItem, 0, len(input.Items))

	for _, item := range input.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		if !p.InStock {
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
		}

		items = append(items, OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.PriceMinor,
			Quantity:  item.Quantity,
		})
		lines = append(lines, pricing.LineItem{
			UnitPrice: p.PriceMinor,
			Quantity:  item.Quantity,
		})
	}

	amounts, err := pricing.Quote(lines, s.freeShippingThreshold, s.flatShippingFee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckoutInput, err)
	}

	o := &Order{
		ID:              uuid.New(),
		Reference:       reference.NewOrderReference(),
		CustomerName:    input.CustomerName,
		CustomerEmail:   NormalizeEmail(input.CustomerEmail),
		ShippingAddress: input.ShippingAddress,
		Items:           items,
		Subtotal:        amounts.Subtotal,
		ShippingFee:     amounts.ShippingFee,
		Total:           amounts.Total,
	}
	if input.IdempotencyKey != "" {
		key := input.IdempotencyKey
		o.IdempotencyKey = &key
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	return s.startGatewaySession(ctx, o)
}

func (s *service) startGatewaySession(ctx context.Context, o *Order) (*CheckoutResult, error) {
	log := logger.FromCtx(ctx).With(zap.String("order_id", o.ID.String()))

	lineItems := make([]payment.SessionLineItem, 0, len(o.Items)+1)
	for _, item := range o.Items {
		lineItems = append(lineItems, payment.SessionLineItem{
			Name:       item.Name,
			UnitAmount: item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}
	if o.ShippingFee > 0 {
		lineItems = append(lineItems, payment.SessionLineItem{
			Name:        "Shipping",
			Description: "Standard shipping",
			UnitAmount:  o.ShippingFee,
			Quantity:    1,
		})
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionRequest{
		OrderID:       o.ID.String(),
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		LineItems:     lineItems,
	})
	if err != nil {
		// The order stays pending with no session id. No rollback: the
		// gateway call may have partially succeeded.
		log.Warn("gateway handoff failed, order left as orphan",
			zap.String("reference", o.Reference),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	updated, err := s.repo.AttachGatewaySession(ctx, o.ID, sess.ID, sess.URL, o.Version)
	if err != nil {
		return nil, err
	}

	log.Info("checkout session created",
		zap.String("reference", updated.Reference),
		zap.String("session_id", sess.ID),
		zap.Int64("total", updated.Total),
	)

	return &CheckoutResult{
		OrderID:     updated.ID,
		Reference:   updated.Reference,
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
	}, nil
}

const (
	minNameLen    = 2
	maxNameLen    = 100
	minAddressLen = 10
	maxAddressLen = 500
)

func validateCheckoutInput(input CheckoutInput) error {
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: no items in cart", ErrInvalidCheckoutInput)
	}
	for i, item := range input.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d missing product id", ErrInvalidCheckoutInput, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidCheckoutInput, i)
		}
	}
	if n := len(input.CustomerName); n < minNameLen || n > maxNameLen {
		return fmt.Errorf("%w: name must be between %d and %d characters", ErrInvalidCheckoutInput, minNameLen, maxNameLen)
	}
	if !emailRegex.MatchString(NormalizeEmail(input.CustomerEmail)) {
		return fmt.Errorf("%w: invalid email address", ErrInvalidCheckoutInput)
	}
	if n := len(input.ShippingAddress); n < minAddressLen || n > maxAddressLen {
		return fmt.Errorf("%w: address must be between %d and %d characters", ErrInvalidCheckoutInput, minAddressLen, maxAddressLen)
	}
	return nil
}

// ----------------- Session verification -----------------

// VerifySession returns the order snapshot for a gateway session id. A
// session with no order yet, or an order still pending, is reported as
// such rather than as an error: the client may poll before the webhook
// has landed.
func (s *service) VerifySession(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("method", "VerifySession"),
		zap.String("session_id", sessionID),
	)

	o, err := s.repo.GetBySessionID(ctx, sessionID)
	if errors.Is(err, ErrOrderNotFound) {
		log.Info("no order for session yet")
		return &SessionSnapshot{
			Found:         false,
			Status:        StatusPending,
			PaymentStatus: PaymentPending,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &SessionSnapshot{
		Found:         true,
		OrderID:       o.ID,
		Reference:     o.Reference,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		Items:         o.Items,
		CreatedAt:     o.CreatedAt,
	}

	// Advisory cross-check only; the local order decides what we show.
	if s.gateway != nil {
		if sess, gwErr := s.gateway.GetSession(ctx, sessionID); gwErr != nil {
			log.Warn("gateway session lookup failed", zap.Error(gwErr))
		} else {
			snap.GatewayPaymentStatus = sess.PaymentStatus
		}
	}

	return snap, nil
}

// ----------------- Webhook appliers -----------------

func (s *service) HandleCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID, shippingAddress string) error {
	o, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}

	wasPending := o.Status == StatusPending

	updated, err := s.repo.ApplyTransition(ctx, o.ID, EventCheckoutCompleted, paymentIntentID)
	if err != nil {
		return err
	}

	// The gateway collected the definitive shipping address during payment.
	if shippingAddress != "" && shippingAddress != updated.ShippingAddress {
		if addrErr := s.repo.UpdateShippingAddress(ctx, updated.ID, shippingAddress, updated.Version); addrErr != nil {
			logger.FromCtx(ctx).Warn("failed to update shipping address from gateway",
				zap.String("order_id", updated.ID.String()),
				zap.Error(addrErr),
			)
		}
	}

	if wasPending && updated.Status == StatusConfirmed {
		s.notifyConfirmed(updated)
	}
	return nil
}

func (s *service) HandlePaymentSucceeded(ctx context.Context, paymentIntentID, orderIDHint string) error {
	o, err := s.repo.GetByPaymentID(ctx, paymentIntentID)
	if errors.Is(err, ErrOrderNotFound) && orderIDHint != "" {
		// The payment id is only recorded once checkout-session-completed
		// has been applied; fall back to the order id we planted in the
		// session metadata.
		id, parseErr := uuid.Parse(orderIDHint)
		if parseErr != nil {
			return err
		}
		o, err = s.repo.GetByID(ctx, id)
	}
	if err != nil {
		return err
	}

	wasPending := o.Status == StatusPending

	updated, err := s.repo.ApplyTransition(ctx, o.ID, EventPaymentSucceeded, "")
	if err != nil {
		return err
	}

	if wasPending && updated.Status == StatusConfirmed {
		s.notifyConfirmed(updated)
	}
	return nil
}

func (s *service) HandlePaymentFailed(ctx context.Context, paymentIntentID string) error {
	o, err := s.repo.GetByPaymentID(ctx, paymentIntentID)
	if err != nil {
		return err
	}

	_, err = s.repo.ApplyTransition(ctx, o.ID, EventPaymentFailed, "")
	return err
}

func (s *service) notifyConfirmed(o *Order) {
	if s.notifier == nil {
		return
	}

	// Fire and forget: notification failures never block confirmation.
	ord := *o
	go func() {
		if err := s.notifier.OrderConfirmed(context.Background(), &ord); err != nil {
			logger.L().Warn("order confirmation notification failed",
				zap.String("order_id", ord.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

// ----------------- Fulfillment -----------------

// Fulfillment moves through the same guarded transition path as payment
// events; there is no side door around the version discipline.

func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID) error {
	return s.applyFulfillment(ctx, orderID, EventShipped, StatusShipped)
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) error {
	return s.applyFulfillment(ctx, orderID, EventDelivered, StatusDelivered)
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) error {
	return s.applyFulfillment(ctx, orderID, EventCancelled, StatusCancelled)
}

func (s *service) applyFulfillment(ctx context.Context, orderID uuid.UUID, ev Event, want OrderStatus) error {
	o, err := s.repo.ApplyTransition(ctx, orderID, ev, "")
	if err != nil {
		return err
	}
	if o.Status != want {
		return fmt.Errorf("%w: cannot apply %s from %s/%s",
			ErrInvalidOrder, ev, o.Status, o.PaymentStatus)
	}
	return nil
}
