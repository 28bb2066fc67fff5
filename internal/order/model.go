package order

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderItem is a snapshot taken at order creation. Name and unit price are
// frozen there and never re-read from the catalog.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"` // minor units
	Quantity  int    `json:"quantity"`
}

// Order is the durable record of a customer's intent to purchase,
// independent of payment outcome. Orders are never deleted; cancellation
// is a terminal status.
type Order struct {
	ID        uuid.UUID
	Reference string

	CustomerName    string
	CustomerEmail   string
	ShippingAddress string

	Items []OrderItem

	// Minor units; Total == Subtotal + ShippingFee at all times.
	Subtotal    int64
	ShippingFee int64
	Total       int64

	Status        OrderStatus
	PaymentStatus PaymentStatus

	StripeSessionID *string
	StripePaymentID *string
	CheckoutURL     *string
	IdempotencyKey  *string

	// Incremented on every mutation; optimistic concurrency token.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

var emailRegex = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// NormalizeEmail lowercases and trims an address, matching how the orders
// table stores customer emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateDraft checks the creation-time invariants before the order is
// persisted.
func (o *Order) ValidateDraft() error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order must have at least one item", ErrInvalidOrder)
	}
	for i, item := range o.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidOrder, i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d has negative unit price", ErrInvalidOrder, i)
		}
	}
	if o.Subtotal < 0 || o.ShippingFee < 0 {
		return fmt.Errorf("%w: negative amounts", ErrInvalidOrder)
	}
	if o.Total != o.Subtotal+o.ShippingFee {
		return fmt.Errorf("%w: total must equal subtotal plus shipping", ErrInvalidOrder)
	}
	if o.CustomerName == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidOrder)
	}
	if !emailRegex.MatchString(o.CustomerEmail) {
		return fmt.Errorf("%w: invalid customer email", ErrInvalidOrder)
	}
	if o.ShippingAddress == "" {
		return fmt.Errorf("%w: shipping address is required", ErrInvalidOrder)
	}
	return nil
}
