package order

// Event is the closed set of notifications that may move an order's state
// after creation. Gateway webhooks map onto the first three; the fulfillment
// events are applied by back-office operations through the same path.
type Event string

const (
	EventCheckoutCompleted Event = "checkout.session.completed"
	EventPaymentSucceeded  Event = "payment_intent.succeeded"
	EventPaymentFailed     Event = "payment_intent.payment_failed"

	EventShipped   Event = "order.shipped"
	EventDelivered Event = "order.delivered"
	EventCancelled Event = "order.cancelled"
)

// Snapshot is the slice of order state the transition function operates on.
type Snapshot struct {
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	StripePaymentID *string
}

// Transition computes the next state for an event. It is pure, idempotent
// and monotonic: every rule is a guarded forward move, never an
// unconditional overwrite, so replaying an event or delivering equivalent
// events in either order converges to the same fixed point.
//
// paymentID, when non-empty, is recorded the first time a payment identity
// becomes known (checkout.session.completed carries it).
func Transition(cur Snapshot, ev Event, paymentID string) (Snapshot, bool) {
	next := cur
	changed := false

	switch ev {
	case EventCheckoutCompleted:
		if cur.Status == StatusPending {
			next.Status = StatusConfirmed
			next.PaymentStatus = PaymentPaid
			if paymentID != "" && next.StripePaymentID == nil {
				id := paymentID
				next.StripePaymentID = &id
			}
			changed = true
		}

	case EventPaymentSucceeded:
		if cur.PaymentStatus != PaymentPaid {
			next.PaymentStatus = PaymentPaid
			changed = true
		}
		if cur.Status == StatusPending {
			next.Status = StatusConfirmed
			changed = true
		}

	case EventPaymentFailed:
		// Only a never-resolved payment may fail; a failure notification
		// arriving after success (redelivery, reordering) is a no-op.
		if cur.PaymentStatus == PaymentPending {
			next.PaymentStatus = PaymentFailed
			changed = true
		}

	case EventShipped:
		if cur.Status == StatusConfirmed && cur.PaymentStatus == PaymentPaid {
			next.Status = StatusShipped
			changed = true
		}

	case EventDelivered:
		if cur.Status == StatusShipped {
			next.Status = StatusDelivered
			changed = true
		}

	case EventCancelled:
		if cur.Status == StatusPending || cur.Status == StatusConfirmed {
			next.Status = StatusCancelled
			changed = true
		}
	}

	return next, changed
}
