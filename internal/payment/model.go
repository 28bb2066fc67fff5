package payment

type SessionLineItem struct {
	Name        string
	Description string
	UnitAmount  int64 // minor units
	Quantity    int
}

type SessionRequest struct {
	// OrderID travels as session metadata so webhook events can be
	// correlated back without relying solely on the gateway's session id.
	OrderID       string
	CustomerName  string
	CustomerEmail string
	LineItems     []SessionLineItem
}

type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	PaymentStatus   string
	CustomerEmail   string
}
