package order

import "errors"

var (
	ErrInvalidOrder           = errors.New("invalid order")
	ErrInvalidCheckoutInput   = errors.New("invalid checkout input")
	ErrOrderNotFound          = errors.New("order not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrOutOfStock             = errors.New("product out of stock")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
)
