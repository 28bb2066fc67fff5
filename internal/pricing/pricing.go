// Package pricing computes order amounts in integer minor currency units
// (pence). No floating-point money arithmetic anywhere.
package pricing

import (
	"errors"
	"fmt"
)

var ErrInvalidLineItem = errors.New("invalid line item")

type LineItem struct {
	UnitPrice int64 // minor units
	Quantity  int
}

type Amounts struct {
	Subtotal    int64
	ShippingFee int64
	Total       int64
}

// Quote prices a cart: subtotal is the sum of unit price times quantity,
// shipping is waived once the subtotal reaches the threshold, and
// Total == Subtotal + ShippingFee always holds.
func Quote(items []LineItem, freeShippingThreshold, flatShippingFee int64) (Amounts, error) {
	var subtotal int64

	for i, item := range items {
		if item.Quantity < 1 {
			return Amounts{}, fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidLineItem, i)
		}
		if item.UnitPrice < 0 {
			return Amounts{}, fmt.Errorf("%w: item %d has negative unit price", ErrInvalidLineItem, i)
		}

		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	shipping := flatShippingFee
	if subtotal >= freeShippingThreshold {
		shipping = 0
	}

	return Amounts{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Total:       subtotal + shipping,
	}, nil
}
