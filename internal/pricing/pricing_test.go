package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	threshold = 7500
	flatFee   = 895
)

func TestQuote(t *testing.T) {
	t.Run("Shipping charged below threshold", func(t *testing.T) {
		got, err := Quote([]LineItem{{UnitPrice: 2000, Quantity: 2}}, threshold, flatFee)
		require.NoError(t, err)

		assert.Equal(t, int64(4000), got.Subtotal)
		assert.Equal(t, int64(895), got.ShippingFee)
		assert.Equal(t, int64(4895), got.Total)
	})

	t.Run("Free shipping at threshold", func(t *testing.T) {
		got, err := Quote([]LineItem{{UnitPrice: 8000, Quantity: 1}}, threshold, flatFee)
		require.NoError(t, err)

		assert.Equal(t, int64(8000), got.Subtotal)
		assert.Equal(t, int64(0), got.ShippingFee)
		assert.Equal(t, int64(8000), got.Total)
	})

	t.Run("Free shipping exactly at threshold", func(t *testing.T) {
		got, err := Quote([]LineItem{{UnitPrice: 7500, Quantity: 1}}, threshold, flatFee)
		require.NoError(t, err)

		assert.Equal(t, int64(0), got.ShippingFee)
		assert.Equal(t, int64(7500), got.Total)
	})

	t.Run("Multiple items", func(t *testing.T) {
		items := []LineItem{
			{UnitPrice: 2500, Quantity: 1},
			{UnitPrice: 1200, Quantity: 3},
		}
		got, err := Quote(items, threshold, flatFee)
		require.NoError(t, err)

		assert.Equal(t, int64(6100), got.Subtotal)
		assert.Equal(t, int64(895), got.ShippingFee)
		assert.Equal(t, got.Subtotal+got.ShippingFee, got.Total)
	})

	t.Run("Empty cart prices as zero plus shipping", func(t *testing.T) {
		got, err := Quote(nil, threshold, flatFee)
		require.NoError(t, err)

		assert.Equal(t, int64(0), got.Subtotal)
		assert.Equal(t, int64(flatFee), got.ShippingFee)
	})

	t.Run("Zero quantity rejected", func(t *testing.T) {
		_, err := Quote([]LineItem{{UnitPrice: 1000, Quantity: 0}}, threshold, flatFee)
		assert.ErrorIs(t, err, ErrInvalidLineItem)
	})

	t.Run("Negative price rejected", func(t *testing.T) {
		_, err := Quote([]LineItem{{UnitPrice: -1, Quantity: 1}}, threshold, flatFee)
		assert.ErrorIs(t, err, ErrInvalidLineItem)
	})
}

func TestQuoteInvariant(t *testing.T) {
	cases := [][]LineItem{
		{{UnitPrice: 1, Quantity: 1}},
		{{UnitPrice: 7499, Quantity: 1}},
		{{UnitPrice: 7500, Quantity: 1}},
		{{UnitPrice: 2000, Quantity: 2}, {UnitPrice: 3499, Quantity: 1}},
		{{UnitPrice: 99999, Quantity: 7}},
	}

	for _, items := range cases {
		got, err := Quote(items, threshold, flatFee)
		require.NoError(t, err)

		assert.Equal(t, got.Subtotal+got.ShippingFee, got.Total)
		if got.Subtotal >= threshold {
			assert.Equal(t, int64(0), got.ShippingFee)
		} else {
			assert.Equal(t, int64(flatFee), got.ShippingFee)
		}
	}
}
