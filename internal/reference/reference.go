package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// NewOrderReference generates a human-readable order reference, e.g.
// ORD-20260829-153012-042-7312. Uniqueness is enforced by the orders table.
func NewOrderReference() string {
	now := time.Now().UTC()

	datePart := now.Format("20060102-150405")
	millis := now.Nanosecond() / int(time.Millisecond)

	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// fallback: time-based entropy
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf(
		"ORD-%s-%03d-%04d",
		datePart,
		millis,
		n.Int64(),
	)
}
