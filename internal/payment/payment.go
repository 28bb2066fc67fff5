package payment

import (
	"context"
	"errors"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// VerifySignature authenticates a webhook delivery against the raw,
	// unparsed request payload.
	VerifySignature(header string, payload []byte) error
}
