// Package payments is the anti-corruption layer in front of the payment
// provider: hosted checkout session creation and webhook event verification.
// The domain never touches provider SDK types directly.
package payments

import (
	"context"
	"errors"

	"github.com/cyberhound/colony-proxy/internal/ledger"
)

// ErrInvalidSignature reports a webhook payload whose signature did not
// verify against the shared secret. Requests failing this way are rejected
// before any event data is trusted.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// Session references a provider-hosted checkout flow; its lifecycle is owned
// by the provider until a webhook arrives.
type Session struct {
	URL string
}

// CompletedCheckout is the metadata echoed back on a completed checkout.
type CompletedCheckout struct {
	DealID  string
	Package ledger.Package
}

// Event is a verified webhook notification. Completed is non-nil only for a
// completed-checkout event carrying usable metadata; every other verified
// event is acknowledged and ignored.
type Event struct {
	Type      string
	Completed *CompletedCheckout
}

// Provider is the payment-provider contract.
type Provider interface {
	// CreateCheckoutSession requests a single-use hosted checkout for the
	// given deal and package; dealID and the package travel as opaque
	// metadata and come back verbatim in the completion webhook.
	CreateCheckoutSession(ctx context.Context, dealID string, pkg ledger.Package) (Session, error)

	// VerifyEvent authenticates a raw webhook body against the signature
	// header. It must see the exact bytes the provider signed; callers must
	// not parse and re-serialize the body first.
	VerifyEvent(payload []byte, signatureHeader string) (Event, error)
}
