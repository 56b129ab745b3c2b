package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/cyberhound/colony-proxy/internal/ledger"
)

// EventCheckoutCompleted is the only provider event that mutates the ledger.
const EventCheckoutCompleted = "checkout.session.completed"

// StripeConfig holds the provider credentials and the two flat price tiers.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceFlame    string
	PriceInferno  string

	// ClientURL is the front-end base for success/cancel destinations.
	ClientURL string

	// Backends overrides the API backend; tests point it at a local server.
	Backends *stripe.Backends
}

// StripeProvider implements Provider against Stripe Checkout.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	prices        map[ledger.Package]string
	successURL    string
	cancelURL     string
	log           *zap.Logger
}

func NewStripeProvider(cfg StripeConfig, log *zap.Logger) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret required")
	}
	if cfg.PriceFlame == "" || cfg.PriceInferno == "" {
		return nil, fmt.Errorf("stripe price ids required for both packages")
	}
	base := strings.TrimSuffix(cfg.ClientURL, "/")
	if base == "" {
		base = "http://localhost:5173"
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, cfg.Backends)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		prices: map[ledger.Package]string{
			ledger.PackageFlame:   cfg.PriceFlame,
			ledger.PackageInferno: cfg.PriceInferno,
		},
		successURL: base + "/success",
		cancelURL:  base + "/cancel",
		log:        log,
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, dealID string, pkg ledger.Package) (Session, error) {
	priceID, ok := p.prices[pkg]
	if !ok {
		return Session{}, fmt.Errorf("no price configured for package %q", pkg)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
	}
	params.Context = ctx
	params.AddMetadata("dealId", dealID)
	params.AddMetadata("packageType", string(pkg))

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	p.log.Info("checkout session created",
		zap.String("deal_id", dealID),
		zap.String("package", string(pkg)),
	)
	return Session{URL: sess.URL}, nil
}

// VerifyEvent recomputes the signature over the raw payload bytes and, for a
// completed checkout, pulls the deal metadata back out. Metadata problems on
// an otherwise authentic event are reported alongside an Event whose
// Completed is nil, so callers can acknowledge without acting.
func (p *StripeProvider) VerifyEvent(payload []byte, signatureHeader string) (Event, error) {
	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := Event{Type: string(stripeEvent.Type)}
	if ev.Type != EventCheckoutCompleted {
		return ev, nil
	}

	var sess struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(stripeEvent.Data.Raw, &sess); err != nil {
		return ev, fmt.Errorf("decode checkout session: %w", err)
	}
	dealID := strings.TrimSpace(sess.Metadata["dealId"])
	if dealID == "" {
		return ev, fmt.Errorf("completed checkout without dealId metadata")
	}
	pkg, err := ledger.ParsePackage(sess.Metadata["packageType"])
	if err != nil {
		return ev, fmt.Errorf("completed checkout for deal %s: %w", dealID, err)
	}
	ev.Completed = &CompletedCheckout{DealID: dealID, Package: pkg}
	return ev, nil
}
