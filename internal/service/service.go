// Package service holds the business core: click resolution, promotion
// purchases, the webhook-driven promotion state machine and the sniper list.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyberhound/colony-proxy/internal/blast"
	"github.com/cyberhound/colony-proxy/internal/cache"
	"github.com/cyberhound/colony-proxy/internal/clicks"
	"github.com/cyberhound/colony-proxy/internal/ledger"
	"github.com/cyberhound/colony-proxy/internal/mailer"
	"github.com/cyberhound/colony-proxy/internal/objstore"
	"github.com/cyberhound/colony-proxy/internal/payments"
)

// ErrInvalidRequest marks caller mistakes (bad package type, empty ids) so
// the transport layer can map them to 400s.
var ErrInvalidRequest = errors.New("service: invalid request")

// Config tunes the service; zero values get sensible defaults.
type Config struct {
	// FallbackURL is the safe destination for unresolvable clicks.
	FallbackURL string

	// ResolveTimeout bounds the ledger read on the redirect path.
	ResolveTimeout time.Duration

	// UpdateAttempts bounds ledger read-modify-write retries.
	UpdateAttempts int
}

// Deps are the collaborators wired in at startup. Cache may be nil.
type Deps struct {
	Deals       *ledger.Store
	Clicks      *clicks.Dispatcher
	Provider    payments.Provider
	Blast       *blast.Emitter
	Mail        mailer.Mailer
	Cache       *cache.DealCache
	Subscribers *SubscriberStore
	Log         *zap.Logger
}

type Service struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	activity *activityFeed
	blastWG  sync.WaitGroup
}

func New(cfg Config, deps Deps) *Service {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 2 * time.Second
	}
	if cfg.UpdateAttempts <= 0 {
		cfg.UpdateAttempts = ledger.DefaultUpdateAttempts
	}
	if deps.Mail == nil {
		deps.Mail = mailer.Disabled{}
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		activity: newActivityFeed(50),
	}
}

// ClickMeta is best-effort request metadata carried into the click event.
type ClickMeta struct {
	UserAgent string
	IP        string
	Referrer  string
}

// Redirect resolves a deal id to its affiliate destination and records the
// click. It never fails: any problem degrades to the fallback URL, and the
// click append runs off the response path.
func (s *Service) Redirect(ctx context.Context, dealID string, meta ClickMeta) string {
	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.ResolveTimeout)
	defer cancel()

	deals, err := s.loadDeals(loadCtx)
	if err != nil {
		s.log.Warn("redirect falling back, ledger unavailable",
			zap.String("deal_id", dealID), zap.Error(err))
		return s.cfg.FallbackURL
	}

	i := ledger.Find(deals, dealID)
	if i < 0 || deals[i].URL == "" {
		s.log.Info("redirect falling back, unknown deal", zap.String("deal_id", dealID))
		return s.cfg.FallbackURL
	}
	deal := deals[i]

	s.deps.Clicks.Enqueue(clicks.Event{
		ClickID:   uuid.NewString(),
		DealID:    ledger.NormalizeID(deal.ID),
		Brand:     deal.Brand,
		Timestamp: time.Now().UTC(),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		Referrer:  meta.Referrer,
	})
	s.activity.add("CLICK", fmt.Sprintf("Tracked click for %s", deal.Brand))
	return deal.URL
}

// Promote requests a hosted checkout session. The ledger is untouched until
// the provider confirms payment via webhook.
func (s *Service) Promote(ctx context.Context, dealID, packageType string) (string, error) {
	if ledger.NormalizeID(dealID) == "" {
		return "", fmt.Errorf("%w: dealId required", ErrInvalidRequest)
	}
	pkg, err := ledger.ParsePackage(packageType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	sess, err := s.deps.Provider.CreateCheckoutSession(ctx, ledger.NormalizeID(dealID), pkg)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ApplyCheckoutCompleted drives the promotion state machine for a verified
// completed checkout: UNPROMOTED -> PROMOTED(package), and for inferno the
// one-shot blast handoff. Reapplying the same event is a no-op for the
// ledger and never re-fires the blast.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, c payments.CompletedCheckout) error {
	var alreadyApplied bool
	_, err := s.deps.Deals.Update(ctx, s.cfg.UpdateAttempts, func(deals []ledger.Deal) ([]ledger.Deal, error) {
		i := ledger.Find(deals, c.DealID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ledger.ErrDealNotFound, c.DealID)
		}
		alreadyApplied = deals[i].Promoted && deals[i].Package == c.Package
		deals[i].Promoted = true
		deals[i].Package = c.Package
		return deals, nil
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)

	if !alreadyApplied {
		s.activity.add("SALE", fmt.Sprintf("Deal %s upgraded to %s", c.DealID, c.Package))
	}
	if c.Package == ledger.PackageInferno && !alreadyApplied {
		s.emitBlast(c.DealID)
	}
	return nil
}

// emitBlast hands off to the blast emitter without holding up the webhook
// acknowledgement. The deterministic artifact key makes concurrent or
// duplicate emits converge on a single trigger.
func (s *Service) emitBlast(dealID string) {
	s.blastWG.Add(1)
	go func() {
		defer s.blastWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := s.deps.Blast.Emit(ctx, dealID)
		switch {
		case errors.Is(err, blast.ErrAlreadyTriggered):
			s.log.Info("blast already triggered", zap.String("deal_id", dealID))
		case err != nil:
			s.log.Error("blast trigger failed", zap.String("deal_id", dealID), zap.Error(err))
		default:
			s.activity.add("BLAST", fmt.Sprintf("Inferno blast initiated for deal %s", dealID))
		}
	}()
}

// Intel returns the current deal document; a not-yet-published ledger yields
// a placeholder row rather than an error.
func (s *Service) Intel(ctx context.Context) ([]ledger.Deal, error) {
	deals, err := s.loadDeals(ctx)
	if errors.Is(err, objstore.ErrNotExist) {
		return []ledger.Deal{{ID: "1", Brand: "SYSTEM", Package: ledger.PackageNone}}, nil
	}
	if err != nil {
		return nil, err
	}
	return deals, nil
}

// Deals returns the ledger document for admin reads; missing documents are
// surfaced as objstore.ErrNotExist.
func (s *Service) Deals(ctx context.Context) ([]ledger.Deal, error) {
	return s.loadDeals(ctx)
}

// PublishDeals replaces the whole ledger document (the ledger-builder
// handoff, exposed to operators).
func (s *Service) PublishDeals(ctx context.Context, deals []ledger.Deal) error {
	_, err := s.deps.Deals.Update(ctx, s.cfg.UpdateAttempts, func([]ledger.Deal) ([]ledger.Deal, error) {
		return deals, nil
	})
	if err != nil {
		return err
	}
	s.invalidateCache(ctx)
	s.activity.add("SYSTEM", fmt.Sprintf("Ledger published with %d deals", len(deals)))
	return nil
}

// Activity returns the recent activity feed, newest first.
func (s *Service) Activity() []ActivityEntry {
	return s.activity.recent()
}

// Subscribe adds an email to the sniper list and sends the welcome mail
// best-effort. Re-subscribing is a no-op.
func (s *Service) Subscribe(ctx context.Context, email string) error {
	added, err := s.deps.Subscribers.Add(ctx, email)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	s.activity.add("SNIPER", "New sniper joined the watchlist")
	if err := s.deps.Mail.Send(ctx, email,
		"Target Acquired: Sniper Access Granted",
		"<p>You are now tracking high-value intel. Stay frosty. - Cyberhound HQ</p>",
	); err != nil {
		s.log.Warn("welcome mail failed", zap.Error(err))
	}
	return nil
}

// Ping reports whether the backing store answers. An unpublished ledger is
// healthy; an unreachable or corrupt one is not.
func (s *Service) Ping(ctx context.Context) error {
	_, _, err := s.deps.Deals.Load(ctx)
	if errors.Is(err, objstore.ErrNotExist) {
		return nil
	}
	return err
}

// Close waits for in-flight blast handoffs; called on shutdown.
func (s *Service) Close() {
	s.blastWG.Wait()
}

func (s *Service) loadDeals(ctx context.Context) ([]ledger.Deal, error) {
	if s.deps.Cache != nil {
		if deals, ok := s.deps.Cache.Get(ctx); ok {
			return deals, nil
		}
	}
	deals, _, err := s.deps.Deals.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.deps.Cache != nil {
		s.deps.Cache.Set(ctx, deals)
	}
	return deals, nil
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.deps.Cache != nil {
		s.deps.Cache.Invalidate(ctx)
	}
}
