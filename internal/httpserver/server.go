package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/cyberhound/colony-proxy/internal/config"
	"github.com/cyberhound/colony-proxy/internal/ledger"
	"github.com/cyberhound/colony-proxy/internal/payments"
	"github.com/cyberhound/colony-proxy/internal/service"
)

// maxWebhookBody caps webhook payload reads; Stripe events are small.
const maxWebhookBody = 1 << 20

type Server struct {
	cfg      config.Config
	service  *service.Service
	provider payments.Provider
	log      *zap.Logger
}

func New(cfg config.Config, svc *service.Service, provider payments.Provider, log *zap.Logger) *Server {
	return &Server{cfg: cfg, service: svc, provider: provider, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/go/{dealID}", s.handleRedirect)
	r.Post("/webhook/payment", s.handlePaymentWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{s.cfg.ClientURL},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/intel", s.handleIntel)
		r.Get("/activity", s.handleActivity)
		r.Post("/promote", s.handlePromote)
		r.Post("/sniper/subscribe", s.handleSubscribe)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Get("/deals", s.handleAdminDeals)
		r.Put("/deals", s.handleAdminPublish)
		r.Post("/deals/{dealID}/promote", s.handleAdminPromote)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.service.Ping(ctx); err != nil {
		status["ok"] = false
		status["store"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	url := s.service.Redirect(r.Context(), chi.URLParam(r, "dealID"), service.ClickMeta{
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
		Referrer:  r.Referer(),
	})
	http.Redirect(w, r, url, http.StatusFound)
}

// handlePaymentWebhook verifies the provider signature over the raw body
// before anything else. Bad signatures are rejected; everything after a valid
// signature is logged and acknowledged, so a ledger outage surfaces in the
// logs instead of a provider retry storm.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	event, err := s.provider.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, payments.ErrInvalidSignature) {
		s.log.Warn("webhook rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	if err != nil {
		// Signed by the provider but not actionable; retrying won't help.
		s.log.Warn("webhook unprocessable", zap.Error(err))
		s.ack(w)
		return
	}
	if event.Completed == nil {
		s.ack(w)
		return
	}

	err = s.service.ApplyCheckoutCompleted(r.Context(), *event.Completed)
	switch {
	case errors.Is(err, ledger.ErrDealNotFound):
		s.log.Warn("webhook for unknown deal",
			zap.String("deal_id", event.Completed.DealID))
	case err != nil:
		s.log.Error("webhook apply failed",
			zap.String("deal_id", event.Completed.DealID), zap.Error(err))
	}
	s.ack(w)
}

func (s *Server) ack(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleIntel(w http.ResponseWriter, r *http.Request) {
	deals, err := s.service.Intel(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "intel feed unavailable")
		return
	}
	respondJSON(w, http.StatusOK, deals)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Activity())
}

type promoteRequest struct {
	DealID      string `json:"dealId"`
	PackageType string `json:"packageType"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	url, err := s.service.Promote(r.Context(), req.DealID, req.PackageType)
	if errors.Is(err, service.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("checkout session failed", zap.String("deal_id", req.DealID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	err := s.service.Subscribe(r.Context(), req.Email)
	if errors.Is(err, service.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("subscribe failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "subscription failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.service.Deals(r.Context())
	if err != nil {
		respondError(w, http.StatusNotFound, "ledger not published")
		return
	}
	respondJSON(w, http.StatusOK, deals)
}

func (s *Server) handleAdminPublish(w http.ResponseWriter, r *http.Request) {
	var deals []ledger.Deal
	if err := decodeJSON(w, r, &deals); err != nil {
		respondError(w, http.StatusBadRequest, "malformed deal document")
		return
	}
	if err := s.service.PublishDeals(r.Context(), deals); err != nil {
		s.log.Error("publish failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "publish failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"published": len(deals)})
}

type adminPromoteRequest struct {
	PackageType string `json:"packageType"`
}

func (s *Server) handleAdminPromote(w http.ResponseWriter, r *http.Request) {
	var req adminPromoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	pkg, err := ledger.ParsePackage(req.PackageType)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.service.ApplyCheckoutCompleted(r.Context(), payments.CompletedCheckout{
		DealID:  chi.URLParam(r, "dealID"),
		Package: pkg,
	})
	if errors.Is(err, ledger.ErrDealNotFound) {
		respondError(w, http.StatusNotFound, "unknown deal")
		return
	}
	if err != nil {
		s.log.Error("manual promote failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "promote failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"promoted": true})
}

func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminJWTSecret == "" {
			respondError(w, http.StatusUnauthorized, "admin api disabled")
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			respondError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		token, err := jwt.Parse(strings.TrimPrefix(auth, prefix), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.AdminJWTSecret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
