package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

type PaymentHandler struct {
	payments               *storage.PaymentRepository
	manager                *booking.Manager
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type PaymentConfig struct {
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

func NewPaymentHandler(payments *storage.PaymentRepository, manager *booking.Manager, logger *slog.Logger, cfg PaymentConfig) *PaymentHandler {
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 5 * time.Minute
	}
	return &PaymentHandler{
		payments:               payments,
		manager:                manager,
		logger:                 logger,
		stripeWebhookSecret:    cfg.StripeWebhookSecret,
		stripeWebhookTolerance: cfg.StripeWebhookTolerance,
	}
}

type paymentItem struct {
	PaymentID     string `json:"payment_id"`
	AppointmentID string `json:"appointment_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Provider      string `json:"provider"`
	ProviderRef   string `json:"provider_ref,omitempty"`
	PaidAt        string `json:"paid_at"`
}

func toPaymentItem(p model.Payment) paymentItem {
	return paymentItem{
		PaymentID:     p.ID,
		AppointmentID: p.AppointmentID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Status:        p.Status,
		Provider:      p.Provider,
		ProviderRef:   p.ProviderRef,
		PaidAt:        p.PaidAt.UTC().Format(time.RFC3339),
	}
}

// RecordManual records an offline payment (cash, card terminal) against an
// appointment in the caller's clinic.
func (h *PaymentHandler) RecordManual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AppointmentID string `json:"appointment_id"`
		AmountCents   int64  `json:"amount_cents"`
		Currency      string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, "amount_cents must be positive", http.StatusBadRequest)
		return
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	actor := actorFromRequest(r)
	if actor.Role != model.RoleClinicAdmin && actor.Role != model.RoleSuperAdmin {
		http.Error(w, "clinic admin role required", http.StatusForbidden)
		return
	}
	// Get enforces clinic scope for clinic admins.
	if _, err := h.manager.Get(r.Context(), actor, req.AppointmentID); err != nil {
		writeDomainError(w, err)
		return
	}

	ctx := r.Context()
	tx, err := h.payments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payment, err := h.payments.RecordPayment(ctx, tx, &model.Payment{
		AppointmentID: req.AppointmentID,
		AmountCents:   req.AmountCents,
		Currency:      currency,
		Status:        "succeeded",
		Provider:      "manual",
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentItem(payment))
}

// StripeWebhook handles Stripe webhooks (no JWT auth; signature
// verification is the auth). The gateway exposes this path publicly.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	ctx := r.Context()
	tx, err := h.payments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency: ignore replayed Stripe events.
	if err := h.payments.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			break
		}
		appointmentID := strings.TrimSpace(intent.Metadata["appointment_id"])
		if appointmentID == "" {
			h.logger.Warn("stripe: missing appointment_id metadata on payment intent", "provider_event_id", evt.ID)
			break
		}
		exists, err := h.payments.AppointmentExists(ctx, tx, appointmentID)
		if err != nil {
			http.Error(w, "failed to check appointment", http.StatusInternalServerError)
			return
		}
		if !exists {
			// Keep the event claimed so Stripe stops retrying a payment we
			// can never attach.
			h.logger.Error("stripe: payment for unknown appointment", "appointment_id", appointmentID, "provider_event_id", evt.ID)
			break
		}
		if _, err := h.payments.RecordPayment(ctx, tx, &model.Payment{
			AppointmentID: appointmentID,
			AmountCents:   intent.Amount,
			Currency:      string(intent.Currency),
			Status:        "succeeded",
			Provider:      "stripe",
			ProviderRef:   intent.ID,
			PaidAt:        time.Unix(evt.Created, 0).UTC(),
		}); err != nil {
			http.Error(w, "failed to record payment", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
