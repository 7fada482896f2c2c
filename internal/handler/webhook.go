// Package handler contains HTTP handlers for the vozfeed guardrail API.
//
// This file implements the Stripe webhook handler that turns billing events
// into plan-tier transitions.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no tenant middleware) because Stripe calls it
// directly. Authentication is via the Stripe webhook signature.
//
// Stripe may deliver events more than once and out of order. Plan changes
// are applied with apply-if-newer semantics keyed on the subscription
// period end, so redelivered or stale events are skipped, not re-applied.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vozfeed/vozfeed/internal/billing"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing billing.Service
	tenants service.TenantService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, tenants service.TenantService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing: billingService,
		tenants: tenants,
		logger:  logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no tenant middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	// Route to event-specific handler
	var result string
	switch event.Type {
	case "checkout.session.completed":
		result = h.handleCheckoutCompleted(r.Context(), event)
	case "customer.subscription.created":
		result = h.handleSubscriptionChanged(r.Context(), event, "created")
	case "customer.subscription.updated":
		result = h.handleSubscriptionChanged(r.Context(), event, "updated")
	case "customer.subscription.deleted":
		result = h.handleSubscriptionDeleted(r.Context(), event)
	case "invoice.payment_succeeded":
		result = h.handlePaymentSucceeded(r.Context(), event)
	case "invoice.payment_failed":
		result = h.handlePaymentFailed(r.Context(), event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		result = "ignored"
	}

	metrics.WebhookEvents.WithLabelValues(string(event.Type), result).Inc()

	// Always 200 once the signature checked out: a 4xx/5xx would make
	// Stripe redeliver an event we have already classified.
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) string {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return "error"
	}

	if session.Customer == nil || session.Subscription == nil {
		h.logger.Warn("checkout session missing customer or subscription", "session_id", session.ID)
		return "skipped"
	}

	// The plan change itself arrives on customer.subscription.created;
	// checkout completion only confirms the customer linkage.
	tenant, err := h.tenants.GetByStripeCustomerID(ctx, session.Customer.ID)
	if err != nil {
		h.logger.Warn("no tenant for checkout customer",
			"customer_id", session.Customer.ID, "session_id", session.ID)
		return "skipped"
	}

	h.logger.Info("checkout completed",
		"tenant_id", tenant.ID, "subscription_id", session.Subscription.ID)
	return "applied"
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event, action string) string {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err, "action", action)
		return "error"
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID, "action", action)
		return "skipped"
	}

	tenant, err := h.tenants.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		h.logger.Warn("tenant not found for subscription event",
			"customer_id", sub.Customer.ID, "subscription_id", sub.ID, "action", action)
		return "skipped"
	}

	tier, ok := h.tierFromSubscription(&sub)
	if !ok {
		h.logger.Warn("subscription price does not map to a plan tier",
			"subscription_id", sub.ID, "action", action)
		return "skipped"
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	applied, err := h.tenants.ApplyPlanChange(ctx, tenant.ID, tier, periodEnd)
	if err != nil {
		h.logger.Error("failed to apply plan change", "error", err, "tenant_id", tenant.ID, "action", action)
		return "error"
	}
	if !applied {
		// Stale or redelivered event: the stored state is already newer.
		// The status on this event is just as stale, so it must not touch
		// the active flag either.
		return "skipped"
	}

	active := sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
	if err := h.tenants.SetActive(ctx, tenant.ID, active); err != nil {
		h.logger.Error("failed to update account standing", "error", err, "tenant_id", tenant.ID)
		return "error"
	}

	h.logger.Info("subscription event processed",
		"tenant_id", tenant.ID, "action", action, "status", sub.Status, "tier", tier)
	return "applied"
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) string {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return "error"
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return "skipped"
	}

	tenant, err := h.tenants.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		h.logger.Warn("tenant not found for subscription deletion", "customer_id", sub.Customer.ID)
		return "skipped"
	}

	endedAt := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	if sub.EndedAt > 0 {
		endedAt = time.Unix(sub.EndedAt, 0).UTC()
	}

	// The paid plan is gone. The account stays active on the free tier;
	// quota enforcement takes it from here.
	applied, err := h.tenants.ApplyPlanChange(ctx, tenant.ID, domain.PlanTierFree, endedAt)
	if err != nil {
		h.logger.Error("failed to downgrade on subscription deletion", "error", err, "tenant_id", tenant.ID)
		return "error"
	}
	if !applied {
		return "skipped"
	}

	h.logger.Info("subscription deleted", "tenant_id", tenant.ID, "subscription_id", sub.ID)
	return "applied"
}

func (h *WebhookHandler) handlePaymentSucceeded(ctx context.Context, event stripe.Event) string {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return "error"
	}

	if invoice.Customer == nil {
		return "skipped"
	}

	tenant, err := h.tenants.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("tenant not found for payment succeeded", "customer_id", invoice.Customer.ID)
		return "skipped"
	}

	// Recovery from a past failed payment
	if !tenant.IsActive {
		if err := h.tenants.SetActive(ctx, tenant.ID, true); err != nil {
			h.logger.Error("failed to reactivate on payment success", "error", err, "tenant_id", tenant.ID)
			return "error"
		}
		h.logger.Info("account reactivated on payment success", "tenant_id", tenant.ID)
	}
	return "applied"
}

func (h *WebhookHandler) handlePaymentFailed(ctx context.Context, event stripe.Event) string {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return "error"
	}

	if invoice.Customer == nil {
		return "skipped"
	}

	tenant, err := h.tenants.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("tenant not found for payment failed", "customer_id", invoice.Customer.ID)
		return "skipped"
	}

	if err := h.tenants.SetActive(ctx, tenant.ID, false); err != nil {
		h.logger.Error("failed to suspend account on payment failure", "error", err, "tenant_id", tenant.ID)
		return "error"
	}

	h.logger.Warn("payment failed, account suspended", "tenant_id", tenant.ID, "customer_id", invoice.Customer.ID)
	return "applied"
}

// tierFromSubscription maps the subscription's first price to a paid tier.
func (h *WebhookHandler) tierFromSubscription(sub *stripe.Subscription) (domain.PlanTier, bool) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return "", false
	}
	return h.billing.TierForPriceID(sub.Items.Data[0].Price.ID)
}
