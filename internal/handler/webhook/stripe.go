// Package webhook receives payment events from the invoicing provider and
// feeds them back into the reconciler.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/telemetry"

	"github.com/google/uuid"
)

// StripeHandler handles Stripe webhook events. A successful invoice payment
// marks the referenced billing record paid through the reconciler, so the
// account balance and payment history update atomically with the record.
type StripeHandler struct {
	provider billing.Provider
	records  domain.RecordService
	logger   *slog.Logger
	config   StripeWebhookConfig
}

// StripeWebhookConfig contains configuration for Stripe webhook handling.
type StripeWebhookConfig struct {
	// WebhookSecret is the webhook signing secret from the Stripe dashboard.
	WebhookSecret string
}

// NewStripeHandler creates a Stripe webhook handler.
func NewStripeHandler(provider billing.Provider, records domain.RecordService, logger *slog.Logger, config StripeWebhookConfig) *StripeHandler {
	return &StripeHandler{
		provider: provider,
		records:  records,
		logger:   logger,
		config:   config,
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger invoice.payment_succeeded
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Method not allowed"))
		return
	}

	if h.provider == nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAVAILABLE, "", "Invoicing provider is not configured"))
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", slog.String("error", err.Error()))
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "", "Invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Invalid JSON"))
		return
	}

	h.logger.Info("stripe webhook received",
		slog.String("event_type", string(event.Type)),
		slog.String("event_id", event.ID))

	if mb := telemetry.Business; mb != nil {
		mb.WebhookReceived.WithLabelValues(string(event.Type)).Inc()
	}

	switch event.Type {
	case "invoice.payment_succeeded":
		h.handleInvoicePaymentSucceeded(r.Context(), event)

	case "invoice.payment_failed":
		h.handleInvoicePaymentFailed(event)

	default:
		h.logger.Debug("unhandled stripe event type", slog.String("event_type", string(event.Type)))
	}

	// Always acknowledge receipt; Stripe retries on non-2xx.
	handler.RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleInvoicePaymentSucceeded marks the billing record referenced by the
// invoice metadata as paid. The event ID doubles as the mutation key, so
// Stripe's at-least-once delivery applies the payment exactly once.
func (h *StripeHandler) handleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.webhookFailed(event, "parse_error")
		h.logger.Error("failed to parse invoice from webhook", slog.String("error", err.Error()))
		return
	}

	recordID, ok := h.recordIDFromInvoice(&invoice, event)
	if !ok {
		return
	}

	paid := domain.RecordPaid
	paidCents := invoice.AmountPaid
	mutation := domain.RecordMutation{
		Op:          domain.OpUpdate,
		RecordID:    recordID,
		MutationKey: "stripe:" + event.ID,
		Status:      &paid,
	}
	if paidCents > 0 {
		mutation.PaidCents = &paidCents
	}

	record, err := h.records.Reconcile(ctx, mutation)
	if err != nil {
		h.webhookFailed(event, "reconcile_error")
		h.logger.Error("failed to mark record paid from invoice payment",
			slog.String("record_id", recordID.String()),
			slog.String("invoice_id", invoice.ID),
			slog.String("error", err.Error()))
		return
	}

	if mb := telemetry.Business; mb != nil {
		mb.WebhookProcessed.WithLabelValues(string(event.Type)).Inc()
	}

	h.logger.Info("billing record settled from invoice payment",
		slog.String("record_number", record.RecordNumber),
		slog.String("invoice_id", invoice.ID),
		slog.Int64("amount_paid_cents", invoice.AmountPaid))
}

// handleInvoicePaymentFailed only records the failure; the overdue sweep will
// pick up the record once it ages past grace.
func (h *StripeHandler) handleInvoicePaymentFailed(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.webhookFailed(event, "parse_error")
		h.logger.Error("failed to parse invoice from webhook", slog.String("error", err.Error()))
		return
	}

	h.logger.Warn("invoice payment failed",
		slog.String("invoice_id", invoice.ID),
		slog.String("record_id", invoice.Metadata["record_id"]),
		slog.String("record_number", invoice.Metadata["record_number"]))

	if mb := telemetry.Business; mb != nil {
		mb.WebhookProcessed.WithLabelValues(string(event.Type)).Inc()
	}
}

// recordIDFromInvoice resolves the billing record the invoice was issued for.
// Invoices created outside this system carry no record_id metadata and are
// skipped.
func (h *StripeHandler) recordIDFromInvoice(invoice *stripe.Invoice, event stripe.Event) (uuid.UUID, bool) {
	raw := invoice.Metadata["record_id"]
	if raw == "" {
		h.logger.Info("invoice has no record_id metadata, skipping",
			slog.String("invoice_id", invoice.ID))
		return uuid.Nil, false
	}

	recordID, err := uuid.Parse(raw)
	if err != nil {
		h.webhookFailed(event, "bad_metadata")
		h.logger.Error("invoice carries malformed record_id metadata",
			slog.String("invoice_id", invoice.ID),
			slog.String("record_id", raw))
		return uuid.Nil, false
	}
	return recordID, true
}

func (h *StripeHandler) webhookFailed(event stripe.Event, errorType string) {
	if mb := telemetry.Business; mb != nil {
		mb.WebhookFailed.WithLabelValues(string(event.Type), errorType).Inc()
	}
}
