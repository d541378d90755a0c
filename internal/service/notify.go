package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/email"
	"github.com/dukerupert/tally/internal/events"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/telemetry"
)

// Dispatcher turns committed billing events into external side effects:
// provider invoices and customer emails. Everything here is best effort.
// Failures are logged and counted, never propagated; the mutation that
// triggered the event has already committed and reported success.
type Dispatcher struct {
	store    repository.Store
	provider billing.Provider // nil when invoicing is not configured
	emails   *email.Service   // nil when email is not configured
	logger   *slog.Logger
}

// NewDispatcher creates the notification dispatcher. Both provider and
// emails may be nil; each missing dependency just skips its step.
func NewDispatcher(store repository.Store, provider billing.Provider, emails *email.Service, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		provider: provider,
		emails:   emails,
		logger:   logger,
	}
}

// DispatchRecordCreated handles a committed record creation: issue an
// external invoice (when configured), then email the customer a billing
// notice carrying the hosted payment link.
func (d *Dispatcher) DispatchRecordCreated(ctx context.Context, ev events.RecordCreated) {
	account, err := d.store.GetAccount(ctx, ev.AccountID)
	if err != nil {
		d.logger.Error("dispatch: failed to load account", "account_id", ev.AccountID, "error", err)
		return
	}
	record, err := d.store.GetBillingRecord(ctx, ev.RecordID)
	if err != nil {
		d.logger.Error("dispatch: failed to load billing record", "record_id", ev.RecordID, "error", err)
		return
	}

	paymentURL := d.issueInvoice(ctx, account, record)

	if d.emails == nil {
		return
	}
	err = d.emails.SendBillingNotice(ctx, email.BillingNoticeEmail{
		Email:        account.Email,
		CustomerName: account.Name,
		RecordNumber: record.RecordNumber,
		Description:  record.Description,
		AmountCents:  record.AmountCents,
		BillingDate:  record.BillingDate,
		DueDate:      record.DueDate,
		PaymentURL:   paymentURL,
	})
	if err != nil {
		d.logger.Error("dispatch: failed to send billing notice", "record_id", record.ID, "error", err)
		if mb := telemetry.Business; mb != nil {
			mb.NotificationsFailed.WithLabelValues("billing_notice", "email").Inc()
		}
		return
	}
	if mb := telemetry.Business; mb != nil {
		mb.NotificationsSent.WithLabelValues("billing_notice").Inc()
	}
}

// DispatchAccountLate handles a current -> late transition: email the
// customer an overdue notice.
func (d *Dispatcher) DispatchAccountLate(ctx context.Context, ev events.AccountLate) {
	if d.emails == nil {
		return
	}

	account, err := d.store.GetAccount(ctx, ev.AccountID)
	if err != nil {
		d.logger.Error("dispatch: failed to load account", "account_id", ev.AccountID, "error", err)
		return
	}

	err = d.emails.SendOverdueNotice(ctx, email.OverdueNoticeEmail{
		Email:        account.Email,
		CustomerName: account.Name,
		RecordNumber: ev.RecordNumber,
		BalanceCents: account.BillingInfo.BalanceCents,
		DueDate:      ev.DueDate,
		DaysOverdue:  ev.DaysOverdue,
	})
	if err != nil {
		d.logger.Error("dispatch: failed to send overdue notice", "account_id", account.ID, "error", err)
		if mb := telemetry.Business; mb != nil {
			mb.NotificationsFailed.WithLabelValues("overdue_notice", "email").Inc()
		}
		return
	}
	if mb := telemetry.Business; mb != nil {
		mb.NotificationsSent.WithLabelValues("overdue_notice").Inc()
	}
}

// issueInvoice runs the provider pipeline: ensure customer, create invoice,
// attach the line item, finalize, send. Returns the hosted payment URL, or
// "" when any step fails or invoicing is unconfigured.
func (d *Dispatcher) issueInvoice(ctx context.Context, account domain.Account, record domain.BillingRecord) string {
	if d.provider == nil {
		return ""
	}

	customer, err := d.ensureCustomer(ctx, account)
	if err != nil {
		d.logger.Error("dispatch: failed to ensure provider customer",
			"account_id", account.ID, "error", err)
		d.invoiceFailed()
		return ""
	}

	description := record.Description
	if description == "" {
		description = "Billing " + record.RecordNumber
	}

	start := time.Now()
	inv, err := d.provider.CreateInvoice(ctx, billing.CreateInvoiceParams{
		CustomerID:  customer.ID,
		Currency:    "usd",
		Description: description,
		DueDate:     record.DueDate,
		Metadata: map[string]string{
			"account_id":    account.ID.String(),
			"record_id":     record.ID.String(),
			"record_number": record.RecordNumber,
		},
		IdempotencyKey: record.ID.String(),
	})
	observeProvider("create_invoice", start)
	if err != nil {
		d.logger.Error("dispatch: failed to create invoice", "record_id", record.ID, "error", err)
		d.invoiceFailed()
		return ""
	}

	start = time.Now()
	err = d.provider.AddInvoiceItem(ctx, billing.AddInvoiceItemParams{
		CustomerID:      customer.ID,
		InvoiceID:       inv.ID,
		Description:     description,
		Quantity:        1,
		UnitAmountCents: record.AmountCents,
		Currency:        "usd",
	})
	observeProvider("add_invoice_item", start)
	if err != nil {
		d.logger.Error("dispatch: failed to add invoice item", "invoice_id", inv.ID, "error", err)
		d.invoiceFailed()
		return ""
	}

	start = time.Now()
	finalized, err := d.provider.FinalizeInvoice(ctx, inv.ID)
	observeProvider("finalize_invoice", start)
	if err != nil {
		d.logger.Error("dispatch: failed to finalize invoice", "invoice_id", inv.ID, "error", err)
		d.invoiceFailed()
		return ""
	}

	if err := d.provider.SendInvoice(ctx, finalized.ID); err != nil {
		// The hosted link still works; provider delivery is a bonus.
		d.logger.Warn("dispatch: failed to send invoice", "invoice_id", finalized.ID, "error", err)
	}

	if mb := telemetry.Business; mb != nil {
		mb.InvoicesIssued.Inc()
	}
	return finalized.HostedInvoiceURL
}

func (d *Dispatcher) ensureCustomer(ctx context.Context, account domain.Account) (*billing.Customer, error) {
	customer, err := d.provider.GetCustomerByEmail(ctx, account.Email)
	if err != nil && !errors.Is(err, billing.ErrNotConfigured) {
		return nil, err
	}
	if customer != nil {
		return customer, nil
	}
	return d.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
		Email: account.Email,
		Name:  account.Name,
		Metadata: map[string]string{
			"account_id":     account.ID.String(),
			"account_number": account.AccountNumber,
		},
	})
}

func (d *Dispatcher) invoiceFailed() {
	if mb := telemetry.Business; mb != nil {
		mb.NotificationsFailed.WithLabelValues("billing_notice", "invoice").Inc()
	}
}

func observeProvider(operation string, start time.Time) {
	if mb := telemetry.Business; mb != nil {
		mb.ProviderAPILatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
