package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/email"
	"github.com/dukerupert/tally/internal/events"
	"github.com/dukerupert/tally/internal/repository"
)

// fakeSender captures sent emails.
type fakeSender struct {
	sent []*email.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, e *email.Email) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, e)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func seedDispatchState(t *testing.T, store *fakeStore) (domain.Account, domain.BillingRecord) {
	t.Helper()
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, repository.CreateAccountParams{
		ID:                uuid.New(),
		AccountNumber:     "ACC-000001",
		Email:             "casey@example.com",
		Name:              "Casey Morgan",
		BillingDayOfMonth: 1,
		Cadence:           "monthly",
		NextBillingDate:   time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		GracePeriodDays:   5,
		Standing:          domain.StandingCurrent,
	})
	require.NoError(t, err)

	record, err := store.CreateBillingRecord(ctx, repository.CreateBillingRecordParams{
		ID:           uuid.New(),
		RecordNumber: "BILL-000001",
		AccountID:    account.ID,
		AmountCents:  7500,
		BillingDate:  time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2024, time.April, 14, 0, 0, 0, 0, time.UTC),
		Status:       domain.RecordPending,
		Description:  "March service",
	})
	require.NoError(t, err)
	return account, record
}

func newEmailService(t *testing.T, sender email.Sender) *email.Service {
	t.Helper()
	svc, err := email.NewService(sender, "billing@example.com", "Tally Billing")
	require.NoError(t, err)
	return svc
}

func TestDispatchRecordCreated(t *testing.T) {
	store := newFakeStore()
	account, record := seedDispatchState(t, store)

	provider := billing.NewMockProvider()
	sender := &fakeSender{}
	d := NewDispatcher(store, provider, newEmailService(t, sender), testLogger())

	d.DispatchRecordCreated(context.Background(), events.RecordCreated{
		AccountID:    account.ID,
		RecordID:     record.ID,
		RecordNumber: record.RecordNumber,
		AmountCents:  record.AmountCents,
		OccurredAt:   time.Now(),
	})

	// Invoice pipeline ran end to end.
	assert.Contains(t, provider.CallLog, "GetCustomerByEmail(casey@example.com)")
	assert.Contains(t, provider.CallLog, "CreateCustomer(casey@example.com)")
	require.Len(t, provider.Invoices, 1)
	for id, inv := range provider.Invoices {
		assert.Equal(t, "open", inv.Status)
		assert.Equal(t, int64(7500), inv.AmountDueCents)
		assert.Contains(t, provider.CallLog, "SendInvoice("+id+")")
	}

	// The email carries the hosted payment link.
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"casey@example.com"}, msg.To)
	assert.Equal(t, "New Charge - BILL-000001", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "$75.00")
	assert.Contains(t, msg.HTMLBody, "https://pay.example.com/")
	assert.Contains(t, msg.TextBody, "BILL-000001")
}

func TestDispatchRecordCreatedReusesExistingCustomer(t *testing.T) {
	store := newFakeStore()
	account, record := seedDispatchState(t, store)

	provider := billing.NewMockProvider()
	provider.Customers["cus_existing"] = &billing.Customer{
		ID: "cus_existing", Email: "casey@example.com", Name: "Casey Morgan",
	}
	sender := &fakeSender{}
	d := NewDispatcher(store, provider, newEmailService(t, sender), testLogger())

	d.DispatchRecordCreated(context.Background(), events.RecordCreated{
		AccountID: account.ID, RecordID: record.ID,
	})

	for _, call := range provider.CallLog {
		assert.False(t, strings.HasPrefix(call, "CreateCustomer("),
			"existing customer must not be recreated")
	}
	require.Len(t, sender.sent, 1)
}

func TestDispatchProviderFailureStillSendsEmail(t *testing.T) {
	store := newFakeStore()
	account, record := seedDispatchState(t, store)

	provider := billing.NewMockProvider()
	provider.CreateInvoiceFunc = func(context.Context, billing.CreateInvoiceParams) (*billing.Invoice, error) {
		return nil, errors.New("stripe is down")
	}
	sender := &fakeSender{}
	d := NewDispatcher(store, provider, newEmailService(t, sender), testLogger())

	d.DispatchRecordCreated(context.Background(), events.RecordCreated{
		AccountID: account.ID, RecordID: record.ID,
	})

	require.Len(t, sender.sent, 1, "invoice failure never blocks the email")
	assert.NotContains(t, sender.sent[0].HTMLBody, "pay.example.com", "no payment link without an invoice")
}

func TestDispatchWithoutProviderOrEmail(t *testing.T) {
	store := newFakeStore()
	account, record := seedDispatchState(t, store)

	// Fully unconfigured dispatcher: a valid state, not an error.
	d := NewDispatcher(store, nil, nil, testLogger())
	d.DispatchRecordCreated(context.Background(), events.RecordCreated{
		AccountID: account.ID, RecordID: record.ID,
	})
	d.DispatchAccountLate(context.Background(), events.AccountLate{AccountID: account.ID})
}

func TestDispatchEmailFailureIsAbsorbed(t *testing.T) {
	store := newFakeStore()
	account, record := seedDispatchState(t, store)

	sender := &fakeSender{err: errors.New("smtp timeout")}
	d := NewDispatcher(store, billing.NewMockProvider(), newEmailService(t, sender), testLogger())

	// Must not panic or propagate; the reconciliation already succeeded.
	d.DispatchRecordCreated(context.Background(), events.RecordCreated{
		AccountID: account.ID, RecordID: record.ID,
	})
}

func TestDispatchAccountLate(t *testing.T) {
	store := newFakeStore()
	account, record := seedDispatchState(t, store)

	// Reflect an overdue balance on the account.
	a := store.accounts[account.ID]
	a.BillingInfo.BalanceCents = 7500
	store.accounts[account.ID] = a

	sender := &fakeSender{}
	d := NewDispatcher(store, nil, newEmailService(t, sender), testLogger())

	d.DispatchAccountLate(context.Background(), events.AccountLate{
		AccountID:    account.ID,
		RecordID:     record.ID,
		RecordNumber: record.RecordNumber,
		DueDate:      record.DueDate,
		DaysOverdue:  7,
	})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Payment Overdue - BILL-000001", msg.Subject)
	assert.Contains(t, msg.TextBody, "7 day(s) overdue")
	assert.Contains(t, msg.HTMLBody, "$75.00")
}
