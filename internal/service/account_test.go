package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/tally/internal/domain"
)

func newTestAccountService(lateFeeCents int64, at time.Time) (*fakeStore, domain.AccountService, *clock) {
	clk := &clock{t: at}
	store := newFakeStore()
	svc := NewAccountService(store, testLogger(), lateFeeCents)
	svc.(*accountService).now = clk.Now
	return store, svc, clk
}

func TestCreateAccount(t *testing.T) {
	_, svc, _ := newTestAccountService(500, date(2024, time.March, 15))

	account, err := svc.CreateAccount(context.Background(), domain.CreateAccountParams{
		Email:             "Billie@Example.com",
		Name:              "Billie Okafor",
		BillingDayOfMonth: 1,
		Cadence:           "monthly",
	})
	require.NoError(t, err)

	assert.Equal(t, "ACC-000001", account.AccountNumber)
	assert.Equal(t, "billie@example.com", account.Email, "email is normalized")
	assert.Equal(t, date(2024, time.April, 1), account.BillingInfo.NextBillingDate)
	assert.Equal(t, int64(0), account.BillingInfo.BalanceCents)
	assert.Equal(t, domain.StandingCurrent, account.PaymentInfo.Standing)
	assert.Equal(t, defaultGracePeriodDays, account.PaymentInfo.GracePeriodDays)
	assert.Equal(t, int64(1), account.Version)

	second, err := svc.CreateAccount(context.Background(), domain.CreateAccountParams{
		Email:             "sam@example.com",
		Name:              "Sam Lee",
		BillingDayOfMonth: 15,
		Cadence:           "monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACC-000002", second.AccountNumber, "numbers are sequential")
}

func TestCreateAccountValidation(t *testing.T) {
	_, svc, _ := newTestAccountService(0, date(2024, time.March, 15))

	tests := []struct {
		name    string
		params  domain.CreateAccountParams
		wantErr error
	}{
		{
			name:    "missing email",
			params:  domain.CreateAccountParams{Name: "N", BillingDayOfMonth: 1, Cadence: "monthly"},
			wantErr: ErrMissingEmail,
		},
		{
			name:    "missing name",
			params:  domain.CreateAccountParams{Email: "a@b.com", BillingDayOfMonth: 1, Cadence: "monthly"},
			wantErr: ErrMissingName,
		},
		{
			name:    "bad cadence",
			params:  domain.CreateAccountParams{Email: "a@b.com", Name: "N", BillingDayOfMonth: 1, Cadence: "fortnightly"},
			wantErr: domain.ErrInvalidCadence,
		},
		{
			name:    "billing day out of range",
			params:  domain.CreateAccountParams{Email: "a@b.com", Name: "N", BillingDayOfMonth: 32, Cadence: "monthly"},
			wantErr: domain.ErrInvalidBillingDay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAccount(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	_, svc, _ := newTestAccountService(0, date(2024, time.March, 15))

	params := domain.CreateAccountParams{
		Email: "dup@example.com", Name: "First", BillingDayOfMonth: 1, Cadence: "monthly",
	}
	_, err := svc.CreateAccount(context.Background(), params)
	require.NoError(t, err)

	params.Name = "Second"
	_, err = svc.CreateAccount(context.Background(), params)
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestGetAccountByEmail(t *testing.T) {
	_, svc, _ := newTestAccountService(0, date(2024, time.March, 15))

	created, err := svc.CreateAccount(context.Background(), domain.CreateAccountParams{
		Email: "billie@example.com", Name: "Billie Okafor", BillingDayOfMonth: 1, Cadence: "monthly",
	})
	require.NoError(t, err)

	found, err := svc.GetAccountByEmail(context.Background(), "  Billie@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID, "lookup normalizes the email")

	_, err = svc.GetAccountByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.GetAccountByEmail(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestListAccounts(t *testing.T) {
	_, svc, _ := newTestAccountService(0, date(2024, time.March, 15))
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := svc.CreateAccount(ctx, domain.CreateAccountParams{
			Email: email, Name: "N", BillingDayOfMonth: 1, Cadence: "monthly",
		})
		require.NoError(t, err)
	}

	accounts, err := svc.ListAccounts(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "ACC-000001", accounts[0].AccountNumber, "ordered by account number")
	assert.Equal(t, "ACC-000002", accounts[1].AccountNumber)

	accounts, err = svc.ListAccounts(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "ACC-000003", accounts[0].AccountNumber)

	accounts, err = svc.ListAccounts(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, accounts, 3, "non-positive limit falls back to the default page size")
}

func TestUpdateBillingInfo(t *testing.T) {
	_, svc, _ := newTestAccountService(0, date(2024, time.March, 15))

	account, err := svc.CreateAccount(context.Background(), domain.CreateAccountParams{
		Email: "a@b.com", Name: "N", BillingDayOfMonth: 1, Cadence: "monthly",
	})
	require.NoError(t, err)
	require.Equal(t, date(2024, time.April, 1), account.BillingInfo.NextBillingDate)

	day := 20
	updated, err := svc.UpdateBillingInfo(context.Background(), domain.UpdateBillingInfoParams{
		AccountID:         account.ID,
		BillingDayOfMonth: &day,
	})
	require.NoError(t, err)

	assert.Equal(t, 20, updated.BillingInfo.BillingDayOfMonth)
	assert.Equal(t, date(2024, time.March, 20), updated.BillingInfo.NextBillingDate,
		"next billing date re-derived from the new anchor day")
	assert.Equal(t, account.Version+1, updated.Version)

	cadence := "weekly"
	updated, err = svc.UpdateBillingInfo(context.Background(), domain.UpdateBillingInfoParams{
		AccountID: account.ID,
		Cadence:   &cadence,
	})
	require.NoError(t, err)
	assert.Equal(t, "weekly", updated.BillingInfo.Cadence)
	assert.Equal(t, date(2024, time.March, 22), updated.BillingInfo.NextBillingDate,
		"day-anchored cadence counts from today without a service start date")
}

func TestUpdateBillingInfoValidation(t *testing.T) {
	_, svc, _ := newTestAccountService(0, date(2024, time.March, 15))

	account, err := svc.CreateAccount(context.Background(), domain.CreateAccountParams{
		Email: "a@b.com", Name: "N", BillingDayOfMonth: 1, Cadence: "monthly",
	})
	require.NoError(t, err)

	bad := "hourly"
	_, err = svc.UpdateBillingInfo(context.Background(), domain.UpdateBillingInfoParams{
		AccountID: account.ID, Cadence: &bad,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCadence)

	day := 0
	_, err = svc.UpdateBillingInfo(context.Background(), domain.UpdateBillingInfoParams{
		AccountID: account.ID, BillingDayOfMonth: &day,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingDay)
}

func TestRefreshStanding(t *testing.T) {
	store, svc, clk := newTestAccountService(750, date(2024, time.March, 15))
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, domain.CreateAccountParams{
		Email: "a@b.com", Name: "N", BillingDayOfMonth: 1, Cadence: "monthly", GracePeriodDays: 5,
	})
	require.NoError(t, err)

	// Give the account an outstanding balance without touching the service
	// layer: simulate a reconciled charge.
	a := store.accounts[account.ID]
	a.BillingInfo.BalanceCents = 7500
	store.accounts[account.ID] = a

	// Inside grace: still current, no fee.
	clk.t = date(2024, time.April, 4)
	refreshed, err := svc.RefreshStanding(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingCurrent, refreshed.PaymentInfo.Standing)
	assert.Equal(t, 0, refreshed.PaymentInfo.LatePaymentCount)

	// Past next billing date (April 1) + grace (5): late, fee assessed once.
	clk.t = date(2024, time.April, 10)
	refreshed, err = svc.RefreshStanding(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingLate, refreshed.PaymentInfo.Standing)
	assert.Equal(t, 1, refreshed.PaymentInfo.LatePaymentCount)
	assert.Equal(t, int64(750), refreshed.PaymentInfo.TotalLateFeesCents)
	assert.Equal(t, int64(7500), refreshed.BillingInfo.BalanceCents, "late fee never lands in the balance")

	// Refreshing again while already late changes nothing.
	refreshed, err = svc.RefreshStanding(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.PaymentInfo.LatePaymentCount)
	assert.Equal(t, int64(750), refreshed.PaymentInfo.TotalLateFeesCents)

	// Payment clears the balance elsewhere; standing recovers.
	a = store.accounts[account.ID]
	a.BillingInfo.BalanceCents = 0
	store.accounts[account.ID] = a

	refreshed, err = svc.RefreshStanding(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingCurrent, refreshed.PaymentInfo.Standing)
}
