package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account-related domain errors.
var (
	ErrAccountNotFound   = &Error{Code: ENOTFOUND, Message: "Account not found"}
	ErrDuplicateEmail    = &Error{Code: ECONFLICT, Message: "An account with this email already exists"}
	ErrConcurrentUpdate  = &Error{Code: EUNAVAILABLE, Message: "Account was modified concurrently, retry the mutation"}
	ErrInvalidCadence    = &Error{Code: EINVALID, Message: "Unknown billing cadence"}
	ErrInvalidBillingDay = &Error{Code: EINVALID, Message: "Billing day of month must be between 1 and 31"}
)

// PaymentStanding classifies an account's payment state.
type PaymentStanding string

const (
	StandingCurrent PaymentStanding = "current"
	StandingLate    PaymentStanding = "late"
)

// BillingInfo groups the billing-cycle fields of an account.
type BillingInfo struct {
	// BillingDayOfMonth is the anchor day for monthly and longer cadences, 1-31.
	// Days past the end of a month clamp to the month's last day.
	BillingDayOfMonth int

	// Cadence is the billing frequency (weekly, biweekly, monthly, quarterly, annually).
	Cadence string

	// NextBillingDate is derived from cadence and billing day. Date precision, UTC.
	NextBillingDate time.Time

	// BalanceCents is the outstanding balance. Positive means the customer owes us.
	BalanceCents int64

	// ServiceStartDate anchors weekly/biweekly cadences. Optional.
	ServiceStartDate *time.Time
}

// PaymentInfo groups the payment-history fields of an account.
type PaymentInfo struct {
	PaymentMethod          string
	LastPaymentDate        *time.Time
	LastPaymentAmountCents int64

	// Standing is derived; current unless the balance is overdue past grace.
	Standing PaymentStanding

	// GracePeriodDays is how long past the next billing date an unpaid
	// balance is tolerated before the account is flagged late.
	GracePeriodDays int

	LatePaymentCount   int
	TotalLateFeesCents int64
}

// Account is the owning side of the billing ledger. Its balance always equals
// the net contribution of its billing records: each record adds its amount
// once and subtracts its settlement once paid.
type Account struct {
	ID            uuid.UUID
	AccountNumber string
	Email         string
	Name          string

	BillingInfo BillingInfo
	PaymentInfo PaymentInfo

	// Version guards balance updates. Every successful reconciliation
	// increments it; writers compare-and-swap against the value they read.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAccountParams contains parameters for onboarding a new account.
type CreateAccountParams struct {
	Email             string
	Name              string
	BillingDayOfMonth int
	Cadence           string
	ServiceStartDate  *time.Time
	PaymentMethod     string
	GracePeriodDays   int
}

// UpdateBillingInfoParams contains parameters for a direct billing-info edit.
// Nil fields are left unchanged.
type UpdateBillingInfoParams struct {
	AccountID         uuid.UUID
	BillingDayOfMonth *int
	Cadence           *string
	ServiceStartDate  *time.Time
	GracePeriodDays   *int
	PaymentMethod     *string
}

// AccountService manages account onboarding, direct edits, and standing refresh.
// Balance mutation is owned exclusively by the Reconciler; this service never
// touches BalanceCents outside of a reconciliation.
type AccountService interface {
	// CreateAccount onboards a new account, assigning an account number and
	// deriving the initial next billing date.
	CreateAccount(ctx context.Context, params CreateAccountParams) (*Account, error)

	// GetAccount retrieves an account by ID.
	GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error)

	// GetAccountByNumber retrieves an account by its human-readable number.
	GetAccountByNumber(ctx context.Context, accountNumber string) (*Account, error)

	// GetAccountByEmail retrieves an account by email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// ListAccounts returns a page of accounts ordered by account number.
	ListAccounts(ctx context.Context, limit, offset int32) ([]Account, error)

	// UpdateBillingInfo applies a direct edit to the billing group and
	// re-derives the next billing date and payment standing.
	UpdateBillingInfo(ctx context.Context, params UpdateBillingInfoParams) (*Account, error)

	// RefreshStanding recomputes an account's payment standing from the
	// clock. A current->late transition increments the late payment counter
	// and applies the configured late fee. Called by the overdue sweep.
	RefreshStanding(ctx context.Context, accountID uuid.UUID) (*Account, error)
}
