package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/tally/internal/domain"
)

const accountColumns = `
	id, account_number, email, name,
	billing_day_of_month, cadence, next_billing_date, balance_cents, service_start_date,
	payment_method, last_payment_date, last_payment_cents, standing,
	grace_period_days, late_payment_count, total_late_fees_cents,
	version, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	var cadence, standing string
	var createdAt, updatedAt pgtype.Timestamptz
	var nextBilling, serviceStart, lastPayment pgtype.Date

	err := row.Scan(
		&a.ID, &a.AccountNumber, &a.Email, &a.Name,
		&a.BillingInfo.BillingDayOfMonth, &cadence, &nextBilling, &a.BillingInfo.BalanceCents, &serviceStart,
		&a.PaymentInfo.PaymentMethod, &lastPayment, &a.PaymentInfo.LastPaymentAmountCents, &standing,
		&a.PaymentInfo.GracePeriodDays, &a.PaymentInfo.LatePaymentCount, &a.PaymentInfo.TotalLateFeesCents,
		&a.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}

	a.BillingInfo.Cadence = cadence
	a.BillingInfo.NextBillingDate = nextBilling.Time.UTC()
	if serviceStart.Valid {
		t := serviceStart.Time.UTC()
		a.BillingInfo.ServiceStartDate = &t
	}
	a.PaymentInfo.Standing = domain.PaymentStanding(standing)
	if lastPayment.Valid {
		t := lastPayment.Time.UTC()
		a.PaymentInfo.LastPaymentDate = &t
	}
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return a, nil
}

func dateOrNull(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

// CreateAccountParams contains parameters for inserting an account.
type CreateAccountParams struct {
	ID                uuid.UUID
	AccountNumber     string
	Email             string
	Name              string
	BillingDayOfMonth int
	Cadence           string
	NextBillingDate   time.Time
	ServiceStartDate  *time.Time
	PaymentMethod     string
	GracePeriodDays   int
	Standing          domain.PaymentStanding
}

// CreateAccount inserts a new account with a zero balance.
func (q *Queries) CreateAccount(ctx context.Context, params CreateAccountParams) (domain.Account, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO accounts (
			id, account_number, email, name,
			billing_day_of_month, cadence, next_billing_date, balance_cents, service_start_date,
			payment_method, last_payment_date, last_payment_cents, standing,
			grace_period_days, late_payment_count, total_late_fees_cents, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, NULL, 0, $10, $11, 0, 0, 1)
		RETURNING`+accountColumns,
		params.ID, params.AccountNumber, params.Email, params.Name,
		params.BillingDayOfMonth, params.Cadence, params.NextBillingDate, dateOrNull(params.ServiceStartDate),
		params.PaymentMethod, string(params.Standing), params.GracePeriodDays,
	)

	a, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, ErrDuplicateKey
		}
		return domain.Account{}, fmt.Errorf("failed to insert account: %w", err)
	}
	return a, nil
}

// GetAccount retrieves an account by ID.
func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountForUpdate retrieves an account by ID with a row lock, serializing
// concurrent reconciliations against the same account.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT`+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

// GetAccountByNumber retrieves an account by its human-readable number.
func (q *Queries) GetAccountByNumber(ctx context.Context, accountNumber string) (domain.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT`+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	return scanAccount(row)
}

// GetAccountByEmail retrieves an account by email.
func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := q.db.QueryRow(ctx, `SELECT`+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// ListAccountsParams contains pagination for listing accounts.
type ListAccountsParams struct {
	Limit  int32
	Offset int32
}

// ListAccounts lists accounts ordered by account number.
func (q *Queries) ListAccounts(ctx context.Context, params ListAccountsParams) ([]domain.Account, error) {
	rows, err := q.db.Query(ctx, `
		SELECT`+accountColumns+`
		FROM accounts
		ORDER BY account_number
		LIMIT $1 OFFSET $2`,
		params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountReconciledParams carries the full post-reconciliation state of
// an account. ExpectedVersion is the version the caller read; the write only
// lands if it still matches.
type UpdateAccountReconciledParams struct {
	ID                     uuid.UUID
	BalanceCents           int64
	Standing               domain.PaymentStanding
	NextBillingDate        time.Time
	LastPaymentDate        *time.Time
	LastPaymentAmountCents int64
	LatePaymentCount       int
	TotalLateFeesCents     int64
	ExpectedVersion        int64
}

// UpdateAccountReconciled applies a reconciliation result with a
// compare-and-swap on the version column. Returns ErrVersionConflict if the
// account changed since it was read.
func (q *Queries) UpdateAccountReconciled(ctx context.Context, params UpdateAccountReconciledParams) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET
			balance_cents = $2,
			standing = $3,
			next_billing_date = $4,
			last_payment_date = $5,
			last_payment_cents = $6,
			late_payment_count = $7,
			total_late_fees_cents = $8,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $9`,
		params.ID, params.BalanceCents, string(params.Standing), params.NextBillingDate,
		dateOrNull(params.LastPaymentDate), params.LastPaymentAmountCents,
		params.LatePaymentCount, params.TotalLateFeesCents, params.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateAccountBillingInfoParams carries a direct billing-info edit.
type UpdateAccountBillingInfoParams struct {
	ID                uuid.UUID
	BillingDayOfMonth int
	Cadence           string
	NextBillingDate   time.Time
	ServiceStartDate  *time.Time
	PaymentMethod     string
	GracePeriodDays   int
	Standing          domain.PaymentStanding
	ExpectedVersion   int64
}

// UpdateAccountBillingInfo applies a direct edit to the billing group with
// the same version check as reconciled writes.
func (q *Queries) UpdateAccountBillingInfo(ctx context.Context, params UpdateAccountBillingInfoParams) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET
			billing_day_of_month = $2,
			cadence = $3,
			next_billing_date = $4,
			service_start_date = $5,
			payment_method = $6,
			grace_period_days = $7,
			standing = $8,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $9`,
		params.ID, params.BillingDayOfMonth, params.Cadence, params.NextBillingDate,
		dateOrNull(params.ServiceStartDate), params.PaymentMethod, params.GracePeriodDays,
		string(params.Standing), params.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update account billing info: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
