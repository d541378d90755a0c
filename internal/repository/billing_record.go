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

const recordColumns = `
	id, record_number, account_id, amount_cents, billing_date, due_date, status,
	paid_date, paid_cents, description, period_start, period_end, created_at, updated_at`

func scanRecord(row pgx.Row) (domain.BillingRecord, error) {
	var r domain.BillingRecord
	var status string
	var billingDate, dueDate, paidDate, periodStart, periodEnd pgtype.Date
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&r.ID, &r.RecordNumber, &r.AccountID, &r.AmountCents, &billingDate, &dueDate, &status,
		&paidDate, &r.PaidAmountCents, &r.Description, &periodStart, &periodEnd, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.BillingRecord{}, err
	}

	r.BillingDate = billingDate.Time.UTC()
	r.DueDate = dueDate.Time.UTC()
	r.Status = domain.RecordStatus(status)
	if paidDate.Valid {
		t := paidDate.Time.UTC()
		r.PaidDate = &t
	}
	if periodStart.Valid {
		t := periodStart.Time.UTC()
		r.PeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		r.PeriodEnd = &t
	}
	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time
	return r, nil
}

// CreateBillingRecordParams contains parameters for inserting a billing record.
type CreateBillingRecordParams struct {
	ID           uuid.UUID
	RecordNumber string
	AccountID    uuid.UUID
	AmountCents  int64
	BillingDate  time.Time
	DueDate      time.Time
	Status       domain.RecordStatus
	PaidDate     *time.Time
	PaidCents    int64
	Description  string
	PeriodStart  *time.Time
	PeriodEnd    *time.Time
}

// CreateBillingRecord inserts a billing record.
func (q *Queries) CreateBillingRecord(ctx context.Context, params CreateBillingRecordParams) (domain.BillingRecord, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO billing_records (
			id, record_number, account_id, amount_cents, billing_date, due_date, status,
			paid_date, paid_cents, description, period_start, period_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING`+recordColumns,
		params.ID, params.RecordNumber, params.AccountID, params.AmountCents,
		params.BillingDate, params.DueDate, string(params.Status),
		dateOrNull(params.PaidDate), params.PaidCents, params.Description,
		dateOrNull(params.PeriodStart), dateOrNull(params.PeriodEnd),
	)

	r, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.BillingRecord{}, ErrDuplicateKey
		}
		return domain.BillingRecord{}, fmt.Errorf("failed to insert billing record: %w", err)
	}
	return r, nil
}

// GetBillingRecord retrieves a billing record by ID.
func (q *Queries) GetBillingRecord(ctx context.Context, id uuid.UUID) (domain.BillingRecord, error) {
	row := q.db.QueryRow(ctx, `SELECT`+recordColumns+` FROM billing_records WHERE id = $1`, id)
	return scanRecord(row)
}

// GetBillingRecordForUpdate retrieves a billing record by ID with a row lock.
func (q *Queries) GetBillingRecordForUpdate(ctx context.Context, id uuid.UUID) (domain.BillingRecord, error) {
	row := q.db.QueryRow(ctx, `SELECT`+recordColumns+` FROM billing_records WHERE id = $1 FOR UPDATE`, id)
	return scanRecord(row)
}

// ListBillingRecordsForAccountParams contains parameters for listing records.
type ListBillingRecordsForAccountParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

// ListBillingRecordsForAccount lists an account's records, newest first.
func (q *Queries) ListBillingRecordsForAccount(ctx context.Context, params ListBillingRecordsForAccountParams) ([]domain.BillingRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT`+recordColumns+`
		FROM billing_records
		WHERE account_id = $1
		ORDER BY billing_date DESC, record_number DESC
		LIMIT $2 OFFSET $3`,
		params.AccountID, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing records: %w", err)
	}
	defer rows.Close()

	var records []domain.BillingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateBillingRecordParams carries the full new state of a record.
type UpdateBillingRecordParams struct {
	ID          uuid.UUID
	AmountCents int64
	BillingDate time.Time
	DueDate     time.Time
	Status      domain.RecordStatus
	PaidDate    *time.Time
	PaidCents   int64
	Description string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// UpdateBillingRecord rewrites a record's mutable fields.
func (q *Queries) UpdateBillingRecord(ctx context.Context, params UpdateBillingRecordParams) (domain.BillingRecord, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE billing_records SET
			amount_cents = $2,
			billing_date = $3,
			due_date = $4,
			status = $5,
			paid_date = $6,
			paid_cents = $7,
			description = $8,
			period_start = $9,
			period_end = $10,
			updated_at = now()
		WHERE id = $1
		RETURNING`+recordColumns,
		params.ID, params.AmountCents, params.BillingDate, params.DueDate, string(params.Status),
		dateOrNull(params.PaidDate), params.PaidCents, params.Description,
		dateOrNull(params.PeriodStart), dateOrNull(params.PeriodEnd),
	)
	return scanRecord(row)
}

// UpdateBillingRecordStatusParams contains a bare status transition.
type UpdateBillingRecordStatusParams struct {
	ID     uuid.UUID
	Status domain.RecordStatus
}

// UpdateBillingRecordStatus transitions a record's status without touching
// its financial fields. Used by the overdue sweep.
func (q *Queries) UpdateBillingRecordStatus(ctx context.Context, params UpdateBillingRecordStatusParams) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE billing_records SET status = $2, updated_at = now() WHERE id = $1`,
		params.ID, string(params.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBillingRecord removes a record.
func (q *Queries) DeleteBillingRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM billing_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete billing record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOverdueCandidates returns pending records whose due date plus the
// owning account's grace period has elapsed as of the given day.
func (q *Queries) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]domain.BillingRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT br.id, br.record_number, br.account_id, br.amount_cents, br.billing_date,
		       br.due_date, br.status, br.paid_date, br.paid_cents, br.description,
		       br.period_start, br.period_end, br.created_at, br.updated_at
		FROM billing_records br
		JOIN accounts a ON a.id = br.account_id
		WHERE br.status = 'pending'
		  AND br.due_date + make_interval(days => a.grace_period_days) < $1::date
		ORDER BY br.due_date`,
		asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	defer rows.Close()

	var records []domain.BillingRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SumRecordContributions independently recomputes what an account's balance
// should be from its records: each record contributes its amount once and
// subtracts its settlement once paid. Used for drift audits and tests.
func (q *Queries) SumRecordContributions(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var sum int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents) - SUM(CASE WHEN status = 'paid' THEN paid_cents ELSE 0 END), 0)
		FROM billing_records
		WHERE account_id = $1 AND status <> 'cancelled'`,
		accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum record contributions: %w", err)
	}
	return sum, nil
}
