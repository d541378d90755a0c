package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Billing-record domain errors.
var (
	ErrRecordNotFound      = &Error{Code: ENOTFOUND, Message: "Billing record not found"}
	ErrNegativeAmount      = &Error{Code: EINVALID, Message: "Amount must be zero or greater"}
	ErrMissingBillingDate  = &Error{Code: EINVALID, Message: "Billing date is required"}
	ErrMissingAccountRef   = &Error{Code: EINVALID, Message: "Account reference is required"}
	ErrRecordCancelled     = &Error{Code: ECONFLICT, Message: "Billing record is cancelled"}
	ErrUnknownOperation    = &Error{Code: EINVALID, Message: "Unknown mutation operation"}
	ErrInvalidRecordStatus = &Error{Code: EINVALID, Message: "Unknown billing record status"}
	ErrNumberGeneration    = &Error{Code: EINTERNAL, Message: "Failed to generate record number"}
)

// RecordStatus is the lifecycle state of a billing record.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordPaid      RecordStatus = "paid"
	RecordOverdue   RecordStatus = "overdue"
	RecordCancelled RecordStatus = "cancelled"
)

// ValidRecordStatus reports whether s is a known record status.
func ValidRecordStatus(s RecordStatus) bool {
	switch s {
	case RecordPending, RecordPaid, RecordOverdue, RecordCancelled:
		return true
	}
	return false
}

// Settled reports whether the status carries a settlement contribution.
func (s RecordStatus) Settled() bool { return s == RecordPaid }

// BillingRecord is a single charge against an account.
type BillingRecord struct {
	ID           uuid.UUID
	RecordNumber string
	AccountID    uuid.UUID

	AmountCents int64
	BillingDate time.Time
	DueDate     time.Time
	Status      RecordStatus

	PaidDate        *time.Time
	PaidAmountCents int64

	Description string
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MutationOp identifies the kind of billing-record mutation.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// RecordMutation is the inbound request to create, update, or delete a
// billing record. Nil pointer fields on update mean "leave unchanged".
type RecordMutation struct {
	Op        MutationOp
	AccountID uuid.UUID

	// RecordID identifies the target for update/delete.
	RecordID uuid.UUID

	// MutationKey is the caller's idempotency token. Reconciling the same
	// key twice applies the delta exactly once.
	MutationKey string

	AmountCents *int64
	BillingDate *time.Time
	DueDate     *time.Time
	Status      *RecordStatus
	PaidDate    *time.Time
	PaidCents   *int64
	Description *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// RecordService reconciles billing-record mutations against their owning
// account. Reconcile is the single entry point for all three operations:
// the record write and the account balance update commit atomically.
type RecordService interface {
	// Reconcile applies a mutation and returns the persisted record
	// (nil for deletes). On success the owning account's balance, payment
	// info, and standing reflect the mutation's full financial effect.
	Reconcile(ctx context.Context, mutation RecordMutation) (*BillingRecord, error)

	// GetRecord retrieves a billing record by ID. A pending record whose
	// due date has elapsed past grace is reported as overdue.
	GetRecord(ctx context.Context, recordID uuid.UUID) (*BillingRecord, error)

	// ListRecordsForAccount lists an account's billing records, newest first.
	ListRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]BillingRecord, error)

	// MarkRecordsOverdue transitions pending records past due+grace to
	// overdue and refreshes the owning accounts' standing. Returns the
	// number of records transitioned. Called by the nightly sweep.
	MarkRecordsOverdue(ctx context.Context) (int, error)
}

// CancellationPolicy decides what happens to a record's balance contribution
// when it is cancelled. The upstream product behavior is ambiguous, so both
// are supported and the choice is configuration.
type CancellationPolicy string

const (
	// CancelReverse reverses the record's outstanding contribution when it
	// is cancelled (and restores any settlement that had been applied).
	CancelReverse CancellationPolicy = "reverse"

	// CancelRetain leaves the balance untouched at cancellation time.
	CancelRetain CancellationPolicy = "retain"
)
