// Package events carries the post-commit notifications published by the
// reconciler. Publishing happens strictly after the reconciliation
// transaction commits, so consumers never observe effects of a rolled-back
// mutation; a lost event costs a notification, never ledger correctness.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects.
const (
	SubjectRecordCreated = "billing.record.created"
	SubjectAccountLate   = "billing.account.late"
)

// RecordCreated is published after a billing-record create commits.
// The worker turns it into an external invoice plus a billing notice email.
type RecordCreated struct {
	AccountID    uuid.UUID `json:"account_id"`
	RecordID     uuid.UUID `json:"record_id"`
	RecordNumber string    `json:"record_number"`
	AmountCents  int64     `json:"amount_cents"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// AccountLate is published when the overdue sweep flips an account from
// current to late.
type AccountLate struct {
	AccountID    uuid.UUID `json:"account_id"`
	RecordID     uuid.UUID `json:"record_id"`
	RecordNumber string    `json:"record_number"`
	BalanceCents int64     `json:"balance_cents"`
	DueDate      time.Time `json:"due_date"`
	DaysOverdue  int       `json:"days_overdue"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Handler consumes a raw event payload.
type Handler func(ctx context.Context, subject string, data []byte)

// Publisher publishes serialized events to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

// Bus is a Publisher that local consumers can also subscribe to.
type Bus interface {
	Publisher
	Subscribe(subject string, h Handler) error
}
