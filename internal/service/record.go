package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tally/internal/cycle"
	"github.com/dukerupert/tally/internal/domain"
)

// validateMutation rejects malformed mutations before any state is touched.
func validateMutation(m domain.RecordMutation) error {
	if m.MutationKey == "" {
		return ErrMissingMutationKey
	}

	switch m.Op {
	case domain.OpCreate:
		if m.AccountID == uuid.Nil {
			return domain.ErrMissingAccountRef
		}
		if m.AmountCents == nil {
			return ErrMissingAmount
		}
		if m.BillingDate == nil {
			return domain.ErrMissingBillingDate
		}
	case domain.OpUpdate, domain.OpDelete:
		if m.RecordID == uuid.Nil {
			return ErrMissingRecordID
		}
	default:
		return domain.ErrUnknownOperation
	}

	if m.AmountCents != nil && *m.AmountCents < 0 {
		return domain.ErrNegativeAmount
	}
	if m.PaidCents != nil && *m.PaidCents < 0 {
		return ErrNegativePaidAmount
	}
	if m.Status != nil && !domain.ValidRecordStatus(*m.Status) {
		return domain.ErrInvalidRecordStatus
	}
	return nil
}

// newRecordFromMutation builds the initial state of a created record.
// The due date defaults to billing date + 30 days, and a record born already
// past due + grace starts out overdue rather than pending.
func newRecordFromMutation(id uuid.UUID, m domain.RecordMutation, graceDays int, now time.Time) domain.BillingRecord {
	r := domain.BillingRecord{
		ID:          id,
		AccountID:   m.AccountID,
		AmountCents: *m.AmountCents,
		BillingDate: cycle.Day(*m.BillingDate),
		Status:      domain.RecordPending,
	}

	if m.DueDate != nil {
		r.DueDate = cycle.Day(*m.DueDate)
	} else {
		r.DueDate = cycle.DueDate(r.BillingDate)
	}
	if m.Status != nil {
		r.Status = *m.Status
	}
	if m.Status == nil && cycle.IsOverdue(r.DueDate, graceDays, now) {
		r.Status = domain.RecordOverdue
	}

	if m.Description != nil {
		r.Description = *m.Description
	}
	if m.PeriodStart != nil {
		t := cycle.Day(*m.PeriodStart)
		r.PeriodStart = &t
	}
	if m.PeriodEnd != nil {
		t := cycle.Day(*m.PeriodEnd)
		r.PeriodEnd = &t
	}

	if r.Status == domain.RecordPaid {
		r.PaidAmountCents = settlementAmount(m.PaidCents, r.AmountCents)
		d := paidDay(m.PaidDate, now)
		r.PaidDate = &d
	}
	return r
}

// applyPatch overlays the non-nil fields of an update mutation onto the
// previous record state. Nil fields are left unchanged.
func applyPatch(prev domain.BillingRecord, m domain.RecordMutation) domain.BillingRecord {
	next := prev

	if m.AmountCents != nil {
		next.AmountCents = *m.AmountCents
	}
	if m.BillingDate != nil {
		next.BillingDate = cycle.Day(*m.BillingDate)
	}
	if m.DueDate != nil {
		next.DueDate = cycle.Day(*m.DueDate)
	}
	if m.Status != nil {
		next.Status = *m.Status
	}
	if m.PaidCents != nil {
		next.PaidAmountCents = *m.PaidCents
	}
	if m.PaidDate != nil {
		d := cycle.Day(*m.PaidDate)
		next.PaidDate = &d
	}
	if m.Description != nil {
		next.Description = *m.Description
	}
	if m.PeriodStart != nil {
		t := cycle.Day(*m.PeriodStart)
		next.PeriodStart = &t
	}
	if m.PeriodEnd != nil {
		t := cycle.Day(*m.PeriodEnd)
		next.PeriodEnd = &t
	}
	return next
}

// settlementAmount resolves how much a paid record settles: the explicit paid
// amount when given, otherwise the full record amount.
func settlementAmount(paidCents *int64, amountCents int64) int64 {
	if paidCents != nil {
		return *paidCents
	}
	return amountCents
}

func paidDay(paidDate *time.Time, now time.Time) time.Time {
	if paidDate != nil {
		return cycle.Day(*paidDate)
	}
	return cycle.Day(now)
}

// settlementDelta returns the balance adjustment owed to a status change
// between two record states, independent of any amount change. Positive means
// the balance grows (settlement removed), negative means it shrinks
// (settlement applied). The four cases:
//
//	pending -> paid    -newPaid   (payment lands)
//	paid    -> pending +prevPaid  (payment backed out)
//	paid    -> paid    prevPaid - newPaid (settlement corrected)
//	neither paid       0
//
// This one table resolves the paid -> unpaid -> paid churn correctly: each
// settlement is applied exactly once and backed out exactly once.
func settlementDelta(prevStatus domain.RecordStatus, prevPaidCents int64, newStatus domain.RecordStatus, newPaidCents int64) int64 {
	switch {
	case !prevStatus.Settled() && newStatus.Settled():
		return -newPaidCents
	case prevStatus.Settled() && !newStatus.Settled():
		return +prevPaidCents
	case prevStatus.Settled() && newStatus.Settled():
		return prevPaidCents - newPaidCents
	default:
		return 0
	}
}
