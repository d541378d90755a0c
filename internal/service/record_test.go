package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/tally/internal/domain"
)

func TestSettlementDelta(t *testing.T) {
	tests := []struct {
		name       string
		prevStatus domain.RecordStatus
		prevPaid   int64
		newStatus  domain.RecordStatus
		newPaid    int64
		want       int64
	}{
		{"pending to paid applies settlement", domain.RecordPending, 0, domain.RecordPaid, 7500, -7500},
		{"overdue to paid applies settlement", domain.RecordOverdue, 0, domain.RecordPaid, 3000, -3000},
		{"paid to pending backs settlement out", domain.RecordPaid, 7500, domain.RecordPending, 0, 7500},
		{"paid to overdue backs settlement out", domain.RecordPaid, 2000, domain.RecordOverdue, 0, 2000},
		{"paid to paid corrects the difference", domain.RecordPaid, 7500, domain.RecordPaid, 5000, 2500},
		{"paid to paid upward correction", domain.RecordPaid, 5000, domain.RecordPaid, 7500, -2500},
		{"paid to paid unchanged", domain.RecordPaid, 7500, domain.RecordPaid, 7500, 0},
		{"pending to pending no settlement", domain.RecordPending, 0, domain.RecordPending, 0, 0},
		{"pending to overdue no settlement", domain.RecordPending, 0, domain.RecordOverdue, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := settlementDelta(tt.prevStatus, tt.prevPaid, tt.newStatus, tt.newPaid)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettlementDeltaChurnNetsOut(t *testing.T) {
	// paid(75) -> pending -> paid(75) must sum to the single application.
	total := settlementDelta(domain.RecordPending, 0, domain.RecordPaid, 7500) +
		settlementDelta(domain.RecordPaid, 7500, domain.RecordPending, 0) +
		settlementDelta(domain.RecordPending, 0, domain.RecordPaid, 7500)
	assert.Equal(t, int64(-7500), total)
}

func TestNewRecordFromMutation(t *testing.T) {
	accountID := uuid.New()
	now := time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		m := domain.RecordMutation{
			Op:          domain.OpCreate,
			AccountID:   accountID,
			MutationKey: "k",
			AmountCents: i64(7500),
			BillingDate: tp(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)),
		}
		r := newRecordFromMutation(uuid.New(), m, 5, now)

		assert.Equal(t, domain.RecordPending, r.Status)
		assert.Equal(t, time.Date(2024, time.April, 14, 0, 0, 0, 0, time.UTC), r.DueDate)
		assert.Nil(t, r.PaidDate)
		assert.Zero(t, r.PaidAmountCents)
	})

	t.Run("created paid carries settlement", func(t *testing.T) {
		m := domain.RecordMutation{
			Op:          domain.OpCreate,
			AccountID:   accountID,
			MutationKey: "k",
			AmountCents: i64(7500),
			BillingDate: tp(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)),
			Status:      statusPtr(domain.RecordPaid),
		}
		r := newRecordFromMutation(uuid.New(), m, 5, now)

		assert.Equal(t, domain.RecordPaid, r.Status)
		assert.Equal(t, int64(7500), r.PaidAmountCents, "settlement defaults to amount")
		if assert.NotNil(t, r.PaidDate) {
			assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), *r.PaidDate,
				"paid date defaults to today at day precision")
		}
	})

	t.Run("born overdue past due plus grace", func(t *testing.T) {
		m := domain.RecordMutation{
			Op:          domain.OpCreate,
			AccountID:   accountID,
			MutationKey: "k",
			AmountCents: i64(100),
			BillingDate: tp(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
		}
		r := newRecordFromMutation(uuid.New(), m, 5, now)
		assert.Equal(t, domain.RecordOverdue, r.Status)
	})
}
