package cycle

import (
	"testing"
	"time"

	"github.com/dukerupert/tally/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextBillingDateMonthAnchored(t *testing.T) {
	tests := []struct {
		name       string
		cadence    string
		billingDay int
		now        time.Time
		want       time.Time
	}{
		{
			name:       "monthly, anchor day still ahead",
			cadence:    CadenceMonthly,
			billingDay: 15,
			now:        date(2024, time.March, 10),
			want:       date(2024, time.March, 15),
		},
		{
			name:       "monthly, anchor day is today",
			cadence:    CadenceMonthly,
			billingDay: 15,
			now:        date(2024, time.March, 15),
			want:       date(2024, time.March, 15),
		},
		{
			name:       "monthly, anchor day passed",
			cadence:    CadenceMonthly,
			billingDay: 15,
			now:        date(2024, time.March, 20),
			want:       date(2024, time.April, 15),
		},
		{
			name:       "monthly, day 31 clamps in short month",
			cadence:    CadenceMonthly,
			billingDay: 31,
			now:        date(2024, time.April, 1),
			want:       date(2024, time.April, 30),
		},
		{
			name:       "monthly, day 31 clamps in February of leap year",
			cadence:    CadenceMonthly,
			billingDay: 31,
			now:        date(2024, time.February, 10),
			want:       date(2024, time.February, 29),
		},
		{
			name:       "monthly, passed anchor advancing into short month re-clamps",
			cadence:    CadenceMonthly,
			billingDay: 31,
			now:        date(2025, time.January, 31),
			want:       date(2025, time.January, 31),
		},
		{
			name:       "quarterly, anchor passed advances three months",
			cadence:    CadenceQuarterly,
			billingDay: 10,
			now:        date(2024, time.March, 20),
			want:       date(2024, time.June, 10),
		},
		{
			name:       "annually, anchor passed advances a year",
			cadence:    CadenceAnnually,
			billingDay: 5,
			now:        date(2024, time.March, 6),
			want:       date(2025, time.March, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBillingDate(tt.cadence, tt.billingDay, nil, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextBillingDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextBillingDateDayAnchored(t *testing.T) {
	start := date(2024, time.January, 1)

	tests := []struct {
		name         string
		cadence      string
		serviceStart *time.Time
		now          time.Time
		want         time.Time
	}{
		{
			name:         "weekly from service start",
			cadence:      CadenceWeekly,
			serviceStart: &start,
			now:          date(2024, time.January, 3),
			want:         date(2024, time.January, 8),
		},
		{
			name:         "weekly exactly on a period boundary advances a full week",
			cadence:      CadenceWeekly,
			serviceStart: &start,
			now:          date(2024, time.January, 8),
			want:         date(2024, time.January, 15),
		},
		{
			name:         "biweekly several periods in",
			cadence:      CadenceBiweekly,
			serviceStart: &start,
			now:          date(2024, time.February, 2), // 32 days in, period 2
			want:         date(2024, time.February, 12),
		},
		{
			name:    "weekly without service start anchors to now",
			cadence: CadenceWeekly,
			now:     date(2024, time.June, 5),
			want:    date(2024, time.June, 12),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBillingDate(tt.cadence, 1, tt.serviceStart, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextBillingDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Advancing the reference time to exactly the computed next billing date must
// never produce an earlier date.
func TestNextBillingDateNeverRegresses(t *testing.T) {
	start := date(2023, time.July, 9)

	for _, cadence := range []string{CadenceWeekly, CadenceBiweekly, CadenceMonthly, CadenceQuarterly, CadenceAnnually} {
		now := date(2024, time.March, 14)
		for i := 0; i < 8; i++ {
			next := NextBillingDate(cadence, 29, &start, now)
			if next.Before(now) {
				t.Fatalf("cadence %s: next billing date %v is before reference %v", cadence, next, now)
			}
			again := NextBillingDate(cadence, 29, &start, next)
			if again.Before(next) {
				t.Fatalf("cadence %s: re-evaluation at %v regressed to %v", cadence, next, again)
			}
			now = again
		}
	}
}

func TestLateness(t *testing.T) {
	nextBilling := date(2024, time.April, 14)
	paidBefore := date(2024, time.April, 1)
	paidAfter := date(2024, time.April, 15)

	tests := []struct {
		name        string
		graceDays   int
		balance     int64
		lastPayment *time.Time
		now         time.Time
		want        domain.PaymentStanding
	}{
		{
			name:      "unpaid balance past grace is late",
			graceDays: 5,
			balance:   7500,
			now:       date(2024, time.April, 21),
			want:      domain.StandingLate,
		},
		{
			name:      "inside grace window stays current",
			graceDays: 5,
			balance:   7500,
			now:       date(2024, time.April, 17),
			want:      domain.StandingCurrent,
		},
		{
			name:      "zero balance is always current",
			graceDays: 0,
			balance:   0,
			now:       date(2030, time.January, 1),
			want:      domain.StandingCurrent,
		},
		{
			name:      "credit balance is always current",
			graceDays: 0,
			balance:   -2500,
			now:       date(2030, time.January, 1),
			want:      domain.StandingCurrent,
		},
		{
			name:        "payment since billing date clears lateness",
			graceDays:   5,
			balance:     7500,
			lastPayment: &paidAfter,
			now:         date(2024, time.April, 25),
			want:        domain.StandingCurrent,
		},
		{
			name:        "stale payment does not clear lateness",
			graceDays:   5,
			balance:     7500,
			lastPayment: &paidBefore,
			now:         date(2024, time.April, 25),
			want:        domain.StandingLate,
		},
		{
			name:      "exactly at the grace boundary stays current",
			graceDays: 5,
			balance:   7500,
			now:       date(2024, time.April, 19),
			want:      domain.StandingCurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lateness(nextBilling, tt.graceDays, tt.balance, tt.lastPayment, tt.now)
			if got != tt.want {
				t.Errorf("Lateness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueDate(t *testing.T) {
	got := DueDate(date(2024, time.March, 15))
	want := date(2024, time.April, 14)
	if !got.Equal(want) {
		t.Errorf("DueDate() = %v, want %v", got, want)
	}
}

func TestIsOverdue(t *testing.T) {
	due := date(2024, time.April, 14)

	if IsOverdue(due, 5, date(2024, time.April, 19)) {
		t.Error("IsOverdue() = true at the grace boundary, want false")
	}
	if !IsOverdue(due, 5, date(2024, time.April, 20)) {
		t.Error("IsOverdue() = false past the grace boundary, want true")
	}
	if IsOverdue(due, 0, due) {
		t.Error("IsOverdue() = true on the due date itself, want false")
	}
}
