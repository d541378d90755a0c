// Package cycle implements the temporal billing policy: next-billing-date
// derivation and lateness/overdue classification. All functions are pure and
// operate at calendar-day precision in UTC. Validation of inputs is the
// caller's job; nothing here returns an error.
package cycle

import (
	"time"

	"github.com/dukerupert/tally/internal/domain"
)

// Cadence values. Stored as strings on the account.
const (
	CadenceWeekly    = "weekly"
	CadenceBiweekly  = "biweekly"
	CadenceMonthly   = "monthly"
	CadenceQuarterly = "quarterly"
	CadenceAnnually  = "annually"
)

// ValidCadence reports whether c is a known cadence.
func ValidCadence(c string) bool {
	switch c {
	case CadenceWeekly, CadenceBiweekly, CadenceMonthly, CadenceQuarterly, CadenceAnnually:
		return true
	}
	return false
}

// defaultDueDays is how far after the billing date a record falls due when
// the caller doesn't supply an explicit due date.
const defaultDueDays = 30

// Day truncates t to UTC midnight. All cycle arithmetic happens on days.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// monthsPerCadence returns the period length in months for month-anchored
// cadences, or 0 for day-anchored ones.
func monthsPerCadence(cadence string) int {
	switch cadence {
	case CadenceMonthly:
		return 1
	case CadenceQuarterly:
		return 3
	case CadenceAnnually:
		return 12
	}
	return 0
}

// daysPerCadence returns the period length in days for day-anchored cadences.
func daysPerCadence(cadence string) int {
	switch cadence {
	case CadenceWeekly:
		return 7
	case CadenceBiweekly:
		return 14
	}
	return 0
}

// ClampBillingDay maps a billing day-of-month onto a concrete month,
// clamping to the month's last day (billing day 31 in April gives the 30th).
func ClampBillingDay(day int, year int, month time.Month) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NextBillingDate computes the next billing date at or after now.
//
// Month-anchored cadences (monthly, quarterly, annually) anchor to
// billingDay in the month containing now; if that day has already passed,
// the date advances by one cadence period. Day-anchored cadences (weekly,
// biweekly) count whole periods elapsed since serviceStart (or now, when no
// start date exists) and land on the start of the following period.
func NextBillingDate(cadence string, billingDay int, serviceStart *time.Time, now time.Time) time.Time {
	today := Day(now)

	if months := monthsPerCadence(cadence); months > 0 {
		next := ClampBillingDay(billingDay, today.Year(), today.Month())
		if next.Before(today) {
			advanced := next.AddDate(0, months, 0)
			// Re-clamp so an anchor like the 31st doesn't drift when the
			// intermediate month is short.
			next = ClampBillingDay(billingDay, advanced.Year(), advanced.Month())
		}
		return next
	}

	period := daysPerCadence(cadence)
	if period == 0 {
		// Unknown cadence is rejected upstream; fall back to monthly so a
		// bad row never produces a zero date.
		return NextBillingDate(CadenceMonthly, billingDay, serviceStart, now)
	}

	base := today
	if serviceStart != nil {
		base = Day(*serviceStart)
	}
	elapsed := 0
	if !base.After(today) {
		elapsed = int(today.Sub(base).Hours()) / 24 / period
	}
	return base.AddDate(0, 0, (elapsed+1)*period)
}

// Lateness classifies an account's payment standing.
//
// An account is late iff it owes money, the clock has passed the next
// billing date plus grace, and no payment has landed since the billing date
// came due. A zero or negative balance is always current.
func Lateness(nextBillingDate time.Time, graceDays int, balanceCents int64, lastPayment *time.Time, now time.Time) domain.PaymentStanding {
	if balanceCents <= 0 {
		return domain.StandingCurrent
	}
	deadline := Day(nextBillingDate).AddDate(0, 0, graceDays)
	if !Day(now).After(deadline) {
		return domain.StandingCurrent
	}
	if lastPayment != nil && !Day(*lastPayment).Before(Day(nextBillingDate)) {
		return domain.StandingCurrent
	}
	return domain.StandingLate
}

// DueDate derives the default due date for a billing record: 30 days after
// the billing date.
func DueDate(billingDate time.Time) time.Time {
	return Day(billingDate).AddDate(0, 0, defaultDueDays)
}

// IsOverdue reports whether a record's due date plus grace has elapsed.
func IsOverdue(dueDate time.Time, graceDays int, now time.Time) bool {
	return Day(now).After(Day(dueDate).AddDate(0, 0, graceDays))
}
