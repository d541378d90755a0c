// Package api exposes the account and billing-record endpoints. Handlers
// decode and validate requests, call the services, and map domain error
// codes onto HTTP statuses; no business rules live here.
package api

import (
	"time"

	"github.com/dukerupert/tally/internal/domain"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.EINVALID, "", "Invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// accountResponse is the JSON shape of an account.
type accountResponse struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	Email         string `json:"email"`
	Name          string `json:"name"`

	BillingDayOfMonth int     `json:"billing_day_of_month"`
	Cadence           string  `json:"cadence"`
	NextBillingDate   string  `json:"next_billing_date"`
	BalanceCents      int64   `json:"balance_cents"`
	ServiceStartDate  *string `json:"service_start_date,omitempty"`

	PaymentMethod          string  `json:"payment_method,omitempty"`
	LastPaymentDate        *string `json:"last_payment_date,omitempty"`
	LastPaymentAmountCents int64   `json:"last_payment_amount_cents"`
	Standing               string  `json:"standing"`
	GracePeriodDays        int     `json:"grace_period_days"`
	LatePaymentCount       int     `json:"late_payment_count"`
	TotalLateFeesCents     int64   `json:"total_late_fees_cents"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:            a.ID.String(),
		AccountNumber: a.AccountNumber,
		Email:         a.Email,
		Name:          a.Name,

		BillingDayOfMonth: a.BillingInfo.BillingDayOfMonth,
		Cadence:           a.BillingInfo.Cadence,
		NextBillingDate:   formatDate(a.BillingInfo.NextBillingDate),
		BalanceCents:      a.BillingInfo.BalanceCents,
		ServiceStartDate:  formatDatePtr(a.BillingInfo.ServiceStartDate),

		PaymentMethod:          a.PaymentInfo.PaymentMethod,
		LastPaymentDate:        formatDatePtr(a.PaymentInfo.LastPaymentDate),
		LastPaymentAmountCents: a.PaymentInfo.LastPaymentAmountCents,
		Standing:               string(a.PaymentInfo.Standing),
		GracePeriodDays:        a.PaymentInfo.GracePeriodDays,
		LatePaymentCount:       a.PaymentInfo.LatePaymentCount,
		TotalLateFeesCents:     a.PaymentInfo.TotalLateFeesCents,

		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// recordResponse is the JSON shape of a billing record.
type recordResponse struct {
	ID           string `json:"id"`
	RecordNumber string `json:"record_number"`
	AccountID    string `json:"account_id"`

	AmountCents int64  `json:"amount_cents"`
	BillingDate string `json:"billing_date"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`

	PaidDate        *string `json:"paid_date,omitempty"`
	PaidAmountCents int64   `json:"paid_amount_cents"`

	Description string  `json:"description,omitempty"`
	PeriodStart *string `json:"period_start,omitempty"`
	PeriodEnd   *string `json:"period_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecordResponse(r *domain.BillingRecord) recordResponse {
	return recordResponse{
		ID:           r.ID.String(),
		RecordNumber: r.RecordNumber,
		AccountID:    r.AccountID.String(),

		AmountCents: r.AmountCents,
		BillingDate: formatDate(r.BillingDate),
		DueDate:     formatDate(r.DueDate),
		Status:      string(r.Status),

		PaidDate:        formatDatePtr(r.PaidDate),
		PaidAmountCents: r.PaidAmountCents,

		Description: r.Description,
		PeriodStart: formatDatePtr(r.PeriodStart),
		PeriodEnd:   formatDatePtr(r.PeriodEnd),

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
