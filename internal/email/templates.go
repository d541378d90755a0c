package email

import "time"

// EmailTemplate defines the interface for email templates.
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// BillingNoticeEmail represents a new-charge notification.
type BillingNoticeEmail struct {
	Email        string
	CustomerName string
	RecordNumber string
	Description  string
	AmountCents  int64
	BillingDate  time.Time
	DueDate      time.Time

	// PaymentURL is the hosted payment page, when the invoicing provider
	// supplied one. May be empty.
	PaymentURL string
}

func (e BillingNoticeEmail) Subject() string {
	return "New Charge - " + e.RecordNumber
}

func (e BillingNoticeEmail) TemplateName() string {
	return "billing_notice"
}

// OverdueNoticeEmail represents an overdue-balance notification.
type OverdueNoticeEmail struct {
	Email        string
	CustomerName string
	RecordNumber string
	BalanceCents int64
	DueDate      time.Time
	DaysOverdue  int
	PaymentURL   string
}

func (e OverdueNoticeEmail) Subject() string {
	return "Payment Overdue - " + e.RecordNumber
}

func (e OverdueNoticeEmail) TemplateName() string {
	return "overdue_notice"
}

const billingNoticeHTML = `
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>New Charge on Your Account</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>A new charge has been added to your account:</p>
  <table cellpadding="6">
    <tr><td><strong>Billing Number</strong></td><td>{{.RecordNumber}}</td></tr>
    {{if .Description}}<tr><td><strong>Description</strong></td><td>{{.Description}}</td></tr>{{end}}
    <tr><td><strong>Amount</strong></td><td>{{dollars .AmountCents}}</td></tr>
    <tr><td><strong>Billing Date</strong></td><td>{{date .BillingDate}}</td></tr>
    <tr><td><strong>Due Date</strong></td><td>{{date .DueDate}}</td></tr>
  </table>
  {{if .PaymentURL}}<p><a href="{{.PaymentURL}}">Pay this invoice online</a></p>{{end}}
  <p>Thank you!</p>
</body>
</html>`

const billingNoticeText = `Hi {{.CustomerName}},

A new charge has been added to your account:

  Billing Number: {{.RecordNumber}}
{{if .Description}}  Description:    {{.Description}}
{{end}}  Amount:         {{dollars .AmountCents}}
  Billing Date:   {{date .BillingDate}}
  Due Date:       {{date .DueDate}}
{{if .PaymentURL}}
Pay online: {{.PaymentURL}}
{{end}}
Thank you!`

const overdueNoticeHTML = `
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>Payment Overdue</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Your payment for billing {{.RecordNumber}} is {{.DaysOverdue}} day{{if ne .DaysOverdue 1}}s{{end}} overdue.</p>
  <table cellpadding="6">
    <tr><td><strong>Outstanding Balance</strong></td><td>{{dollars .BalanceCents}}</td></tr>
    <tr><td><strong>Due Date</strong></td><td>{{date .DueDate}}</td></tr>
  </table>
  {{if .PaymentURL}}<p><a href="{{.PaymentURL}}">Pay now</a></p>{{end}}
  <p>If you've already paid, please disregard this notice.</p>
</body>
</html>`

const overdueNoticeText = `Hi {{.CustomerName}},

Your payment for billing {{.RecordNumber}} is {{.DaysOverdue}} day(s) overdue.

  Outstanding Balance: {{dollars .BalanceCents}}
  Due Date:            {{date .DueDate}}
{{if .PaymentURL}}
Pay now: {{.PaymentURL}}
{{end}}
If you've already paid, please disregard this notice.`
