package billing

import (
	"context"
	"time"
)

// Provider defines the interface to the external invoicing provider.
// Implementations can use Stripe, PayPal, Square, etc. The provider has its
// own durability; every call site in the notification path treats failures
// as best-effort and never lets them reach the reconciliation result.
type Provider interface {
	// CreateCustomer creates a customer record in the invoicing provider.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetCustomerByEmail searches for an existing customer by email.
	// Returns nil, nil if no customer is found (not an error).
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// CreateInvoice creates a draft invoice for a customer.
	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error)

	// AddInvoiceItem attaches a line item to a draft invoice.
	AddInvoiceItem(ctx context.Context, params AddInvoiceItemParams) error

	// FinalizeInvoice finalizes a draft invoice, making it payable.
	// The returned invoice carries the hosted payment link, if any.
	FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	// SendInvoice asks the provider to deliver the invoice to the customer.
	SendInvoice(ctx context.Context, invoiceID string) error

	// GetInvoice retrieves an invoice, including its payment state.
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	Email string
	Name  string

	// Metadata for filtering and reconciliation (always include account_id).
	Metadata map[string]string
}

// Customer represents an invoicing-provider customer.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// CreateInvoiceParams contains parameters for creating an invoice.
type CreateInvoiceParams struct {
	// CustomerID is the provider's customer identifier (cus_...).
	CustomerID string

	// Currency code (ISO 4217 lowercase) - e.g., "usd".
	Currency string

	// Description appears on the invoice.
	Description string

	// DueDate is when payment falls due.
	DueDate time.Time

	// Metadata for filtering and reconciliation (account_id, record_id).
	Metadata map[string]string

	// IdempotencyKey prevents duplicate invoices on retried dispatches.
	// Use the billing record ID.
	IdempotencyKey string
}

// AddInvoiceItemParams contains parameters for attaching a line item.
type AddInvoiceItemParams struct {
	CustomerID      string
	InvoiceID       string
	Description     string
	Quantity        int64
	UnitAmountCents int64
	Currency        string
}

// Invoice represents an invoicing-provider invoice.
type Invoice struct {
	ID     string
	Status string // draft, open, paid, void, uncollectible

	// HostedInvoiceURL is the provider-hosted payment page, set once the
	// invoice is finalized. Empty when the provider offers none.
	HostedInvoiceURL string

	AmountDueCents  int64
	AmountPaidCents int64
	PaidAt          *time.Time

	// PaymentReference identifies the payment that settled the invoice,
	// if any (e.g., a payment intent ID).
	PaymentReference string

	Metadata  map[string]string
	CreatedAt time.Time
}
