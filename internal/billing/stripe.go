package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider using the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// Compile-time check that StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider.
// Returns ErrNotConfigured when the API key is empty so callers can treat
// an unconfigured provider as a valid state.
func NewStripeProvider(apiKey, webhookSecret string) (*StripeProvider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	api := &client.API{}
	api.Init(apiKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: webhookSecret,
	}, nil
}

// CreateCustomer creates a Stripe customer.
func (s *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	cp := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Name:  stripe.String(params.Name),
	}
	cp.Context = ctx
	for k, v := range params.Metadata {
		cp.AddMetadata(k, v)
	}

	cust, err := s.api.Customers.New(cp)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Customer{
		ID:        cust.ID,
		Email:     cust.Email,
		Name:      cust.Name,
		CreatedAt: time.Unix(cust.Created, 0),
	}, nil
}

// GetCustomerByEmail searches for an existing Stripe customer by email.
// Returns nil, nil when no customer matches.
func (s *StripeProvider) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	lp := &stripe.CustomerListParams{Email: stripe.String(email)}
	lp.Context = ctx
	lp.Limit = stripe.Int64(1)

	iter := s.api.Customers.List(lp)
	for iter.Next() {
		cust := iter.Customer()
		return &Customer{
			ID:        cust.ID,
			Email:     cust.Email,
			Name:      cust.Name,
			CreatedAt: time.Unix(cust.Created, 0),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError(err)
	}
	return nil, nil
}

// CreateInvoice creates a draft Stripe invoice with send_invoice collection,
// so Stripe hosts the payment page and emails its own payment link.
func (s *StripeProvider) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	ip := &stripe.InvoiceParams{
		Customer:         stripe.String(params.CustomerID),
		Currency:         stripe.String(params.Currency),
		Description:      stripe.String(params.Description),
		CollectionMethod: stripe.String("send_invoice"),
		AutoAdvance:      stripe.Bool(false),
		DueDate:          stripe.Int64(params.DueDate.Unix()),
	}
	ip.Context = ctx
	if params.IdempotencyKey != "" {
		ip.IdempotencyKey = stripe.String(params.IdempotencyKey)
	}
	for k, v := range params.Metadata {
		ip.AddMetadata(k, v)
	}

	inv, err := s.api.Invoices.New(ip)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return fromStripeInvoice(inv), nil
}

// AddInvoiceItem attaches a line item to a draft invoice. Stripe takes the
// line total, not a unit amount, so quantity is folded in here.
func (s *StripeProvider) AddInvoiceItem(ctx context.Context, params AddInvoiceItemParams) error {
	iip := &stripe.InvoiceItemParams{
		Customer:    stripe.String(params.CustomerID),
		Invoice:     stripe.String(params.InvoiceID),
		Description: stripe.String(params.Description),
		Amount:      stripe.Int64(lineItemTotal(params.UnitAmountCents, params.Quantity)),
		Currency:    stripe.String(params.Currency),
	}
	iip.Context = ctx

	if _, err := s.api.InvoiceItems.New(iip); err != nil {
		return wrapStripeError(err)
	}
	return nil
}

// FinalizeInvoice finalizes a draft invoice. The returned invoice carries
// the hosted payment URL.
func (s *StripeProvider) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	fp := &stripe.InvoiceFinalizeInvoiceParams{}
	fp.Context = ctx

	inv, err := s.api.Invoices.FinalizeInvoice(invoiceID, fp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return fromStripeInvoice(inv), nil
}

// SendInvoice asks Stripe to email the invoice to the customer.
func (s *StripeProvider) SendInvoice(ctx context.Context, invoiceID string) error {
	sp := &stripe.InvoiceSendInvoiceParams{}
	sp.Context = ctx

	if _, err := s.api.Invoices.SendInvoice(invoiceID, sp); err != nil {
		return wrapStripeError(err)
	}
	return nil
}

// GetInvoice retrieves a Stripe invoice.
func (s *StripeProvider) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	gp := &stripe.InvoiceParams{}
	gp.Context = ctx

	inv, err := s.api.Invoices.Get(invoiceID, gp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return fromStripeInvoice(inv), nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if secret == "" {
		secret = s.webhookSecret
	}
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// lineItemTotal converts a unit amount and quantity into the single total
// amount the invoice item API expects. A zero quantity means one unit.
func lineItemTotal(unitCents, quantity int64) int64 {
	if quantity <= 0 {
		quantity = 1
	}
	return unitCents * quantity
}

func fromStripeInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:               inv.ID,
		Status:           string(inv.Status),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		AmountDueCents:   inv.AmountDue,
		AmountPaidCents:  inv.AmountPaid,
		Metadata:         inv.Metadata,
		CreatedAt:        time.Unix(inv.Created, 0),
	}
	if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		t := time.Unix(inv.StatusTransitions.PaidAt, 0)
		out.PaidAt = &t
	}
	return out
}

func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &ProviderError{
			Message:       stripeErr.Msg,
			Code:          string(stripeErr.Code),
			RequestID:     stripeErr.RequestID,
			OriginalError: err,
		}
	}
	return err
}
