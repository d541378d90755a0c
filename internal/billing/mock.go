package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a mock invoicing provider for testing.
// Simulates successful invoicing flows without calling the Stripe API.
type MockProvider struct {
	// CreateCustomerFunc allows customizing customer creation behavior
	CreateCustomerFunc func(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetCustomerByEmailFunc allows customizing customer lookup behavior
	GetCustomerByEmailFunc func(ctx context.Context, email string) (*Customer, error)

	// CreateInvoiceFunc allows customizing invoice creation behavior
	CreateInvoiceFunc func(ctx context.Context, params CreateInvoiceParams) (*Invoice, error)

	// FinalizeInvoiceFunc allows customizing finalization behavior
	FinalizeInvoiceFunc func(ctx context.Context, invoiceID string) (*Invoice, error)

	// SendInvoiceFunc allows customizing send behavior
	SendInvoiceFunc func(ctx context.Context, invoiceID string) error

	// Customers stores created customers for retrieval
	Customers map[string]*Customer

	// Invoices stores created invoices for retrieval
	Invoices map[string]*Invoice

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// Compile-time check that MockProvider implements Provider.
var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock invoicing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Customers: make(map[string]*Customer),
		Invoices:  make(map[string]*Invoice),
		CallLog:   []string{},
	}
}

// CreateCustomer creates a mock customer.
func (m *MockProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCustomer(%s)", params.Email))

	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}

	cust := &Customer{
		ID:        "cus_" + uuid.New().String()[:8],
		Email:     params.Email,
		Name:      params.Name,
		CreatedAt: time.Now(),
	}
	m.Customers[cust.ID] = cust
	return cust, nil
}

// GetCustomerByEmail looks up a previously created mock customer.
func (m *MockProvider) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetCustomerByEmail(%s)", email))

	if m.GetCustomerByEmailFunc != nil {
		return m.GetCustomerByEmailFunc(ctx, email)
	}

	for _, cust := range m.Customers {
		if cust.Email == email {
			return cust, nil
		}
	}
	return nil, nil
}

// CreateInvoice creates a mock draft invoice.
func (m *MockProvider) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateInvoice(%s)", params.CustomerID))

	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, params)
	}

	inv := &Invoice{
		ID:        "in_" + uuid.New().String()[:8],
		Status:    "draft",
		Metadata:  params.Metadata,
		CreatedAt: time.Now(),
	}
	m.Invoices[inv.ID] = inv
	return inv, nil
}

// AddInvoiceItem records a line item against a mock invoice.
func (m *MockProvider) AddInvoiceItem(ctx context.Context, params AddInvoiceItemParams) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("AddInvoiceItem(%s, %d)", params.InvoiceID, params.UnitAmountCents))

	inv, ok := m.Invoices[params.InvoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.AmountDueCents += params.UnitAmountCents * params.Quantity
	return nil
}

// FinalizeInvoice finalizes a mock invoice and attaches a hosted URL.
func (m *MockProvider) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("FinalizeInvoice(%s)", invoiceID))

	if m.FinalizeInvoiceFunc != nil {
		return m.FinalizeInvoiceFunc(ctx, invoiceID)
	}

	inv, ok := m.Invoices[invoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	inv.Status = "open"
	inv.HostedInvoiceURL = "https://pay.example.com/" + invoiceID
	return inv, nil
}

// SendInvoice marks a mock invoice as sent.
func (m *MockProvider) SendInvoice(ctx context.Context, invoiceID string) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("SendInvoice(%s)", invoiceID))

	if m.SendInvoiceFunc != nil {
		return m.SendInvoiceFunc(ctx, invoiceID)
	}

	if _, ok := m.Invoices[invoiceID]; !ok {
		return ErrInvoiceNotFound
	}
	return nil
}

// GetInvoice retrieves a mock invoice.
func (m *MockProvider) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetInvoice(%s)", invoiceID))

	inv, ok := m.Invoices[invoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}

// VerifyWebhookSignature accepts any signature in the mock.
func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	m.CallLog = append(m.CallLog, "VerifyWebhookSignature")
	return nil
}
