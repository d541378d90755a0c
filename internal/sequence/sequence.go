// Package sequence produces human-readable sequential identifiers (account
// numbers, billing numbers, region-scoped invoice numbers) backed by an
// atomic database counter per scope.
package sequence

import (
	"context"
	"fmt"

	"github.com/dukerupert/tally/internal/telemetry"
)

// Well-known scopes.
const (
	ScopeAccount = "account"
	ScopeBilling = "billing"
)

// Default number prefixes.
const (
	PrefixAccount = "ACC-"
	PrefixBilling = "BILL-"
	PrefixInvoice = "INV-"
)

const padWidth = 6

// Counter is the storage-side fetch-and-increment. Implemented by the
// repository's sequences table.
type Counter interface {
	NextSequenceValue(ctx context.Context, scope string) (int64, error)
}

// Generator formats collision-free sequential identifiers.
type Generator struct {
	counter Counter
}

// NewGenerator creates a Generator over the given counter.
func NewGenerator(counter Counter) *Generator {
	return &Generator{counter: counter}
}

// Next returns the next identifier for a scope, e.g. Next(ctx, "billing",
// "BILL-") -> "BILL-000042". The counter is monotonic per scope, so two
// concurrent callers always receive distinct numbers.
func (g *Generator) Next(ctx context.Context, scope, prefix string) (string, error) {
	value, err := g.counter.NextSequenceValue(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s number: %w", scope, err)
	}
	if mb := telemetry.Business; mb != nil {
		mb.SequenceAllocations.WithLabelValues(scope).Inc()
	}
	return Format(prefix, value), nil
}

// NextInvoiceNumber returns a region-scoped invoice number, e.g.
// "INV-EU-000007". Each region counts independently.
func (g *Generator) NextInvoiceNumber(ctx context.Context, regionCode string) (string, error) {
	return g.Next(ctx, "invoice:"+regionCode, PrefixInvoice+regionCode+"-")
}

// Format zero-pads a sequence value to the standard width.
func Format(prefix string, value int64) string {
	return fmt.Sprintf("%s%0*d", prefix, padWidth, value)
}
