package service

import (
	"github.com/dukerupert/tally/internal/domain"
)

// Validation errors - use domain.EINVALID
var (
	ErrMissingAmount       = domain.Errorf(domain.EINVALID, "", "Amount is required for a create mutation")
	ErrMissingMutationKey  = domain.Errorf(domain.EINVALID, "", "Mutation key is required")
	ErrMissingRecordID     = domain.Errorf(domain.EINVALID, "", "Record ID is required for update and delete mutations")
	ErrMissingEmail        = domain.Errorf(domain.EINVALID, "", "Email is required")
	ErrMissingName         = domain.Errorf(domain.EINVALID, "", "Name is required")
	ErrNegativeGracePeriod = domain.Errorf(domain.EINVALID, "", "Grace period days must be zero or greater")
	ErrNegativePaidAmount  = domain.Errorf(domain.EINVALID, "", "Paid amount must be zero or greater")
)

// Reconciliation errors
var (
	ErrReconcileRetriesExhausted = domain.Errorf(domain.EUNAVAILABLE, "", "Account is under heavy contention, retry the mutation")
)
