package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tally/internal/cycle"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
)

// fakeStore is an in-memory repository.Store with the same observable
// semantics as the SQL implementation: unique constraints, version
// compare-and-swap, snapshot rollback on transaction error.
type fakeStore struct {
	mu sync.Mutex

	accounts  map[uuid.UUID]domain.Account
	records   map[uuid.UUID]domain.BillingRecord
	sequences map[string]int64
	mutations map[string]uuid.UUID

	// updateAccountErrs is consumed one per UpdateAccountReconciled call to
	// inject version conflicts or storage failures.
	updateAccountErrs []error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:  make(map[uuid.UUID]domain.Account),
		records:   make(map[uuid.UUID]domain.BillingRecord),
		sequences: make(map[string]int64),
		mutations: make(map[string]uuid.UUID),
	}
}

func (f *fakeStore) ExecTx(_ context.Context, fn func(repository.Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts := copyMap(f.accounts)
	records := copyMap(f.records)
	sequences := copyMap(f.sequences)
	mutations := copyMap(f.mutations)

	if err := fn(f); err != nil {
		f.accounts = accounts
		f.records = records
		f.sequences = sequences
		f.mutations = mutations
		return err
	}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeStore) CreateAccount(_ context.Context, params repository.CreateAccountParams) (domain.Account, error) {
	for _, a := range f.accounts {
		if strings.EqualFold(a.Email, params.Email) || a.AccountNumber == params.AccountNumber {
			return domain.Account{}, repository.ErrDuplicateKey
		}
	}
	now := time.Now()
	a := domain.Account{
		ID:            params.ID,
		AccountNumber: params.AccountNumber,
		Email:         params.Email,
		Name:          params.Name,
		BillingInfo: domain.BillingInfo{
			BillingDayOfMonth: params.BillingDayOfMonth,
			Cadence:           params.Cadence,
			NextBillingDate:   params.NextBillingDate,
			ServiceStartDate:  params.ServiceStartDate,
		},
		PaymentInfo: domain.PaymentInfo{
			PaymentMethod:   params.PaymentMethod,
			Standing:        params.Standing,
			GracePeriodDays: params.GracePeriodDays,
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeStore) GetAccount(_ context.Context, id uuid.UUID) (domain.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return domain.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return f.GetAccount(ctx, id)
}

func (f *fakeStore) GetAccountByNumber(_ context.Context, accountNumber string) (domain.Account, error) {
	for _, a := range f.accounts {
		if a.AccountNumber == accountNumber {
			return a, nil
		}
	}
	return domain.Account{}, repository.ErrNotFound
}

func (f *fakeStore) GetAccountByEmail(_ context.Context, email string) (domain.Account, error) {
	for _, a := range f.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return domain.Account{}, repository.ErrNotFound
}

func (f *fakeStore) ListAccounts(_ context.Context, params repository.ListAccountsParams) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range f.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return paginate(out, params.Limit, params.Offset), nil
}

func (f *fakeStore) UpdateAccountReconciled(_ context.Context, params repository.UpdateAccountReconciledParams) error {
	if len(f.updateAccountErrs) > 0 {
		err := f.updateAccountErrs[0]
		f.updateAccountErrs = f.updateAccountErrs[1:]
		if err != nil {
			return err
		}
	}

	a, ok := f.accounts[params.ID]
	if !ok || a.Version != params.ExpectedVersion {
		return repository.ErrVersionConflict
	}
	a.BillingInfo.BalanceCents = params.BalanceCents
	a.BillingInfo.NextBillingDate = params.NextBillingDate
	a.PaymentInfo.Standing = params.Standing
	a.PaymentInfo.LastPaymentDate = params.LastPaymentDate
	a.PaymentInfo.LastPaymentAmountCents = params.LastPaymentAmountCents
	a.PaymentInfo.LatePaymentCount = params.LatePaymentCount
	a.PaymentInfo.TotalLateFeesCents = params.TotalLateFeesCents
	a.Version++
	a.UpdatedAt = time.Now()
	f.accounts[params.ID] = a
	return nil
}

func (f *fakeStore) UpdateAccountBillingInfo(_ context.Context, params repository.UpdateAccountBillingInfoParams) error {
	a, ok := f.accounts[params.ID]
	if !ok || a.Version != params.ExpectedVersion {
		return repository.ErrVersionConflict
	}
	a.BillingInfo.BillingDayOfMonth = params.BillingDayOfMonth
	a.BillingInfo.Cadence = params.Cadence
	a.BillingInfo.NextBillingDate = params.NextBillingDate
	a.BillingInfo.ServiceStartDate = params.ServiceStartDate
	a.PaymentInfo.PaymentMethod = params.PaymentMethod
	a.PaymentInfo.GracePeriodDays = params.GracePeriodDays
	a.PaymentInfo.Standing = params.Standing
	a.Version++
	a.UpdatedAt = time.Now()
	f.accounts[params.ID] = a
	return nil
}

func (f *fakeStore) CreateBillingRecord(_ context.Context, params repository.CreateBillingRecordParams) (domain.BillingRecord, error) {
	for _, r := range f.records {
		if r.RecordNumber == params.RecordNumber {
			return domain.BillingRecord{}, repository.ErrDuplicateKey
		}
	}
	now := time.Now()
	r := domain.BillingRecord{
		ID:              params.ID,
		RecordNumber:    params.RecordNumber,
		AccountID:       params.AccountID,
		AmountCents:     params.AmountCents,
		BillingDate:     params.BillingDate,
		DueDate:         params.DueDate,
		Status:          params.Status,
		PaidDate:        params.PaidDate,
		PaidAmountCents: params.PaidCents,
		Description:     params.Description,
		PeriodStart:     params.PeriodStart,
		PeriodEnd:       params.PeriodEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.records[r.ID] = r
	return r, nil
}

func (f *fakeStore) GetBillingRecord(_ context.Context, id uuid.UUID) (domain.BillingRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return domain.BillingRecord{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetBillingRecordForUpdate(ctx context.Context, id uuid.UUID) (domain.BillingRecord, error) {
	return f.GetBillingRecord(ctx, id)
}

func (f *fakeStore) ListBillingRecordsForAccount(_ context.Context, params repository.ListBillingRecordsForAccountParams) ([]domain.BillingRecord, error) {
	var out []domain.BillingRecord
	for _, r := range f.records {
		if r.AccountID == params.AccountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BillingDate.Equal(out[j].BillingDate) {
			return out[i].BillingDate.After(out[j].BillingDate)
		}
		return out[i].RecordNumber > out[j].RecordNumber
	})
	return paginate(out, params.Limit, params.Offset), nil
}

func (f *fakeStore) UpdateBillingRecord(_ context.Context, params repository.UpdateBillingRecordParams) (domain.BillingRecord, error) {
	r, ok := f.records[params.ID]
	if !ok {
		return domain.BillingRecord{}, repository.ErrNotFound
	}
	r.AmountCents = params.AmountCents
	r.BillingDate = params.BillingDate
	r.DueDate = params.DueDate
	r.Status = params.Status
	r.PaidDate = params.PaidDate
	r.PaidAmountCents = params.PaidCents
	r.Description = params.Description
	r.PeriodStart = params.PeriodStart
	r.PeriodEnd = params.PeriodEnd
	r.UpdatedAt = time.Now()
	f.records[params.ID] = r
	return r, nil
}

func (f *fakeStore) UpdateBillingRecordStatus(_ context.Context, params repository.UpdateBillingRecordStatusParams) error {
	r, ok := f.records[params.ID]
	if !ok {
		return repository.ErrNotFound
	}
	r.Status = params.Status
	r.UpdatedAt = time.Now()
	f.records[params.ID] = r
	return nil
}

func (f *fakeStore) DeleteBillingRecord(_ context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) ListOverdueCandidates(_ context.Context, asOf time.Time) ([]domain.BillingRecord, error) {
	var out []domain.BillingRecord
	for _, r := range f.records {
		if r.Status != domain.RecordPending {
			continue
		}
		a, ok := f.accounts[r.AccountID]
		if !ok {
			continue
		}
		if cycle.IsOverdue(r.DueDate, a.PaymentInfo.GracePeriodDays, asOf) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (f *fakeStore) SumRecordContributions(_ context.Context, accountID uuid.UUID) (int64, error) {
	var sum int64
	for _, r := range f.records {
		if r.AccountID != accountID || r.Status == domain.RecordCancelled {
			continue
		}
		sum += r.AmountCents
		if r.Status == domain.RecordPaid {
			sum -= r.PaidAmountCents
		}
	}
	return sum, nil
}

func (f *fakeStore) NextSequenceValue(_ context.Context, scope string) (int64, error) {
	f.sequences[scope]++
	return f.sequences[scope], nil
}

func (f *fakeStore) InsertMutationKey(_ context.Context, params repository.InsertMutationKeyParams) error {
	if _, ok := f.mutations[params.MutationKey]; ok {
		return repository.ErrDuplicateKey
	}
	f.mutations[params.MutationKey] = params.RecordID
	return nil
}

func (f *fakeStore) GetMutationRecordID(_ context.Context, mutationKey string) (uuid.UUID, error) {
	id, ok := f.mutations[mutationKey]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return id, nil
}

func paginate[T any](items []T, limit, offset int32) []T {
	if offset >= int32(len(items)) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < int32(len(items)) {
		items = items[:limit]
	}
	return items
}
