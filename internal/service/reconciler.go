package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tally/internal/cycle"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/events"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/sequence"
	"github.com/dukerupert/tally/internal/telemetry"
)

// reconcileMaxAttempts bounds the retry loop around version conflicts. The
// row lock already serializes writers; the compare-and-swap is the backstop
// for writes that bypass the lock, so conflicts should be rare.
const reconcileMaxAttempts = 3

// errDuplicateMutation aborts the transaction when the replay guard trips;
// the caller then returns the previously stored result.
var errDuplicateMutation = errors.New("mutation already applied")

type recordService struct {
	store    repository.Store
	accounts domain.AccountService
	pub      events.Publisher
	logger   *slog.Logger
	policy   domain.CancellationPolicy

	// now is swapped out in tests.
	now func() time.Time
}

// NewRecordService creates the billing-record reconciler. pub may be nil when
// no event consumers are wired.
func NewRecordService(
	store repository.Store,
	accounts domain.AccountService,
	pub events.Publisher,
	logger *slog.Logger,
	policy domain.CancellationPolicy,
) domain.RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = domain.CancelReverse
	}
	return &recordService{
		store:    store,
		accounts: accounts,
		pub:      pub,
		logger:   logger,
		policy:   policy,
		now:      time.Now,
	}
}

// Reconcile applies a billing-record mutation and its full financial effect
// on the owning account in one transaction: replay guard, record write,
// balance delta, standing recompute, versioned account write. Post-commit it
// publishes a creation event for the notification pipeline.
func (s *recordService) Reconcile(ctx context.Context, m domain.RecordMutation) (*domain.BillingRecord, error) {
	if err := validateMutation(m); err != nil {
		return nil, err
	}
	now := s.now()
	start := time.Now()
	defer func() {
		if mb := telemetry.Business; mb != nil {
			mb.ReconcileDuration.Observe(time.Since(start).Seconds())
		}
	}()

	var (
		record *domain.BillingRecord
		err    error
	)
	for attempt := 0; attempt < reconcileMaxAttempts; attempt++ {
		record, err = s.reconcileOnce(ctx, m, now)
		if !errors.Is(err, repository.ErrVersionConflict) {
			break
		}
		if mb := telemetry.Business; mb != nil {
			mb.VersionConflicts.Inc()
		}
		s.logger.Warn("reconcile version conflict, retrying",
			"account_id", m.AccountID, "mutation_key", m.MutationKey, "attempt", attempt+1)
	}

	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, ErrReconcileRetriesExhausted
	case errors.Is(err, errDuplicateMutation):
		return s.replayedResult(ctx, m)
	case err != nil:
		if mb := telemetry.Business; mb != nil {
			mb.ReconciliationErrors.WithLabelValues(string(m.Op), domain.ErrorCode(err)).Inc()
		}
		return nil, err
	}

	if mb := telemetry.Business; mb != nil {
		mb.ReconciliationsTotal.WithLabelValues(string(m.Op)).Inc()
		if record != nil {
			mb.MutationAmount.WithLabelValues(string(m.Op)).Observe(float64(record.AmountCents))
		}
	}

	if m.Op == domain.OpCreate && record != nil && record.Status != domain.RecordCancelled {
		s.publishCreated(ctx, record, now)
	}
	return record, nil
}

func (s *recordService) reconcileOnce(ctx context.Context, m domain.RecordMutation, now time.Time) (*domain.BillingRecord, error) {
	const op = "record.reconcile"

	// Creates need the record ID before the transaction starts so the replay
	// guard row can point at it.
	createID := uuid.New()

	var result *domain.BillingRecord
	txErr := s.store.ExecTx(ctx, func(q repository.Querier) error {
		guardID := createID
		if m.Op != domain.OpCreate {
			guardID = m.RecordID
		}
		if m.Op == domain.OpDelete {
			guardID = uuid.Nil
		}
		if err := q.InsertMutationKey(ctx, repository.InsertMutationKeyParams{
			MutationKey: m.MutationKey,
			RecordID:    guardID,
		}); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return errDuplicateMutation
			}
			return domain.Unavailable(err, op, "Failed to register mutation")
		}

		switch m.Op {
		case domain.OpCreate:
			rec, err := s.applyCreate(ctx, q, createID, m, now)
			if err != nil {
				return err
			}
			result = rec
			return nil
		case domain.OpUpdate:
			rec, err := s.applyUpdate(ctx, q, m, now)
			if err != nil {
				return err
			}
			result = rec
			return nil
		case domain.OpDelete:
			return s.applyDelete(ctx, q, m, now)
		}
		return domain.ErrUnknownOperation
	})
	if txErr != nil {
		return nil, txErr
	}
	return result, nil
}

func (s *recordService) applyCreate(ctx context.Context, q repository.Querier, id uuid.UUID, m domain.RecordMutation, now time.Time) (*domain.BillingRecord, error) {
	const op = "record.create"

	account, err := lockAccount(ctx, q, m.AccountID, op)
	if err != nil {
		return nil, err
	}

	number, err := sequence.NewGenerator(q).Next(ctx, sequence.ScopeBilling, sequence.PrefixBilling)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate record number")
	}

	rec := newRecordFromMutation(id, m, account.PaymentInfo.GracePeriodDays, now)
	rec.RecordNumber = number

	newBalance := account.BillingInfo.BalanceCents
	// A record born cancelled contributes nothing under the reverse policy,
	// same as a record cancelled after the fact.
	if rec.Status != domain.RecordCancelled || s.policy != domain.CancelReverse {
		newBalance += rec.AmountCents
	}
	lastPayment := account.PaymentInfo.LastPaymentDate
	lastPaymentCents := account.PaymentInfo.LastPaymentAmountCents
	if rec.Status.Settled() {
		newBalance -= rec.PaidAmountCents
		if newBalance < 0 {
			newBalance = 0
		}
		lastPayment = rec.PaidDate
		lastPaymentCents = rec.PaidAmountCents
	}

	stored, err := q.CreateBillingRecord(ctx, createRecordParams(rec))
	if err != nil {
		return nil, domain.Unavailable(err, op, "Failed to persist billing record")
	}

	if err := s.writeAccount(ctx, q, account, newBalance, lastPayment, lastPaymentCents, now, op); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *recordService) applyUpdate(ctx context.Context, q repository.Querier, m domain.RecordMutation, now time.Time) (*domain.BillingRecord, error) {
	const op = "record.update"

	prev, err := lockRecord(ctx, q, m.RecordID, op)
	if err != nil {
		return nil, err
	}
	if prev.Status == domain.RecordCancelled {
		return nil, domain.ErrRecordCancelled
	}

	account, err := lockAccount(ctx, q, prev.AccountID, op)
	if err != nil {
		return nil, err
	}

	next := applyPatch(prev, m)

	settledNow := next.Status.Settled() && !prev.Status.Settled()
	if settledNow {
		next.PaidAmountCents = settlementAmount(m.PaidCents, next.AmountCents)
		d := paidDay(m.PaidDate, now)
		next.PaidDate = &d
	}

	// A still-pending record past due + grace goes overdue as part of the
	// same write.
	if next.Status == domain.RecordPending && cycle.IsOverdue(next.DueDate, account.PaymentInfo.GracePeriodDays, now) {
		next.Status = domain.RecordOverdue
	}

	newBalance := account.BillingInfo.BalanceCents
	if next.Status == domain.RecordCancelled {
		if s.policy == domain.CancelReverse {
			newBalance -= prev.AmountCents
			if prev.Status.Settled() {
				newBalance += prev.PaidAmountCents
			}
		}
	} else {
		newBalance += next.AmountCents - prev.AmountCents
		newBalance += settlementDelta(prev.Status, prev.PaidAmountCents, next.Status, next.PaidAmountCents)
		if settledNow && newBalance < 0 {
			newBalance = 0
		}
	}

	lastPayment := account.PaymentInfo.LastPaymentDate
	lastPaymentCents := account.PaymentInfo.LastPaymentAmountCents
	if settledNow {
		lastPayment = next.PaidDate
		lastPaymentCents = next.PaidAmountCents
	}

	stored, err := q.UpdateBillingRecord(ctx, updateRecordParams(next))
	if err != nil {
		return nil, domain.Unavailable(err, op, "Failed to persist billing record")
	}

	if err := s.writeAccount(ctx, q, account, newBalance, lastPayment, lastPaymentCents, now, op); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *recordService) applyDelete(ctx context.Context, q repository.Querier, m domain.RecordMutation, now time.Time) error {
	const op = "record.delete"

	prev, err := lockRecord(ctx, q, m.RecordID, op)
	if err != nil {
		return err
	}
	account, err := lockAccount(ctx, q, prev.AccountID, op)
	if err != nil {
		return err
	}

	newBalance := account.BillingInfo.BalanceCents
	// A reverse-cancelled record already contributes nothing, so deleting it
	// is balance-neutral.
	if prev.Status != domain.RecordCancelled || s.policy != domain.CancelReverse {
		newBalance -= prev.AmountCents
		if prev.Status.Settled() {
			newBalance += prev.PaidAmountCents
		}
	}

	if err := q.DeleteBillingRecord(ctx, prev.ID); err != nil {
		return domain.Unavailable(err, op, "Failed to delete billing record")
	}

	return s.writeAccount(ctx, q, account,
		newBalance, account.PaymentInfo.LastPaymentDate, account.PaymentInfo.LastPaymentAmountCents, now, op)
}

// writeAccount recomputes standing from the new balance and lands the
// versioned account write. ErrVersionConflict passes through untouched so the
// outer retry loop can see it.
func (s *recordService) writeAccount(
	ctx context.Context,
	q repository.Querier,
	account domain.Account,
	newBalance int64,
	lastPayment *time.Time,
	lastPaymentCents int64,
	now time.Time,
	op string,
) error {
	standing := cycle.Lateness(
		account.BillingInfo.NextBillingDate,
		account.PaymentInfo.GracePeriodDays,
		newBalance,
		lastPayment,
		now,
	)

	err := q.UpdateAccountReconciled(ctx, repository.UpdateAccountReconciledParams{
		ID:                     account.ID,
		BalanceCents:           newBalance,
		Standing:               standing,
		NextBillingDate:        account.BillingInfo.NextBillingDate,
		LastPaymentDate:        lastPayment,
		LastPaymentAmountCents: lastPaymentCents,
		LatePaymentCount:       account.PaymentInfo.LatePaymentCount,
		TotalLateFeesCents:     account.PaymentInfo.TotalLateFeesCents,
		ExpectedVersion:        account.Version,
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		return domain.Unavailable(err, op, "Failed to persist account balance")
	}
	return nil
}

// replayedResult serves a mutation whose key was already applied: the stored
// outcome is returned and no delta is re-applied.
func (s *recordService) replayedResult(ctx context.Context, m domain.RecordMutation) (*domain.BillingRecord, error) {
	const op = "record.reconcile"

	if mb := telemetry.Business; mb != nil {
		mb.DuplicateMutations.Inc()
	}
	s.logger.Info("duplicate mutation replayed", "mutation_key", m.MutationKey, "operation", string(m.Op))

	recordID, err := s.store.GetMutationRecordID(ctx, m.MutationKey)
	if err != nil {
		return nil, domain.Unavailable(err, op, "Failed to look up replayed mutation")
	}
	if recordID == uuid.Nil {
		// Delete mutations store no record.
		return nil, nil
	}
	rec, err := s.store.GetBillingRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The record a replayed create produced was since deleted.
			return nil, nil
		}
		return nil, domain.Unavailable(err, op, "Failed to load replayed record")
	}
	return &rec, nil
}

// GetRecord retrieves a billing record. A pending record past due + grace is
// reported as overdue even before the sweep has persisted the transition.
func (s *recordService) GetRecord(ctx context.Context, recordID uuid.UUID) (*domain.BillingRecord, error) {
	const op = "record.get"

	rec, err := s.store.GetBillingRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, domain.Unavailable(err, op, "Failed to load billing record")
	}

	if rec.Status == domain.RecordPending {
		account, err := s.store.GetAccount(ctx, rec.AccountID)
		if err == nil && cycle.IsOverdue(rec.DueDate, account.PaymentInfo.GracePeriodDays, s.now()) {
			rec.Status = domain.RecordOverdue
		}
	}
	return &rec, nil
}

// ListRecordsForAccount lists an account's records, newest first, with the
// same read-time overdue classification as GetRecord.
func (s *recordService) ListRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.BillingRecord, error) {
	const op = "record.list"

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.Unavailable(err, op, "Failed to load account")
	}

	if limit <= 0 {
		limit = 50
	}
	records, err := s.store.ListBillingRecordsForAccount(ctx, repository.ListBillingRecordsForAccountParams{
		AccountID: accountID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, domain.Unavailable(err, op, "Failed to list billing records")
	}

	now := s.now()
	for i := range records {
		if records[i].Status == domain.RecordPending &&
			cycle.IsOverdue(records[i].DueDate, account.PaymentInfo.GracePeriodDays, now) {
			records[i].Status = domain.RecordOverdue
		}
	}
	return records, nil
}

// MarkRecordsOverdue is the sweep: pending records past due + grace become
// overdue, and each touched account has its standing refreshed. Per-record
// failures are logged and skipped so one bad row never stalls the sweep.
func (s *recordService) MarkRecordsOverdue(ctx context.Context) (int, error) {
	const op = "record.mark_overdue"
	now := s.now()

	if mb := telemetry.Business; mb != nil {
		mb.SweepRuns.Inc()
	}

	candidates, err := s.store.ListOverdueCandidates(ctx, now)
	if err != nil {
		return 0, domain.Unavailable(err, op, "Failed to list overdue candidates")
	}

	transitioned := 0
	triggering := make(map[uuid.UUID]domain.BillingRecord)
	for _, rec := range candidates {
		err := s.store.UpdateBillingRecordStatus(ctx, repository.UpdateBillingRecordStatusParams{
			ID:     rec.ID,
			Status: domain.RecordOverdue,
		})
		if err != nil {
			s.logger.Error("failed to mark record overdue", "record_id", rec.ID, "error", err)
			continue
		}
		transitioned++
		if mb := telemetry.Business; mb != nil {
			mb.RecordsMarkedOverdue.Inc()
		}
		if _, ok := triggering[rec.AccountID]; !ok {
			triggering[rec.AccountID] = rec
		}
	}

	for accountID, rec := range triggering {
		before, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			s.logger.Error("failed to load account for standing refresh", "account_id", accountID, "error", err)
			continue
		}
		after, err := s.accounts.RefreshStanding(ctx, accountID)
		if err != nil {
			s.logger.Error("failed to refresh account standing", "account_id", accountID, "error", err)
			continue
		}
		if before.PaymentInfo.Standing == domain.StandingCurrent && after.PaymentInfo.Standing == domain.StandingLate {
			s.publishLate(ctx, after, rec, now)
		}
	}
	return transitioned, nil
}

func (s *recordService) publishCreated(ctx context.Context, rec *domain.BillingRecord, now time.Time) {
	if s.pub == nil {
		return
	}
	err := s.pub.Publish(ctx, events.SubjectRecordCreated, events.RecordCreated{
		AccountID:    rec.AccountID,
		RecordID:     rec.ID,
		RecordNumber: rec.RecordNumber,
		AmountCents:  rec.AmountCents,
		OccurredAt:   now,
	})
	if err != nil {
		s.logger.Error("failed to publish record created event", "record_id", rec.ID, "error", err)
	}
}

func (s *recordService) publishLate(ctx context.Context, account *domain.Account, rec domain.BillingRecord, now time.Time) {
	if s.pub == nil {
		return
	}
	daysOverdue := int(cycle.Day(now).Sub(cycle.Day(rec.DueDate)).Hours() / 24)
	err := s.pub.Publish(ctx, events.SubjectAccountLate, events.AccountLate{
		AccountID:    account.ID,
		RecordID:     rec.ID,
		RecordNumber: rec.RecordNumber,
		BalanceCents: account.BillingInfo.BalanceCents,
		DueDate:      rec.DueDate,
		DaysOverdue:  daysOverdue,
		OccurredAt:   now,
	})
	if err != nil {
		s.logger.Error("failed to publish account late event", "account_id", account.ID, "error", err)
	}
}

func lockAccount(ctx context.Context, q repository.Querier, id uuid.UUID, op string) (domain.Account, error) {
	account, err := q.GetAccountForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, domain.Unavailable(err, op, "Failed to load account")
	}
	return account, nil
}

func lockRecord(ctx context.Context, q repository.Querier, id uuid.UUID, op string) (domain.BillingRecord, error) {
	rec, err := q.GetBillingRecordForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.BillingRecord{}, domain.ErrRecordNotFound
		}
		return domain.BillingRecord{}, domain.Unavailable(err, op, "Failed to load billing record")
	}
	return rec, nil
}

func createRecordParams(r domain.BillingRecord) repository.CreateBillingRecordParams {
	return repository.CreateBillingRecordParams{
		ID:           r.ID,
		RecordNumber: r.RecordNumber,
		AccountID:    r.AccountID,
		AmountCents:  r.AmountCents,
		BillingDate:  r.BillingDate,
		DueDate:      r.DueDate,
		Status:       r.Status,
		PaidDate:     r.PaidDate,
		PaidCents:    r.PaidAmountCents,
		Description:  r.Description,
		PeriodStart:  r.PeriodStart,
		PeriodEnd:    r.PeriodEnd,
	}
}

func updateRecordParams(r domain.BillingRecord) repository.UpdateBillingRecordParams {
	return repository.UpdateBillingRecordParams{
		ID:          r.ID,
		AmountCents: r.AmountCents,
		BillingDate: r.BillingDate,
		DueDate:     r.DueDate,
		Status:      r.Status,
		PaidDate:    r.PaidDate,
		PaidCents:   r.PaidAmountCents,
		Description: r.Description,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
	}
}
