package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/tally/internal/cycle"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/sequence"
	"github.com/dukerupert/tally/internal/telemetry"
)

const defaultGracePeriodDays = 5

type accountService struct {
	store  repository.Store
	logger *slog.Logger

	// lateFeeCents is the flat fee recorded against an account on each
	// current -> late transition. Bookkeeping only: it lands in
	// TotalLateFeesCents, never in the balance, so the ledger stays equal to
	// the sum of record contributions.
	lateFeeCents int64

	now func() time.Time
}

// NewAccountService creates the account onboarding and standing service.
func NewAccountService(store repository.Store, logger *slog.Logger, lateFeeCents int64) domain.AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &accountService{
		store:        store,
		logger:       logger,
		lateFeeCents: lateFeeCents,
		now:          time.Now,
	}
}

// CreateAccount onboards a new account: validates billing parameters, assigns
// a sequential account number, and derives the initial next billing date.
func (s *accountService) CreateAccount(ctx context.Context, params domain.CreateAccountParams) (*domain.Account, error) {
	const op = "account.create"

	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" {
		return nil, ErrMissingEmail
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, ErrMissingName
	}
	if !cycle.ValidCadence(params.Cadence) {
		return nil, domain.ErrInvalidCadence
	}
	if params.BillingDayOfMonth < 1 || params.BillingDayOfMonth > 31 {
		return nil, domain.ErrInvalidBillingDay
	}
	graceDays := params.GracePeriodDays
	if graceDays < 0 {
		return nil, ErrNegativeGracePeriod
	}
	if graceDays == 0 {
		graceDays = defaultGracePeriodDays
	}

	now := s.now()
	var account domain.Account
	txErr := s.store.ExecTx(ctx, func(q repository.Querier) error {
		number, err := sequence.NewGenerator(q).Next(ctx, sequence.ScopeAccount, sequence.PrefixAccount)
		if err != nil {
			return domain.Internal(err, op, "Failed to generate account number")
		}

		account, err = q.CreateAccount(ctx, repository.CreateAccountParams{
			ID:                uuid.New(),
			AccountNumber:     number,
			Email:             email,
			Name:              strings.TrimSpace(params.Name),
			BillingDayOfMonth: params.BillingDayOfMonth,
			Cadence:           params.Cadence,
			NextBillingDate:   cycle.NextBillingDate(params.Cadence, params.BillingDayOfMonth, params.ServiceStartDate, now),
			ServiceStartDate:  params.ServiceStartDate,
			PaymentMethod:     params.PaymentMethod,
			GracePeriodDays:   graceDays,
			Standing:          domain.StandingCurrent,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return domain.ErrDuplicateEmail
			}
			return domain.Unavailable(err, op, "Failed to persist account")
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logger.Info("account created", "account_id", account.ID, "account_number", account.AccountNumber)
	return &account, nil
}

// GetAccount retrieves an account by ID.
func (s *accountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	const op = "account.get"

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.Unavailable(err, op, "Failed to load account")
	}
	return &account, nil
}

// GetAccountByNumber retrieves an account by its human-readable number.
func (s *accountService) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	const op = "account.get_by_number"

	account, err := s.store.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.Unavailable(err, op, "Failed to load account")
	}
	return &account, nil
}

// GetAccountByEmail retrieves an account by email. Lookup is case-insensitive
// because accounts store the normalized lowercase form.
func (s *accountService) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const op = "account.get_by_email"

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrMissingEmail
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.Unavailable(err, op, "Failed to load account")
	}
	return &account, nil
}

// ListAccounts returns a page of accounts ordered by account number.
func (s *accountService) ListAccounts(ctx context.Context, limit, offset int32) ([]domain.Account, error) {
	const op = "account.list"

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.store.ListAccounts(ctx, repository.ListAccountsParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, domain.Unavailable(err, op, "Failed to list accounts")
	}
	return accounts, nil
}

// UpdateBillingInfo applies a direct edit to the billing group. The next
// billing date and standing are re-derived from the new cadence parameters.
func (s *accountService) UpdateBillingInfo(ctx context.Context, params domain.UpdateBillingInfoParams) (*domain.Account, error) {
	const op = "account.update_billing_info"

	if params.AccountID == uuid.Nil {
		return nil, domain.ErrMissingAccountRef
	}
	if params.Cadence != nil && !cycle.ValidCadence(*params.Cadence) {
		return nil, domain.ErrInvalidCadence
	}
	if params.BillingDayOfMonth != nil && (*params.BillingDayOfMonth < 1 || *params.BillingDayOfMonth > 31) {
		return nil, domain.ErrInvalidBillingDay
	}
	if params.GracePeriodDays != nil && *params.GracePeriodDays < 0 {
		return nil, ErrNegativeGracePeriod
	}

	now := s.now()
	var updated domain.Account
	txErr := s.store.ExecTx(ctx, func(q repository.Querier) error {
		account, err := lockAccount(ctx, q, params.AccountID, op)
		if err != nil {
			return err
		}

		billingDay := account.BillingInfo.BillingDayOfMonth
		if params.BillingDayOfMonth != nil {
			billingDay = *params.BillingDayOfMonth
		}
		cadence := account.BillingInfo.Cadence
		if params.Cadence != nil {
			cadence = *params.Cadence
		}
		serviceStart := account.BillingInfo.ServiceStartDate
		if params.ServiceStartDate != nil {
			t := cycle.Day(*params.ServiceStartDate)
			serviceStart = &t
		}
		graceDays := account.PaymentInfo.GracePeriodDays
		if params.GracePeriodDays != nil {
			graceDays = *params.GracePeriodDays
		}
		paymentMethod := account.PaymentInfo.PaymentMethod
		if params.PaymentMethod != nil {
			paymentMethod = *params.PaymentMethod
		}

		nextBilling := cycle.NextBillingDate(cadence, billingDay, serviceStart, now)
		standing := cycle.Lateness(nextBilling, graceDays,
			account.BillingInfo.BalanceCents, account.PaymentInfo.LastPaymentDate, now)

		err = q.UpdateAccountBillingInfo(ctx, repository.UpdateAccountBillingInfoParams{
			ID:                account.ID,
			BillingDayOfMonth: billingDay,
			Cadence:           cadence,
			NextBillingDate:   nextBilling,
			ServiceStartDate:  serviceStart,
			PaymentMethod:     paymentMethod,
			GracePeriodDays:   graceDays,
			Standing:          standing,
			ExpectedVersion:   account.Version,
		})
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return domain.ErrConcurrentUpdate
			}
			return domain.Unavailable(err, op, "Failed to persist billing info")
		}

		updated, err = q.GetAccount(ctx, account.ID)
		if err != nil {
			return domain.Unavailable(err, op, "Failed to reload account")
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

// RefreshStanding recomputes an account's payment standing from the clock.
// A current -> late transition increments the late payment counter and
// records the configured flat fee.
func (s *accountService) RefreshStanding(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	const op = "account.refresh_standing"

	now := s.now()
	var updated domain.Account
	txErr := s.store.ExecTx(ctx, func(q repository.Querier) error {
		account, err := lockAccount(ctx, q, accountID, op)
		if err != nil {
			return err
		}

		standing := cycle.Lateness(
			account.BillingInfo.NextBillingDate,
			account.PaymentInfo.GracePeriodDays,
			account.BillingInfo.BalanceCents,
			account.PaymentInfo.LastPaymentDate,
			now,
		)
		if standing == account.PaymentInfo.Standing {
			updated = account
			return nil
		}

		lateCount := account.PaymentInfo.LatePaymentCount
		lateFees := account.PaymentInfo.TotalLateFeesCents
		if standing == domain.StandingLate {
			lateCount++
			lateFees += s.lateFeeCents
			if mb := telemetry.Business; mb != nil {
				mb.LateFeesAssessed.Inc()
				mb.LateFeeAmount.Add(float64(s.lateFeeCents))
			}
		}
		if mb := telemetry.Business; mb != nil {
			mb.StandingTransitions.WithLabelValues(
				string(account.PaymentInfo.Standing), string(standing)).Inc()
		}

		err = q.UpdateAccountReconciled(ctx, repository.UpdateAccountReconciledParams{
			ID:                     account.ID,
			BalanceCents:           account.BillingInfo.BalanceCents,
			Standing:               standing,
			NextBillingDate:        account.BillingInfo.NextBillingDate,
			LastPaymentDate:        account.PaymentInfo.LastPaymentDate,
			LastPaymentAmountCents: account.PaymentInfo.LastPaymentAmountCents,
			LatePaymentCount:       lateCount,
			TotalLateFeesCents:     lateFees,
			ExpectedVersion:        account.Version,
		})
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return domain.ErrConcurrentUpdate
			}
			return domain.Unavailable(err, op, "Failed to persist standing")
		}

		s.logger.Info("account standing changed",
			"account_id", account.ID,
			"from", string(account.PaymentInfo.Standing),
			"to", string(standing))

		updated, err = q.GetAccount(ctx, account.ID)
		if err != nil {
			return domain.Unavailable(err, op, "Failed to reload account")
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}
