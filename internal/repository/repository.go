// Package repository is the hand-written persistence layer over pgx.
// Queries follow the sqlc shape: one method per statement with a params
// struct, returning domain types. All balance-affecting writes run inside a
// single transaction via Store.ExecTx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/tally/internal/domain"
)

// Sentinel errors surfaced by the persistence layer. Services translate
// these into domain error codes.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = pgx.ErrNoRows

	// ErrDuplicateKey is returned on unique-constraint violations
	// (duplicate email, replayed mutation key).
	ErrDuplicateKey = errors.New("repository: duplicate key")

	// ErrVersionConflict is returned when a compare-and-swap write matched
	// zero rows because the account version moved underneath it.
	ErrVersionConflict = errors.New("repository: version conflict")
)

// DBTX abstracts over a pgx pool and a transaction so the same query code
// runs in both contexts.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the full query surface. The reconciler and services depend on
// this interface, never on *Queries, so tests can substitute a fake.
type Querier interface {
	CreateAccount(ctx context.Context, params CreateAccountParams) (domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	ListAccounts(ctx context.Context, params ListAccountsParams) ([]domain.Account, error)
	UpdateAccountReconciled(ctx context.Context, params UpdateAccountReconciledParams) error
	UpdateAccountBillingInfo(ctx context.Context, params UpdateAccountBillingInfoParams) error

	CreateBillingRecord(ctx context.Context, params CreateBillingRecordParams) (domain.BillingRecord, error)
	GetBillingRecord(ctx context.Context, id uuid.UUID) (domain.BillingRecord, error)
	GetBillingRecordForUpdate(ctx context.Context, id uuid.UUID) (domain.BillingRecord, error)
	ListBillingRecordsForAccount(ctx context.Context, params ListBillingRecordsForAccountParams) ([]domain.BillingRecord, error)
	UpdateBillingRecord(ctx context.Context, params UpdateBillingRecordParams) (domain.BillingRecord, error)
	UpdateBillingRecordStatus(ctx context.Context, params UpdateBillingRecordStatusParams) error
	DeleteBillingRecord(ctx context.Context, id uuid.UUID) error
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]domain.BillingRecord, error)
	SumRecordContributions(ctx context.Context, accountID uuid.UUID) (int64, error)

	NextSequenceValue(ctx context.Context, scope string) (int64, error)
	InsertMutationKey(ctx context.Context, params InsertMutationKeyParams) error
	GetMutationRecordID(ctx context.Context, mutationKey string) (uuid.UUID, error)
}

// Store is a Querier that can also run a function inside a transaction.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
}

// Queries executes statements against a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// SQLStore wraps a pgx pool with transaction support.
type SQLStore struct {
	pool *pgxpool.Pool
	*Queries
}

// Compile-time check that SQLStore implements Store.
var _ Store = (*SQLStore)(nil)

// NewStore creates a Store over a pgx connection pool.
func NewStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{
		pool:    pool,
		Queries: New(pool),
	}
}

// ExecTx runs fn inside a database transaction. A non-nil error from fn
// rolls the transaction back; otherwise it commits.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
