package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// NextSequenceValue atomically increments and returns the counter for a
// scope ("account", "billing", "invoice:EU", ...). The upsert makes the
// fetch-and-increment a single statement, so concurrent callers can never
// observe the same value.
func (q *Queries) NextSequenceValue(ctx context.Context, scope string) (int64, error) {
	var value int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO sequences (scope, value)
		VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = sequences.value + 1
		RETURNING value`,
		scope,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %q: %w", scope, err)
	}
	return value, nil
}

// InsertMutationKeyParams records a processed mutation key and, for creates
// and updates, the record it produced.
type InsertMutationKeyParams struct {
	MutationKey string
	RecordID    uuid.UUID // zero for deletes
}

// InsertMutationKey registers an idempotency key. Returns ErrDuplicateKey if
// the mutation was already applied.
func (q *Queries) InsertMutationKey(ctx context.Context, params InsertMutationKeyParams) error {
	var recordID pgtype.UUID
	if params.RecordID != uuid.Nil {
		recordID = pgtype.UUID{Bytes: params.RecordID, Valid: true}
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO processed_mutations (mutation_key, record_id) VALUES ($1, $2)`,
		params.MutationKey, recordID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert mutation key: %w", err)
	}
	return nil
}

// GetMutationRecordID returns the record a previously applied mutation key
// produced. Returns uuid.Nil for delete mutations.
func (q *Queries) GetMutationRecordID(ctx context.Context, mutationKey string) (uuid.UUID, error) {
	var recordID pgtype.UUID
	err := q.db.QueryRow(ctx, `
		SELECT record_id FROM processed_mutations WHERE mutation_key = $1`,
		mutationKey,
	).Scan(&recordID)
	if err != nil {
		return uuid.Nil, err
	}
	if !recordID.Valid {
		return uuid.Nil, nil
	}
	return uuid.UUID(recordID.Bytes), nil
}
