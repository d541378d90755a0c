package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/events"
)

type stubRecordService struct {
	sweepCalls atomic.Int64
	sweepN     int
	sweepErr   error
}

func (s *stubRecordService) Reconcile(ctx context.Context, m domain.RecordMutation) (*domain.BillingRecord, error) {
	return nil, errors.New("not implemented")
}

func (s *stubRecordService) GetRecord(ctx context.Context, recordID uuid.UUID) (*domain.BillingRecord, error) {
	return nil, domain.ErrRecordNotFound
}

func (s *stubRecordService) ListRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.BillingRecord, error) {
	return nil, nil
}

func (s *stubRecordService) MarkRecordsOverdue(ctx context.Context) (int, error) {
	s.sweepCalls.Add(1)
	return s.sweepN, s.sweepErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRunSweepOnce(t *testing.T) {
	records := &stubRecordService{sweepN: 3}
	w := NewWorker(events.NewChanBus(), nil, records, Config{}, testLogger())

	n, err := w.RunSweepOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(1), records.sweepCalls.Load())
}

func TestStart_RunsSweepOnInterval(t *testing.T) {
	records := &stubRecordService{}
	bus := events.NewChanBus()
	defer bus.Close()

	w := NewWorker(bus, nil, records, Config{SweepInterval: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		return records.sweepCalls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestStart_SweepErrorDoesNotStopLoop(t *testing.T) {
	records := &stubRecordService{sweepErr: errors.New("db down")}
	bus := events.NewChanBus()
	defer bus.Close()

	w := NewWorker(bus, nil, records, Config{SweepInterval: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	require.Eventually(t, func() bool {
		return records.sweepCalls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}
