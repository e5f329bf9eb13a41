package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrderStore hands out pending orders until they are expired.
type fakeOrderStore struct {
	pending    []uuid.UUID
	failing    map[uuid.UUID]bool
	lastCutoff time.Time
	findErr    error
	expired    []uuid.UUID
}

func (f *fakeOrderStore) FindStaleUnpaid(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.lastCutoff = cutoff
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []models.Order
	for _, id := range f.pending {
		if len(out) == limit {
			break
		}
		out = append(out, models.Order{ID: id})
	}
	return out, nil
}

func (f *fakeOrderStore) ExpireUnpaid(_ context.Context, id uuid.UUID) (bool, error) {
	if f.failing[id] {
		return false, errors.New("db timeout")
	}
	for i, candidate := range f.pending {
		if candidate == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			f.expired = append(f.expired, id)
			return true, nil
		}
	}
	return false, nil
}

func newOrderExpiryJob(t *testing.T, store *fakeOrderStore, now time.Time) *orderExpiryJob {
	t.Helper()
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger: logger.Nop(),
		Finder: store,
		Orders: store,
		TTL:    2 * time.Hour,
	})
	require.NoError(t, err)
	impl := job.(*orderExpiryJob)
	impl.now = func() time.Time { return now }
	return impl
}

func TestOrderExpiryJobExpiresAcrossBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeOrderStore{}
	for i := 0; i < orderExpiryBatch+5; i++ {
		store.pending = append(store.pending, uuid.New())
	}
	job := newOrderExpiryJob(t, store, now)

	count, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, orderExpiryBatch+5, count)
	assert.Empty(t, store.pending)
	assert.Equal(t, now.Add(-2*time.Hour), store.lastCutoff)
}

func TestOrderExpiryJobContinuesPastFailures(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()
	store := &fakeOrderStore{
		pending: []uuid.UUID{bad, good},
		failing: map[uuid.UUID]bool{bad: true},
	}
	job := newOrderExpiryJob(t, store, time.Now())

	count, err := job.Run(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, []uuid.UUID{good}, store.expired)
	assert.Equal(t, []uuid.UUID{bad}, store.pending)
}

func TestOrderExpiryJobReturnsQueryErrors(t *testing.T) {
	store := &fakeOrderStore{findErr: errors.New("connection refused")}
	job := newOrderExpiryJob(t, store, time.Now())

	_, err := job.Run(context.Background())
	assert.Error(t, err)
}

func TestNewOrderExpiryJobValidatesParams(t *testing.T) {
	store := &fakeOrderStore{}
	_, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop(), Finder: store, Orders: store})
	assert.Error(t, err, "ttl required")
	_, err = NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.Nop(), TTL: time.Hour})
	assert.Error(t, err)
}
