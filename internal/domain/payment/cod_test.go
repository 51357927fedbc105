package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCODConfirm(t *testing.T) {
	repo := newFakeRepo()
	rec := newTestRecord(t, repo, MethodCOD)
	c := NewCODStrategy(repo)
	ctx := context.Background()

	got, err := c.Confirm(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, inr(30390), got.Amount)
	st, err := got.COD()
	require.NoError(t, err)
	assert.True(t, st.Confirmed)
}

func TestCODConfirm_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	rec := newTestRecord(t, repo, MethodCOD)
	c := NewCODStrategy(repo)
	ctx := context.Background()

	first, err := c.Confirm(ctx, rec.ID)
	require.NoError(t, err)

	second, err := c.Confirm(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestCODConfirm_Expired(t *testing.T) {
	repo := newFakeRepo()
	rec := newTestRecord(t, repo, MethodCOD)
	c := NewCODStrategy(repo)
	ctx := context.Background()

	_, err := repo.Update(ctx, rec.ID, func(r *Record) error {
		return r.Transition(StatusExpired, time.Now())
	})
	require.NoError(t, err)

	_, err = c.Confirm(ctx, rec.ID)
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusExpired, trErr.From)
	assert.Equal(t, ClassConflict, Classify(err))
}

func TestCODConfirm_NotFound(t *testing.T) {
	c := NewCODStrategy(newFakeRepo())
	_, err := c.Confirm(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
