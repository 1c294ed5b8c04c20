package provider

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func standingRows(providerID uuid.UUID, status Status, strikes int, tier string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"provider_id", "status", "strike_count", "tier", "timezone", "updated_at"}).
		AddRow(providerID, status, strikes, tier, "America/New_York", time.Now().UTC())
}

func TestEnsureCreatesThenReads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	mock.ExpectExec("INSERT INTO provider_standing").
		WithArgs(providerID, "P5").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT provider_id, status").
		WithArgs(providerID).
		WillReturnRows(standingRows(providerID, StatusActive, 0, "P5"))

	store := NewStore(mock)
	standing, err := store.Ensure(context.Background(), nil, providerID, "P5")
	require.NoError(t, err)

	assert.Equal(t, providerID, standing.ProviderID)
	assert.Equal(t, StatusActive, standing.Status)
	assert.Equal(t, "P5", standing.Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	mock.ExpectQuery("SELECT provider_id, status").
		WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows([]string{"provider_id", "status", "strike_count", "tier", "timezone", "updated_at"}))

	store := NewStore(mock)
	_, err = store.Get(context.Background(), nil, providerID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementStrikesReturnsNewCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	mock.ExpectQuery("UPDATE provider_standing").
		WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows([]string{"strike_count"}).AddRow(3))

	store := NewStore(mock)
	count, err := store.IncrementStrikes(context.Background(), nil, providerID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStrikesReactivates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	mock.ExpectExec("UPDATE provider_standing").
		WithArgs(providerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	require.NoError(t, store.ResetStrikes(context.Background(), nil, providerID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStrikesUnknownProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	mock.ExpectExec("UPDATE provider_standing").
		WithArgs(providerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock)
	assert.ErrorIs(t, store.ResetStrikes(context.Background(), nil, providerID), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStandingLocationFallsBackToUTC(t *testing.T) {
	st := Standing{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, st.Location())

	st.Timezone = "America/New_York"
	loc := st.Location()
	require.NotNil(t, loc)
	assert.Equal(t, "America/New_York", loc.String())
}
