package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInsertsEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "slots.open", "provider:abc", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	svc := NewService(db)
	actor := "abc"
	entry := Entry{ActorID: &actor, Action: "slots.open", Entity: "provider:abc"}
	require.NoError(t, entry.SetAfter(map[string]int{"opened": 2}))

	require.NoError(t, svc.Record(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDefaultsEmptyAfterState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), nil, "sweep.finished", "syncqueue", sqlmock.AnyArg(), []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	svc := NewService(db)
	err = svc.Record(context.Background(), Entry{Action: "sweep.finished", Entity: "syncqueue"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWithFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "actor_id", "action", "entity", "before_state", "after_state", "created_at"}).
		AddRow("6cf8f7cb-6e1c-4a9f-9c40-9a35e4a5f9d1", "actor-1", "slots.close", "provider:p1", nil, []byte(`{"closed":1}`), created)

	mock.ExpectQuery("SELECT id, actor_id, action, entity").
		WithArgs("provider:p1", "slots.close").
		WillReturnRows(rows)

	svc := NewService(db)
	entries, err := svc.Query(context.Background(), Filter{Entity: "provider:p1", Action: "slots.close", Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "slots.close", entries[0].Action)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, "actor-1", *entries[0].ActorID)
	assert.JSONEq(t, `{"closed":1}`, string(entries[0].AfterState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	mock.ExpectExec("DELETE FROM audit_log").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	svc := NewService(db)
	n, err := svc.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
