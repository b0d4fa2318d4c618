package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedauth/internal/audit"
	"sharedauth/internal/auth/models"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestStore_Append(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserts event with metadata", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
			WithArgs("01HV", "sign_in", "u1", sqlmock.AnyArg(), "admin", sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				[]byte(`{"provider":"google"}`), ts).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Append(context.Background(), audit.Event{
			ID:        "01HV",
			Type:      audit.EventSignIn,
			UserID:    "u1",
			AppType:   models.AppAdmin,
			Timestamp: ts,
			Metadata:  map[string]string{"provider": "google"},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil metadata stored as empty object", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("{}"), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Append(context.Background(), audit.Event{ID: "x", Type: audit.EventMigration, Timestamp: ts}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).WillReturnError(errors.New("connection reset"))

		err := store.Append(context.Background(), audit.Event{ID: "x", Type: audit.EventSignIn, Timestamp: ts})
		assert.ErrorContains(t, err, "insert audit event")
	})
}

func TestStore_ListByUser(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "type", "user_id", "email", "app_type", "session_id",
		"ip", "user_agent", "request_id", "error", "metadata", "occurred_at",
	}).
		AddRow("02", "sign_out", "u1", nil, "partner", "s1", nil, nil, nil, nil, []byte(`{}`), ts).
		AddRow("01", "sign_in", "u1", "u1@example.com", "partner", "s1", "10.0.0.0", nil, "req", nil, []byte(`{"provider":"google"}`), ts.Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_events")).
		WithArgs("u1", int32(50)).
		WillReturnRows(rows)

	events, err := store.ListByUser(context.Background(), "u1", 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventSignOut, events[0].Type)
	assert.Nil(t, events[0].Metadata)
	assert.Empty(t, events[0].Email)
	assert.Equal(t, "google", events[1].Metadata["provider"])
	assert.Equal(t, models.AppPartner, events[1].AppType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureSchema(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
