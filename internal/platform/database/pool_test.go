package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedauth/internal/platform/config"
	"sharedauth/pkg/platform/sentinel"
)

func TestNew_WithoutURLKeepsAuditInMemory(t *testing.T) {
	pool, err := New(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.NoError(t, pool.Close())
	assert.ErrorIs(t, pool.Health(context.Background()), sentinel.ErrUnavailable)
}

func TestNew_RejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{URL: "postgres://user@host:notaport/db"})
	assert.ErrorContains(t, err, "parse database URL")
}

func TestConnConfig_TagsApplicationName(t *testing.T) {
	cfg, err := connConfig("postgres://audit@localhost:5432/sharedauth")
	require.NoError(t, err)
	assert.Equal(t, "shared-auth", cfg.RuntimeParams["application_name"])
	assert.Equal(t, "sharedauth", cfg.Database)

	cfg, err = connConfig("postgres://audit@localhost:5432/sharedauth?application_name=audit-replay")
	require.NoError(t, err)
	assert.Equal(t, "audit-replay", cfg.RuntimeParams["application_name"])
}

func TestPool_Health(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	pool := &Pool{db: db}

	mock.ExpectPing()
	assert.NoError(t, pool.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	err = pool.Health(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.ErrorContains(t, err, "connection reset")

	mock.ExpectClose()
	require.NoError(t, pool.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
