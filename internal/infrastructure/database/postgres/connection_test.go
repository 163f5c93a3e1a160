package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MolForge/pkg/errors"
)

func testDBConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "molforge",
		Password: "pw",
		DBName:   "molforge",
		SSLMode:  "disable",
	}
}

func stubOpen(t *testing.T, db *sql.DB, openErr error) (gotDriver, gotDSN *string) {
	t.Helper()
	var driver, dsn string
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(d, s string) (*sql.DB, error) {
		driver, dsn = d, s
		return db, openErr
	}
	return &driver, &dsn
}

func TestNewConnection_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	driver, dsn := stubOpen(t, db, nil)
	mock.ExpectPing()

	conn, err := NewConnection(context.Background(), testDBConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, db, conn.DB())
	assert.Equal(t, "pgx", *driver)
	assert.Equal(t, "postgres://molforge:pw@localhost:5432/molforge?sslmode=disable", *dsn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	stubOpen(t, db, nil)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	conn, err := NewConnection(context.Background(), testDBConfig(), logging.NewNopLogger())
	assert.Nil(t, conn)
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.ErrCodeDatabaseError, appErr.Code)
	assert.Equal(t, "database connection failed", appErr.Message)
	assert.Contains(t, appErr.Cause.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_OpenFailure(t *testing.T) {
	stubOpen(t, nil, errors.New("open failed"))

	conn, err := NewConnection(context.Background(), testDBConfig(), logging.NewNopLogger())
	assert.Nil(t, conn)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestConnection_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectPing()
	assert.NoError(t, conn.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("timeout"))
	err = conn.HealthCheck(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_Close_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn := NewConnectionWithDB(db, logging.NewNopLogger())
	mock.ExpectClose()

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationFiles_Embedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_create_generation_history.up.sql")
	assert.Contains(t, names, "000001_create_generation_history.down.sql")
}
