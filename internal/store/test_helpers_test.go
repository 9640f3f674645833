package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/migrations"
)

const testDBURLKey = "DEVPILOT_TEST_DATABASE_URL"

const (
	testOwnerA = "11111111-1111-1111-1111-111111111111"
	testOwnerB = "22222222-2222-2222-2222-222222222222"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	connStr := os.Getenv(testDBURLKey)
	if connStr == "" {
		t.Skipf("set %s to a dedicated test database", testDBURLKey)
	}
	return connStr
}

func setupTestDatabase(t *testing.T, connStr string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	migrationDB, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	src, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	require.NoError(t, err)
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = m.Close()
	})

	err = m.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func ctxWithOwner(ownerID string) context.Context {
	return middleware.WithOwner(context.Background(), ownerID)
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func createTestClient(t *testing.T, db *sql.DB, ownerID, name string) string {
	t.Helper()
	client, err := NewClientStore(db).Create(ctxWithOwner(ownerID), ClientInput{Name: name})
	require.NoError(t, err)
	return client.ID
}

func createTestProject(t *testing.T, db *sql.DB, ownerID, name string) string {
	t.Helper()
	project, err := NewProjectStore(db).Create(ctxWithOwner(ownerID), ProjectInput{Name: name})
	require.NoError(t, err)
	return project.ID
}
