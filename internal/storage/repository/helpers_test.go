package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/habit-tracker/internal/migrations"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("habits"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, storage))
	return storage
}

// testDataFactory создает тестовые данные напрямую в БД.
type testDataFactory struct {
	storage *Storage
}

func newTestDataFactory(storage *Storage) *testDataFactory {
	return &testDataFactory{storage: storage}
}

func (f *testDataFactory) user(t *testing.T, telegramID int64) *models.User {
	t.Helper()
	u, err := f.storage.UpsertUser(context.Background(), telegramID, nil)
	require.NoError(t, err)
	return u
}

func (f *testDataFactory) premiumUser(t *testing.T, telegramID int64, expires time.Time) *models.User {
	t.Helper()
	u := f.user(t, telegramID)
	require.NoError(t, f.storage.ActivateSubscription(context.Background(), u.ID, time.Now(), expires))
	u, err := f.storage.GetUserByTelegramID(context.Background(), telegramID)
	require.NoError(t, err)
	return u
}

func (f *testDataFactory) habit(t *testing.T, userID int64, name string) *models.Habit {
	t.Helper()
	h, err := f.storage.CreateHabit(context.Background(), userID, models.HabitDraft{Name: name})
	require.NoError(t, err)
	return h
}

func strPtr(s string) *string {
	return &s
}
