package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dolphinpod/internal/apperr"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestInsertUsageLogsCountsOnlyInsertedRows(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewUsageStore(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "usage_logs" .* ON CONFLICT \("user_id","package_name","first_time_stamp"\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	// Conflicting row: the database returns nothing.
	mock.ExpectQuery(`INSERT INTO "usage_logs" .* ON CONFLICT .* DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	logs := []UsageLog{
		{UserID: 1, PackageName: "com.a", FirstTimeStamp: 1000, LastTimeStamp: 2000, IsNightMode: true},
		{UserID: 1, PackageName: "com.b", FirstTimeStamp: 1000, LastTimeStamp: 2000},
	}
	n, err := store.InsertUsageLogs(context.Background(), logs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint(10), logs[0].ID)
	assert.Zero(t, logs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUsageLogsRollsBackOnError(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewUsageStore(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "usage_logs"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.InsertUsageLogs(context.Background(), []UsageLog{
		{UserID: 1, PackageName: "com.a", FirstTimeStamp: 1000, LastTimeStamp: 2000},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "com.a@1000")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserNotFound(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewUsageStore(gdb)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE "users"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindUser(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserFound(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewUsageStore(gdb)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "nickname", "timezone"}).
			AddRow(5, "a@b.c", "a", "Asia/Seoul"))

	u, err := store.FindUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)
	assert.Equal(t, "Asia/Seoul", u.Timezone)
}

func TestFindUsageLogNotFound(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewUsageStore(gdb)

	mock.ExpectQuery(`SELECT \* FROM "usage_logs" WHERE user_id = \$1 AND package_name = \$2 AND first_time_stamp = \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindUsageLog(context.Background(), 1, "com.a", 1000)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
