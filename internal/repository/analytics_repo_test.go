package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAnalyticsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, AnalyticsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresAnalyticsRepo(db, zap.NewNop())
	return db, mock, repo
}

func TestMonthlyTrends_ZeroFillConsecutiveMonths(t *testing.T) {
	db, mock, repo := setupAnalyticsRepo(t)
	defer db.Close()

	mock.ExpectQuery(`to_char\(date_trunc\('month', created_at\)`).
		WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"month", "total", "completed"}))

	trends, err := repo.MonthlyTrends(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, trends, 6)

	// 月份标签连续且不重复，月末日期运行也一样
	for i, tr := range trends {
		month, err := time.Parse("2006-01", tr.Month)
		require.NoError(t, err)
		if i > 0 {
			prev, err := time.Parse("2006-01", trends[i-1].Month)
			require.NoError(t, err)
			assert.Equal(t, prev.AddDate(0, 1, 0), month, "months must be consecutive")
		}
		assert.Equal(t, 0, tr.Total)
		assert.Equal(t, 0, tr.Completed)
	}

	// 序列以当前月份收尾
	assert.Equal(t, time.Now().Format("2006-01"), trends[5].Month)
}

func TestMonthlyTrends_MergesAggregatedRows(t *testing.T) {
	db, mock, repo := setupAnalyticsRepo(t)
	defer db.Close()

	current := time.Now().Format("2006-01")
	rows := sqlmock.NewRows([]string{"month", "total", "completed"}).
		AddRow(current, 9, 4)

	mock.ExpectQuery(`to_char\(date_trunc\('month', created_at\)`).
		WithArgs(3).
		WillReturnRows(rows)

	trends, err := repo.MonthlyTrends(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, trends, 3)
	assert.Equal(t, 0, trends[0].Total)
	assert.Equal(t, 9, trends[2].Total)
	assert.Equal(t, 4, trends[2].Completed)
}
