package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/models"
)

// ============================================================
// AnalysisRepository Tests
// ============================================================

const testWallet = "dydx1e2tczyk2rw7u47kzxxee5g7ufkncdmlc7c779v"

func newMockRepo(t *testing.T) (*AnalysisRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	return NewAnalysisRepository(db), mock, func() { db.Close() }
}

var analysisRowColumns = []string{
	"id", "wallet_address", "market", "side", "size", "entry_price", "leverage",
	"liquidation_price", "margin_usage_percent", "risk_score", "recommendations", "source", "created_at",
}

func TestNewAnalysisRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewAnalysisRepository(db)
	if repo == nil {
		t.Fatal("NewAnalysisRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestAnalysisRepositoryEnsureSchema(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS risk_analyses`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAnalysisRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		analysis    *models.RiskAnalysis
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
		expectID    int64
	}{
		{
			name: "success normalizes wallet and market",
			analysis: &models.RiskAnalysis{
				WalletAddress:      "DYDX1E2TCZYK2RW7U47KZXXEE5G7UFKNCDMLC7C779V",
				Market:             "btc-usd",
				Side:               "LONG",
				Size:               decimal.RequireFromString("1"),
				EntryPrice:         decimal.RequireFromString("50000"),
				Leverage:           decimal.RequireFromString("10"),
				LiquidationPrice:   decimal.RequireFromString("46500"),
				MarginUsagePercent: decimal.RequireFromString("50"),
				RiskScore:          40,
				Recommendations:    []string{"High risk profile - monitor position closely"},
				Source:             models.AnalysisSourceAnalyze,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO risk_analyses`).
					WithArgs(testWallet, "BTC-USD", "LONG",
						decimal.RequireFromString("1"), decimal.RequireFromString("50000"), decimal.RequireFromString("10"),
						decimal.RequireFromString("46500"), decimal.RequireFromString("50"), 40,
						`{"High risk profile - monitor position closely"}`, "analyze", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
			},
			expectID: 7,
		},
		{
			name: "nil recommendations stored as empty array",
			analysis: &models.RiskAnalysis{
				WalletAddress: testWallet,
				Market:        "ETH-USD",
				Side:          "SHORT",
				Source:        models.AnalysisSourceCalculate,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO risk_analyses`).
					WithArgs(testWallet, "ETH-USD", "SHORT",
						sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
						0, "{}", "calculate", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
			},
			expectID: 8,
		},
		{
			name:        "missing wallet",
			analysis:    &models.RiskAnalysis{Market: "BTC-USD"},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectError: ErrInvalidAnalysis,
		},
		{
			name: "database error",
			analysis: &models.RiskAnalysis{
				WalletAddress: testWallet,
				Market:        "BTC-USD",
				Side:          "LONG",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO risk_analyses`).
					WillReturnError(errors.New("connection refused"))
			},
			expectError: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, done := newMockRepo(t)
			defer done()

			tt.mockSetup(mock)

			err := repo.Create(context.Background(), tt.analysis)

			if tt.expectError != nil {
				if err == nil {
					t.Errorf("expected error %v, got nil", tt.expectError)
				} else if tt.expectError == ErrInvalidAnalysis && !errors.Is(err, ErrInvalidAnalysis) {
					t.Errorf("expected ErrInvalidAnalysis, got %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if tt.analysis.ID != tt.expectID {
					t.Errorf("expected ID %d, got %d", tt.expectID, tt.analysis.ID)
				}
				if tt.analysis.CreatedAt.IsZero() {
					t.Error("CreatedAt was not set")
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAnalysisRepositoryListByWallet(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(analysisRowColumns).
		AddRow(2, testWallet, "ETH-USD", "SHORT", "2", "2500", "5", "2950", "25", 30,
			[]byte(`{"Position risk is within acceptable parameters"}`), "analyze", now).
		AddRow(1, testWallet, "BTC-USD", "LONG", "0.5", "50000", "15", "48300", "85", 80,
			[]byte(`{"Consider reducing leverage to manage risk","High margin usage - consider adding funds or reducing position size"}`), "calculate", now.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM risk_analyses`)).
		WithArgs(testWallet, 10).
		WillReturnRows(rows)

	analyses, err := repo.ListByWallet(context.Background(), "DYDX1E2TCZYK2RW7U47KZXXEE5G7UFKNCDMLC7C779V", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(analyses))
	}
	if analyses[0].ID != 2 || analyses[0].Market != "ETH-USD" {
		t.Errorf("unexpected first analysis: %+v", analyses[0])
	}
	if !analyses[1].LiquidationPrice.Equal(decimal.RequireFromString("48300")) {
		t.Errorf("expected liquidation price 48300, got %s", analyses[1].LiquidationPrice)
	}
	if len(analyses[1].Recommendations) != 2 {
		t.Errorf("expected 2 recommendations, got %v", analyses[1].Recommendations)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAnalysisRepositoryListByWallet_Empty(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(`FROM risk_analyses`).
		WithArgs(testWallet, 50).
		WillReturnRows(sqlmock.NewRows(analysisRowColumns))

	analyses, err := repo.ListByWallet(context.Background(), testWallet, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analyses == nil || len(analyses) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", analyses)
	}
}

func TestAnalysisRepositoryGetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock, done := newMockRepo(t)
		defer done()

		mock.ExpectQuery(`FROM risk_analyses WHERE id = \$1 AND wallet_address = \$2`).
			WithArgs(int64(5), testWallet).
			WillReturnRows(sqlmock.NewRows(analysisRowColumns).
				AddRow(5, testWallet, "SOL-USD", "LONG", "10", "100", "3", "70", "10", 20, []byte(`{}`), "analyze", time.Now()))

		a, err := repo.GetByID(context.Background(), testWallet, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.Market != "SOL-USD" || a.RiskScore != 20 {
			t.Errorf("unexpected analysis: %+v", a)
		}
		if a.Recommendations == nil {
			t.Error("expected non-nil recommendations")
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, done := newMockRepo(t)
		defer done()

		mock.ExpectQuery(`FROM risk_analyses`).
			WithArgs(int64(99), testWallet).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), testWallet, 99)
		if !errors.Is(err, ErrAnalysisNotFound) {
			t.Errorf("expected ErrAnalysisNotFound, got %v", err)
		}
	})
}

func TestAnalysisRepositoryStats(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	since := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	last := since.Add(5 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(AVG\(risk_score\), 0\)`).
		WithArgs(testWallet, since).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "max", "last"}).AddRow(3, 43.33, 80, last))

	mock.ExpectQuery(`GROUP BY market`).
		WithArgs(testWallet, since).
		WillReturnRows(sqlmock.NewRows([]string{"market", "cnt"}).
			AddRow("BTC-USD", 2).
			AddRow("ETH-USD", 1))

	stats, err := repo.Stats(context.Background(), testWallet, since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.TotalAnalyses != 3 || stats.MaxRiskScore != 80 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.LastAnalysisAt == nil || !stats.LastAnalysisAt.Equal(last) {
		t.Errorf("expected last analysis %v, got %v", last, stats.LastAnalysisAt)
	}
	if len(stats.ByMarket) != 2 || stats.ByMarket[0].Market != "BTC-USD" || stats.ByMarket[0].Count != 2 {
		t.Errorf("unexpected by market: %+v", stats.ByMarket)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAnalysisRepositoryStats_NoRows(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(testWallet, time.Time{}).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "max", "last"}).AddRow(0, 0.0, 0, nil))

	stats, err := repo.Stats(context.Background(), testWallet, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalAnalyses != 0 || stats.LastAnalysisAt != nil {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ByMarket == nil {
		t.Error("expected non-nil ByMarket")
	}

	// второй запрос не выполняется
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAnalysisRepositoryDeleteOlderThan(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	before := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM risk_analyses WHERE created_at < \$1`).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := repo.DeleteOlderThan(context.Background(), before)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 12 {
		t.Errorf("expected 12 deleted rows, got %d", deleted)
	}
}

func TestAnalysisRepositoryPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("db down"))

	repo := NewAnalysisRepository(db)
	if err := repo.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}
