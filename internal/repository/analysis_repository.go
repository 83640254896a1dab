package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/temitopeohassan/perpraid/internal/models"
)

// Ошибки репозитория анализов
var (
	ErrAnalysisNotFound = errors.New("risk analysis not found")
	ErrInvalidAnalysis  = errors.New("invalid risk analysis")
)

// analysisSchema создает таблицу журнала, если ее нет
const analysisSchema = `
	CREATE TABLE IF NOT EXISTS risk_analyses (
		id                   BIGSERIAL PRIMARY KEY,
		wallet_address       VARCHAR(64)    NOT NULL,
		market               VARCHAR(32)    NOT NULL,
		side                 VARCHAR(8)     NOT NULL,
		size                 NUMERIC(36,18) NOT NULL,
		entry_price          NUMERIC(36,18) NOT NULL,
		leverage             NUMERIC(10,4)  NOT NULL,
		liquidation_price    NUMERIC(36,18) NOT NULL,
		margin_usage_percent NUMERIC(20,8)  NOT NULL,
		risk_score           SMALLINT       NOT NULL,
		recommendations      TEXT[]         NOT NULL DEFAULT '{}',
		source               VARCHAR(16)    NOT NULL,
		created_at           TIMESTAMPTZ    NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_risk_analyses_wallet_created
		ON risk_analyses (wallet_address, created_at DESC);`

const analysisColumns = `id, wallet_address, market, side, size, entry_price, leverage,
	liquidation_price, margin_usage_percent, risk_score, recommendations, source, created_at`

// AnalysisRepository - работа с таблицей risk_analyses
type AnalysisRepository struct {
	db *sql.DB
}

// NewAnalysisRepository создает новый экземпляр репозитория
func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// EnsureSchema создает таблицу и индекс при старте
func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, analysisSchema)
	return err
}

// Ping проверяет соединение с базой для /health
func (r *AnalysisRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create сохраняет анализ, заполняет ID и CreatedAt
func (r *AnalysisRepository) Create(ctx context.Context, a *models.RiskAnalysis) error {
	if a == nil || a.WalletAddress == "" || a.Market == "" {
		return ErrInvalidAnalysis
	}

	query := `
		INSERT INTO risk_analyses (wallet_address, market, side, size, entry_price, leverage,
			liquidation_price, margin_usage_percent, risk_score, recommendations, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	recommendations := a.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}

	return r.db.QueryRowContext(ctx, query,
		strings.ToLower(a.WalletAddress),
		strings.ToUpper(a.Market),
		a.Side,
		a.Size,
		a.EntryPrice,
		a.Leverage,
		a.LiquidationPrice,
		a.MarginUsagePercent,
		a.RiskScore,
		pq.Array(recommendations),
		a.Source,
		a.CreatedAt,
	).Scan(&a.ID)
}

// GetByID возвращает анализ кошелька по ID
func (r *AnalysisRepository) GetByID(ctx context.Context, wallet string, id int64) (*models.RiskAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM risk_analyses WHERE id = $1 AND wallet_address = $2`

	a, err := scanAnalysis(r.db.QueryRowContext(ctx, query, id, strings.ToLower(wallet)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListByWallet возвращает последние анализы кошелька, новые первыми
func (r *AnalysisRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]*models.RiskAnalysis, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM risk_analyses
		WHERE wallet_address = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, strings.ToLower(wallet), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := make([]*models.RiskAnalysis, 0, limit)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}

	return analyses, rows.Err()
}

// Stats агрегирует журнал кошелька начиная с since (нулевое время - вся история)
func (r *AnalysisRepository) Stats(ctx context.Context, wallet string, since time.Time) (*models.AnalysisStats, error) {
	wallet = strings.ToLower(wallet)
	stats := &models.AnalysisStats{
		WalletAddress: wallet,
		ByMarket:      []models.MarketCount{},
	}

	query := `
		SELECT COUNT(*), COALESCE(AVG(risk_score), 0), COALESCE(MAX(risk_score), 0), MAX(created_at)
		FROM risk_analyses
		WHERE wallet_address = $1 AND created_at >= $2`

	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, query, wallet, since).Scan(
		&stats.TotalAnalyses,
		&stats.AverageRiskScore,
		&stats.MaxRiskScore,
		&last,
	)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		stats.LastAnalysisAt = &last.Time
	}
	if stats.TotalAnalyses == 0 {
		return stats, nil
	}

	marketQuery := `
		SELECT market, COUNT(*) AS cnt
		FROM risk_analyses
		WHERE wallet_address = $1 AND created_at >= $2
		GROUP BY market
		ORDER BY cnt DESC, market ASC`

	rows, err := r.db.QueryContext(ctx, marketQuery, wallet, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mc models.MarketCount
		if err := rows.Scan(&mc.Market, &mc.Count); err != nil {
			return nil, err
		}
		stats.ByMarket = append(stats.ByMarket, mc)
	}

	return stats, rows.Err()
}

// DeleteOlderThan удаляет записи старше before, возвращает количество удаленных
func (r *AnalysisRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM risk_analyses WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*models.RiskAnalysis, error) {
	a := &models.RiskAnalysis{}
	var recommendations pq.StringArray
	err := row.Scan(
		&a.ID,
		&a.WalletAddress,
		&a.Market,
		&a.Side,
		&a.Size,
		&a.EntryPrice,
		&a.Leverage,
		&a.LiquidationPrice,
		&a.MarginUsagePercent,
		&a.RiskScore,
		&recommendations,
		&a.Source,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Recommendations = []string(recommendations)
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return a, nil
}
