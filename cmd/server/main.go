package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/temitopeohassan/perpraid/internal/api"
	"github.com/temitopeohassan/perpraid/internal/api/handlers"
	"github.com/temitopeohassan/perpraid/internal/config"
	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/repository"
	"github.com/temitopeohassan/perpraid/internal/risk"
	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/internal/websocket"
	"github.com/temitopeohassan/perpraid/pkg/ratelimit"
	"github.com/temitopeohassan/perpraid/pkg/retry"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// retentionInterval - период очистки старых анализов
const retentionInterval = time.Hour

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(cfg.Logging.LogConfig())
	defer func() { _ = logger.Sync() }()

	logger.Info("starting perpraid",
		utils.Network(cfg.Indexer.Network),
		utils.Int("port", cfg.Server.Port),
		utils.Bool("auth_required", cfg.Security.AuthRequired),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Политика риска и калькулятор
	policy, err := risk.LoadPolicy(cfg.Risk.PolicyFile)
	if err != nil {
		logger.Fatal("failed to load risk policy", utils.Err(err))
	}
	calc := risk.NewCalculator(policy)

	// Клиент индексера
	restURL, wsURL := indexer.Endpoints(cfg.Indexer.Network)
	if cfg.Indexer.BaseURL != "" {
		restURL = cfg.Indexer.BaseURL
	}
	if cfg.Indexer.WSURL != "" {
		wsURL = cfg.Indexer.WSURL
	}

	httpCfg := indexer.DefaultHTTPClientConfig()
	httpCfg.TotalTimeout = cfg.Indexer.Timeout

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Indexer.MaxRetries + 1

	client := indexer.NewClient(indexer.Config{
		Network:   cfg.Indexer.Network,
		BaseURL:   restURL,
		RateLimit: cfg.Indexer.RequestsPerSecond,
		Burst:     cfg.Indexer.Burst,
		Retry:     retryCfg,
		HTTP:      httpCfg,
	}, logger)
	defer client.Close()

	// Сервисы
	marketService := service.NewMarketService(client, policy, cfg.Indexer.MarketCacheTTL, logger)
	accountService := service.NewAccountService(client, marketService, calc, logger)

	var authService service.AuthServiceInterface
	if cfg.Security.JWTSecret != "" {
		authService = service.NewAuthService(cfg.Security.JWTSecret, cfg.Security.TokenTTL, logger)
	} else {
		logger.Warn("JWT_SECRET not set, wallet login disabled")
	}

	// Журнал анализов (опционально)
	var (
		repo       service.AnalysisRepositoryInterface
		dbPinger   handlers.Pinger
		analysisDB *repository.AnalysisRepository
	)
	if cfg.Database.Enabled {
		db, err := initDatabase(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database",
				utils.String("dsn", cfg.Database.DSNWithoutPassword()),
				utils.Err(err),
			)
		}
		defer db.Close()

		analysisDB = repository.NewAnalysisRepository(db)
		if err := analysisDB.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare database schema", utils.Err(err))
		}
		repo = analysisDB
		dbPinger = analysisDB
		logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))
	} else {
		logger.Info("database disabled, risk history unavailable")
	}

	riskService := service.NewRiskService(calc, marketService, accountService, repo, logger)

	// WebSocket hub
	hub := websocket.NewHub(cfg.Server.CORSOrigins, logger)
	go hub.Run()

	// Поток индексера и монитор риска
	var (
		stream       service.StreamSource
		streamHealth handlers.StreamState
	)
	if cfg.Indexer.StreamEnabled {
		s := indexer.NewStream(indexer.DefaultStreamConfig(wsURL), logger)
		stream = s
		streamHealth = s
	}

	monitor := service.NewMarketMonitor(stream, marketService, accountService, hub, service.MonitorConfig{
		Wallets:  cfg.Monitor.Wallets,
		Interval: cfg.Monitor.Interval,
		Workers:  cfg.Monitor.Workers,
	}, logger)
	go monitor.Start(ctx)

	// Лимит входящих запросов
	limiter := ratelimit.NewWindowLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go limiter.Start(ctx)

	// Очистка старых анализов
	if analysisDB != nil && cfg.Database.RetentionDays > 0 {
		go runRetention(ctx, analysisDB, cfg.Database.Retention(), logger)
	}

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		MarketService:  marketService,
		AccountService: accountService,
		RiskService:    riskService,
		AuthService:    authService,
		AuthRequired:   cfg.Security.AuthRequired,
		Stream:         hub,
		Limiter:        limiter,
		TrustProxy:     cfg.RateLimit.TrustProxy,
		Health: handlers.HealthConfig{
			Network:  cfg.Indexer.Network,
			Indexer:  client,
			Database: dbPinger,
			Stream:   streamHealth,
			Clients:  hub,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
		Debug: api.DebugConfig{
			Enabled:  cfg.Debug.Enabled,
			Username: cfg.Debug.Username,
			Password: cfg.Debug.Password,
		},
		Logger: logger,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("server listening", utils.String("addr", server.Addr), utils.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	// Останавливаем фоновые задачи после HTTP: новых подписок уже не будет
	cancel()
	monitor.Stop()
	hub.Stop()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runRetention удаляет анализы старше retention раз в retentionInterval
func runRetention(ctx context.Context, repo *repository.AnalysisRepository, retention time.Duration, logger *utils.Logger) {
	log := logger.WithComponent("retention")
	prune := func() {
		pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		deleted, err := repo.DeleteOlderThan(pruneCtx, time.Now().UTC().Add(-retention))
		if err != nil {
			log.Warn("failed to prune risk analyses", utils.Err(err))
			return
		}
		if deleted > 0 {
			log.Info("pruned risk analyses", utils.Int64("deleted", deleted))
		}
	}

	prune()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
