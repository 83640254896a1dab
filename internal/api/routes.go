package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/temitopeohassan/perpraid/internal/api/handlers"
	"github.com/temitopeohassan/perpraid/internal/api/middleware"
	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// StreamServer обслуживает websocket подключения /ws/stream
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// DebugConfig - доступ к /debug/pprof
type DebugConfig struct {
	Enabled  bool
	Username string
	Password string
}

// Dependencies содержит все зависимости для API handlers.
// Nil сервис означает, что его маршруты не регистрируются.
type Dependencies struct {
	MarketService  service.MarketServiceInterface
	AccountService service.AccountServiceInterface
	RiskService    service.RiskServiceInterface
	AuthService    service.AuthServiceInterface

	// AuthRequired требует JWT для кошельковых маршрутов.
	// Без него токен проверяется, только если передан.
	AuthRequired bool

	Stream  StreamServer
	Limiter middleware.RateLimiter

	// TrustProxy - IP для лимита берется из X-Forwarded-For (сервер за прокси)
	TrustProxy bool

	Health      handlers.HealthConfig
	CORSOrigins []string
	Debug       DebugConfig
	Logger      *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/ (rate limit по кошельку из токена или IP)
//
//	├── /markets/
//	│   ├── GET /list - список рынков
//	│   ├── GET /{market}/data - цены, funding, статистика 24ч
//	│   ├── GET /{market}/orderbook - стакан
//	│   └── GET /{market}/funding - история funding
//	├── /user/ (X-Wallet-Address или ?address=)
//	│   ├── GET /balance
//	│   ├── GET /positions
//	│   ├── GET /history
//	│   ├── GET /risk
//	│   └── GET /transactions
//	├── /risk/
//	│   ├── POST /liquidation-price
//	│   ├── POST /analyze (кошелек)
//	│   ├── POST /calculate (кошелек необязателен)
//	│   ├── GET /history (кошелек)
//	│   └── GET /stats (кошелек)
//	└── /auth/
//	    └── POST /login
//
// /ws/stream - WebSocket для real-time обновлений
// /health, /metrics, /debug/pprof/
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. Metrics (для всех маршрутов)
// 4. CORS (для всех маршрутов)
// 5. RateLimit (/api)
// 6. Auth и WalletAddress (кошельковые маршруты)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.L()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS(deps.CORSOrigins))

	// mux не запускает middleware при несовпадении метода: preflight OPTIONS попадает сюда
	router.MethodNotAllowedHandler = middleware.CORS(deps.CORSOrigins)(http.HandlerFunc(methodNotAllowed))

	// Создание handlers с внедрением зависимостей
	var marketHandler *handlers.MarketHandler
	if deps.MarketService != nil {
		marketHandler = handlers.NewMarketHandler(deps.MarketService, logger)
	}

	var userHandler *handlers.UserHandler
	if deps.AccountService != nil {
		userHandler = handlers.NewUserHandler(deps.AccountService, logger)
	}

	var riskHandler *handlers.RiskHandler
	if deps.RiskService != nil {
		riskHandler = handlers.NewRiskHandler(deps.RiskService, logger)
	}

	var authHandler *handlers.AuthHandler
	if deps.AuthService != nil {
		authHandler = handlers.NewAuthHandler(deps.AuthService, logger)
	}

	// Проверка токена для кошельковых маршрутов
	authMiddleware := passthrough
	if deps.AuthService != nil {
		if deps.AuthRequired {
			authMiddleware = middleware.Auth(deps.AuthService, logger)
		} else {
			authMiddleware = middleware.OptionalAuth(deps.AuthService, logger)
		}
	}

	api := router.PathPrefix("/api").Subrouter()
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter, middleware.RateLimitOptions{
			Tokens:     deps.AuthService,
			TrustProxy: deps.TrustProxy,
		}, logger))
	}

	// Market routes
	if marketHandler != nil {
		api.HandleFunc("/markets/list", marketHandler.ListMarkets).Methods("GET")
		api.HandleFunc("/markets/{market}/data", marketHandler.GetMarketData).Methods("GET")
		api.HandleFunc("/markets/{market}/orderbook", marketHandler.GetOrderbook).Methods("GET")
		api.HandleFunc("/markets/{market}/funding", marketHandler.GetFundingHistory).Methods("GET")
	}

	// User routes
	if userHandler != nil {
		user := api.PathPrefix("/user").Subrouter()
		user.Use(authMiddleware)
		user.Use(middleware.WalletAddress(true))

		user.HandleFunc("/balance", userHandler.GetBalance).Methods("GET")
		user.HandleFunc("/positions", userHandler.GetPositions).Methods("GET")
		user.HandleFunc("/history", userHandler.GetTradeHistory).Methods("GET")
		user.HandleFunc("/risk", userHandler.GetAccountRisk).Methods("GET")
		user.HandleFunc("/transactions", userHandler.GetTransactions).Methods("GET")
	}

	// Risk routes
	if riskHandler != nil {
		withWallet := func(h http.HandlerFunc) http.Handler {
			return authMiddleware(middleware.WalletAddress(true)(h))
		}
		withOptionalWallet := func(h http.HandlerFunc) http.Handler {
			return authMiddleware(middleware.WalletAddress(false)(h))
		}

		api.HandleFunc("/risk/liquidation-price", riskHandler.LiquidationPrice).Methods("POST")
		api.Handle("/risk/analyze", withWallet(riskHandler.Analyze)).Methods("POST")
		api.Handle("/risk/calculate", withOptionalWallet(riskHandler.Calculate)).Methods("POST")
		api.Handle("/risk/history", withWallet(riskHandler.GetHistory)).Methods("GET")
		api.Handle("/risk/stats", withWallet(riskHandler.GetStats)).Methods("GET")
	}

	// Auth routes
	if authHandler != nil {
		api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	}

	// WebSocket route
	if deps.Stream != nil {
		router.HandleFunc("/ws/stream", deps.Stream.ServeWS).Methods("GET")
	}

	// Health check и метрики
	healthHandler := handlers.NewHealthHandler(deps.Health, logger)
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// pprof под basic auth
	if deps.Debug.Enabled {
		debug := router.PathPrefix("/debug/pprof").Subrouter()
		debug.Use(middleware.DebugAuth(deps.Debug.Username, deps.Debug.Password))
		debug.HandleFunc("/cmdline", pprof.Cmdline)
		debug.HandleFunc("/profile", pprof.Profile)
		debug.HandleFunc("/symbol", pprof.Symbol)
		debug.HandleFunc("/trace", pprof.Trace)
		debug.PathPrefix("/").HandlerFunc(pprof.Index)
	}

	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(`{"error":"Method not allowed"}`))
}

func passthrough(next http.Handler) http.Handler {
	return next
}
