package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig - настройки логгера
type LogConfig struct {
	// Level - debug, info, warn, error, fatal
	Level string

	// Format - json (production) или text (консоль)
	Format string

	// Output - stdout, stderr или путь к файлу
	Output string

	// Development включает stacktrace на warn и caller
	Development bool

	// Ротация файлов (только для Output = путь к файлу).
	// MaxSizeMB = 0 отключает ротацию: файл открывается в режиме append.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger - структурированный логгер на базе zap
//
// Встраивает *zap.Logger, поэтому доступны Info/Warn/Error/With напрямую.
// Для printf-стиля используется Sugar().
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создает логгер по конфигурации
//
// Пустая конфигурация дает json/info в stdout.
// Если файл не открывается, логгер пишет в stderr и не падает.
func InitLogger(cfg LogConfig) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg), zap.NewAtomicLevelAt(parseLevel(cfg.Level)))

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	base := zap.New(core, opts...)
	return &Logger{Logger: base, sugar: base.Sugar()}
}

// openOutput выбирает writer для логов
func openOutput(cfg LogConfig) zapcore.WriteSyncer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	if cfg.MaxSizeMB > 0 {
		// lumberjack сам создает файл при первой записи,
		// поэтому доступность директории проверяем заранее
		if err := checkWritable(cfg.Output); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v, falling back to stderr\n", err)
			return zapcore.Lock(os.Stderr)
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: cannot open %s: %v, falling back to stderr\n", cfg.Output, err)
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.Lock(f)
}

func checkWritable(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	return f.Close()
}

// parseLevel переводит строку в уровень zap, неизвестное значение дает info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

// InitGlobalLogger создает логгер и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger заменяет глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер, создавая логгер по умолчанию при первом вызове
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent - логгер подсистемы (indexer, monitor, api)
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithMarket - логгер конкретного рынка
func (l *Logger) WithMarket(market string) *Logger {
	return l.With(Market(market))
}

// WithWallet - логгер конкретного кошелька
func (l *Logger) WithWallet(address string) *Logger {
	return l.With(Wallet(address))
}

// WithRequestID - логгер HTTP запроса
func (l *Logger) WithRequestID(id string) *Logger {
	return l.With(RequestID(id))
}

// Sugar возвращает printf-логгер
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }

// ============================================================
// Доменные конструкторы полей
// ============================================================

func Market(market string) zap.Field     { return zap.String("market", market) }
func Wallet(address string) zap.Field    { return zap.String("wallet", address) }
func Side(side string) zap.Field         { return zap.String("side", side) }
func Price(price string) zap.Field       { return zap.String("price", price) }
func Size(size string) zap.Field         { return zap.String("size", size) }
func Leverage(leverage string) zap.Field { return zap.String("leverage", leverage) }
func RiskScore(score int) zap.Field      { return zap.Int("risk_score", score) }
func Network(network string) zap.Field   { return zap.String("network", network) }
func RequestID(id string) zap.Field      { return zap.String("request_id", id) }
func Component(name string) zap.Field    { return zap.String("component", name) }
func Method(method string) zap.Field     { return zap.String("method", method) }
func Path(path string) zap.Field         { return zap.String("path", path) }
func Status(code int) zap.Field          { return zap.Int("status", code) }
func Latency(ms float64) zap.Field       { return zap.Float64("latency_ms", ms) }

// Переэкспорт стандартных конструкторов zap, чтобы пакеты не импортировали zap ради полей

func String(key, value string) zap.Field          { return zap.String(key, value) }
func Int(key string, value int) zap.Field         { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field     { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field       { return zap.Bool(key, value) }
func Duration(key string, d time.Duration) zap.Field {
	return zap.Duration(key, d)
}
func Err(err error) zap.Field                     { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }
