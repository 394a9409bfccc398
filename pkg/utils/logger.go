// Package utils provides the structured logger and its domain field
// constructors shared across the engine.
package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls how InitLogger builds a Logger.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json or text
	Development bool
	Output      string // file path; empty means stderr
}

// Logger wraps a zap.Logger with a sugared companion and domain field
// constructors used throughout the engine.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

// parseLevel maps a textual level to a zapcore.Level, defaulting to Info
// for anything unrecognized (including an empty string).
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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

// InitLogger builds a Logger from cfg. It never returns nil: a bad output
// path falls back to stderr rather than failing startup.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output == "" {
		sink = zapcore.AddSync(os.Stderr)
	} else {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			sink = zapcore.AddSync(os.Stderr)
		} else {
			sink = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// GetGlobalLogger returns the process-wide logger, lazily initializing it
// with defaults on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger builds a Logger from cfg, installs it as the global
// logger, and returns it.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L is shorthand for GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// With returns a new Logger with the given fields attached.
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func (l *Logger) WithComponent(component string) *Logger   { return l.With(Component(component)) }
func (l *Logger) WithExchange(venue string) *Logger         { return l.With(Exchange(venue)) }
func (l *Logger) WithSymbol(symbol string) *Logger          { return l.With(Symbol(symbol)) }
func (l *Logger) WithPairID(id int) *Logger                 { return l.With(PairID(id)) }
func (l *Logger) WithCycleID(id string) *Logger             { return l.With(CycleID(id)) }

// Sugar returns the printf-style companion logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Global logging helpers delegate to the global logger.

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Logger.Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetGlobalLogger().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(format, args...) }

// Domain field constructors. Venue/exchange naming is kept as "Exchange"
// to match the teacher's established vocabulary; cycle-specific
// constructors (CycleID, NetPct, Delta) are additions for this domain.

func Exchange(name string) zap.Field       { return zap.String("exchange", name) }
func Symbol(symbol string) zap.Field       { return zap.String("symbol", symbol) }
func PairID(id int) zap.Field              { return zap.Int("pair_id", id) }
func CycleID(id string) zap.Field          { return zap.String("cycle_id", id) }
func OrderID(id string) zap.Field          { return zap.String("order_id", id) }
func Price(price float64) zap.Field        { return zap.Float64("price", price) }
func Volume(volume float64) zap.Field      { return zap.Float64("volume", volume) }
func Spread(spread float64) zap.Field      { return zap.Float64("spread", spread) }
func NetPct(pct float64) zap.Field         { return zap.Float64("net_pct", pct) }
func PNL(pnl float64) zap.Field            { return zap.Float64("pnl", pnl) }
func Delta(delta float64) zap.Field        { return zap.Float64("delta", delta) }
func Side(side string) zap.Field           { return zap.String("side", side) }
func State(state string) zap.Field         { return zap.String("state", state) }
func Latency(ms float64) zap.Field         { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field        { return zap.String("request_id", id) }
func UserID(id int) zap.Field              { return zap.Int("user_id", id) }
func Component(component string) zap.Field { return zap.String("component", component) }

// Re-exported zap field constructors so callers only need to import this
// package for both logging and field construction.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)

// fieldsToInterface flattens zap fields into alternating key/value pairs
// in their original order, for code paths that hand fields to a
// printf-style sink instead of a structured one.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}
