package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Init runs.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

// Init 初始化生产环境 logger，level 为 debug/info/warn/error
func Init(level string) {
	cfg := zap.NewProductionConfig()

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}
