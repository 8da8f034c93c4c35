package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HandlerOptions configures the log core.
type HandlerOptions struct {
	Level     zapcore.LevelEnabler
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
}

// NewCore creates the appropriate zap core based on options.
func NewCore(opts HandlerOptions) zapcore.Core {
	if opts.Output == nil {
		opts.Output = os.Stderr // Always stderr, never stdout
	}
	if opts.Level == nil {
		opts.Level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = encodeLevelName

	var enc zapcore.Encoder
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(opts.Output), opts.Level)
}

// newLogger builds a sugared logger around a core.
func newLogger(opts HandlerOptions) *zap.SugaredLogger {
	var zopts []zap.Option
	if opts.AddSource {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return zap.New(NewCore(opts), zopts...).Sugar()
}

// encodeLevelName customizes level display (TRACE, etc.).
func encodeLevelName(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(LevelName(l))
}

// discard is a logger that drops every entry.
var discard = zap.NewNop().Sugar()
