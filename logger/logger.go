// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger builds the process-wide zap logger: JSON on stdout with
// ISO-8601 timestamps and capitalised levels.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at level. Accepted levels (case-insensitive) are
// "debug", "info", "warn" and "error".
func New(level string) (*zap.Logger, error) {
	return newWithSink(level, zapcore.Lock(zapcore.AddSync(os.Stdout)))
}

func newWithSink(level string, sink zapcore.WriteSyncer) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zapLevel)
	return zap.New(core, zap.AddCaller()), nil
}

// Flush writes out buffered entries. Sync on a console fd can fail with
// EINVAL, which is harmless and ignored.
func Flush(l *zap.Logger) {
	_ = l.Sync()
}
