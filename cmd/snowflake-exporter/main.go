// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Command snowflake-exporter periodically queries Snowflake ACCOUNT_USAGE
// views and serves the results as Prometheus gauges.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/npcomplete777/snowflakeexporter/logger"
	"github.com/npcomplete777/snowflakeexporter/snowflakeexporter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("snowflake-exporter", pflag.ExitOnError)
	snowflakeexporter.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := snowflakeexporter.LoadConfig(fs)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Flush(log)

	exporter, err := snowflakeexporter.NewExporter(log, cfg)
	if err != nil {
		log.Error("Failed to create exporter", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := exporter.Run(ctx); err != nil {
		log.Error("Exporter stopped", zap.Error(err))
		return err
	}
	return nil
}
