// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Connector opens one warehouse session per collection cycle.
type Connector interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a single connection with its database/schema context. It is
// owned by exactly one cycle.
type Session interface {
	Exec(ctx context.Context, stmt string) error
	Query(ctx context.Context, query string) (*sql.Rows, error)
	Close() error
}

type openFunc func(driverName, dsn string) (*sql.DB, error)

type snowflakeConnector struct {
	logger      *zap.Logger
	config      *Config
	rateLimiter *rate.Limiter
	open        openFunc
}

func newSnowflakeConnector(logger *zap.Logger, config *Config) *snowflakeConnector {
	qps := config.GetRateLimitQPS()

	return &snowflakeConnector{
		logger:      logger,
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Limit(qps), qps),
		open:        sql.Open,
	}
}

func buildDSN(config *Config) (string, error) {
	cfg := &sf.Config{
		Account:   config.Account,
		User:      config.User,
		Password:  config.Password,
		Database:  config.Database,
		Schema:    config.Schema,
		Warehouse: config.Warehouse,
		Role:      config.Role,
	}

	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create DSN: %w", err)
	}

	return dsn, nil
}

// Acquire opens a fresh connection. Every failure is a *ConnectionError.
func (c *snowflakeConnector) Acquire(ctx context.Context) (Session, error) {
	dsn, err := buildDSN(c.config)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	db, err := c.open("snowflake", dsn)
	if err != nil {
		// Use sanitized DSN for error logging
		c.logger.Error("Failed to open Snowflake connection",
			zap.String("dsn", c.config.SanitizedDSN()),
			zap.Error(err))
		return nil, &ConnectionError{Err: fmt.Errorf("failed to open Snowflake connection: %w", err)}
	}

	// One cycle, one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		c.logger.Error("Failed to ping Snowflake",
			zap.String("dsn", c.config.SanitizedDSN()),
			zap.Error(err))
		return nil, &ConnectionError{Err: fmt.Errorf("failed to ping Snowflake: %w", err)}
	}

	session, err := newSnowflakeSession(ctx, db, c.rateLimiter)
	if err != nil {
		db.Close()
		return nil, &ConnectionError{Err: err}
	}

	c.logger.Debug("Connected to Snowflake", zap.String("dsn", c.config.SanitizedDSN()))
	return session, nil
}

type snowflakeSession struct {
	db          *sql.DB
	conn        *sql.Conn
	rateLimiter *rate.Limiter
	closed      bool
}

// newSnowflakeSession pins a single connection out of db so that USE
// statements and catalog queries run against the same server session.
func newSnowflakeSession(ctx context.Context, db *sql.DB, limiter *rate.Limiter) (*snowflakeSession, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &snowflakeSession{
		db:          db,
		conn:        conn,
		rateLimiter: limiter,
	}, nil
}

func (s *snowflakeSession) wait(ctx context.Context) error {
	if s.rateLimiter == nil {
		return nil
	}
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

func (s *snowflakeSession) Exec(ctx context.Context, stmt string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, err)
	}
	return nil
}

func (s *snowflakeSession) Query(ctx context.Context, query string) (*sql.Rows, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// Close releases the connection and the pool behind it. Calling it again is
// a no-op.
func (s *snowflakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
