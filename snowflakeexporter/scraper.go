// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// snowflakeScraper runs one collection cycle: acquire a session, set its
// context, run every catalog entry in order and commit each metric as soon
// as its rows are fetched.
type snowflakeScraper struct {
	logger    *zap.Logger
	config    *Config
	connector Connector
	catalog   []CatalogEntry
	registry  *Registry
	metrics   *selfMetrics
}

func newSnowflakeScraper(logger *zap.Logger, config *Config, connector Connector, catalog []CatalogEntry, registry *Registry, metrics *selfMetrics) *snowflakeScraper {
	return &snowflakeScraper{
		logger:    logger,
		config:    config,
		connector: connector,
		catalog:   catalog,
		registry:  registry,
		metrics:   metrics,
	}
}

// scrape returns nil after a committed cycle, a *ConnectionError for a
// skipped cycle and a *ContextError or *QueryError for a failed one.
// Close failures are logged and never returned. A panic inside the cycle
// is returned as an error and counted as a failed cycle.
func (s *snowflakeScraper) scrape(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collection cycle panicked: %v", r)
			s.logger.Error("Collection cycle panicked", zap.Error(err))
			s.metrics.observeCycle(cycleFailed, started)
		}
	}()

	session, err := s.connector.Acquire(ctx)
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Err: err}
		}
		s.logger.Error("Failed to connect to Snowflake, skipping cycle", zap.Error(err))
		s.metrics.observeCycle(cycleSkipped, started)
		return err
	}

	err = func() error {
		defer s.release(session)
		return s.collect(ctx, session)
	}()
	if err != nil {
		s.logger.Error("Failed to collect metrics", zap.Error(err))
		s.metrics.observeCycle(cycleFailed, started)
		return err
	}

	s.logger.Info("Metrics collected successfully",
		zap.Int("metrics", len(s.catalog)),
		zap.Duration("duration", time.Since(started)))
	s.metrics.observeCycle(cycleSuccess, started)
	return nil
}

func (s *snowflakeScraper) release(session Session) {
	if err := session.Close(); err != nil {
		s.logger.Warn("Failed to close Snowflake session", zap.Error(&CloseError{Err: err}))
	}
}

func (s *snowflakeScraper) collect(ctx context.Context, session Session) error {
	for _, stmt := range []string{
		"USE DATABASE " + s.config.Database,
		"USE SCHEMA " + s.config.Schema,
	} {
		if err := session.Exec(ctx, stmt); err != nil {
			return &ContextError{Statement: stmt, Err: err}
		}
	}

	for _, entry := range s.catalog {
		name := entry.Metric.Name

		s.metrics.queries.Inc()
		samples, err := s.queryEntry(ctx, session, entry)
		if err == nil {
			err = s.registry.Replace(name, samples)
		}
		if err != nil {
			s.metrics.queryErrors.WithLabelValues(name).Inc()
			return &QueryError{Metric: name, Err: err}
		}

		s.logger.Debug("Metric refreshed", zap.String("metric", name), zap.Int("samples", len(samples)))
	}
	return nil
}

// queryEntry fetches every row of entry before anything is written, so a
// failure part way through a result set leaves the metric as it was.
func (s *snowflakeScraper) queryEntry(ctx context.Context, session Session, entry CatalogEntry) ([]MetricSample, error) {
	rows, err := session.Query(ctx, entry.Query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	if len(columns) < entry.columnCount() {
		return nil, fmt.Errorf("query returned %d columns, need at least %d", len(columns), entry.columnCount())
	}

	var samples []MetricSample
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if sample, ok := s.sampleFromRow(entry, values); ok {
			samples = append(samples, sample)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch rows: %w", err)
	}

	return samples, nil
}

// sampleFromRow maps one result row. Rows with a NULL, empty or non-UTF-8
// grouping value, or a NULL value, do not identify a series and are dropped.
func (s *snowflakeScraper) sampleFromRow(entry CatalogEntry, values []interface{}) (MetricSample, bool) {
	labels := make([]string, len(entry.LabelFields))
	for i, field := range entry.LabelFields {
		v, ok := labelValue(values[field])
		if !ok {
			s.logger.Debug("Dropping row with empty label",
				zap.String("metric", entry.Metric.Name),
				zap.String("label", entry.Metric.Labels[i]))
			return MetricSample{}, false
		}
		if !utf8.ValidString(v) {
			s.logger.Warn("Dropping row with invalid UTF-8 label",
				zap.String("metric", entry.Metric.Name),
				zap.String("label", entry.Metric.Labels[i]),
				zap.ByteString("value", []byte(v)))
			return MetricSample{}, false
		}
		labels[i] = v
	}

	raw := values[entry.ValueField]
	if raw == nil {
		s.logger.Debug("Dropping row with NULL value", zap.String("metric", entry.Metric.Name))
		return MetricSample{}, false
	}
	value, err := toFloat64(raw)
	if err != nil {
		s.logger.Warn("Dropping row with non-numeric value",
			zap.String("metric", entry.Metric.Name),
			zap.Strings("labels", labels),
			zap.Error(err))
		return MetricSample{}, false
	}

	return MetricSample{
		Metric:      entry.Metric.Name,
		LabelValues: labels,
		Value:       value,
	}, true
}

func labelValue(v interface{}) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		s = fmt.Sprintf("%v", t)
	}
	return s, s != ""
}

// toFloat64 converts a driver value. gosnowflake hands NUMBER columns back
// as strings when scanned into an interface.
func toFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %q: %w", t, err)
		}
		return f, nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %q: %w", t, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
