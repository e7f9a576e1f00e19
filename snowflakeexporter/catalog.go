// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"errors"
	"fmt"
)

// MetricDefinition describes one exported gauge family.
type MetricDefinition struct {
	Name   string
	Help   string
	Labels []string
}

// CatalogEntry binds a query to the metric it feeds. LabelFields holds the
// result column index of each label, in MetricDefinition.Labels order.
type CatalogEntry struct {
	Metric      MetricDefinition
	Query       string
	LabelFields []int
	ValueField  int
}

// DefaultCatalog returns the ACCOUNT_USAGE queries in collection order.
// Everything except table storage looks back one hour.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			Metric: MetricDefinition{
				Name:   "snowflake_warehouse_credits_used",
				Help:   "Credits used per warehouse",
				Labels: []string{"warehouse"},
			},
			Query: `
        SELECT WAREHOUSE_NAME, SUM(CREDITS_USED)
        FROM SNOWFLAKE.ACCOUNT_USAGE.WAREHOUSE_METERING_HISTORY
        WHERE START_TIME > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND WAREHOUSE_NAME IS NOT NULL
        GROUP BY WAREHOUSE_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_warehouse_load_avg",
				Help:   "Average warehouse load",
				Labels: []string{"warehouse"},
			},
			Query: `
        SELECT WAREHOUSE_NAME, AVG(AVERAGE_RUNNING)
        FROM SNOWFLAKE.ACCOUNT_USAGE.WAREHOUSE_LOAD_HISTORY
        WHERE START_TIME > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND WAREHOUSE_NAME IS NOT NULL
        GROUP BY WAREHOUSE_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_query_duration_seconds_avg",
				Help:   "Average query duration in seconds",
				Labels: []string{"warehouse"},
			},
			Query: `
        SELECT WAREHOUSE_NAME, AVG(TOTAL_ELAPSED_TIME) / 1000
        FROM SNOWFLAKE.ACCOUNT_USAGE.QUERY_HISTORY
        WHERE START_TIME > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND EXECUTION_STATUS = 'SUCCESS'
          AND WAREHOUSE_NAME IS NOT NULL
        GROUP BY WAREHOUSE_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_table_storage_bytes_used",
				Help:   "Table storage size in bytes",
				Labels: []string{"database", "schema", "table"},
			},
			// Current state of every table, no lookback window.
			Query: `
        SELECT TABLE_CATALOG, TABLE_SCHEMA, TABLE_NAME, BYTES
        FROM SNOWFLAKE.ACCOUNT_USAGE.TABLE_STORAGE_METRICS
        WHERE TABLE_CATALOG IS NOT NULL
          AND TABLE_SCHEMA IS NOT NULL
          AND TABLE_NAME IS NOT NULL
    `,
			LabelFields: []int{0, 1, 2},
			ValueField:  3,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_login_success_count",
				Help:   "Number of successful logins",
				Labels: []string{"user"},
			},
			Query: `
        SELECT USER_NAME, COUNT(*)
        FROM SNOWFLAKE.ACCOUNT_USAGE.LOGIN_HISTORY
        WHERE EVENT_TIMESTAMP > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND IS_SUCCESS = 'TRUE'
          AND USER_NAME IS NOT NULL
        GROUP BY USER_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_login_failure_count",
				Help:   "Number of failed logins",
				Labels: []string{"user"},
			},
			Query: `
        SELECT USER_NAME, COUNT(*)
        FROM SNOWFLAKE.ACCOUNT_USAGE.LOGIN_HISTORY
        WHERE EVENT_TIMESTAMP > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND IS_SUCCESS = 'FALSE'
          AND USER_NAME IS NOT NULL
        GROUP BY USER_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_access_events_count",
				Help:   "Table access events count",
				Labels: []string{"user", "table"},
			},
			Query: `
        SELECT USER_NAME, OBJECT_NAME, COUNT(*)
        FROM SNOWFLAKE.ACCOUNT_USAGE.ACCESS_HISTORY
        WHERE EVENT_TIMESTAMP > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND USER_NAME IS NOT NULL
          AND OBJECT_NAME IS NOT NULL
        GROUP BY USER_NAME, OBJECT_NAME
    `,
			LabelFields: []int{0, 1},
			ValueField:  2,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_session_count",
				Help:   "Active sessions count",
				Labels: []string{"user"},
			},
			Query: `
        SELECT USER_NAME, COUNT(*)
        FROM SNOWFLAKE.ACCOUNT_USAGE.SESSIONS
        WHERE LOGOUT_TIME IS NULL
          AND LOGIN_TIME > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND USER_NAME IS NOT NULL
        GROUP BY USER_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
		{
			Metric: MetricDefinition{
				Name:   "snowflake_failed_queries_count",
				Help:   "Number of failed queries",
				Labels: []string{"warehouse"},
			},
			Query: `
        SELECT WAREHOUSE_NAME, COUNT(*)
        FROM SNOWFLAKE.ACCOUNT_USAGE.QUERY_HISTORY
        WHERE START_TIME > DATEADD(hour, -1, CURRENT_TIMESTAMP())
          AND EXECUTION_STATUS = 'FAILED'
          AND WAREHOUSE_NAME IS NOT NULL
        GROUP BY WAREHOUSE_NAME
    `,
			LabelFields: []int{0},
			ValueField:  1,
		},
	}
}

// ValidateCatalog checks every entry against its metric definition. It runs
// once at startup.
func ValidateCatalog(entries []CatalogEntry) error {
	if len(entries) == 0 {
		return errors.New("catalog is empty")
	}

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if err := e.validate(); err != nil {
			return fmt.Errorf("catalog entry %d (%s): %w", i, e.Metric.Name, err)
		}
		if _, dup := seen[e.Metric.Name]; dup {
			return fmt.Errorf("catalog entry %d: duplicate metric %s", i, e.Metric.Name)
		}
		seen[e.Metric.Name] = struct{}{}
	}
	return nil
}

func (e CatalogEntry) validate() error {
	if e.Metric.Name == "" {
		return errors.New("metric name is required")
	}
	if e.Query == "" {
		return errors.New("query is required")
	}
	if len(e.LabelFields) != len(e.Metric.Labels) {
		return fmt.Errorf("%d label fields for %d labels", len(e.LabelFields), len(e.Metric.Labels))
	}

	labels := make(map[string]struct{}, len(e.Metric.Labels))
	for _, l := range e.Metric.Labels {
		if l == "" {
			return errors.New("empty label name")
		}
		if _, dup := labels[l]; dup {
			return fmt.Errorf("duplicate label %s", l)
		}
		labels[l] = struct{}{}
	}

	if e.ValueField < 0 {
		return fmt.Errorf("negative value field %d", e.ValueField)
	}
	fields := make(map[int]struct{}, len(e.LabelFields))
	for _, f := range e.LabelFields {
		if f < 0 {
			return fmt.Errorf("negative label field %d", f)
		}
		if f == e.ValueField {
			return fmt.Errorf("field %d used as both label and value", f)
		}
		if _, dup := fields[f]; dup {
			return fmt.Errorf("field %d mapped to more than one label", f)
		}
		fields[f] = struct{}{}
	}
	return nil
}

// columnCount is the minimum number of result columns the entry reads.
func (e CatalogEntry) columnCount() int {
	n := e.ValueField
	for _, f := range e.LabelFields {
		if f > n {
			n = f
		}
	}
	return n + 1
}
