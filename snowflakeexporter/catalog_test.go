// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	require.NoError(t, ValidateCatalog(catalog))

	names := make([]string, 0, len(catalog))
	for _, e := range catalog {
		names = append(names, e.Metric.Name)
	}
	assert.Equal(t, []string{
		"snowflake_warehouse_credits_used",
		"snowflake_warehouse_load_avg",
		"snowflake_query_duration_seconds_avg",
		"snowflake_table_storage_bytes_used",
		"snowflake_login_success_count",
		"snowflake_login_failure_count",
		"snowflake_access_events_count",
		"snowflake_session_count",
		"snowflake_failed_queries_count",
	}, names)
}

func TestDefaultCatalog_Queries(t *testing.T) {
	for _, e := range DefaultCatalog() {
		t.Run(e.Metric.Name, func(t *testing.T) {
			assert.Contains(t, e.Query, "FROM SNOWFLAKE.ACCOUNT_USAGE.")
			assert.Equal(t, len(e.Metric.Labels), strings.Count(e.Query, "IS NOT NULL"),
				"every grouping column is filtered for NULL")

			if e.Metric.Name == "snowflake_table_storage_bytes_used" {
				assert.NotContains(t, e.Query, "DATEADD")
				return
			}
			assert.Contains(t, e.Query, "DATEADD(hour, -1, CURRENT_TIMESTAMP())")
		})
	}
}

func TestDefaultCatalog_Labels(t *testing.T) {
	labels := make(map[string][]string)
	for _, e := range DefaultCatalog() {
		labels[e.Metric.Name] = e.Metric.Labels
	}

	assert.Equal(t, []string{"warehouse"}, labels["snowflake_warehouse_credits_used"])
	assert.Equal(t, []string{"database", "schema", "table"}, labels["snowflake_table_storage_bytes_used"])
	assert.Equal(t, []string{"user", "table"}, labels["snowflake_access_events_count"])
	assert.Equal(t, []string{"user"}, labels["snowflake_session_count"])
}

func testEntry() CatalogEntry {
	return CatalogEntry{
		Metric: MetricDefinition{
			Name:   "test_metric",
			Help:   "test",
			Labels: []string{"a", "b"},
		},
		Query:       "SELECT A, B, V FROM T",
		LabelFields: []int{0, 1},
		ValueField:  2,
	}
}

func TestValidateCatalog(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*CatalogEntry)
		errorMsg string
	}{
		{
			name:     "missing name",
			modify:   func(e *CatalogEntry) { e.Metric.Name = "" },
			errorMsg: "metric name is required",
		},
		{
			name:     "missing query",
			modify:   func(e *CatalogEntry) { e.Query = "" },
			errorMsg: "query is required",
		},
		{
			name:     "label arity mismatch",
			modify:   func(e *CatalogEntry) { e.LabelFields = []int{0} },
			errorMsg: "1 label fields for 2 labels",
		},
		{
			name:     "empty label name",
			modify:   func(e *CatalogEntry) { e.Metric.Labels = []string{"a", ""} },
			errorMsg: "empty label name",
		},
		{
			name:     "duplicate label name",
			modify:   func(e *CatalogEntry) { e.Metric.Labels = []string{"a", "a"} },
			errorMsg: "duplicate label a",
		},
		{
			name:     "negative value field",
			modify:   func(e *CatalogEntry) { e.ValueField = -1 },
			errorMsg: "negative value field",
		},
		{
			name:     "negative label field",
			modify:   func(e *CatalogEntry) { e.LabelFields = []int{-1, 1} },
			errorMsg: "negative label field",
		},
		{
			name:     "value field is a label field",
			modify:   func(e *CatalogEntry) { e.ValueField = 1 },
			errorMsg: "field 1 used as both label and value",
		},
		{
			name:     "label field reused",
			modify:   func(e *CatalogEntry) { e.LabelFields = []int{0, 0} },
			errorMsg: "field 0 mapped to more than one label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEntry()
			tt.modify(&e)

			err := ValidateCatalog([]CatalogEntry{e})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidateCatalog_Empty(t *testing.T) {
	err := ValidateCatalog(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog is empty")
}

func TestValidateCatalog_DuplicateMetric(t *testing.T) {
	err := ValidateCatalog([]CatalogEntry{testEntry(), testEntry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate metric test_metric")
}

func TestCatalogEntry_ColumnCount(t *testing.T) {
	e := testEntry()
	assert.Equal(t, 3, e.columnCount())

	e.LabelFields = []int{4, 1}
	assert.Equal(t, 5, e.columnCount())

	e.LabelFields = nil
	e.Metric.Labels = nil
	e.ValueField = 0
	assert.Equal(t, 1, e.columnCount())
}
