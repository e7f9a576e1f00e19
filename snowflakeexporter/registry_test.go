// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	loginSuccessDef = MetricDefinition{
		Name:   "snowflake_login_success_count",
		Help:   "Number of successful logins",
		Labels: []string{"user"},
	}
	tableStorageDef = MetricDefinition{
		Name:   "snowflake_table_storage_bytes_used",
		Help:   "Table storage size in bytes",
		Labels: []string{"database", "schema", "table"},
	}
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]MetricDefinition{loginSuccessDef, tableStorageDef})
	require.NoError(t, err)
	return r
}

func sample(metric string, value float64, labels ...string) MetricSample {
	return MetricSample{Metric: metric, LabelValues: labels, Value: value}
}

func TestNewRegistry_DuplicateMetric(t *testing.T) {
	_, err := NewRegistry([]MetricDefinition{loginSuccessDef, loginSuccessDef})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")
}

func TestRegistry_Replace(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Replace(loginSuccessDef.Name, []MetricSample{
		sample(loginSuccessDef.Name, 3, "alice"),
		sample(loginSuccessDef.Name, 1, "bob"),
	}))

	assert.Equal(t, []MetricSample{
		sample(loginSuccessDef.Name, 3, "alice"),
		sample(loginSuccessDef.Name, 1, "bob"),
	}, r.Samples(loginSuccessDef.Name))
	assert.Empty(t, r.Samples(tableStorageDef.Name))
}

func TestRegistry_ReplaceRemovesStaleTuples(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Replace(loginSuccessDef.Name, []MetricSample{
		sample(loginSuccessDef.Name, 3, "alice"),
		sample(loginSuccessDef.Name, 1, "bob"),
	}))
	require.NoError(t, r.Replace(loginSuccessDef.Name, []MetricSample{
		sample(loginSuccessDef.Name, 5, "alice"),
	}))

	assert.Equal(t, []MetricSample{
		sample(loginSuccessDef.Name, 5, "alice"),
	}, r.Samples(loginSuccessDef.Name))

	require.NoError(t, r.Replace(loginSuccessDef.Name, nil))
	assert.Empty(t, r.Samples(loginSuccessDef.Name))
}

func TestRegistry_ReplaceInvalidLeavesMetricUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		metric   string
		samples  []MetricSample
		errorMsg string
	}{
		{
			name:     "unknown metric",
			metric:   "snowflake_unknown",
			samples:  []MetricSample{sample("snowflake_unknown", 1, "x")},
			errorMsg: "unknown metric snowflake_unknown",
		},
		{
			name:   "wrong arity",
			metric: loginSuccessDef.Name,
			samples: []MetricSample{
				sample(loginSuccessDef.Name, 7, "carol"),
				sample(loginSuccessDef.Name, 1, "dave", "extra"),
			},
			errorMsg: "got 2 label values, want 1",
		},
		{
			name:     "invalid UTF-8 label value",
			metric:   loginSuccessDef.Name,
			samples:  []MetricSample{sample(loginSuccessDef.Name, 1, "WH\xffA")},
			errorMsg: "is not valid UTF-8",
		},
		{
			name:     "empty label value",
			metric:   loginSuccessDef.Name,
			samples:  []MetricSample{sample(loginSuccessDef.Name, 1, "")},
			errorMsg: "empty value for label user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			require.NoError(t, r.Replace(loginSuccessDef.Name, []MetricSample{
				sample(loginSuccessDef.Name, 3, "alice"),
			}))
			before := r.Snapshot()

			err := r.Replace(tt.metric, tt.samples)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
			assert.Equal(t, before, r.Snapshot())
		})
	}
}

func TestRegistry_ReplaceCopiesLabelValues(t *testing.T) {
	r := newTestRegistry(t)
	labels := []string{"alice"}

	require.NoError(t, r.Replace(loginSuccessDef.Name, []MetricSample{
		{Metric: loginSuccessDef.Name, LabelValues: labels, Value: 3},
	}))
	labels[0] = "mallory"

	got := r.Samples(loginSuccessDef.Name)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"alice"}, got[0].LabelValues)
}

func TestRegistry_Samples_UnknownMetric(t *testing.T) {
	r := newTestRegistry(t)
	assert.Nil(t, r.Samples("snowflake_unknown"))
}

func TestRegistry_Collect(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Replace(loginSuccessDef.Name, []MetricSample{
		sample(loginSuccessDef.Name, 3, "alice"),
		sample(loginSuccessDef.Name, 1, "bob"),
	}))
	require.NoError(t, r.Replace(tableStorageDef.Name, []MetricSample{
		sample(tableStorageDef.Name, 1048576, "DB1", "PUBLIC", "T1"),
	}))

	expected := `
# HELP snowflake_login_success_count Number of successful logins
# TYPE snowflake_login_success_count gauge
snowflake_login_success_count{user="alice"} 3
snowflake_login_success_count{user="bob"} 1
# HELP snowflake_table_storage_bytes_used Table storage size in bytes
# TYPE snowflake_table_storage_bytes_used gauge
snowflake_table_storage_bytes_used{database="DB1",schema="PUBLIC",table="T1"} 1.048576e+06
`
	require.NoError(t, testutil.CollectAndCompare(r, strings.NewReader(expected)))
	assert.Equal(t, 3, testutil.CollectAndCount(r))
}

func TestRegistry_ConcurrentReplaceAndCollect(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			samples := make([]MetricSample, 0, i%5+1)
			for u := 0; u <= i%5; u++ {
				samples = append(samples, sample(loginSuccessDef.Name, float64(i), fmt.Sprintf("user%d", u)))
			}
			assert.NoError(t, r.Replace(loginSuccessDef.Name, samples))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			// Every sample seen in one read comes from the same Replace.
			got := r.Samples(loginSuccessDef.Name)
			for _, s := range got {
				assert.Equal(t, got[0].Value, s.Value)
			}
			testutil.CollectAndCount(r)
		}
	}()
	wg.Wait()

	assert.Len(t, r.Samples(loginSuccessDef.Name), 199%5+1)
}

func TestRegistry_CollectInvalidSampleDoesNotPanic(t *testing.T) {
	r := newTestRegistry(t)
	// Bypass Replace to hold a sample the exposition format cannot carry.
	r.families[loginSuccessDef.Name].samples = map[string]MetricSample{
		"bad": sample(loginSuccessDef.Name, 1, "WH\xffA"),
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(r))

	require.NotPanics(t, func() {
		_, err := reg.Gather()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid UTF-8")
	})
}
