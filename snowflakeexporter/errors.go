// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"fmt"
	"strings"
)

// ConfigError reports configuration that prevents the exporter from starting.
type ConfigError struct {
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Err != nil:
		return fmt.Sprintf("missing required configuration: %s; %v", strings.Join(e.Missing, ", "), e.Err)
	case len(e.Missing) > 0:
		return "missing required configuration: " + strings.Join(e.Missing, ", ")
	default:
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConnectionError means no session could be opened; the cycle is skipped.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to Snowflake: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ContextError means the session could not select its database or schema.
type ContextError struct {
	Statement string
	Err       error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("failed to set session context (%s): %v", e.Statement, e.Err)
}

func (e *ContextError) Unwrap() error { return e.Err }

// QueryError identifies the catalog metric whose query failed.
type QueryError struct {
	Metric string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to collect %s: %v", e.Metric, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// CloseError is only ever logged.
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("failed to close Snowflake session: %v", e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }
