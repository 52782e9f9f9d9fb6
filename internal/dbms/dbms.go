// Copyright 2025 The cdmlint Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dbms is the thin adapter over the three supported backends. It
// performs no query construction: dialect-specific SQL is baked into the
// rendered template text, selected by the template's dbms variable.
package dbms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type Kind string

const (
	PostgresKind Kind = "postgresql"
	TSQLKind     Kind = "tsql"
	SQLiteKind   Kind = "sqlite"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case PostgresKind:
		return PostgresKind, nil
	case TSQLKind:
		return TSQLKind, nil
	case SQLiteKind:
		return SQLiteKind, nil
	}
	return "", fmt.Errorf("unknown dbms %q: must be one of %s, %s, %s", s, PostgresKind, TSQLKind, SQLiteKind)
}

// Config carries the connection parameters of one backend.
type Config struct {
	Dbms     string `mapstructure:"dbms" yaml:"dbms" json:"dbms"`
	Host     string `mapstructure:"host" yaml:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" yaml:"port" json:"port,omitempty"`
	Database string `mapstructure:"database" yaml:"database" json:"database,omitempty"`
	User     string `mapstructure:"user" yaml:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode" json:"sslmode,omitempty"`
	// File is the database file of the embedded sqlite backend.
	File string `mapstructure:"file" yaml:"file" json:"file,omitempty"`

	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout" json:"query_timeout,omitempty"`
}

func NewConfig() *Config {
	return &Config{}
}

// Row is the single-row numeric result every check query must produce.
type Row struct {
	NumViolatedRows    int64
	PctViolatedRows    float64
	NumDenominatorRows int64
}

// ConnectionError means the backend is unreachable or refused the
// credentials. It is fatal for the whole run.
type ConnectionError struct {
	Kind Kind
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s backend: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError means one rendered query failed at the backend. It is recovered
// per check and does not abort the run.
type QueryError struct {
	Err     error
	Timeout bool
}

func (e *QueryError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("query timed out: %v", e.Err)
	}
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ResultShapeError means the backend returned something other than exactly
// one row of three numeric values. Recovered per check.
type ResultShapeError struct {
	Msg string
}

func (e *ResultShapeError) Error() string {
	return fmt.Sprintf("unexpected result shape: %s", e.Msg)
}

// Backend owns the connection pool of the run's single target database.
type Backend struct {
	kind         Kind
	db           *sql.DB
	queryTimeout time.Duration
}

// Connect opens and verifies a connection pool for the configured backend.
func Connect(ctx context.Context, cfg *Config) (*Backend, error) {
	kind, err := ParseKind(cfg.Dbms)
	if err != nil {
		return nil, err
	}
	driver, dsn, err := dataSource(kind, cfg)
	if err != nil {
		return nil, &ConnectionError{Kind: kind, Err: err}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &ConnectionError{Kind: kind, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Kind: kind, Err: err}
	}
	return &Backend{kind: kind, db: db, queryTimeout: cfg.QueryTimeout}, nil
}

func (b *Backend) Kind() Kind {
	return b.kind
}

func (b *Backend) Close() error {
	return b.db.Close()
}

// Session pins one connection out of the pool. Concurrent checks must each
// hold their own session.
func (b *Backend) Session(ctx context.Context) (*Session, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Kind: b.kind, Err: err}
	}
	return &Session{conn: conn, timeout: b.queryTimeout}, nil
}

type Session struct {
	conn    *sql.Conn
	timeout time.Duration
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// Execute runs one rendered check query and maps its single result row. A
// deadline overrun is classified as a QueryError, not a fatal condition.
func (s *Session) Execute(ctx context.Context, query string) (*Row, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	if len(cols) < 3 {
		return nil, &ResultShapeError{Msg: fmt.Sprintf("expected 3 columns, got %d", len(cols))}
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &QueryError{Err: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
		}
		return nil, &ResultShapeError{Msg: "query returned no rows"}
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, &QueryError{Err: err}
	}
	if rows.Next() {
		return nil, &ResultShapeError{Msg: "query returned more than one row"}
	}

	return mapRow(cols, raw)
}

// mapRow resolves the three result values by column name, falling back to
// position when a backend does not preserve the aliases.
func mapRow(cols []string, raw []any) (*Row, error) {
	idx := func(name string, fallback int) int {
		for i, c := range cols {
			if strings.EqualFold(c, name) {
				return i
			}
		}
		return fallback
	}

	numViolated, err := toInt(raw[idx("num_violated_rows", 0)])
	if err != nil {
		return nil, &ResultShapeError{Msg: fmt.Sprintf("num_violated_rows is not numeric: %v", err)}
	}
	pctViolated, err := toFloat(raw[idx("pct_violated_rows", 1)])
	if err != nil {
		return nil, &ResultShapeError{Msg: fmt.Sprintf("pct_violated_rows is not numeric: %v", err)}
	}
	numDenominator, err := toInt(raw[idx("num_denominator_rows", 2)])
	if err != nil {
		return nil, &ResultShapeError{Msg: fmt.Sprintf("num_denominator_rows is not numeric: %v", err)}
	}

	return &Row{
		NumViolatedRows:    numViolated,
		PctViolatedRows:    pctViolated,
		NumDenominatorRows: numDenominator,
	}, nil
}

// toFloat and toInt handle drivers that report numerics as []byte.
func toFloat(v any) (float64, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	return cast.ToFloat64E(v)
}

func toInt(v any) (int64, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	// Some backends report COUNT aggregates as floats.
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
