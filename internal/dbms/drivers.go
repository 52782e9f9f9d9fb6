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

package dbms

import (
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"  // postgresql warehouse driver
	_ "github.com/microsoft/go-mssqldb" // tsql driver
	_ "modernc.org/sqlite"              // embedded cgo-free sqlite driver
)

// dataSource maps a backend kind to its database/sql driver name and DSN.
func dataSource(kind Kind, cfg *Config) (driver, dsn string, err error) {
	switch kind {
	case PostgresKind:
		if cfg.Host == "" || cfg.Database == "" {
			return "", "", fmt.Errorf("postgresql backend requires host and database")
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   hostPort(cfg.Host, cfg.Port, 5432),
			Path:   "/" + cfg.Database,
		}
		if cfg.SSLMode != "" {
			q := url.Values{}
			q.Set("sslmode", cfg.SSLMode)
			u.RawQuery = q.Encode()
		}
		return "pgx", u.String(), nil

	case TSQLKind:
		if cfg.Host == "" || cfg.Database == "" {
			return "", "", fmt.Errorf("tsql backend requires host and database")
		}
		q := url.Values{}
		q.Set("database", cfg.Database)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     hostPort(cfg.Host, cfg.Port, 1433),
			RawQuery: q.Encode(),
		}
		return "sqlserver", u.String(), nil

	case SQLiteKind:
		file := cfg.File
		if file == "" {
			file = cfg.Database
		}
		if file == "" {
			return "", "", fmt.Errorf("sqlite backend requires a database file")
		}
		return "sqlite", file, nil
	}
	return "", "", fmt.Errorf("unknown backend kind %q", kind)
}

func hostPort(host string, port, defaultPort int) string {
	if port == 0 {
		port = defaultPort
	}
	return host + ":" + strconv.Itoa(port)
}
