// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package queryengine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/cardinalhq/streamlake/internal/logctx"
)

// S3Settings configures DuckDB's httpfs access to the object store. The
// endpoint is given as a URL; DuckDB wants host:port plus a use_ssl flag.
type S3Settings struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// DuckDB is an Engine backed by an embedded DuckDB database.
type DuckDB struct {
	db *sql.DB
}

var _ Engine = (*DuckDB)(nil)

// NewDuckDB opens a DuckDB database (":memory:" or a file path), loads the
// httpfs and parquet extensions, and applies the S3 settings when given.
func NewDuckDB(ctx context.Context, database string, s3 *S3Settings) (*DuckDB, error) {
	dsn := database
	if dsn == ":memory:" {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	e := &DuckDB{db: db}
	for _, stmt := range []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"INSTALL parquet",
		"LOAD parquet",
	} {
		if err := e.Exec(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setup duckdb extensions: %w", err)
		}
	}

	if s3 != nil {
		if err := e.applyS3Settings(ctx, s3); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *DuckDB) applyS3Settings(ctx context.Context, s3 *S3Settings) error {
	endpoint := s3.Endpoint
	if u, err := url.Parse(s3.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
	}
	region := s3.Region
	if region == "" {
		region = "us-east-1"
	}

	settings := []string{
		fmt.Sprintf("SET s3_endpoint = '%s'", sqlEscape(endpoint)),
		fmt.Sprintf("SET s3_region = '%s'", sqlEscape(region)),
		fmt.Sprintf("SET s3_access_key_id = '%s'", sqlEscape(s3.AccessKey)),
		fmt.Sprintf("SET s3_secret_access_key = '%s'", sqlEscape(s3.SecretKey)),
		fmt.Sprintf("SET s3_use_ssl = %t", s3.UseSSL),
		"SET s3_url_style = 'path'",
	}
	for _, stmt := range settings {
		if err := e.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("configure duckdb s3 access: %w", err)
		}
	}
	logctx.FromContext(ctx).Debug("configured duckdb s3 access",
		"endpoint", endpoint, "use_ssl", s3.UseSSL)
	return nil
}

func (e *DuckDB) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckdb query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("duckdb columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("duckdb scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb rows: %w", err)
	}
	return out, nil
}

func (e *DuckDB) Exec(ctx context.Context, query string) error {
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("duckdb exec: %w", err)
	}
	return nil
}

func (e *DuckDB) Close() error {
	return e.db.Close()
}

func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
