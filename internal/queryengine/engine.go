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

// Package queryengine is the narrow SQL interface the ETL uses to read raw
// partitions and to register catalog objects. The production engine is
// DuckDB with httpfs pointed at the object store.
package queryengine

import "context"

// Engine executes SQL. Implementations must honor context cancellation.
type Engine interface {
	// Query runs sql and returns all result rows keyed by column name.
	Query(ctx context.Context, sql string) ([]map[string]any, error)

	// Exec runs sql discarding any result, for DDL and settings.
	Exec(ctx context.Context, sql string) error

	// Close releases the engine's resources.
	Close() error
}
