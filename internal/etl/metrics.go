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

package etl

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	rawRowsIn       metric.Int64Counter
	trustedRowsOut  metric.Int64Counter
	rejectedRowsOut metric.Int64Counter
	tablesFailed    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/streamlake/internal/etl")

	var err error
	rawRowsIn, err = meter.Int64Counter(
		"streamlake.etl.raw.rows",
		metric.WithDescription("Rows written to the raw layer"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create raw.rows counter: %w", err))
	}

	trustedRowsOut, err = meter.Int64Counter(
		"streamlake.etl.trusted.rows",
		metric.WithDescription("Rows written to the trusted layer"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create trusted.rows counter: %w", err))
	}

	rejectedRowsOut, err = meter.Int64Counter(
		"streamlake.etl.rejected.rows",
		metric.WithDescription("Rows rejected by quality rules or schema coercion"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rejected.rows counter: %w", err))
	}

	tablesFailed, err = meter.Int64Counter(
		"streamlake.etl.tables.failed",
		metric.WithDescription("Tables that failed a stage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create tables.failed counter: %w", err))
	}
}
