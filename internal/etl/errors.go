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
	"strings"
)

// MissingSourceFileError reports that no landing file resolved to the
// table for the run's ingestion date. It fails that table only.
type MissingSourceFileError struct {
	Table         string
	IngestionDate string
}

func (e *MissingSourceFileError) Error() string {
	return fmt.Sprintf("no landing file for table %s on %s", e.Table, e.IngestionDate)
}

// AmbiguousSourceFileError reports that more than one landing file
// resolved to the same table and ingestion date. The ambiguity is never
// resolved by picking one.
type AmbiguousSourceFileError struct {
	Table         string
	IngestionDate string
	Paths         []string
}

func (e *AmbiguousSourceFileError) Error() string {
	return fmt.Sprintf("multiple landing files for table %s on %s: %s",
		e.Table, e.IngestionDate, strings.Join(e.Paths, ", "))
}

// DataQualityThresholdExceededError reports that too large a fraction of
// a table's rows failed quality rules, aborting that table's promotion.
type DataQualityThresholdExceededError struct {
	Table          string
	IngestionDate  string
	FailedRows     int64
	TotalRows      int64
	FailedRatio    float64
	MaxFailedRatio float64
}

func (e *DataQualityThresholdExceededError) Error() string {
	return fmt.Sprintf("table %s on %s: %d of %d rows failed quality rules (%.1f%% > %.1f%% allowed)",
		e.Table, e.IngestionDate, e.FailedRows, e.TotalRows,
		e.FailedRatio*100, e.MaxFailedRatio*100)
}

// TransientIOError wraps a storage or engine error that survived the
// bounded retry budget. The failed table is safe to retry by re-running
// the stage for the same ingestion date.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v (retries exhausted)", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// CatalogRegistrationError reports a failed table or partition
// registration after the data was already durably written. It is surfaced
// as a warning; re-running the stage repairs the catalog.
type CatalogRegistrationError struct {
	Table string
	Layer string
	Err   error
}

func (e *CatalogRegistrationError) Error() string {
	return fmt.Sprintf("register %s table %s: %v (data already written, re-run to repair)",
		e.Layer, e.Table, e.Err)
}

func (e *CatalogRegistrationError) Unwrap() error { return e.Err }
