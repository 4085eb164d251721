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

// Package etl implements the layered lakehouse processors: landing files
// into date-partitioned raw object storage, and raw partitions into
// validated, columnar trusted datasets. All writes are whole-object
// overwrites keyed by (table, ingestion date), which is what makes every
// stage safe to re-run.
package etl

import (
	"context"

	"github.com/google/uuid"

	"github.com/cardinalhq/streamlake/internal/quality"
)

// Stage identifies which processor produced an outcome.
type Stage string

const (
	StageLandingToRaw Stage = "landing_to_raw"
	StageRawToTrusted Stage = "raw_to_trusted"
)

// Batch identifies one run. TableSet restricts the run to the named
// tables; empty means all configured tables. A Batch is immutable once
// created and scopes every partition key written during the run.
type Batch struct {
	ID            uuid.UUID
	Environment   string
	IngestionDate string
	TableSet      []string
}

// NewBatch creates a batch for one invocation.
func NewBatch(environment, ingestionDate string, tables []string) Batch {
	return Batch{
		ID:            uuid.New(),
		Environment:   environment,
		IngestionDate: ingestionDate,
		TableSet:      tables,
	}
}

// RawPartition is the unit written to object storage by the landing
// stage. Re-running for the same (table, date) fully replaces it.
type RawPartition struct {
	TableName     string
	IngestionDate string
	StoragePath   string
	RowCount      int64
	ContentHash   uint64
}

// TrustedDataset is the columnar output of a table's promotion.
type TrustedDataset struct {
	TableName     string
	StoragePath   string
	SchemaVersion int
	RowCount      int64
	RejectedRows  int64
}

// TableOutcome is the result of one table in one stage. Err failing the
// table, Warning surfacing problems that leave the data durable (catalog
// registration after a successful write).
type TableOutcome struct {
	TableName string
	Stage     Stage
	Err       error
	Warning   error
	Raw       *RawPartition
	Trusted   *TrustedDataset
	Rules     []quality.RuleOutcome
}

// Processor is one ETL stage. Each Run is a pure function of the batch,
// the static table configuration, and the external systems' state; no
// state is retained across invocations.
type Processor interface {
	Run(ctx context.Context, batch Batch) []TableOutcome
}
