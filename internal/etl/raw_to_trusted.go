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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/streamlake/config"
	"github.com/cardinalhq/streamlake/internal/blobstore"
	"github.com/cardinalhq/streamlake/internal/catalog"
	"github.com/cardinalhq/streamlake/internal/lakename"
	"github.com/cardinalhq/streamlake/internal/logctx"
	"github.com/cardinalhq/streamlake/internal/parquetwriter"
	"github.com/cardinalhq/streamlake/internal/quality"
	"github.com/cardinalhq/streamlake/internal/queryengine"
	"github.com/cardinalhq/streamlake/internal/tableschema"
)

// RawToTrustedProcessor promotes raw partitions into validated, columnar
// trusted datasets. Rows failing quality rules or schema coercion are
// routed to a rejects path; the trusted output never retains invalid
// values.
type RawToTrustedProcessor struct {
	cfg    *config.Config
	store  blobstore.Client
	engine queryengine.Engine
	cat    catalog.Catalog
	reg    *tableschema.Registry
}

var _ Processor = (*RawToTrustedProcessor)(nil)

// NewRawToTrusted builds the promotion stage processor.
func NewRawToTrusted(cfg *config.Config, store blobstore.Client, engine queryengine.Engine, cat catalog.Catalog, reg *tableschema.Registry) *RawToTrustedProcessor {
	return &RawToTrustedProcessor{cfg: cfg, store: store, engine: engine, cat: cat, reg: reg}
}

// Run promotes each table's raw partition for the batch's ingestion date.
// Tables are independent units of work; a query-engine failure on one
// never aborts the others.
func (p *RawToTrustedProcessor) Run(ctx context.Context, batch Batch) []TableOutcome {
	ll := logctx.FromContext(ctx)

	tables := batch.TableSet
	if len(tables) == 0 {
		tables = p.reg.TableNames()
	}

	outcomes := make([]TableOutcome, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ETL.WorkerLimit)
	for i, table := range tables {
		g.Go(func() error {
			outcomes[i] = p.promoteTable(gctx, batch, table)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			tablesFailed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("table", o.TableName),
				attribute.String("stage", string(StageRawToTrusted)),
			))
			ll.Error("raw to trusted failed", "table", o.TableName, "error", o.Err.Error())
		}
	}
	return outcomes
}

func (p *RawToTrustedProcessor) promoteTable(ctx context.Context, batch Batch, table string) TableOutcome {
	out := TableOutcome{TableName: table, Stage: StageRawToTrusted}

	desc := p.reg.Get(table)
	if desc == nil {
		out.Err = fmt.Errorf("table %s is not configured", table)
		return out
	}

	rows, err := p.queryRaw(ctx, desc, batch.IngestionDate)
	if err != nil {
		out.Err = err
		return out
	}

	refs, err := p.loadReferenceSets(ctx, desc, batch.IngestionDate)
	if err != nil {
		out.Err = err
		return out
	}
	eval, err := quality.NewEvaluator(desc.Quality.Rules, refs)
	if err != nil {
		out.Err = err
		return out
	}

	passed, ruleOutcomes, rejected := eval.Evaluate(rows)
	out.Rules = ruleOutcomes

	if total := int64(len(rows)); total > 0 {
		failed := int64(len(rejected))
		ratio := float64(failed) / float64(total)
		if ratio > desc.Quality.MaxFailedRatio {
			out.Err = &DataQualityThresholdExceededError{
				Table:          table,
				IngestionDate:  batch.IngestionDate,
				FailedRows:     failed,
				TotalRows:      total,
				FailedRatio:    ratio,
				MaxFailedRatio: desc.Quality.MaxFailedRatio,
			}
			return out
		}
	}

	// Coerce surviving rows to the declared schema and stamp the partition
	// key. Coercion failures are rejected like rule failures but do not
	// count against the quality threshold, which gates rules only.
	trusted := make([]map[string]any, 0, len(passed))
	for _, row := range passed {
		coerced, cerr := desc.CoerceRow(row)
		if cerr != nil {
			rejected = append(rejected, quality.Rejected{Row: row, RuleID: "schema", Reason: cerr.Error()})
			continue
		}
		coerced["ingestion_date"] = batch.IngestionDate
		trusted = append(trusted, coerced)
	}

	key := trustedObjectKey(p.cfg, table, batch.IngestionDate)
	if err := p.writeTrusted(ctx, desc, trusted, key); err != nil {
		out.Err = err
		return out
	}
	if err := sweepStale(ctx, p.cfg, p.store, trustedPartitionPrefix(p.cfg, table, batch.IngestionDate), key); err != nil {
		out.Err = err
		return out
	}
	if err := p.writeRejects(ctx, table, batch.IngestionDate, rejected); err != nil {
		out.Err = err
		return out
	}

	trustedRowsOut.Add(ctx, int64(len(trusted)), metric.WithAttributes(attribute.String("table", table)))
	rejectedRowsOut.Add(ctx, int64(len(rejected)), metric.WithAttributes(attribute.String("table", table)))

	out.Trusted = &TrustedDataset{
		TableName:     table,
		StoragePath:   objectURL(p.cfg, key),
		SchemaVersion: desc.SchemaVersion,
		RowCount:      int64(len(trusted)),
		RejectedRows:  int64(len(rejected)),
	}

	if err := p.register(ctx, desc, batch.IngestionDate); err != nil {
		out.Warning = err
		logctx.FromContext(ctx).Warn("trusted catalog registration failed", "table", table, "error", err.Error())
	}

	logctx.FromContext(ctx).Info("trusted dataset written",
		"table", table, "ingestion_date", batch.IngestionDate,
		"rows", len(trusted), "rejected", len(rejected), "path", out.Trusted.StoragePath)
	return out
}

// queryRaw reads the table's raw partition through the query engine.
func (p *RawToTrustedProcessor) queryRaw(ctx context.Context, desc *tableschema.Descriptor, date string) ([]map[string]any, error) {
	var rows []map[string]any
	err := withRetry(ctx, p.cfg.ETL.RetryAttempts, p.cfg.ETL.RetryBackoff, "query raw partition", func() error {
		var qerr error
		rows, qerr = p.engine.Query(ctx, rawSelectSQL(p.cfg, desc, date, "*"))
		return qerr
	})
	return rows, err
}

// loadReferenceSets resolves each reference rule against the referenced
// table's raw partition for the same ingestion date.
func (p *RawToTrustedProcessor) loadReferenceSets(ctx context.Context, desc *tableschema.Descriptor, date string) (quality.ReferenceSets, error) {
	refs := make(quality.ReferenceSets)
	for _, rule := range desc.Quality.Rules {
		if rule.Type != tableschema.RuleReference {
			continue
		}
		refDesc := p.reg.Get(rule.RefTable)
		if refDesc == nil {
			return nil, fmt.Errorf("rule %s: referenced table %s is not configured", rule.ID, rule.RefTable)
		}
		sql := rawSelectSQL(p.cfg, refDesc, date, fmt.Sprintf("DISTINCT %q", rule.RefColumn))
		var rows []map[string]any
		err := withRetry(ctx, p.cfg.ETL.RetryAttempts, p.cfg.ETL.RetryBackoff, "load reference set "+rule.ID, func() error {
			var qerr error
			rows, qerr = p.engine.Query(ctx, sql)
			return qerr
		})
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			if v, ok := row[rule.RefColumn]; ok && v != nil {
				set[quality.ValueKey(v)] = struct{}{}
			}
		}
		refs[rule.ID] = set
	}
	return refs, nil
}

func (p *RawToTrustedProcessor) writeTrusted(ctx context.Context, desc *tableschema.Descriptor, rows []map[string]any, key string) error {
	tmpdir, err := os.MkdirTemp("", "trusted-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpdir) }()

	local := filepath.Join(tmpdir, "data.parquet")
	if _, err := parquetwriter.WriteTableFile(local, desc, rows); err != nil {
		return fmt.Errorf("encode trusted parquet for %s: %w", desc.Name, err)
	}
	return withRetry(ctx, p.cfg.ETL.RetryAttempts, p.cfg.ETL.RetryBackoff, "upload trusted dataset", func() error {
		return p.store.UploadObject(ctx, p.cfg.Storage.Bucket, key, local)
	})
}

// writeRejects stores rejected rows as JSON lines next to the trusted
// output, or clears the rejects partition when nothing was rejected, so a
// clean re-run leaves no stale rejects behind.
func (p *RawToTrustedProcessor) writeRejects(ctx context.Context, table, date string, rejected []quality.Rejected) error {
	prefix := rejectsPartitionPrefix(p.cfg, table, date)
	if len(rejected) == 0 {
		return sweepStale(ctx, p.cfg, p.store, prefix, "")
	}

	var buf []byte
	for _, r := range rejected {
		line, err := json.Marshal(map[string]any{
			"row":     r.Row,
			"rule_id": r.RuleID,
			"reason":  r.Reason,
		})
		if err != nil {
			return fmt.Errorf("encode rejected row for %s: %w", table, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	key := prefix + "rejects.jsonl"
	err := withRetry(ctx, p.cfg.ETL.RetryAttempts, p.cfg.ETL.RetryBackoff, "upload rejects", func() error {
		return p.store.PutObject(ctx, p.cfg.Storage.Bucket, key, buf)
	})
	if err != nil {
		return err
	}
	return sweepStale(ctx, p.cfg, p.store, prefix, key)
}

func (p *RawToTrustedProcessor) register(ctx context.Context, desc *tableschema.Descriptor, date string) error {
	loc := trustedTableLocation(p.cfg, desc.Name)
	if err := p.cat.RegisterTable(ctx, desc, catalog.LayerTrusted, loc); err != nil {
		return &CatalogRegistrationError{Table: desc.Name, Layer: string(catalog.LayerTrusted), Err: err}
	}
	spec := catalog.PartitionSpec{"ingestion_date": date}
	partLoc := fmt.Sprintf("%s/ingestion_date=%s", loc, date)
	if err := p.cat.RegisterPartition(ctx, desc.Name, catalog.LayerTrusted, spec, partLoc); err != nil {
		return &CatalogRegistrationError{Table: desc.Name, Layer: string(catalog.LayerTrusted), Err: err}
	}
	return nil
}

// rawSelectSQL scans one raw partition directly by storage path, so
// promotion does not depend on prior catalog registration.
func rawSelectSQL(cfg *config.Config, desc *tableschema.Descriptor, date, projection string) string {
	loc := fmt.Sprintf("%s/ingestion_date=%s", rawTableLocation(cfg, desc.Name), date)
	switch desc.Format {
	case lakename.FormatJSONLines:
		return fmt.Sprintf("SELECT %s FROM read_json_auto('%s/*.jsonl')", projection, loc)
	default:
		return fmt.Sprintf("SELECT %s FROM read_csv_auto('%s/*.csv', header=true)", projection, loc)
	}
}

func trustedTableLocation(cfg *config.Config, table string) string {
	return fmt.Sprintf("s3://%s/%s/%s", cfg.Storage.Bucket, cfg.Storage.TrustedPrefix, table)
}

func trustedPartitionPrefix(cfg *config.Config, table, date string) string {
	return fmt.Sprintf("%s/%s/ingestion_date=%s/", cfg.Storage.TrustedPrefix, table, date)
}

func trustedObjectKey(cfg *config.Config, table, date string) string {
	return trustedPartitionPrefix(cfg, table, date) + "data.parquet"
}

func rejectsPartitionPrefix(cfg *config.Config, table, date string) string {
	return fmt.Sprintf("%s/%s/ingestion_date=%s/", cfg.Storage.RejectsPrefix, table, date)
}
