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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/streamlake/config"
	"github.com/cardinalhq/streamlake/internal/blobstore"
	"github.com/cardinalhq/streamlake/internal/catalog"
	"github.com/cardinalhq/streamlake/internal/lakename"
	"github.com/cardinalhq/streamlake/internal/logctx"
	"github.com/cardinalhq/streamlake/internal/tableschema"
)

// LandingToRawProcessor copies dated landing files unmodified into
// date-partitioned object storage and registers the raw partitions.
type LandingToRawProcessor struct {
	cfg   *config.Config
	store blobstore.Client
	cat   catalog.Catalog
	reg   *tableschema.Registry
}

var _ Processor = (*LandingToRawProcessor)(nil)

// NewLandingToRaw builds the landing stage processor.
func NewLandingToRaw(cfg *config.Config, store blobstore.Client, cat catalog.Catalog, reg *tableschema.Registry) *LandingToRawProcessor {
	return &LandingToRawProcessor{cfg: cfg, store: store, cat: cat, reg: reg}
}

// Run discovers landing files for the batch's ingestion date and uploads
// one raw partition per table. Each table is an independent unit of work;
// a failed table never aborts its siblings.
func (p *LandingToRawProcessor) Run(ctx context.Context, batch Batch) []TableOutcome {
	ll := logctx.FromContext(ctx)

	tables := batch.TableSet
	if len(tables) == 0 {
		tables = p.reg.TableNames()
	}

	sources, err := p.discover(ctx, batch.IngestionDate)
	if err != nil {
		outcomes := make([]TableOutcome, 0, len(tables))
		for _, t := range tables {
			outcomes = append(outcomes, TableOutcome{TableName: t, Stage: StageLandingToRaw, Err: err})
		}
		return outcomes
	}

	outcomes := make([]TableOutcome, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ETL.WorkerLimit)
	for i, table := range tables {
		g.Go(func() error {
			outcomes[i] = p.processTable(gctx, batch, table, sources[table])
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			tablesFailed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("table", o.TableName),
				attribute.String("stage", string(StageLandingToRaw)),
			))
			ll.Error("landing to raw failed", "table", o.TableName, "error", o.Err.Error())
		}
	}
	return outcomes
}

// discover lists the landing directory and resolves each file name,
// keeping only files for the given ingestion date. Unrecognized names are
// skipped with a warning, never fatal.
func (p *LandingToRawProcessor) discover(ctx context.Context, ingestionDate string) (map[string][]lakename.SourceFile, error) {
	ll := logctx.FromContext(ctx)

	entries, err := os.ReadDir(p.cfg.Landing.Dir)
	if err != nil {
		return nil, fmt.Errorf("list landing dir %s: %w", p.cfg.Landing.Dir, err)
	}

	sources := make(map[string][]lakename.SourceFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		table, date, format, err := lakename.Parse(entry.Name())
		if err != nil {
			ll.Warn("skipping unrecognized landing file", "file", entry.Name(), "error", err.Error())
			continue
		}
		if date != ingestionDate {
			continue
		}
		sources[table] = append(sources[table], lakename.SourceFile{
			Path:          filepath.Join(p.cfg.Landing.Dir, entry.Name()),
			TableName:     table,
			IngestionDate: date,
			Format:        format,
		})
	}
	return sources, nil
}

func (p *LandingToRawProcessor) processTable(ctx context.Context, batch Batch, table string, files []lakename.SourceFile) TableOutcome {
	out := TableOutcome{TableName: table, Stage: StageLandingToRaw}

	desc := p.reg.Get(table)
	if desc == nil {
		out.Err = fmt.Errorf("table %s is not configured", table)
		return out
	}

	switch {
	case len(files) == 0:
		out.Err = &MissingSourceFileError{Table: table, IngestionDate: batch.IngestionDate}
		return out
	case len(files) > 1:
		paths := make([]string, 0, len(files))
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		sort.Strings(paths)
		out.Err = &AmbiguousSourceFileError{Table: table, IngestionDate: batch.IngestionDate, Paths: paths}
		return out
	}
	src := files[0]
	if src.Format != desc.Format {
		out.Err = fmt.Errorf("table %s: landing file %s has format %s, configured format is %s",
			table, src.Path, src.Format, desc.Format)
		return out
	}

	data, err := os.ReadFile(src.Path)
	if err != nil {
		out.Err = fmt.Errorf("read landing file %s: %w", src.Path, err)
		return out
	}

	key := rawObjectKey(p.cfg, table, batch.IngestionDate, filepath.Base(src.Path))
	err = withRetry(ctx, p.cfg.ETL.RetryAttempts, p.cfg.ETL.RetryBackoff, "upload raw partition", func() error {
		return p.store.PutObject(ctx, p.cfg.Storage.Bucket, key, data)
	})
	if err != nil {
		out.Err = err
		return out
	}

	// A prior run may have left the partition under a different file name
	// or format; anything but the object just written is stale and must go,
	// or the partition would accumulate instead of being replaced.
	if err := sweepStale(ctx, p.cfg, p.store, rawPartitionPrefix(p.cfg, table, batch.IngestionDate), key); err != nil {
		out.Err = err
		return out
	}

	rowCount := countRows(data, src.Format)
	rawRowsIn.Add(ctx, rowCount, metric.WithAttributes(attribute.String("table", table)))

	out.Raw = &RawPartition{
		TableName:     table,
		IngestionDate: batch.IngestionDate,
		StoragePath:   objectURL(p.cfg, key),
		RowCount:      rowCount,
		ContentHash:   xxhash.Sum64(data),
	}

	// The upload is durable at this point; a registration failure is
	// reported but does not fail the table, and re-running repairs it.
	if err := p.register(ctx, desc, batch.IngestionDate); err != nil {
		out.Warning = err
		logctx.FromContext(ctx).Warn("raw catalog registration failed", "table", table, "error", err.Error())
	}

	logctx.FromContext(ctx).Info("raw partition written",
		"table", table, "ingestion_date", batch.IngestionDate,
		"rows", rowCount, "path", out.Raw.StoragePath)
	return out
}

// sweepStale deletes every object under prefix except keep. Passing an
// empty keep clears the prefix entirely. This is what turns per-key
// overwrite into whole-partition replace.
func sweepStale(ctx context.Context, cfg *config.Config, store blobstore.Client, prefix, keep string) error {
	return withRetry(ctx, cfg.ETL.RetryAttempts, cfg.ETL.RetryBackoff, "sweep stale objects", func() error {
		keys, err := store.ListObjects(ctx, cfg.Storage.Bucket, prefix)
		if err != nil {
			return err
		}
		stale := make([]string, 0, len(keys))
		for _, k := range keys {
			if k != keep {
				stale = append(stale, k)
			}
		}
		if len(stale) == 0 {
			return nil
		}
		failed, err := store.DeleteObjects(ctx, cfg.Storage.Bucket, stale)
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d stale objects not deleted under %s", len(failed), prefix)
		}
		return nil
	})
}

func (p *LandingToRawProcessor) register(ctx context.Context, desc *tableschema.Descriptor, date string) error {
	loc := rawTableLocation(p.cfg, desc.Name)
	if err := p.cat.RegisterTable(ctx, desc, catalog.LayerRaw, loc); err != nil {
		return &CatalogRegistrationError{Table: desc.Name, Layer: string(catalog.LayerRaw), Err: err}
	}
	spec := catalog.PartitionSpec{"ingestion_date": date}
	partLoc := fmt.Sprintf("%s/ingestion_date=%s", loc, date)
	if err := p.cat.RegisterPartition(ctx, desc.Name, catalog.LayerRaw, spec, partLoc); err != nil {
		return &CatalogRegistrationError{Table: desc.Name, Layer: string(catalog.LayerRaw), Err: err}
	}
	return nil
}

// countRows counts data rows in a landing file: non-empty lines, minus
// the header line for CSV.
func countRows(data []byte, format lakename.Format) int64 {
	var n int64
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	if format == lakename.FormatCSV && n > 0 {
		n--
	}
	return n
}

func rawTableLocation(cfg *config.Config, table string) string {
	return fmt.Sprintf("s3://%s/%s/%s", cfg.Storage.Bucket, cfg.Storage.RawPrefix, table)
}

func rawPartitionPrefix(cfg *config.Config, table, date string) string {
	return fmt.Sprintf("%s/%s/ingestion_date=%s/", cfg.Storage.RawPrefix, table, date)
}

func rawObjectKey(cfg *config.Config, table, date, filename string) string {
	return rawPartitionPrefix(cfg, table, date) + filename
}

func objectURL(cfg *config.Config, key string) string {
	return fmt.Sprintf("s3://%s/%s", cfg.Storage.Bucket, key)
}
