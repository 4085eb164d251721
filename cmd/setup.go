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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cardinalhq/streamlake/config"
	"github.com/cardinalhq/streamlake/internal/blobstore"
	"github.com/cardinalhq/streamlake/internal/catalog"
	"github.com/cardinalhq/streamlake/internal/etl"
	"github.com/cardinalhq/streamlake/internal/logctx"
	"github.com/cardinalhq/streamlake/internal/queryengine"
	"github.com/cardinalhq/streamlake/internal/tableschema"
)

// runtime bundles everything a command needs for one invocation.
type runtime struct {
	cfg      *config.Config
	store    blobstore.Client
	engine   queryengine.Engine
	cat      catalog.Catalog
	registry *tableschema.Registry
}

func (r *runtime) Close() {
	if r.engine != nil {
		_ = r.engine.Close()
	}
}

// setup loads configuration for the selected environment and wires the
// external collaborators. The returned context carries the run logger.
func setup(ctx context.Context) (context.Context, *runtime, error) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	ll := slog.New(handler).With(
		"env", envFlag,
		"ingestion_date", ingestionDateFlag,
	)
	slog.SetDefault(ll)
	ctx = logctx.WithLogger(ctx, ll)

	if _, err := time.Parse("2006-01-02", ingestionDateFlag); err != nil {
		return ctx, nil, fmt.Errorf("invalid --ingestion_date %q: %w", ingestionDateFlag, err)
	}

	cfg, err := config.Load(envFlag)
	if err != nil {
		return ctx, nil, err
	}

	registry, err := tableschema.LoadFile(cfg.ETL.TableSchemas)
	if err != nil {
		return ctx, nil, err
	}

	store, err := blobstore.NewS3Client(ctx, blobstore.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		return ctx, nil, err
	}

	engine, err := queryengine.NewDuckDB(ctx, cfg.Query.Database, &queryengine.S3Settings{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return ctx, nil, err
	}

	return ctx, &runtime{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		cat:      catalog.NewEngineCatalog(engine, cfg.Catalog.Schema),
		registry: registry,
	}, nil
}

// reportOutcomes logs a per-table and whole-run summary and returns the
// folded error, non-nil when any table failed.
func reportOutcomes(ctx context.Context, outcomes []etl.TableOutcome, started time.Time) error {
	ll := logctx.FromContext(ctx)
	var rawRows, trustedRows, rejectedRows int64
	for _, o := range outcomes {
		if o.Raw != nil {
			rawRows += o.Raw.RowCount
		}
		if o.Trusted != nil {
			trustedRows += o.Trusted.RowCount
			rejectedRows += o.Trusted.RejectedRows
		}
		switch {
		case o.Err != nil:
			ll.Error("table failed", "table", o.TableName, "stage", string(o.Stage), "error", o.Err.Error())
		case o.Warning != nil:
			ll.Warn("table succeeded with warning", "table", o.TableName, "stage", string(o.Stage), "warning", o.Warning.Error())
		default:
			ll.Info("table succeeded", "table", o.TableName, "stage", string(o.Stage))
		}
		for _, rule := range o.Rules {
			ll.Info("quality rule result", "table", o.TableName,
				"rule", rule.RuleID, "passed", rule.Passed, "failed", rule.Failed)
		}
	}
	ll.Info("run complete",
		"tables", len(outcomes),
		"failed", failedCount(outcomes),
		"raw_rows", rawRows,
		"trusted_rows", trustedRows,
		"rejected_rows", rejectedRows,
		"duration", time.Since(started).String())
	if err := etl.Summarize(outcomes); err != nil {
		return fmt.Errorf("%d of %d tables failed: %w", failedCount(outcomes), len(outcomes), err)
	}
	return nil
}

func failedCount(outcomes []etl.TableOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

func newBatch() etl.Batch {
	var tables []string
	for _, t := range tablesFlag {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}
	return etl.NewBatch(envFlag, ingestionDateFlag, tables)
}
