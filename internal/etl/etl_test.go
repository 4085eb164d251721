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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/streamlake/config"
	"github.com/cardinalhq/streamlake/internal/catalog"
	"github.com/cardinalhq/streamlake/internal/lakename"
	"github.com/cardinalhq/streamlake/internal/tableschema"
)

const testDate = "2025-09-09"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "dev",
		Landing:     config.LandingConfig{Dir: t.TempDir()},
		Storage: config.StorageConfig{
			Bucket:        "testlake",
			RawPrefix:     "raw",
			TrustedPrefix: "trusted",
			RejectsPrefix: "rejects",
		},
		Catalog: config.CatalogConfig{Schema: "streampro"},
		ETL: config.ETLConfig{
			WorkerLimit:   2,
			RetryAttempts: 1,
			RetryBackoff:  time.Millisecond,
		},
	}
}

func testRegistry(t *testing.T, tables ...string) *tableschema.Registry {
	t.Helper()
	all := map[string]tableschema.Descriptor{
		"users": {
			Name:          "users",
			Format:        lakename.FormatCSV,
			SchemaVersion: 1,
			PartitionKeys: []string{"ingestion_date"},
			Columns: []tableschema.Column{
				{Name: "user_id", Type: tableschema.TypeString},
				{Name: "name", Type: tableschema.TypeString},
				{Name: "age", Type: tableschema.TypeInt64},
				{Name: "ingestion_date", Type: tableschema.TypeString},
			},
			Quality: tableschema.Quality{
				MaxFailedRatio: 0.05,
				Rules: []tableschema.Rule{
					{ID: "user_id_not_null", Type: tableschema.RuleRequired, Column: "user_id"},
				},
			},
		},
		"videos": {
			Name:          "videos",
			Format:        lakename.FormatCSV,
			SchemaVersion: 1,
			PartitionKeys: []string{"ingestion_date"},
			Columns: []tableschema.Column{
				{Name: "video_id", Type: tableschema.TypeString},
				{Name: "title", Type: tableschema.TypeString},
				{Name: "ingestion_date", Type: tableschema.TypeString},
			},
			Quality: tableschema.Quality{MaxFailedRatio: 0.05},
		},
		"devices": {
			Name:          "devices",
			Format:        lakename.FormatCSV,
			SchemaVersion: 1,
			PartitionKeys: []string{"ingestion_date"},
			Columns: []tableschema.Column{
				{Name: "device_id", Type: tableschema.TypeString},
				{Name: "device_type", Type: tableschema.TypeString},
				{Name: "ingestion_date", Type: tableschema.TypeString},
			},
			Quality: tableschema.Quality{MaxFailedRatio: 0.05},
		},
		"events": {
			Name:          "events",
			Format:        lakename.FormatJSONLines,
			SchemaVersion: 1,
			PartitionKeys: []string{"ingestion_date"},
			Columns: []tableschema.Column{
				{Name: "session_id", Type: tableschema.TypeString},
				{Name: "user_id", Type: tableschema.TypeString},
				{Name: "watch_time", Type: tableschema.TypeInt64},
				{Name: "event_time", Type: tableschema.TypeTimestamp},
				{Name: "ingestion_date", Type: tableschema.TypeString},
			},
			Quality: tableschema.Quality{
				MaxFailedRatio: 0.2,
				Rules: []tableschema.Rule{
					{ID: "event_user_exists", Type: tableschema.RuleReference, Column: "user_id", RefTable: "users", RefColumn: "user_id"},
					{ID: "watch_time_non_negative", Type: tableschema.RuleNonNegative, Column: "watch_time"},
				},
			},
		},
	}

	if len(tables) == 0 {
		tables = []string{"users", "videos", "devices", "events"}
	}
	descs := make([]tableschema.Descriptor, 0, len(tables))
	for _, name := range tables {
		d, ok := all[name]
		require.True(t, ok, "unknown test table %s", name)
		descs = append(descs, d)
	}
	reg, err := tableschema.NewRegistry(descs)
	require.NoError(t, err)
	return reg
}

func writeLanding(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Landing.Dir, name), []byte(content), 0o644))
}

// fakeCatalog records registrations and optionally fails them all.
type fakeCatalog struct {
	mu         sync.Mutex
	tables     []string
	partitions []string
	err        error
}

func (c *fakeCatalog) RegisterTable(_ context.Context, desc *tableschema.Descriptor, layer catalog.Layer, _ string) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = append(c.tables, fmt.Sprintf("%s/%s", layer, desc.Name))
	return nil
}

func (c *fakeCatalog) RegisterPartition(_ context.Context, table string, layer catalog.Layer, spec catalog.PartitionSpec, _ string) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions = append(c.partitions, fmt.Sprintf("%s/%s/%s", layer, table, spec))
	return nil
}

// fakeEngine answers queries through a scripted function.
type fakeEngine struct {
	mu      sync.Mutex
	queryFn func(sql string) ([]map[string]any, error)
}

func (e *fakeEngine) Query(_ context.Context, sql string) ([]map[string]any, error) {
	e.mu.Lock()
	fn := e.queryFn
	e.mu.Unlock()
	return fn(sql)
}

func (e *fakeEngine) Exec(context.Context, string) error { return nil }
func (e *fakeEngine) Close() error                       { return nil }

func (e *fakeEngine) setQueryFn(fn func(sql string) ([]map[string]any, error)) {
	e.mu.Lock()
	e.queryFn = fn
	e.mu.Unlock()
}
