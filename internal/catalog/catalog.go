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

// Package catalog registers lakehouse tables and partitions so the query
// engine can see freshly-written data. The production implementation
// issues external-table DDL through the query engine itself.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cardinalhq/streamlake/internal/lakename"
	"github.com/cardinalhq/streamlake/internal/logctx"
	"github.com/cardinalhq/streamlake/internal/queryengine"
	"github.com/cardinalhq/streamlake/internal/tableschema"
)

// Layer identifies which lakehouse layer a table belongs to.
type Layer string

const (
	LayerRaw     Layer = "raw"
	LayerTrusted Layer = "trusted"
)

// PartitionSpec is the column=value assignment identifying one partition.
type PartitionSpec map[string]string

// String renders the spec in deterministic key order, e.g.
// "ingestion_date=2025-09-09".
func (p PartitionSpec) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, p[k]))
	}
	return strings.Join(parts, "/")
}

// Catalog registers table definitions and partitions against the metadata
// store.
type Catalog interface {
	// RegisterTable creates or replaces the table definition for the given
	// layer over the storage location (the table's root, not a single
	// partition).
	RegisterTable(ctx context.Context, desc *tableschema.Descriptor, layer Layer, location string) error

	// RegisterPartition makes the partition at location visible under an
	// already-registered table. Registration is idempotent.
	RegisterPartition(ctx context.Context, table string, layer Layer, spec PartitionSpec, location string) error
}

type tableDef struct {
	desc     *tableschema.Descriptor
	layer    Layer
	location string
}

// EngineCatalog implements Catalog by creating schema-qualified views over
// object-storage locations, the embedded-engine equivalent of Hive
// external tables. Views select over the table root with hive partitioning
// enabled, so re-registering after a partition write refreshes visibility.
type EngineCatalog struct {
	engine queryengine.Engine
	schema string

	mu     sync.Mutex
	tables map[string]tableDef // viewName -> definition
}

var _ Catalog = (*EngineCatalog)(nil)

// NewEngineCatalog returns a catalog that issues DDL into the given schema.
func NewEngineCatalog(engine queryengine.Engine, schema string) *EngineCatalog {
	return &EngineCatalog{
		engine: engine,
		schema: schema,
		tables: make(map[string]tableDef),
	}
}

// ViewName returns the schema-qualified object name for a table in a layer,
// e.g. streampro.trusted_users.
func (c *EngineCatalog) ViewName(table string, layer Layer) string {
	return fmt.Sprintf("%s.%s_%s", c.schema, layer, table)
}

func (c *EngineCatalog) RegisterTable(ctx context.Context, desc *tableschema.Descriptor, layer Layer, location string) error {
	if err := c.engine.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", c.schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", c.schema, err)
	}

	name := c.ViewName(desc.Name, layer)
	ddl, err := viewDDL(name, desc, layer, location)
	if err != nil {
		return err
	}
	if err := c.engine.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("register table %s: %w", name, err)
	}

	c.mu.Lock()
	c.tables[name] = tableDef{desc: desc, layer: layer, location: location}
	c.mu.Unlock()

	logctx.FromContext(ctx).Info("registered table",
		"table", desc.Name, "layer", string(layer), "location", location)
	return nil
}

// RegisterPartition refreshes the table's view. The view globs over all
// partitions under the table root, so recreating it after a write is what
// makes a new or replaced partition queryable.
func (c *EngineCatalog) RegisterPartition(ctx context.Context, table string, layer Layer, spec PartitionSpec, location string) error {
	name := c.ViewName(table, layer)

	c.mu.Lock()
	def, ok := c.tables[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("partition %s of %s: table not registered", spec, name)
	}

	ddl, err := viewDDL(name, def.desc, def.layer, def.location)
	if err != nil {
		return err
	}
	if err := c.engine.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("register partition %s of %s: %w", spec, name, err)
	}

	logctx.FromContext(ctx).Info("registered partition",
		"table", table, "layer", string(layer), "partition", spec.String(), "location", location)
	return nil
}

func viewDDL(name string, desc *tableschema.Descriptor, layer Layer, location string) (string, error) {
	location = strings.TrimSuffix(location, "/")
	var scan string
	switch {
	case layer == LayerTrusted:
		scan = fmt.Sprintf("read_parquet('%s/*/*.parquet', hive_partitioning=true)", location)
	case desc.Format == lakename.FormatCSV:
		scan = fmt.Sprintf("read_csv_auto('%s/*/*.csv', header=true, hive_partitioning=true)", location)
	case desc.Format == lakename.FormatJSONLines:
		scan = fmt.Sprintf("read_json_auto('%s/*/*.jsonl', hive_partitioning=true)", location)
	default:
		return "", fmt.Errorf("table %s: unsupported raw format %q", desc.Name, desc.Format)
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", name, scan), nil
}
