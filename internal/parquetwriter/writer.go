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

// Package parquetwriter encodes trusted-layer rows as zstd-compressed
// Parquet files with a schema derived from the table descriptor.
package parquetwriter

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/streamlake/internal/tableschema"
)

// Result contains metadata about a written Parquet file.
type Result struct {
	FileName    string
	RecordCount int64
	FileSize    int64
}

// SchemaFromDescriptor builds the Parquet schema for a table. All columns
// are optional; string-like columns get dictionary encoding.
func SchemaFromDescriptor(desc *tableschema.Descriptor) (*parquet.Schema, error) {
	fields := make(map[string]parquet.Node, len(desc.Columns))
	for _, col := range desc.Columns {
		node, err := nodeForType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s: column %s: %w", desc.Name, col.Name, err)
		}
		fields[col.Name] = node
	}
	return parquet.NewSchema(desc.Name, parquet.Group(fields)), nil
}

func nodeForType(t tableschema.ColumnType) (parquet.Node, error) {
	switch t {
	case tableschema.TypeString, tableschema.TypeTimestamp:
		return parquet.Optional(parquet.Encoded(parquet.String(), &parquet.RLEDictionary)), nil
	case tableschema.TypeInt64:
		return parquet.Optional(parquet.Int(64)), nil
	case tableschema.TypeFloat64:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType)), nil
	}
	return nil, fmt.Errorf("unsupported column type %q", t)
}

func writerOptions(tmpdir string, schema *parquet.Schema) []parquet.WriterOption {
	return []parquet.WriterOption{
		schema,
		parquet.Compression(&parquet.Zstd),
		parquet.PageBufferSize(32 * 1024),
		parquet.ColumnIndexSizeLimit(1024),
		parquet.ColumnPageBuffers(
			parquet.NewFileBufferPool(tmpdir, "buffers.*"),
		),
	}
}

// WriteTableFile writes rows to path as a single Parquet file. Rows must
// only contain columns the descriptor declares; nil values become nulls.
func WriteTableFile(path string, desc *tableschema.Descriptor, rows []map[string]any) (Result, error) {
	schema, err := SchemaFromDescriptor(desc)
	if err != nil {
		return Result{}, err
	}

	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	config, err := parquet.NewWriterConfig(writerOptions(os.TempDir(), schema)...)
	if err != nil {
		return Result{}, fmt.Errorf("writer config: %w", err)
	}
	writer := parquet.NewGenericWriter[map[string]any](f, config)

	scratch := make(map[string]any, len(desc.Columns))
	for i, row := range rows {
		clear(scratch)
		for k, v := range row {
			if v == nil {
				continue // absent keys become nulls
			}
			scratch[k] = v
		}
		if _, err := writer.Write([]map[string]any{scratch}); err != nil {
			return Result{}, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Result{
		FileName:    path,
		RecordCount: int64(len(rows)),
		FileSize:    stat.Size(),
	}, nil
}
