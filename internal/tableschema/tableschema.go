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

// Package tableschema holds the static table configuration shared read-only
// by all processors: declared columns and types, partition keys, landing
// format, and the per-table data-quality rule set.
package tableschema

import (
	"fmt"

	"github.com/cardinalhq/streamlake/internal/lakename"
)

// ColumnType is the semantic type a trusted column is coerced to.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInt64     ColumnType = "int64"
	TypeFloat64   ColumnType = "float64"
	TypeTimestamp ColumnType = "timestamp"
)

// RuleType identifies a data-quality rule kind.
type RuleType string

const (
	RuleRequired    RuleType = "required"
	RuleNonNegative RuleType = "non_negative"
	RuleReference   RuleType = "reference"
	RuleDedupe      RuleType = "dedupe"
)

// Column declares one trusted-layer column.
type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"type"`
}

// Rule declares one data-quality rule. Which fields apply depends on Type:
// required and non_negative use Column; reference uses Column plus
// RefTable/RefColumn; dedupe uses Keys.
type Rule struct {
	ID        string   `yaml:"id"`
	Type      RuleType `yaml:"type"`
	Column    string   `yaml:"column,omitempty"`
	Keys      []string `yaml:"keys,omitempty"`
	RefTable  string   `yaml:"ref_table,omitempty"`
	RefColumn string   `yaml:"ref_column,omitempty"`
}

// Quality is the per-table quality gate configuration. MaxFailedRatio is
// the fraction of rows that may fail rules before the whole table's
// promotion is aborted.
type Quality struct {
	MaxFailedRatio float64 `yaml:"max_failed_ratio"`
	Rules          []Rule  `yaml:"rules,omitempty"`
}

// Descriptor is the static configuration for one table across layers.
type Descriptor struct {
	Name          string          `yaml:"name"`
	Format        lakename.Format `yaml:"format"`
	Columns       []Column        `yaml:"columns"`
	PartitionKeys []string        `yaml:"partition_keys,omitempty"`
	SchemaVersion int             `yaml:"schema_version"`
	Quality       Quality         `yaml:"quality"`
}

// Column returns the declared column with the given name, or nil.
func (d *Descriptor) Column(name string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

func (d *Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("table with empty name")
	}
	if d.Format != lakename.FormatCSV && d.Format != lakename.FormatJSONLines {
		return fmt.Errorf("table %s: unsupported format %q", d.Name, d.Format)
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("table %s: no columns declared", d.Name)
	}
	for _, c := range d.Columns {
		switch c.Type {
		case TypeString, TypeInt64, TypeFloat64, TypeTimestamp:
		default:
			return fmt.Errorf("table %s: column %s: unsupported type %q", d.Name, c.Name, c.Type)
		}
	}
	if d.Quality.MaxFailedRatio < 0 || d.Quality.MaxFailedRatio > 1 {
		return fmt.Errorf("table %s: max_failed_ratio %v out of [0,1]", d.Name, d.Quality.MaxFailedRatio)
	}
	for i, r := range d.Quality.Rules {
		if r.ID == "" {
			return fmt.Errorf("table %s: rule %d has no id", d.Name, i)
		}
		switch r.Type {
		case RuleRequired, RuleNonNegative:
			if r.Column == "" {
				return fmt.Errorf("table %s: rule %s: column required", d.Name, r.ID)
			}
		case RuleReference:
			if r.Column == "" || r.RefTable == "" || r.RefColumn == "" {
				return fmt.Errorf("table %s: rule %s: column, ref_table and ref_column required", d.Name, r.ID)
			}
		case RuleDedupe:
			if len(r.Keys) == 0 {
				return fmt.Errorf("table %s: rule %s: keys required", d.Name, r.ID)
			}
		default:
			return fmt.Errorf("table %s: rule %s: unsupported type %q", d.Name, r.ID, r.Type)
		}
	}
	return nil
}

// Registry is the set of configured tables, loaded once per process.
type Registry struct {
	tables []Descriptor
	byName map[string]*Descriptor
}

// NewRegistry builds a registry from descriptors, validating each.
func NewRegistry(tables []Descriptor) (*Registry, error) {
	r := &Registry{
		tables: tables,
		byName: make(map[string]*Descriptor, len(tables)),
	}
	for i := range r.tables {
		d := &r.tables[i]
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate table %s", d.Name)
		}
		r.byName[d.Name] = d
	}
	return r, nil
}

// Get returns the descriptor for a table name, or nil if not configured.
func (r *Registry) Get(name string) *Descriptor {
	return r.byName[name]
}

// TableNames returns the configured table names in declaration order.
func (r *Registry) TableNames() []string {
	names := make([]string, 0, len(r.tables))
	for i := range r.tables {
		names = append(names, r.tables[i].Name)
	}
	return names
}

// Tables returns the descriptors in declaration order.
func (r *Registry) Tables() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.tables))
	for i := range r.tables {
		out = append(out, &r.tables[i])
	}
	return out
}
