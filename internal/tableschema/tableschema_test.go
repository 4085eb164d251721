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

package tableschema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/streamlake/internal/lakename"
)

const validYAML = `
version: 1
tables:
  - name: users
    format: csv
    schema_version: 1
    columns:
      - name: user_id
        type: string
      - name: signup_date
        type: timestamp
    partition_keys: [ingestion_date]
    quality:
      max_failed_ratio: 0.05
      rules:
        - id: user_id_not_null
          type: required
          column: user_id
  - name: events
    format: jsonl
    schema_version: 1
    columns:
      - name: user_id
        type: string
      - name: value
        type: float64
    quality:
      max_failed_ratio: 0.3
      rules:
        - id: event_user_exists
          type: reference
          column: user_id
          ref_table: users
          ref_column: user_id
        - id: event_dedupe
          type: dedupe
          keys: [user_id, value]
`

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	reg, err := LoadFile(writeTempFile(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "events"}, reg.TableNames())

	users := reg.Get("users")
	require.NotNil(t, users)
	assert.Equal(t, lakename.FormatCSV, users.Format)
	assert.Equal(t, 0.05, users.Quality.MaxFailedRatio)
	require.NotNil(t, users.Column("signup_date"))
	assert.Equal(t, TypeTimestamp, users.Column("signup_date").Type)

	events := reg.Get("events")
	require.NotNil(t, events)
	assert.Equal(t, lakename.FormatJSONLines, events.Format)
	require.Len(t, events.Quality.Rules, 2)
	assert.Equal(t, RuleReference, events.Quality.Rules[0].Type)

	assert.Nil(t, reg.Get("nope"))
}

func TestLoadFileFromEnv(t *testing.T) {
	t.Setenv("STREAMLAKE_TEST_TABLES", validYAML)
	reg, err := LoadFile("env:STREAMLAKE_TEST_TABLES")
	require.NoError(t, err)
	assert.Len(t, reg.Tables(), 2)
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	_, err := LoadFile(writeTempFile(t, `
version: 1
tables:
  - name: users
    format: csv
    schema_version: 1
    wat: true
    columns:
      - name: user_id
        type: string
`))
	require.Error(t, err)
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad version", "version: 2\ntables: []\n"},
		{"no tables", "version: 1\ntables: []\n"},
		{
			"bad format",
			"version: 1\ntables:\n  - name: users\n    format: parquet\n    schema_version: 1\n    columns:\n      - name: a\n        type: string\n",
		},
		{
			"bad column type",
			"version: 1\ntables:\n  - name: users\n    format: csv\n    schema_version: 1\n    columns:\n      - name: a\n        type: blob\n",
		},
		{
			"bad rule type",
			"version: 1\ntables:\n  - name: users\n    format: csv\n    schema_version: 1\n    columns:\n      - name: a\n        type: string\n    quality:\n      rules:\n        - id: r\n          type: sometimes\n          column: a\n",
		},
		{
			"rule missing column",
			"version: 1\ntables:\n  - name: users\n    format: csv\n    schema_version: 1\n    columns:\n      - name: a\n        type: string\n    quality:\n      rules:\n        - id: r\n          type: required\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeTempFile(t, tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestNewRegistryDuplicateTable(t *testing.T) {
	desc := Descriptor{
		Name:          "users",
		Format:        lakename.FormatCSV,
		SchemaVersion: 1,
		Columns:       []Column{{Name: "user_id", Type: TypeString}},
	}
	_, err := NewRegistry([]Descriptor{desc, desc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate table")
}
