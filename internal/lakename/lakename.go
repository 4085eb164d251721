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

// Package lakename resolves landing-zone file names into their table name,
// ingestion date, and format. Landing files follow the convention
// {table}_{YYYY-MM-DD}.{csv|jsonl}.
package lakename

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrUnrecognizedFilename is returned when a file name does not follow the
// landing naming convention. Callers are expected to skip such files with a
// warning rather than abort the run.
var ErrUnrecognizedFilename = errors.New("unrecognized landing filename")

var landingNameRegexp = regexp.MustCompile(`^([a-z_]+)_(\d{4}-\d{2}-\d{2})\.(csv|jsonl)$`)

// Format identifies the encoding of a landing file.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSONLines Format = "jsonl"
)

// SourceFile describes a single resolved landing file.
type SourceFile struct {
	Path          string
	TableName     string
	IngestionDate string
	Format        Format
}

// Parse resolves a landing file name into (table, date, format). The date
// component must be a real calendar date; names like users_2025-13-40.csv
// are rejected.
func Parse(name string) (table string, date string, format Format, err error) {
	m := landingNameRegexp.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnrecognizedFilename, name)
	}
	if _, perr := time.Parse("2006-01-02", m[2]); perr != nil {
		return "", "", "", fmt.Errorf("%w: %q: malformed date: %v", ErrUnrecognizedFilename, name, perr)
	}
	return m[1], m[2], Format(m[3]), nil
}
