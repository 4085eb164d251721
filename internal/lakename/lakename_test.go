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

package lakename

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		wantTable  string
		wantDate   string
		wantFormat Format
		wantErr    bool
	}{
		{name: "events_2025-09-09.jsonl", wantTable: "events", wantDate: "2025-09-09", wantFormat: FormatJSONLines},
		{name: "users_2025-09-09.csv", wantTable: "users", wantDate: "2025-09-09", wantFormat: FormatCSV},
		{name: "watch_history_2024-01-31.csv", wantTable: "watch_history", wantDate: "2024-01-31", wantFormat: FormatCSV},
		{name: "garbage.csv", wantErr: true},
		{name: "users_2025-09-09.json", wantErr: true},
		{name: "users_2025-9-9.csv", wantErr: true},
		{name: "users_2025-13-40.csv", wantErr: true},
		{name: "Users_2025-09-09.csv", wantErr: true},
		{name: "users2025-09-09.csv", wantErr: true},
		{name: "users_2025-09-09.csv.bak", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, date, format, err := Parse(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnrecognizedFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTable, table)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantFormat, format)
		})
	}
}
