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
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Version int          `yaml:"version"`
	Tables  []Descriptor `yaml:"tables"`
}

// LoadFile reads a registry from a YAML file. A filename of the form
// "env:VARNAME" loads the YAML from that environment variable instead,
// which is how containerized deployments inject the table set.
func LoadFile(filename string) (*Registry, error) {
	if after, ok := strings.CutPrefix(filename, "env:"); ok {
		contents := os.Getenv(after)
		if contents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", after)
		}
		return loadContents(filename, []byte(contents))
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read table schemas from file %s: %w", filename, err)
	}
	return loadContents(filename, contents)
}

func loadContents(filename string, contents []byte) (*Registry, error) {
	var cfg fileConfig

	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal table schemas from %s: %w", filename, err)
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported table schema version %d in %s", cfg.Version, filename)
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("no tables defined in %s", filename)
	}
	return NewRegistry(cfg.Tables)
}
