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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "raw", cfg.Storage.RawPrefix)
	assert.Equal(t, "trusted", cfg.Storage.TrustedPrefix)
	assert.Equal(t, ":memory:", cfg.Query.Database)
	assert.Equal(t, 4, cfg.ETL.WorkerLimit)
	assert.Equal(t, 3, cfg.ETL.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.ETL.RetryBackoff)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
landing:
  dir: /data/landing
storage:
  endpoint: http://localhost:9000
  access_key: minio
  secret_key: minio123
  bucket: dev-lake
etl:
  worker_limit: 8
  retry_backoff: 500ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.dev.yaml"), []byte(content), 0o644))
	t.Chdir(dir)

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "/data/landing", cfg.Landing.Dir)
	assert.Equal(t, "http://localhost:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "dev-lake", cfg.Storage.Bucket)
	assert.Equal(t, 8, cfg.ETL.WorkerLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.ETL.RetryBackoff)
	// Unset keys keep their defaults.
	assert.Equal(t, "raw", cfg.Storage.RawPrefix)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STREAMLAKE_STORAGE_SECRET_KEY", "from-env")

	cfg, err := Load("prod")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Storage.SecretKey)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.dev.yaml"), []byte("{not yaml"), 0o644))
	t.Chdir(dir)

	_, err := Load("dev")
	require.Error(t, err)
}
