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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/streamlake/internal/blobstore"
)

const usersCSV = "user_id,name,age\nu1,Ana,30\nu2,Bob,41\nu3,Cleo,25\n"

func TestLandingToRawUploadsPartition(t *testing.T) {
	cfg := testConfig(t)
	store := blobstore.NewFileClient(t.TempDir())
	cat := &fakeCatalog{}
	proc := NewLandingToRaw(cfg, store, cat, testRegistry(t, "users"))

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)

	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	require.Len(t, outcomes, 1)
	out := outcomes[0]
	require.NoError(t, out.Err)
	require.NotNil(t, out.Raw)
	assert.Equal(t, int64(3), out.Raw.RowCount)
	assert.Equal(t, "s3://testlake/raw/users/ingestion_date=2025-09-09/users_2025-09-09.csv", out.Raw.StoragePath)

	body, notFound, err := store.GetObject(t.Context(), cfg.Storage.Bucket,
		"raw/users/ingestion_date=2025-09-09/users_2025-09-09.csv")
	require.NoError(t, err)
	require.False(t, notFound)
	assert.Equal(t, usersCSV, string(body))

	assert.Contains(t, cat.tables, "raw/users")
	assert.Contains(t, cat.partitions, "raw/users/ingestion_date=2025-09-09")
}

func TestLandingToRawIdempotent(t *testing.T) {
	cfg := testConfig(t)
	store := blobstore.NewFileClient(t.TempDir())
	proc := NewLandingToRaw(cfg, store, &fakeCatalog{}, testRegistry(t, "users"))
	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)
	batch := NewBatch("dev", testDate, nil)

	first := proc.Run(t.Context(), batch)
	second := proc.Run(t.Context(), batch)
	require.NoError(t, first[0].Err)
	require.NoError(t, second[0].Err)

	assert.Equal(t, first[0].Raw.ContentHash, second[0].Raw.ContentHash)
	assert.Equal(t, first[0].Raw.RowCount, second[0].Raw.RowCount)

	keys, err := store.ListObjects(t.Context(), cfg.Storage.Bucket, "raw/users/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestLandingToRawOverwritesNotAppends(t *testing.T) {
	cfg := testConfig(t)
	store := blobstore.NewFileClient(t.TempDir())
	proc := NewLandingToRaw(cfg, store, &fakeCatalog{}, testRegistry(t, "users"))
	batch := NewBatch("dev", testDate, nil)

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)
	first := proc.Run(t.Context(), batch)
	require.NoError(t, first[0].Err)

	// The corrected file for the same date fully replaces the partition.
	writeLanding(t, cfg, "users_2025-09-09.csv", "user_id,name,age\nu1,Ana,30\n")
	second := proc.Run(t.Context(), batch)
	require.NoError(t, second[0].Err)
	assert.Equal(t, int64(1), second[0].Raw.RowCount)
	assert.NotEqual(t, first[0].Raw.ContentHash, second[0].Raw.ContentHash)

	keys, err := store.ListObjects(t.Context(), cfg.Storage.Bucket, "raw/users/ingestion_date=2025-09-09/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	body, _, err := store.GetObject(t.Context(), cfg.Storage.Bucket, keys[0])
	require.NoError(t, err)
	assert.Equal(t, "user_id,name,age\nu1,Ana,30\n", string(body))
}

func TestLandingToRawSweepsStaleObjects(t *testing.T) {
	cfg := testConfig(t)
	store := blobstore.NewFileClient(t.TempDir())
	proc := NewLandingToRaw(cfg, store, &fakeCatalog{}, testRegistry(t, "users"))

	// Leftover from an aborted run under a different file name.
	require.NoError(t, store.PutObject(t.Context(), cfg.Storage.Bucket,
		"raw/users/ingestion_date=2025-09-09/stale.csv", []byte("old")))

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)
	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	require.NoError(t, outcomes[0].Err)

	keys, err := store.ListObjects(t.Context(), cfg.Storage.Bucket, "raw/users/ingestion_date=2025-09-09/")
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/users/ingestion_date=2025-09-09/users_2025-09-09.csv"}, keys)
}

func TestLandingToRawMissingSourceFile(t *testing.T) {
	cfg := testConfig(t)
	proc := NewLandingToRaw(cfg, blobstore.NewFileClient(t.TempDir()), &fakeCatalog{}, testRegistry(t, "users", "events"))

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)

	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	require.Len(t, outcomes, 2)
	byTable := map[string]TableOutcome{}
	for _, o := range outcomes {
		byTable[o.TableName] = o
	}
	require.NoError(t, byTable["users"].Err)

	var missing *MissingSourceFileError
	require.ErrorAs(t, byTable["events"].Err, &missing)
	assert.Equal(t, "events", missing.Table)
}

func TestLandingToRawAmbiguousSourceFile(t *testing.T) {
	cfg := testConfig(t)
	proc := NewLandingToRaw(cfg, blobstore.NewFileClient(t.TempDir()), &fakeCatalog{}, testRegistry(t, "users"))

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)
	writeLanding(t, cfg, "users_2025-09-09.jsonl", `{"user_id":"u1"}`+"\n")

	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	var ambiguous *AmbiguousSourceFileError
	require.ErrorAs(t, outcomes[0].Err, &ambiguous)
	assert.Len(t, ambiguous.Paths, 2)
}

func TestLandingToRawSkipsUnrecognizedFiles(t *testing.T) {
	cfg := testConfig(t)
	store := blobstore.NewFileClient(t.TempDir())
	proc := NewLandingToRaw(cfg, store, &fakeCatalog{}, testRegistry(t, "users"))

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)
	writeLanding(t, cfg, "garbage.csv", "junk\n")
	writeLanding(t, cfg, "users_2025-13-40.csv", "bad date\n")

	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)

	keys, err := store.ListObjects(t.Context(), cfg.Storage.Bucket, "raw/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestLandingToRawIgnoresOtherDates(t *testing.T) {
	cfg := testConfig(t)
	proc := NewLandingToRaw(cfg, blobstore.NewFileClient(t.TempDir()), &fakeCatalog{}, testRegistry(t, "users"))

	writeLanding(t, cfg, "users_2025-09-08.csv", usersCSV)

	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	var missing *MissingSourceFileError
	require.ErrorAs(t, outcomes[0].Err, &missing)
}

func TestLandingToRawCatalogFailureIsWarning(t *testing.T) {
	cfg := testConfig(t)
	store := blobstore.NewFileClient(t.TempDir())
	cat := &fakeCatalog{err: errors.New("metastore down")}
	proc := NewLandingToRaw(cfg, store, cat, testRegistry(t, "users"))

	writeLanding(t, cfg, "users_2025-09-09.csv", usersCSV)

	outcomes := proc.Run(t.Context(), NewBatch("dev", testDate, nil))
	out := outcomes[0]
	require.NoError(t, out.Err)
	var regErr *CatalogRegistrationError
	require.ErrorAs(t, out.Warning, &regErr)

	// The data is durable regardless of the catalog.
	_, notFound, err := store.GetObject(t.Context(), cfg.Storage.Bucket,
		"raw/users/ingestion_date=2025-09-09/users_2025-09-09.csv")
	require.NoError(t, err)
	assert.False(t, notFound)
}

func TestCountRows(t *testing.T) {
	assert.Equal(t, int64(3), countRows([]byte(usersCSV), "csv"))
	assert.Equal(t, int64(2), countRows([]byte("{\"a\":1}\n{\"a\":2}\n"), "jsonl"))
	assert.Equal(t, int64(0), countRows(nil, "csv"))
}
