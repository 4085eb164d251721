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

// Package blobstore provides the object-storage interface the ETL depends
// on, with an S3-compatible implementation (AWS S3, MinIO, Ceph) and a
// local filesystem implementation for tests.
package blobstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Client is the narrow blob interface the processors call. All mutations
// are whole-object puts keyed by bucket/key; overwriting the same key is
// the only replace primitive the ETL relies on.
type Client interface {
	// PutObject writes body to bucket/key, replacing any prior object.
	PutObject(ctx context.Context, bucket, key string, body []byte) error

	// UploadObject streams a local file to bucket/key, replacing any prior object.
	UploadObject(ctx context.Context, bucket, key, sourceFilename string) error

	// GetObject reads the object at bucket/key. notFound is true (with a
	// nil error) when the key does not exist.
	GetObject(ctx context.Context, bucket, key string) (body []byte, notFound bool, err error)

	// ListObjects returns all keys under the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)

	// DeleteObjects removes the given keys, returning the keys that could
	// not be deleted.
	DeleteObjects(ctx context.Context, bucket string, keys []string) ([]string, error)
}

var (
	uploadCount   metric.Int64Counter
	uploadBytes   metric.Int64Counter
	downloadCount metric.Int64Counter
	downloadBytes metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/streamlake/internal/blobstore")

	var err error
	uploadCount, err = meter.Int64Counter(
		"streamlake.blobstore.upload.count",
		metric.WithDescription("Number of object uploads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.count counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"streamlake.blobstore.upload.bytes",
		metric.WithDescription("Bytes uploaded to object storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}

	downloadCount, err = meter.Int64Counter(
		"streamlake.blobstore.download.count",
		metric.WithDescription("Number of object downloads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.count counter: %w", err))
	}

	downloadBytes, err = meter.Int64Counter(
		"streamlake.blobstore.download.bytes",
		metric.WithDescription("Bytes downloaded from object storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create download.bytes counter: %w", err))
	}
}
