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

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// S3Config carries endpoint and credential settings for an S3-compatible
// store. An empty Endpoint means real AWS S3 with default credentials.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

type s3Client struct {
	client *s3.Client
}

var _ Client = (*s3Client)(nil)

// NewS3Client builds a Client for an S3-compatible endpoint. MinIO and
// other custom endpoints get path-style addressing.
func NewS3Client(ctx context.Context, cfg S3Config) (Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Client{client: client}, nil
}

func s3ErrorIs404(err error) bool {
	var noKeyErr *types.NoSuchKey
	return errors.As(err, &noKeyErr)
}

func (c *s3Client) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	uploadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	uploadBytes.Add(ctx, int64(len(body)), metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

func (c *s3Client) UploadObject(ctx context.Context, bucket, key, sourceFilename string) error {
	file, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("open source file %s: %w", sourceFilename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	uploader := manager.NewUploader(c.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
		Metadata: map[string]string{
			"writer": "streamlake-go",
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}

	uploadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	uploadBytes.Add(ctx, stat.Size(), metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

func (c *s3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3ErrorIs404(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}

	downloadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	downloadBytes.Add(ctx, int64(len(body)), metric.WithAttributes(attribute.String("bucket", bucket)))
	return body, false, nil
}

func (c *s3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func (c *s3Client) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	// S3 batch delete supports up to 1000 objects per request
	const maxBatchSize = 1000
	var allFailed []string

	for i := 0; i < len(keys); i += maxBatchSize {
		end := min(i+maxBatchSize, len(keys))
		batch := keys[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(key)}
		}

		result, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			allFailed = append(allFailed, batch...)
			continue
		}
		for _, failed := range result.Errors {
			if failed.Key != nil {
				allFailed = append(allFailed, *failed.Key)
			}
		}
	}

	return allFailed, nil
}
