package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinioClient stores attachment records as MinIO objects
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

var _ Blobs = (*MinioClient)(nil)

// NewMinioClient initializes a new MinIO client and ensures the bucket exists
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		logrus.WithField("bucket", bucketName).Info("Creating bucket")
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioClient{client: client, bucketName: bucketName}, nil
}

// PutBlob uploads data as the object at key
func (mc *MinioClient) PutBlob(ctx context.Context, key string, data []byte) error {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	_, err := mc.client.PutObject(ctx, mc.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

// GetBlob downloads the object at key
func (mc *MinioClient) GetBlob(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	object, err := mc.client.GetObject(ctx, mc.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, mapMinioError(key, err)
	}
	defer object.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		return nil, mapMinioError(key, err)
	}

	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}

func mapMinioError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("object %s: %w", key, attachment.ErrNotFound)
	}
	return fmt.Errorf("failed to download object %s: %w", key, err)
}
