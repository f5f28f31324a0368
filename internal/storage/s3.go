package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/EHS-Labs/sage/backend/internal/util"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client from the AWS_* environment, working
// against AWS itself or any path-style S3-compatible store (MinIO).
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// S3DocumentStorage stores raw documents content-addressed under their
// sha-256 hash, so identical bytes always land on the same key.
type S3DocumentStorage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3DocumentStorageParams configures an S3DocumentStorage.
type NewS3DocumentStorageParams struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3DocumentStorage creates an S3DocumentStorage.
func NewS3DocumentStorage(params NewS3DocumentStorageParams) *S3DocumentStorage {
	prefix := params.Prefix
	if prefix == "" {
		prefix = "documents"
	}
	return &S3DocumentStorage{
		client: params.Client,
		bucket: params.Bucket,
		prefix: prefix,
	}
}

// Store uploads the file under its content hash and returns the stored
// path, the hash and the size. Re-storing identical bytes overwrites the
// same object and is harmless.
func (s *S3DocumentStorage) Store(ctx context.Context, fileName string, data []byte) (store.StoredFile, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	ext := filepath.Ext(fileName)
	key := fmt.Sprintf("%s/%s%s", s.prefix, hash, ext)
	mimeType := mime.TypeByExtension(ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return store.StoredFile{}, fmt.Errorf("uploading %s: %w", fileName, err)
	}

	return store.StoredFile{
		Path:        key,
		ContentHash: hash,
		Size:        int64(len(data)),
	}, nil
}

// Get downloads a stored document by its path.
func (s *S3DocumentStorage) Get(ctx context.Context, path string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
