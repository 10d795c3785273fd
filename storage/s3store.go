package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// DefaultS3Timeout bounds each S3 request.
const DefaultS3Timeout = 30 * time.Second

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3Store. Endpoint selects an S3-compatible service
// (MinIO, Wasabi, ...); empty means AWS. Empty keys fall back to the default
// AWS credential chain.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	PathStyle bool
	AccessKey string
	SecretKey string
	Timeout   time.Duration
}

// S3Store implements Store on an S3 bucket. Objects live at {prefix}{hex(keyHash)}.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewS3Store builds an AWS SDK client from opts.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidBaseDir)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load AWS config: %w", ErrUnavailable, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	store := NewS3StoreWithClient(client, opts.Bucket, opts.Prefix)
	if opts.Timeout > 0 {
		store.timeout = opts.Timeout
	}
	return store, nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: DefaultS3Timeout,
	}
}

func (s *S3Store) objectKey(keyHash []byte) *string {
	return aws.String(s.prefix + hex.EncodeToString(keyHash))
}

func (s *S3Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// isS3NotFound reports whether err is a missing-object response. GetObject
// reports NoSuchKey; HeadObject has no body and reports NotFound.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func s3Error(op string, err error) error {
	if isS3NotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: s3 %s: %w", ErrUnavailable, op, err)
}

// Put stores content indexed by key_hash. Rewriting the same key stores the
// same bytes, so the operation is idempotent.
func (s *S3Store) Put(keyHash []byte, data []byte) error {
	if err := validatePut(keyHash, data); err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           s.objectKey(keyHash),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return s3Error("put", err)
	}
	return nil
}

// Get retrieves content by key_hash.
func (s *S3Store) Get(keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(keyHash),
	})
	if err != nil {
		return nil, s3Error("get", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxContentResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: s3 get: read body: %w", ErrUnavailable, err)
	}
	return data, nil
}

// Has checks if content exists for the given key_hash.
func (s *S3Store) Has(keyHash []byte) (bool, error) {
	if _, err := s.Size(keyHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes content by key_hash. S3 deletes are silent for missing
// objects, so existence is checked first.
func (s *S3Store) Delete(keyHash []byte) error {
	if _, err := s.Size(keyHash); err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(keyHash),
	})
	if err != nil {
		return s3Error("delete", err)
	}
	return nil
}

// Size returns the size in bytes of stored content for key_hash.
func (s *S3Store) Size(keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(keyHash),
	})
	if err != nil {
		return 0, s3Error("head", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// List returns all key hashes under the store prefix. Objects whose names
// are not 64 hex characters are skipped.
func (s *S3Store) List() ([][]byte, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var (
		result [][]byte
		token  *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, s3Error("list", err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			keyHash, err := hex.DecodeString(name)
			if err != nil || len(keyHash) != KeyHashSize {
				continue
			}
			result = append(result, keyHash)
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return result, nil
		}
		token = out.NextContinuationToken
	}
}
