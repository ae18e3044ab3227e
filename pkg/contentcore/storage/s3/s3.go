package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/tendant/content-core/pkg/contentcore"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Optional key prefix shared by all content types
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// API is the subset of the S3 client used by the backend
type API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Storage implements contentcore.Storage with one JSON object per item under
// <prefix><type>/<id>.json. Writes use conditional requests so concurrent
// creates and updates of the same item conflict instead of overwriting.
type Storage[T any] struct {
	client      API
	uploader    *manager.Uploader
	config      Config
	contentType string
}

// NewClient builds an S3 client from config
func NewClient(ctx context.Context, config Config) (*s3.Client, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return s3.NewFromConfig(awsCfg, s3Options...), nil
}

// New creates an S3 backend for contentType
func New[T any](ctx context.Context, config Config, contentType string) (*Storage[T], error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := NewClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewWithClient[T](ctx, client, config, contentType)
}

// NewWithClient creates an S3 backend on an existing client
func NewWithClient[T any](ctx context.Context, client API, config Config, contentType string) (*Storage[T], error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	s := &Storage[T]{
		client:      client,
		uploader:    manager.NewUploader(client),
		config:      config,
		contentType: contentType,
	}

	if config.CreateBucketIfNotExist {
		if err := s.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return s, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (s *Storage[T]) createBucketIfNotExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err == nil {
		return nil
	}

	// Handle multiple error types for MinIO compatibility
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}
	if s.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.config.Region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, createInput); err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return err
	}
	return nil
}

func (s *Storage[T]) typePrefix() string {
	return s.config.Prefix + s.contentType + "/"
}

// objectKey maps id to its object. Ids that are empty or contain '/' would
// escape the type prefix and are rejected with ErrInvalidContent.
func (s *Storage[T]) objectKey(id string) (string, error) {
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("invalid id %q: must be non-empty and must not contain '/': %w", id, contentcore.ErrInvalidContent)
	}
	return s.typePrefix() + id + ".json", nil
}

// existingKey is objectKey for ids that must already be stored. No stored
// item can have an invalid id, so those are reported as not found.
func (s *Storage[T]) existingKey(id string) (string, error) {
	key, err := s.objectKey(id)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", s.contentType, id, contentcore.ErrNotFound)
	}
	return key, nil
}

func (s *Storage[T]) Get(ctx context.Context, id string) (*contentcore.Item[T], error) {
	key, err := s.existingKey(id)
	if err != nil {
		return nil, err
	}
	item, _, err := s.read(ctx, key)
	return item, err
}

func (s *Storage[T]) MGet(ctx context.Context, ids []string) ([]*contentcore.Item[T], error) {
	items := make([]*contentcore.Item[T], 0, len(ids))
	for _, id := range ids {
		key, err := s.existingKey(id)
		if err != nil {
			continue
		}
		item, _, err := s.read(ctx, key)
		if errors.Is(err, contentcore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Storage[T]) Create(ctx context.Context, attrs T, opts contentcore.CreateOptions) (*contentcore.Item[T], error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	key, err := s.objectKey(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &contentcore.Item[T]{
		CommonFields: contentcore.CommonFields{
			ID:        id,
			Type:      s.contentType,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Attributes: attrs,
	}

	input, err := s.putInput(key, item)
	if err != nil {
		return nil, err
	}
	if !opts.Overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%s %s already exists: %w", s.contentType, id, contentcore.ErrConflict)
		}
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	// Round trip the attributes so the caller does not share state with the request.
	return s.Get(ctx, id)
}

func (s *Storage[T]) Update(ctx context.Context, id string, patch contentcore.Patch, opts contentcore.UpdateOptions) (*contentcore.UpdateResult, error) {
	key, err := s.existingKey(id)
	if err != nil {
		return nil, err
	}
	current, etag, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if opts.Version != 0 && opts.Version != current.Version {
		return nil, fmt.Errorf("%s %s is at version %d, not %d: %w",
			s.contentType, id, current.Version, opts.Version, contentcore.ErrConflict)
	}

	merged, applied, err := contentcore.MergeAttributes(current.Attributes, patch)
	if err != nil {
		return nil, err
	}

	updated := &contentcore.Item[T]{CommonFields: current.CommonFields, Attributes: merged}
	updated.Version++
	updated.UpdatedAt = time.Now().UTC()

	input, err := s.putInput(key, updated)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		input.IfMatch = aws.String(etag)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%s %s was modified concurrently: %w", s.contentType, id, contentcore.ErrConflict)
		}
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &contentcore.UpdateResult{CommonFields: updated.CommonFields, Attributes: applied}, nil
}

func (s *Storage[T]) Delete(ctx context.Context, id string) error {
	key, err := s.existingKey(id)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for missing keys, so check first.
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return contentcore.ErrNotFound
		}
		return fmt.Errorf("failed to get object metadata: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// Search lists every object of the content type and filters in process.
func (s *Storage[T]) Search(ctx context.Context, query contentcore.SearchQuery) (*contentcore.SearchResult[T], error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.typePrefix()),
	})

	var matches []*contentcore.Item[T]
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Ext(key) != ".json" {
				continue
			}
			raw, _, err := s.readRaw(ctx, key)
			if errors.Is(err, contentcore.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}

			var doc struct {
				Attributes json.RawMessage `json:"attributes"`
			}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			if !contentcore.MatchText(doc.Attributes, query.Text) {
				continue
			}

			item, err := decodeItem[T](key, raw)
			if err != nil {
				return nil, err
			}
			matches = append(matches, item)
		}
	}
	return contentcore.PageItems(matches, query), nil
}

func (s *Storage[T]) putInput(key string, item *contentcore.Item[T]) (*s3.PutObjectInput, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}

	// Add server-side encryption if enabled
	if s.config.EnableSSE {
		switch s.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if s.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(s.config.SSEKMSKeyID)
			}
		}
	}
	return input, nil
}

func (s *Storage[T]) read(ctx context.Context, key string) (*contentcore.Item[T], string, error) {
	raw, etag, err := s.readRaw(ctx, key)
	if err != nil {
		return nil, "", err
	}
	item, err := decodeItem[T](key, raw)
	if err != nil {
		return nil, "", err
	}
	return item, etag, nil
}

func (s *Storage[T]) readRaw(ctx context.Context, key string) ([]byte, string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", contentcore.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return raw, aws.ToString(result.ETag), nil
}

func decodeItem[T any](key string, raw []byte) (*contentcore.Item[T], error) {
	var item contentcore.Item[T]
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &item, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
