package blob

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Backend struct {
	s3Client *s3.Client
	config   *S3Config
	hooks    *Hooks
}

func NewS3Backend(s3Client *s3.Client, config *S3Config) *S3Backend {
	return &S3Backend{
		s3Client: s3Client,
		config:   config,
		hooks:    &Hooks{},
	}
}

func NewS3BackendWithConfig(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.HasStaticCredentials() {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	awsClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Backend(awsClient, cfg), nil
}

func (s *S3Backend) SetHooks(hooks *Hooks) {
	if hooks != nil {
		s.hooks = hooks
	}
}

// ===================================================================================================

func (s *S3Backend) List(ctx context.Context, bucket, prefix string) iter.Seq2[*BlobInfo, error] {
	return func(yield func(*BlobInfo, error) bool) {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
		}
		if prefix != "" {
			input.Prefix = aws.String(prefix)
		}

		paginator := s3.NewListObjectsV2Paginator(s.s3Client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, &OperationError{Op: "ListObjects", Bucket: bucket, Key: prefix, Err: err})
				return
			}

			for _, obj := range page.Contents {
				info := &BlobInfo{
					Bucket:       bucket,
					Key:          aws.ToString(obj.Key),
					ETag:         trimETag(obj.ETag),
					Size:         aws.ToInt64(obj.Size),
					LastModified: aws.ToTime(obj.LastModified),
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// ===================================================================================================

func (s *S3Backend) GetObject(ctx context.Context, bucket, key string) (*GetObjectResponse, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			err = fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, &OperationError{Op: "GetObject", Bucket: bucket, Key: key, Err: err}
	}

	return &GetObjectResponse{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         trimETag(resp.ETag),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

// ===================================================================================================

func (s *S3Backend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, &OperationError{Op: "PutObject", Bucket: params.Bucket, Key: params.Key, Err: ErrInvalidKey}
	}

	resp, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(params.Bucket),
		Key:           aws.String(params.Key),
		Body:          params.Body,
		ContentLength: aws.Int64(params.Size),
	})
	if err != nil {
		return nil, &OperationError{Op: "PutObject", Bucket: params.Bucket, Key: params.Key, Err: err}
	}

	// s3.PutObjectOutput does not have LastModified
	result := &PutObjectResponse{
		Bucket:       params.Bucket,
		Key:          params.Key,
		Size:         params.Size,
		Version:      aws.ToString(resp.VersionId),
		ETag:         trimETag(resp.ETag),
		LastModified: time.Now().UTC(),
	}

	if s.hooks.AfterPutObject != nil {
		s.hooks.AfterPutObject(params, result)
	}

	return result, nil
}

// ===================================================================================================

func (s *S3Backend) CopyObject(ctx context.Context, params *CopyObjectParams) (*CopyObjectResponse, error) {
	if !ValidateKey(params.SourceKey) {
		return nil, &OperationError{Op: "CopyObject", Bucket: params.SourceBucket, Key: params.SourceKey, Err: ErrInvalidKey}
	}
	if !ValidateKey(params.DestinationKey) {
		return nil, &OperationError{Op: "CopyObject", Bucket: params.DestinationBucket, Key: params.DestinationKey, Err: ErrInvalidKey}
	}

	resp, err := s.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(params.DestinationBucket),
		CopySource: aws.String(copySource(params.SourceBucket, params.SourceKey)),
		Key:        aws.String(params.DestinationKey),
	})
	if err != nil {
		return nil, &OperationError{Op: "CopyObject", Bucket: params.SourceBucket, Key: params.SourceKey, Err: err}
	}

	result := &CopyObjectResponse{
		ETag:         trimETag(resp.CopyObjectResult.ETag),
		LastModified: aws.ToTime(resp.CopyObjectResult.LastModified),
	}

	if s.hooks.AfterCopyObject != nil {
		s.hooks.AfterCopyObject(params, result)
	}

	return result, nil
}

// ===================================================================================================

func (s *S3Backend) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &OperationError{Op: "DeleteObject", Bucket: bucket, Key: key, Err: err}
	}
	if s.hooks.AfterDeleteObject != nil {
		s.hooks.AfterDeleteObject(bucket, key)
	}
	return nil
}

// ===================================================================================================

func (s *S3Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
		return false, nil
	}
	return false, &OperationError{Op: "HeadBucket", Bucket: bucket, Err: err}
}

// Delegate returns the underlying SDK client
func (s *S3Backend) Delegate() any {
	return s.s3Client
}

func trimETag(etag *string) string {
	return strings.ReplaceAll(aws.ToString(etag), "\"", "")
}

var _ Backend = (*S3Backend)(nil)
