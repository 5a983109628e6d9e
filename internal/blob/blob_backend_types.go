package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"
)

var (
	ErrRemote     = errors.New("remote operation failed")
	ErrInvalidKey = errors.New("invalid key")
	ErrNotFound   = errors.New("object not found")
)

// Hook function signatures
type AfterPutObjectHook func(req *PutObjectParams, resp *PutObjectResponse)
type AfterCopyObjectHook func(req *CopyObjectParams, resp *CopyObjectResponse)
type AfterDeleteObjectHook func(bucket, key string)

// Hooks are notified after successful mutations on a backend.
type Hooks struct {
	AfterPutObject    AfterPutObjectHook
	AfterCopyObject   AfterCopyObjectHook
	AfterDeleteObject AfterDeleteObjectHook
}

// Backend defines the object store operations the repository tooling relies on.
// Every method is a single blocking remote call. Backends do not retry on their
// own beyond what the underlying SDK is configured to do.
type Backend interface {
	// List returns every object under prefix in bucket. Pagination is followed
	// transparently; the sequence stops at the first error.
	List(ctx context.Context, bucket, prefix string) iter.Seq2[*BlobInfo, error]

	// GetObject retrieves an object by key. The caller must close the body.
	GetObject(ctx context.Context, bucket, key string) (*GetObjectResponse, error)

	// PutObject uploads a single object.
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)

	// CopyObject copies an object, possibly across buckets.
	CopyObject(ctx context.Context, params *CopyObjectParams) (*CopyObjectResponse, error)

	// DeleteObject removes an object.
	DeleteObject(ctx context.Context, bucket, key string) error

	// BucketExists reports whether the bucket is reachable with the current credentials.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// SetHooks installs mutation hooks
	SetHooks(hooks *Hooks)
}

// OperationError wraps a failed store call with the bucket and key involved.
type OperationError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s s3://%s: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return target == ErrRemote
}

// ===================================================================================================

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}

// ===================================================================================================

type PutObjectParams struct {
	Bucket string
	Key    string
	Size   int64
	Body   io.Reader
}

type PutObjectResponse struct {
	Bucket       string
	Key          string
	Version      string
	ETag         string
	Size         int64
	LastModified time.Time
}

// ===================================================================================================

type CopyObjectParams struct {
	SourceBucket      string
	SourceKey         string
	DestinationBucket string
	DestinationKey    string
}

type CopyObjectResponse struct {
	ETag         string
	LastModified time.Time
}

// ===================================================================================================

// BlobInfo describes a listed object.
type BlobInfo struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// IsFolder reports whether the object is a folder marker ("dir/").
func (b *BlobInfo) IsFolder() bool {
	return len(b.Key) > 0 && b.Key[len(b.Key)-1] == '/'
}
