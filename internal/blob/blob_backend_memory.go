package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"
)

const defaultMemoryPageSize = 1000

type memoryObject struct {
	data         []byte
	etag         string
	lastModified time.Time
}

// MemoryBackend is an in-process Backend. It pages listings the same way S3
// does so callers exercise the pagination path.
type MemoryBackend struct {
	mu       sync.RWMutex
	buckets  map[string]map[string]*memoryObject
	pageSize int
	pages    int
	hooks    *Hooks
	failures map[string]error
}

func NewMemoryBackend(buckets ...string) *MemoryBackend {
	m := &MemoryBackend{
		buckets:  make(map[string]map[string]*memoryObject),
		pageSize: defaultMemoryPageSize,
		hooks:    &Hooks{},
		failures: make(map[string]error),
	}
	for _, bucket := range buckets {
		m.buckets[bucket] = make(map[string]*memoryObject)
	}
	return m
}

// SetPageSize controls how many objects a single listing page carries.
func (m *MemoryBackend) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.pageSize = n
	}
}

// Pages returns the number of listing pages served so far.
func (m *MemoryBackend) Pages() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pages
}

// FailOn makes the given operation ("PutObject", "DeleteObject", ...) fail for key.
func (m *MemoryBackend) FailOn(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+"|"+key] = err
}

// Seed stores an object without firing hooks.
func (m *MemoryBackend) Seed(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(bucket, key, data)
}

// Contents returns a copy of every object in bucket keyed by object key.
func (m *MemoryBackend) Contents(bucket string) map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.buckets[bucket]))
	for key, obj := range m.buckets[bucket] {
		out[key] = bytes.Clone(obj.data)
	}
	return out
}

// Keys returns the sorted keys in bucket.
func (m *MemoryBackend) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.buckets[bucket]))
}

func (m *MemoryBackend) SetHooks(hooks *Hooks) {
	if hooks != nil {
		m.hooks = hooks
	}
}

func (m *MemoryBackend) List(ctx context.Context, bucket, prefix string) iter.Seq2[*BlobInfo, error] {
	return func(yield func(*BlobInfo, error) bool) {
		var startAfter string
		for {
			page, truncated, err := m.listPage(ctx, bucket, prefix, startAfter)
			if err != nil {
				yield(nil, &OperationError{Op: "ListObjects", Bucket: bucket, Key: prefix, Err: err})
				return
			}
			for _, info := range page {
				if !yield(info, nil) {
					return
				}
			}
			if !truncated || len(page) == 0 {
				return
			}
			startAfter = page[len(page)-1].Key
		}
	}
}

func (m *MemoryBackend) listPage(ctx context.Context, bucket, prefix, startAfter string) ([]*BlobInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure("ListObjects", prefix); err != nil {
		return nil, false, err
	}
	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, false, errors.New("no such bucket")
	}
	m.pages++

	keys := slices.Sorted(maps.Keys(objects))
	page := make([]*BlobInfo, 0, m.pageSize)
	for _, key := range keys {
		if key <= startAfter || len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if len(page) == m.pageSize {
			return page, true, nil
		}
		obj := objects[key]
		page = append(page, &BlobInfo{
			Bucket:       bucket,
			Key:          key,
			ETag:         obj.etag,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	return page, false, nil
}

func (m *MemoryBackend) GetObject(ctx context.Context, bucket, key string) (*GetObjectResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("GetObject", key); err != nil {
		return nil, &OperationError{Op: "GetObject", Bucket: bucket, Key: key, Err: err}
	}
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, &OperationError{Op: "GetObject", Bucket: bucket, Key: key, Err: ErrNotFound}
	}
	return &GetObjectResponse{
		Body:         io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))),
		ETag:         obj.etag,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, &OperationError{Op: "PutObject", Bucket: params.Bucket, Key: params.Key, Err: ErrInvalidKey}
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, &OperationError{Op: "PutObject", Bucket: params.Bucket, Key: params.Key, Err: err}
	}

	m.mu.Lock()
	if err := m.failure("PutObject", params.Key); err != nil {
		m.mu.Unlock()
		return nil, &OperationError{Op: "PutObject", Bucket: params.Bucket, Key: params.Key, Err: err}
	}
	if _, ok := m.buckets[params.Bucket]; !ok {
		m.mu.Unlock()
		return nil, &OperationError{Op: "PutObject", Bucket: params.Bucket, Key: params.Key, Err: errors.New("no such bucket")}
	}
	obj := m.put(params.Bucket, params.Key, data)
	m.mu.Unlock()

	result := &PutObjectResponse{
		Bucket:       params.Bucket,
		Key:          params.Key,
		ETag:         obj.etag,
		Size:         int64(len(data)),
		LastModified: obj.lastModified,
	}
	if m.hooks.AfterPutObject != nil {
		m.hooks.AfterPutObject(params, result)
	}
	return result, nil
}

func (m *MemoryBackend) CopyObject(ctx context.Context, params *CopyObjectParams) (*CopyObjectResponse, error) {
	m.mu.Lock()
	if err := m.failure("CopyObject", params.SourceKey); err != nil {
		m.mu.Unlock()
		return nil, &OperationError{Op: "CopyObject", Bucket: params.SourceBucket, Key: params.SourceKey, Err: err}
	}
	src, ok := m.buckets[params.SourceBucket][params.SourceKey]
	if !ok {
		m.mu.Unlock()
		return nil, &OperationError{Op: "CopyObject", Bucket: params.SourceBucket, Key: params.SourceKey, Err: ErrNotFound}
	}
	if _, ok := m.buckets[params.DestinationBucket]; !ok {
		m.mu.Unlock()
		return nil, &OperationError{Op: "CopyObject", Bucket: params.DestinationBucket, Key: params.DestinationKey, Err: errors.New("no such bucket")}
	}
	obj := m.put(params.DestinationBucket, params.DestinationKey, bytes.Clone(src.data))
	m.mu.Unlock()

	result := &CopyObjectResponse{ETag: obj.etag, LastModified: obj.lastModified}
	if m.hooks.AfterCopyObject != nil {
		m.hooks.AfterCopyObject(params, result)
	}
	return result, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	if err := m.failure("DeleteObject", key); err != nil {
		m.mu.Unlock()
		return &OperationError{Op: "DeleteObject", Bucket: bucket, Key: key, Err: err}
	}
	delete(m.buckets[bucket], key)
	m.mu.Unlock()

	if m.hooks.AfterDeleteObject != nil {
		m.hooks.AfterDeleteObject(bucket, key)
	}
	return nil
}

func (m *MemoryBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

// put must be called with the lock held
func (m *MemoryBackend) put(bucket, key string, data []byte) *memoryObject {
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]*memoryObject)
	}
	sum := md5.Sum(data)
	obj := &memoryObject{
		data:         data,
		etag:         hex.EncodeToString(sum[:]),
		lastModified: time.Now().UTC(),
	}
	m.buckets[bucket][key] = obj
	return obj
}

// failure must be called with the lock held
func (m *MemoryBackend) failure(op, key string) error {
	return m.failures[op+"|"+key]
}

var _ Backend = (*MemoryBackend)(nil)
