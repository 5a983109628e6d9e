package reconcile

import (
	"fmt"
	"log/slog"
	"sync"
)

// OpKind names a remote mutation.
type OpKind string

const (
	OpUpload OpKind = "upload"
	OpDelete OpKind = "delete"
	OpRename OpKind = "rename"
)

// Operation is one entry of the operation log.
type Operation struct {
	Kind   OpKind
	Bucket string
	Key    string
	// From is the source key of a rename or the local path of an upload
	From   string
	Reason string
	Size   int64
	DryRun bool
}

func (o Operation) String() string {
	prefix := ""
	if o.DryRun {
		prefix = "SKIPPING: "
	}
	switch o.Kind {
	case OpUpload:
		return fmt.Sprintf("%sUploading: %s => s3://%s/%s", prefix, o.From, o.Bucket, o.Key)
	case OpRename:
		return fmt.Sprintf("%sRenaming: s3://%s/%s => s3://%s/%s", prefix, o.Bucket, o.From, o.Bucket, o.Key)
	default:
		return fmt.Sprintf("%sDeleting: s3://%s/%s (%s)", prefix, o.Bucket, o.Key, o.Reason)
	}
}

// OpLog receives every operation the executor performs or skips, before it
// is attempted.
type OpLog interface {
	Record(op Operation)
}

// SlogOpLog writes operations to the default slog logger.
type SlogOpLog struct{}

func (SlogOpLog) Record(op Operation) {
	slog.Info(op.String(), "op", op.Kind, "key", op.Key, "dryRun", op.DryRun)
}

// Recorder keeps operations in memory.
type Recorder struct {
	mu  sync.Mutex
	ops []Operation
}

func (r *Recorder) Record(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// Operations returns a copy of the recorded operations.
func (r *Recorder) Operations() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Operation(nil), r.ops...)
}

// MultiOpLog fans out to several logs.
type MultiOpLog []OpLog

func (m MultiOpLog) Record(op Operation) {
	for _, l := range m {
		if l != nil {
			l.Record(op)
		}
	}
}
