package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer emits one JSONL record per command result. Implementations are
// safe for concurrent use.
type Writer interface {
	WriteBucketCheck(ctx context.Context, check *BucketCheckRecord) error
	WriteBucketChange(ctx context.Context, change *BucketChangeRecord) error
	WriteObject(ctx context.Context, obj *ObjectRecord) error
	WriteACL(ctx context.Context, acl *ACLRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	Close() error
}

// WriterOption configures a JSONLWriter.
type WriterOption func(*JSONLWriter)

// WithClock sets the timestamp source for record envelopes.
func WithClock(now func() time.Time) WriterOption {
	return func(jw *JSONLWriter) {
		jw.now = now
	}
}

// JSONLWriter writes records as newline-delimited JSON. Each record is a
// single Write call on the underlying writer, made under a mutex, so lines
// from concurrent callers never interleave.
type JSONLWriter struct {
	out      io.Writer
	jobID    string
	provider string
	now      func() time.Time

	mu     sync.Mutex
	count  int
	closed bool
}

var _ Writer = (*JSONLWriter)(nil)

// NewJSONLWriter returns a writer stamping every record with jobID and
// provider. Close does not close out.
func NewJSONLWriter(out io.Writer, jobID, provider string, opts ...WriterOption) *JSONLWriter {
	jw := &JSONLWriter{
		out:      out,
		jobID:    jobID,
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(jw)
	}
	return jw
}

func (jw *JSONLWriter) WriteBucketCheck(ctx context.Context, check *BucketCheckRecord) error {
	return jw.Emit(ctx, TypeBucketCheck, check)
}

func (jw *JSONLWriter) WriteBucketChange(ctx context.Context, change *BucketChangeRecord) error {
	return jw.Emit(ctx, TypeBucketChange, change)
}

func (jw *JSONLWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	return jw.Emit(ctx, TypeObject, obj)
}

func (jw *JSONLWriter) WriteACL(ctx context.Context, acl *ACLRecord) error {
	return jw.Emit(ctx, TypeACL, acl)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.Emit(ctx, TypeError, err)
}

// Emit writes data wrapped in a recordType envelope.
func (jw *JSONLWriter) Emit(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	switch {
	case jw.closed:
		return ErrWriterClosed
	case ctx.Err() != nil:
		return ctx.Err()
	}

	line, err := json.Marshal(Record{
		Type:     recordType,
		TS:       jw.now().UTC(),
		JobID:    jw.jobID,
		Provider: jw.provider,
		Data:     payload,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	if err := writeLine(jw.out, append(line, '\n')); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	jw.count++
	return nil
}

// Count returns the number of records written so far.
func (jw *JSONLWriter) Count() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.count
}

// Close rejects further writes.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	jw.closed = true
	jw.mu.Unlock()
	return nil
}

// writeLine retries short writes; a writer that accepts zero bytes without
// an error fails with io.ErrShortWrite.
func writeLine(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		switch {
		case err != nil:
			return err
		case n == 0:
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
