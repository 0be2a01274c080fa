// Package output provides JSONL output for bucketwarden commands.
//
// Each command emits typed record envelopes: bucket checks, bucket changes,
// object results, ACL documents and errors. Each line is a self-contained
// JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: bucketwarden.<type>.v<version>
const (
	// TypeBucketCheck identifies read-only bucket check records.
	TypeBucketCheck = "bucketwarden.bucket_check.v1"

	// TypeBucketChange identifies bucket create/delete records.
	TypeBucketChange = "bucketwarden.bucket_change.v1"

	// TypeObject identifies object read/delete records.
	TypeObject = "bucketwarden.object.v1"

	// TypeACL identifies object ACL records.
	TypeACL = "bucketwarden.acl.v1"

	// TypeError identifies error records.
	TypeError = "bucketwarden.error.v1"
)

// Record is the envelope for all JSONL output.
//
// The type field determines how to interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "bucketwarden.bucket_check.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this invocation.
	JobID string `json:"job_id"`

	// Provider identifies the storage provider (e.g., "s3").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// Bucket check names.
const (
	CheckExists          = "exists"
	CheckEmpty           = "empty"
	CheckInAnotherRegion = "in_another_region"
	CheckOwnedElsewhere  = "owned_by_another_account"
	CheckNameAvailable   = "name_available"
	CheckLookup          = "lookup"
)

// BucketCheckRecord is the answer to one bucket check.
type BucketCheckRecord struct {
	Bucket string `json:"bucket"`
	Check  string `json:"check"`
	Result bool   `json:"result"`

	// Region is the manager's region when the check depends on it.
	Region string `json:"region,omitempty"`

	// State and BucketRegion are set by lookup checks.
	State        string `json:"state,omitempty"`
	BucketRegion string `json:"bucket_region,omitempty"`
}

// Bucket change actions.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

// BucketChangeRecord reports a bucket create or delete.
type BucketChangeRecord struct {
	Bucket string `json:"bucket"`
	Action string `json:"action"`

	// Applied is false when a delete was refused (non-empty or protected).
	Applied bool `json:"applied"`

	Region             string `json:"region,omitempty"`
	LocationConstraint string `json:"location_constraint,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// ObjectRecord reports an object read or delete.
type ObjectRecord struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Action    string `json:"action"`
	VersionID string `json:"version_id,omitempty"`

	// Size is the number of bytes read, for reads.
	Size int64 `json:"size,omitempty"`

	// Destination is where read content was written.
	Destination string `json:"destination,omitempty"`
}

// Object actions.
const (
	ActionGet = "get"
)

// ACLRecord carries an object's access control list, or the outcome of
// applying one.
type ACLRecord struct {
	Bucket string     `json:"bucket"`
	Key    string     `json:"key"`
	Owner  *ACLOwner  `json:"owner,omitempty"`
	Grants []ACLGrant `json:"grants"`

	// Applied is set for put operations.
	Applied *bool `json:"applied,omitempty"`
}

// ACLOwner is the owner of an object.
type ACLOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// ACLGrant is one grant of an ACL.
type ACLGrant struct {
	GranteeType  string `json:"grantee_type"`
	ID           string `json:"id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	URI          string `json:"uri,omitempty"`
	Permission   string `json:"permission"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Bucket is the bucket related to this error, if applicable.
	Bucket string `json:"bucket,omitempty"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the object or bucket was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeBadRequest indicates the backend rejected the request.
	ErrCodeBadRequest = "BAD_REQUEST"

	// ErrCodeInvalidCredentials indicates authentication failed.
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"

	// ErrCodeTimeout indicates an operation timed out.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeThrottled indicates rate limiting.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeUnavailable indicates the backend could not be reached or failed
	// in a way no other code covers.
	ErrCodeUnavailable = "UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
