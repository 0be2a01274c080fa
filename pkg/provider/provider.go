// Package provider defines abstractions for S3-compatible bucket and object
// operations.
//
// Backends implement a narrow surface focused on bucket lifecycle: existence
// and location lookups, creation and deletion, version listing, and object
// reads, deletes and ACLs. Authentication is resolved when a backend is built;
// backends should not re-implement credential chains.
package provider

import (
	"context"
	"io"
	"time"
)

// Backend abstracts the object-storage calls the lifecycle manager depends on.
//
// Implementations should:
//   - Map not-found, forbidden and bad-request responses to the sentinel
//     errors in this package (wrapped in *ProviderError)
//   - Perform exactly one remote call per method, with no retries
//   - Be safe for concurrent use
type Backend interface {
	// HeadBucket checks that the bucket exists and is visible to the caller.
	// Returns ErrBucketNotFound or ErrAccessDenied on the respective responses.
	HeadBucket(ctx context.Context, bucket string) error

	// BucketLocation returns the region the bucket was created in.
	BucketLocation(ctx context.Context, bucket string) (string, error)

	// CreateBucket creates a bucket.
	CreateBucket(ctx context.Context, bucket string, opts CreateBucketOptions) error

	// DeleteBucket deletes an empty bucket.
	DeleteBucket(ctx context.Context, bucket string) error

	// ListObjectVersions returns a page of object versions and delete markers.
	ListObjectVersions(ctx context.Context, opts ListVersionsOptions) (*ListVersionsResult, error)

	// GetObject returns the object body. The caller must close it.
	// Returns ErrNotFound if the object does not exist.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// DeleteObject deletes an object or a specific object version.
	DeleteObject(ctx context.Context, bucket, key string, opts DeleteObjectOptions) error

	// GetObjectACL returns the access control list of an object.
	GetObjectACL(ctx context.Context, bucket, key string) (*ACL, error)

	// PutObjectACL replaces the access control list of an object.
	// Returns a *BadRequestError when the backend rejects the grant set.
	PutObjectACL(ctx context.Context, bucket, key string, acl *ACL) error

	// Close releases any resources held by the backend.
	Close() error
}

// CreateBucketOptions configures a CreateBucket call.
type CreateBucketOptions struct {
	// LocationConstraint is the region constraint sent with the request.
	// Empty string omits the constraint entirely.
	LocationConstraint string

	// ACL is the canned ACL applied at creation. Empty means the backend
	// default, which for S3 is private.
	ACL CannedACL
}

// CannedACL is a predefined bucket ACL.
type CannedACL string

const (
	// CannedACLPrivate grants full control to the owner only.
	CannedACLPrivate CannedACL = "private"
)

// ListVersionsOptions configures a ListObjectVersions call.
type ListVersionsOptions struct {
	// Bucket is the bucket to list.
	Bucket string

	// Prefix filters results to keys starting with this value.
	Prefix string

	// KeyMarker and VersionIDMarker resume listing from a previous page.
	KeyMarker       string
	VersionIDMarker string

	// MaxKeys limits the number of entries returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListVersionsResult contains a page of versions from ListObjectVersions.
type ListVersionsResult struct {
	// Versions holds object versions and delete markers in listing order.
	Versions []ObjectVersion

	// NextKeyMarker and NextVersionIDMarker are used to retrieve the next page.
	NextKeyMarker       string
	NextVersionIDMarker string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectVersion describes a single object version or delete marker.
type ObjectVersion struct {
	Key            string
	VersionID      string
	IsLatest       bool
	IsDeleteMarker bool
	Size           int64
	ETag           string
	LastModified   time.Time
}

// DeleteObjectOptions configures a DeleteObject call.
type DeleteObjectOptions struct {
	// VersionID deletes a specific version instead of adding a delete marker.
	VersionID string

	// MFA is the concatenated device serial and token, for MFA-delete buckets.
	MFA string

	// BypassGovernanceRetention removes objects under governance-mode lock.
	BypassGovernanceRetention bool
}

// ACL is an access control document for an object.
type ACL struct {
	Owner  Owner   `json:"owner" yaml:"owner"`
	Grants []Grant `json:"grants" yaml:"grants"`
}

// Owner identifies the account that owns an object.
type Owner struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
}

// Grant is a single grantee/permission pair.
type Grant struct {
	Grantee    Grantee    `json:"grantee" yaml:"grantee"`
	Permission Permission `json:"permission" yaml:"permission"`
}

// Grantee identifies who a grant applies to. Exactly one of ID,
// EmailAddress or URI is expected, matching Type.
type Grantee struct {
	Type         GranteeType `json:"type" yaml:"type"`
	ID           string      `json:"id,omitempty" yaml:"id,omitempty"`
	DisplayName  string      `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	EmailAddress string      `json:"email_address,omitempty" yaml:"email_address,omitempty"`
	URI          string      `json:"uri,omitempty" yaml:"uri,omitempty"`
}

// GranteeType is the kind of grantee.
type GranteeType string

const (
	GranteeCanonicalUser GranteeType = "CanonicalUser"
	GranteeEmail         GranteeType = "AmazonCustomerByEmail"
	GranteeGroup         GranteeType = "Group"
)

// Permission is an ACL permission level.
type Permission string

const (
	PermissionFullControl Permission = "FULL_CONTROL"
	PermissionRead        Permission = "READ"
	PermissionWrite       Permission = "WRITE"
	PermissionReadACP     Permission = "READ_ACP"
	PermissionWriteACP    Permission = "WRITE_ACP"
)

// ProviderType identifies a cloud storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
