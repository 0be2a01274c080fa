// Package lifecycle provisions, checks and safely deletes S3-compatible buckets.
//
// A Manager is bound to one region and one backend. It holds no state
// between calls: every check re-queries the backend, because bucket state
// can change underneath it at any time. Check-then-act races (another
// actor creating or deleting the same bucket) are not prevented; DeleteBucket
// treats a vanished bucket as success, which is the only race it absorbs.
//
// Calls block until the backend answers. The manager adds no timeout and no
// retries; wrap calls in a context deadline when cancellation matters.
package lifecycle

import (
	"context"
	"errors"
	"io"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/bucketwarden/pkg/provider"
	"github.com/3leaps/bucketwarden/pkg/provider/s3"
)

// Manager is the bucket lifecycle manager.
//
// Manager is safe for concurrent use; it only holds immutable configuration.
type Manager struct {
	backend   provider.Backend
	region    string
	logger    *zap.Logger
	protected []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithProtectedBuckets makes DeleteBucket refuse bucket names matching any
// of the given doublestar patterns.
func WithProtectedBuckets(patterns ...string) Option {
	return func(m *Manager) {
		m.protected = append(m.protected, patterns...)
	}
}

// New creates a manager over an existing backend.
//
// A nil logger disables logging.
func New(backend provider.Backend, region string, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, &ConfigError{Field: "Backend", Message: "backend is required"}
	}
	if region == "" {
		return nil, &ConfigError{Field: "Region", Message: "region is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		backend: backend,
		region:  region,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := validatePatterns(m.protected); err != nil {
		return nil, err
	}
	return m, nil
}

// Open validates cfg, builds the S3 backend and returns a manager over it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := s3.New(ctx, cfg.BackendConfig())
	if err != nil {
		return nil, err
	}

	return New(backend, cfg.Region, logger, WithProtectedBuckets(cfg.ProtectedBuckets...))
}

// Region returns the region the manager provisions into.
func (m *Manager) Region() string {
	return m.region
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// BucketExists reports whether the bucket exists and is visible to this
// account. A forbidden response counts as not existing.
func (m *Manager) BucketExists(ctx context.Context, name string) (bool, error) {
	res, err := m.lookup(ctx, "BucketExists", name, false)
	if err != nil {
		return false, err
	}
	return res.State == StatePresent, nil
}

// BucketEmpty reports whether the bucket holds no object versions and no
// delete markers. Live objects alone are not enough: any version history
// blocks bucket deletion.
func (m *Manager) BucketEmpty(ctx context.Context, name string) (bool, error) {
	opts := provider.ListVersionsOptions{Bucket: name}
	for {
		page, err := m.backend.ListObjectVersions(ctx, opts)
		if err != nil {
			return false, &BackendError{Op: "BucketEmpty", Bucket: name, Err: err}
		}
		if len(page.Versions) > 0 {
			return false, nil
		}
		if !page.IsTruncated {
			return true, nil
		}
		if (page.NextKeyMarker == "" && page.NextVersionIDMarker == "") ||
			(page.NextKeyMarker == opts.KeyMarker && page.NextVersionIDMarker == opts.VersionIDMarker) {
			return false, &BackendError{Op: "BucketEmpty", Bucket: name, Err: ErrStalledListing}
		}
		opts.KeyMarker = page.NextKeyMarker
		opts.VersionIDMarker = page.NextVersionIDMarker
	}
}

// BucketInAnotherRegion reports whether the bucket exists in a region other
// than the manager's. A missing or forbidden bucket reports false.
func (m *Manager) BucketInAnotherRegion(ctx context.Context, name string) (bool, error) {
	res, err := m.lookup(ctx, "BucketInAnotherRegion", name, true)
	if err != nil {
		return false, err
	}
	if res.State != StatePresent {
		return false, nil
	}
	return res.Region != m.region, nil
}

// BucketOwnedByAnotherAccount reports whether the name is taken by another
// account, which the backend signals with a forbidden response.
func (m *Manager) BucketOwnedByAnotherAccount(ctx context.Context, name string) (bool, error) {
	res, err := m.lookup(ctx, "BucketOwnedByAnotherAccount", name, false)
	if err != nil {
		return false, err
	}
	if res.State == StateForbidden {
		m.logger.Warn("Bucket owned by another account", zap.String("bucket", name))
		return true, nil
	}
	return false, nil
}

// BucketNameAvailable reports whether this account can use the name in the
// manager's region: not owned elsewhere and not already present in another
// region.
func (m *Manager) BucketNameAvailable(ctx context.Context, name string) (bool, error) {
	m.logger.Info("Checking bucket availability",
		zap.String("bucket", name),
		zap.String("region", m.region))

	owned, err := m.BucketOwnedByAnotherAccount(ctx, name)
	if err != nil || owned {
		return false, err
	}

	elsewhere, err := m.BucketInAnotherRegion(ctx, name)
	if err != nil || elsewhere {
		return false, err
	}

	return true, nil
}

// CreateBucket creates a private bucket in region.
func (m *Manager) CreateBucket(ctx context.Context, name, region string) error {
	opts := provider.CreateBucketOptions{ACL: provider.CannedACLPrivate}
	if constraint, ok := LocationConstraintFor(region); ok {
		opts.LocationConstraint = constraint
	}

	m.logger.Info("Creating bucket",
		zap.String("bucket", name),
		zap.String("region", region))

	if err := m.backend.CreateBucket(ctx, name, opts); err != nil {
		return &BackendError{Op: "CreateBucket", Bucket: name, Err: err}
	}
	return nil
}

// DeleteBucket deletes the bucket only if it is empty.
//
// A non-empty or protected bucket is left untouched and false is returned.
// A bucket that is already gone, at any point of the check or the delete,
// counts as deleted.
func (m *Manager) DeleteBucket(ctx context.Context, name string) (bool, error) {
	if pattern, ok := m.protectedBy(name); ok {
		m.logger.Warn("Bucket is protected, not deleting",
			zap.String("bucket", name),
			zap.String("pattern", pattern))
		return false, nil
	}

	empty, err := m.BucketEmpty(ctx, name)
	if err != nil {
		if provider.IsBucketNotFound(err) {
			m.logAlreadyDeleted(name)
			return true, nil
		}
		return false, err
	}
	if !empty {
		m.logger.Warn("Bucket not empty, not deleting", zap.String("bucket", name))
		return false, nil
	}

	if err := m.backend.DeleteBucket(ctx, name); err != nil {
		if provider.IsBucketNotFound(err) {
			m.logAlreadyDeleted(name)
			return true, nil
		}
		return false, &BackendError{Op: "DeleteBucket", Bucket: name, Err: err}
	}

	m.logger.Info("Deleted bucket", zap.String("bucket", name))
	return true, nil
}

func (m *Manager) logAlreadyDeleted(name string) {
	m.logger.Info("Bucket already deleted", zap.String("bucket", name))
}

func (m *Manager) protectedBy(name string) (string, bool) {
	for _, p := range m.protected {
		if ok, _ := doublestar.Match(p, name); ok {
			return p, true
		}
	}
	return "", false
}

// GetObject returns the full content of an object.
func (m *Manager) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	body, err := m.backend.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, m.objectError("GetObject", bucket, key, err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &BackendError{Op: "GetObject", Bucket: bucket, Key: key, Err: err}
	}
	return data, nil
}

// GetObjectACL returns the access control list of an object.
func (m *Manager) GetObjectACL(ctx context.Context, bucket, key string) (*provider.ACL, error) {
	acl, err := m.backend.GetObjectACL(ctx, bucket, key)
	if err != nil {
		return nil, m.objectError("GetObjectACL", bucket, key, err)
	}
	return acl, nil
}

// PutObjectACL applies grants to an object.
//
// A grant set the backend rejects as malformed is an expected outcome: every
// message in the error body is logged and false is returned with a nil error.
func (m *Manager) PutObjectACL(ctx context.Context, bucket, key string, grants []provider.Grant) (bool, error) {
	err := m.backend.PutObjectACL(ctx, bucket, key, &provider.ACL{Grants: grants})
	if err == nil {
		return true, nil
	}

	var badReq *provider.BadRequestError
	if errors.As(err, &badReq) {
		for _, msg := range badReq.Messages() {
			m.logger.Error(msg,
				zap.String("bucket", bucket),
				zap.String("key", key))
		}
		return false, nil
	}

	return false, m.objectError("PutObjectACL", bucket, key, err)
}

// DeleteObject deletes an object, or one version of it.
func (m *Manager) DeleteObject(ctx context.Context, bucket, key string, opts provider.DeleteObjectOptions) error {
	if err := m.backend.DeleteObject(ctx, bucket, key, opts); err != nil {
		return &BackendError{Op: "DeleteObject", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

func (m *Manager) objectError(op, bucket, key string, err error) error {
	if provider.IsNotFound(err) {
		return &ObjectNotFoundError{Bucket: bucket, Key: key, Err: err}
	}
	return &BackendError{Op: op, Bucket: bucket, Key: key, Err: err}
}
