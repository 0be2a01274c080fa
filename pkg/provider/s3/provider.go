package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"github.com/3leaps/bucketwarden/pkg/provider"
)

// S3API is the subset of the S3 client used by Provider.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	GetObjectAcl(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
	PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

// Provider implements provider.Backend for AWS S3 and S3-compatible storage.
type Provider struct {
	client  S3API
	region  string
	limiter *rate.Limiter
}

// Compile-time checks.
var (
	_ S3API            = (*s3.Client)(nil)
	_ provider.Backend = (*Provider)(nil)
)

// New creates a new S3 backend with the given configuration.
//
// Explicit keys take precedence, then the instance role (when requested),
// then the AWS SDK v2 default credential chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Err:      err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewWithClient wraps an existing client. Only Region and RateLimit are
// read from cfg; credentials and endpoint are the client's concern.
func NewWithClient(client S3API, cfg Config) *Provider {
	p := &Provider{
		client: client,
		region: cfg.Region,
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return p
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	case cfg.UseInstanceRole:
		opts = append(opts, config.WithCredentialsProvider(aws.NewCredentialsCache(instanceRoleCredentials())))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}

// ResolveCredentials validates cfg and retrieves credentials through the
// same chain New uses, without making any S3 call.
func ResolveCredentials(ctx context.Context, cfg Config) (aws.Credentials, error) {
	if err := cfg.Validate(); err != nil {
		return aws.Credentials{}, err
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return aws.Credentials{}, err
	}
	return awsCfg.Credentials.Retrieve(ctx)
}

// instanceRoleCredentials resolves role credentials from instance metadata.
func instanceRoleCredentials() aws.CredentialsProvider {
	return ec2rolecreds.New(func(o *ec2rolecreds.Options) {
		o.Client = imds.New(imds.Options{})
	})
}

// Region returns the region the backend was configured with.
func (p *Provider) Region() string {
	return p.region
}

// HeadBucket checks that a bucket exists and is visible.
//
// A redirect response means the bucket exists in a region other than the
// client's; that is reported as success.
func (p *Provider) HeadBucket(ctx context.Context, bucket string) error {
	if err := p.wait(ctx); err != nil {
		return p.callError("HeadBucket", bucket, "", err)
	}

	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if isRedirect(err) {
			return nil
		}
		return p.wrapError("HeadBucket", bucket, "", err)
	}
	return nil
}

// BucketLocation returns the normalised region of a bucket.
func (p *Provider) BucketLocation(ctx context.Context, bucket string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", p.callError("BucketLocation", bucket, "", err)
	}

	out, err := p.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return "", p.wrapError("BucketLocation", bucket, "", err)
	}
	return normalizeLocation(string(out.LocationConstraint)), nil
}

// CreateBucket creates a bucket.
func (p *Provider) CreateBucket(ctx context.Context, bucket string, opts provider.CreateBucketOptions) error {
	if err := p.wait(ctx); err != nil {
		return p.callError("CreateBucket", bucket, "", err)
	}

	if _, err := p.client.CreateBucket(ctx, buildCreateBucketInput(bucket, opts)); err != nil {
		return p.wrapError("CreateBucket", bucket, "", err)
	}
	return nil
}

// DeleteBucket deletes an empty bucket.
func (p *Provider) DeleteBucket(ctx context.Context, bucket string) error {
	if err := p.wait(ctx); err != nil {
		return p.callError("DeleteBucket", bucket, "", err)
	}

	if _, err := p.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return p.wrapError("DeleteBucket", bucket, "", err)
	}
	return nil
}

// ListObjectVersions returns a page of object versions and delete markers.
//
// Versions are listed before delete markers within a page.
func (p *Provider) ListObjectVersions(ctx context.Context, opts provider.ListVersionsOptions) (*provider.ListVersionsResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, p.callError("ListObjectVersions", opts.Bucket, "", err)
	}

	input := &s3.ListObjectVersionsInput{
		Bucket:  aws.String(opts.Bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, DefaultMaxKeys))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.KeyMarker != "" {
		input.KeyMarker = aws.String(opts.KeyMarker)
	}
	if opts.VersionIDMarker != "" {
		input.VersionIdMarker = aws.String(opts.VersionIDMarker)
	}

	out, err := p.client.ListObjectVersions(ctx, input)
	if err != nil {
		return nil, p.wrapError("ListObjectVersions", opts.Bucket, "", err)
	}

	versions := make([]provider.ObjectVersion, 0, len(out.Versions)+len(out.DeleteMarkers))
	for _, v := range out.Versions {
		versions = append(versions, provider.ObjectVersion{
			Key:          aws.ToString(v.Key),
			VersionID:    aws.ToString(v.VersionId),
			IsLatest:     aws.ToBool(v.IsLatest),
			Size:         aws.ToInt64(v.Size),
			ETag:         cleanETag(aws.ToString(v.ETag)),
			LastModified: aws.ToTime(v.LastModified),
		})
	}
	for _, m := range out.DeleteMarkers {
		versions = append(versions, provider.ObjectVersion{
			Key:            aws.ToString(m.Key),
			VersionID:      aws.ToString(m.VersionId),
			IsLatest:       aws.ToBool(m.IsLatest),
			IsDeleteMarker: true,
			LastModified:   aws.ToTime(m.LastModified),
		})
	}

	return &provider.ListVersionsResult{
		Versions:            versions,
		NextKeyMarker:       aws.ToString(out.NextKeyMarker),
		NextVersionIDMarker: aws.ToString(out.NextVersionIdMarker),
		IsTruncated:         aws.ToBool(out.IsTruncated),
	}, nil
}

// GetObject returns the object body. The caller must close it.
func (p *Provider) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := p.wait(ctx); err != nil {
		return nil, p.callError("GetObject", bucket, key, err)
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, p.wrapError("GetObject", bucket, key, err)
	}
	return out.Body, nil
}

// DeleteObject deletes an object, or one version of it when opts.VersionID is set.
func (p *Provider) DeleteObject(ctx context.Context, bucket, key string, opts provider.DeleteObjectOptions) error {
	if err := p.wait(ctx); err != nil {
		return p.callError("DeleteObject", bucket, key, err)
	}

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if opts.VersionID != "" {
		input.VersionId = aws.String(opts.VersionID)
	}
	if opts.MFA != "" {
		input.MFA = aws.String(opts.MFA)
	}
	if opts.BypassGovernanceRetention {
		input.BypassGovernanceRetention = aws.Bool(true)
	}

	if _, err := p.client.DeleteObject(ctx, input); err != nil {
		return p.wrapError("DeleteObject", bucket, key, err)
	}
	return nil
}

// GetObjectACL returns the access control list of an object.
func (p *Provider) GetObjectACL(ctx context.Context, bucket, key string) (*provider.ACL, error) {
	if err := p.wait(ctx); err != nil {
		return nil, p.callError("GetObjectACL", bucket, key, err)
	}

	out, err := p.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, p.wrapError("GetObjectACL", bucket, key, err)
	}
	return fromS3ACL(out.Owner, out.Grants), nil
}

// PutObjectACL replaces the access control list of an object.
//
// S3 requires the owner in an access control policy. When acl.Owner.ID is
// empty the current owner is read first.
func (p *Provider) PutObjectACL(ctx context.Context, bucket, key string, acl *provider.ACL) error {
	if acl == nil {
		return p.callError("PutObjectACL", bucket, key, errors.New("acl is required"))
	}

	owner := acl.Owner
	if owner.ID == "" {
		current, err := p.GetObjectACL(ctx, bucket, key)
		if err != nil {
			return err
		}
		owner = current.Owner
	}

	if err := p.wait(ctx); err != nil {
		return p.callError("PutObjectACL", bucket, key, err)
	}

	_, err := p.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		AccessControlPolicy: toS3Policy(owner, acl.Grants),
	})
	if err != nil {
		return p.wrapError("PutObjectACL", bucket, key, err)
	}
	return nil
}

// Close releases any resources held by the backend.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (p *Provider) Close() error {
	return nil
}

// wait blocks until the rate limiter admits one call.
func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// callError wraps a failure that happened before reaching S3.
func (p *Provider) callError(op, bucket, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}
}

// httpStatusError is implemented by SDK response errors.
type httpStatusError interface {
	HTTPStatusCode() int
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
//
// Bucket-level calls (empty key) report a missing resource as ErrBucketNotFound.
func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	notFound := provider.ErrNotFound
	if key == "" {
		notFound = provider.ErrBucketNotFound
	}

	// Check for specific S3 error types first
	var nf *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	case errors.As(err, &nf), errors.As(err, &noSuchKey):
		wrapped.Err = notFound
		return wrapped
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "NoSuchKey", "NoSuchVersion", "NotFound":
			wrapped.Err = notFound
		case "NoSuchBucket":
			wrapped.Err = provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			wrapped.Err = provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			wrapped.Err = provider.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = provider.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = provider.ErrProviderUnavailable
		case "BadRequest", "InvalidArgument", "InvalidRequest", "MalformedACLError",
			"MalformedXML", "UnresolvableGrantByEmailAddress", "InvalidBucketName",
			"InvalidLocationConstraint", "IllegalLocationConstraintException":
			wrapped.Err = &provider.BadRequestError{Code: code, Body: apiErr.ErrorMessage()}
		default:
			if statusCode(err) == http.StatusBadRequest {
				wrapped.Err = &provider.BadRequestError{Code: code, Body: apiErr.ErrorMessage()}
			}
		}
		return wrapped
	}

	switch statusCode(err) {
	case http.StatusNotFound:
		wrapped.Err = notFound
		return wrapped
	case http.StatusForbidden:
		wrapped.Err = provider.ErrAccessDenied
		return wrapped
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.ErrBucketNotFound
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound"):
		wrapped.Err = notFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling"):
		wrapped.Err = provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable"):
		wrapped.Err = provider.ErrProviderUnavailable
	}

	return wrapped
}

func statusCode(err error) int {
	var se httpStatusError
	if errors.As(err, &se) {
		return se.HTTPStatusCode()
	}
	return 0
}

// isRedirect reports whether err is S3 pointing at the bucket's home region.
func isRedirect(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PermanentRedirect", "MovedPermanently", "301":
			return true
		}
	}
	return statusCode(err) == http.StatusMovedPermanently
}

// buildCreateBucketInput omits CreateBucketConfiguration entirely when no
// constraint is requested; S3 rejects an explicit us-east-1 constraint.
func buildCreateBucketInput(bucket string, opts provider.CreateBucketOptions) *s3.CreateBucketInput {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	if opts.ACL != "" {
		input.ACL = types.BucketCannedACL(opts.ACL)
	}
	if opts.LocationConstraint != "" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(opts.LocationConstraint),
		}
	}
	return input
}

// normalizeLocation maps GetBucketLocation constraints to region names.
// S3 reports an empty constraint for us-east-1 and "EU" for legacy eu-west-1 buckets.
func normalizeLocation(constraint string) string {
	switch constraint {
	case "":
		return DefaultAWSRegion
	case legacyEURegion:
		return "eu-west-1"
	}
	return constraint
}

func fromS3ACL(owner *types.Owner, grants []types.Grant) *provider.ACL {
	acl := &provider.ACL{Grants: make([]provider.Grant, 0, len(grants))}
	if owner != nil {
		acl.Owner = provider.Owner{
			ID:          aws.ToString(owner.ID),
			DisplayName: aws.ToString(owner.DisplayName),
		}
	}

	for _, g := range grants {
		grant := provider.Grant{Permission: provider.Permission(g.Permission)}
		if g.Grantee != nil {
			grant.Grantee = provider.Grantee{
				Type:         provider.GranteeType(g.Grantee.Type),
				ID:           aws.ToString(g.Grantee.ID),
				DisplayName:  aws.ToString(g.Grantee.DisplayName),
				EmailAddress: aws.ToString(g.Grantee.EmailAddress),
				URI:          aws.ToString(g.Grantee.URI),
			}
		}
		acl.Grants = append(acl.Grants, grant)
	}
	return acl
}

func toS3Policy(owner provider.Owner, grants []provider.Grant) *types.AccessControlPolicy {
	policy := &types.AccessControlPolicy{
		Owner: &types.Owner{
			ID:          optionalString(owner.ID),
			DisplayName: optionalString(owner.DisplayName),
		},
		Grants: make([]types.Grant, 0, len(grants)),
	}

	for _, g := range grants {
		policy.Grants = append(policy.Grants, types.Grant{
			Grantee: &types.Grantee{
				Type:         types.Type(g.Grantee.Type),
				ID:           optionalString(g.Grantee.ID),
				DisplayName:  optionalString(g.Grantee.DisplayName),
				EmailAddress: optionalString(g.Grantee.EmailAddress),
				URI:          optionalString(g.Grantee.URI),
			},
			Permission: types.Permission(g.Permission),
		})
	}
	return policy
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// cleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}
