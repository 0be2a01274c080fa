// Package s3 implements the provider backend for AWS S3 and S3-compatible storage.
package s3

// Config configures an S3 backend.
//
// Authentication priority:
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Instance role via EC2 instance metadata (if UseInstanceRole is set)
//  3. AWS SDK v2 default chain: environment variables, shared credentials
//     and config files (optionally with Profile), ECS task role, EKS IRSA
//
// Region is required: the lifecycle manager compares bucket locations
// against it. For S3-compatible stores (Wasabi, MinIO, moto), set Endpoint
// and typically ForcePathStyle.
type Config struct {
	// Region is the AWS region the backend operates in (required).
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	// Examples:
	//   - Wasabi: https://s3.wasabisys.com
	//   - MinIO: http://localhost:9000
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// UseInstanceRole resolves credentials from the EC2 instance metadata
	// service. Mutually exclusive with explicit keys.
	UseInstanceRole bool

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	ForcePathStyle bool

	// RateLimit caps backend calls per second. Zero means unlimited.
	RateLimit float64
}

// DefaultAWSRegion is the region whose buckets carry no location constraint.
const DefaultAWSRegion = "us-east-1"

// legacyEURegion is the location constraint S3 reports for old eu-west-1 buckets.
const legacyEURegion = "EU"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Region == "" {
		return &ConfigError{Field: "Region", Message: "region is required"}
	}

	// If one explicit credential is set, both must be set
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	if c.UseInstanceRole && c.AccessKeyID != "" {
		return &ConfigError{
			Field:   "UseInstanceRole",
			Message: "instance role and explicit access keys are mutually exclusive",
		}
	}

	if c.RateLimit < 0 {
		return &ConfigError{Field: "RateLimit", Message: "rate limit must not be negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

// DefaultMaxKeys is the default page size for ListObjectVersions.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000
