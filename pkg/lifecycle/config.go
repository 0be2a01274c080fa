package lifecycle

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/bucketwarden/pkg/provider/s3"
)

// Credentials selects how the backend authenticates.
//
// Set either the key pair or UseInstanceRole, not both. With neither set the
// AWS SDK default chain (environment, shared profile) applies.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	UseInstanceRole bool
}

// Config configures a Manager built with Open.
type Config struct {
	// Region is the region the manager provisions into (required).
	Region string

	// Credentials for the backend.
	Credentials Credentials

	// Endpoint, Profile and ForcePathStyle are passed to the S3 backend.
	Endpoint       string
	Profile        string
	ForcePathStyle bool

	// RateLimit caps backend calls per second. Zero means unlimited.
	RateLimit float64

	// ProtectedBuckets are glob patterns of bucket names DeleteBucket refuses.
	ProtectedBuckets []string
}

// Validate checks region, credential exclusivity and protected patterns.
func (c *Config) Validate() error {
	if c.Region == "" {
		return &ConfigError{Field: "Region", Message: "region is required"}
	}
	if (c.Credentials.AccessKeyID != "") != (c.Credentials.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "Credentials",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.Credentials.UseInstanceRole && c.Credentials.AccessKeyID != "" {
		return &ConfigError{
			Field:   "Credentials",
			Message: "instance role and explicit access keys are mutually exclusive",
		}
	}
	return validatePatterns(c.ProtectedBuckets)
}

// BackendConfig returns the S3 backend configuration Open uses.
func (c *Config) BackendConfig() s3.Config {
	return s3.Config{
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		Profile:         c.Profile,
		AccessKeyID:     c.Credentials.AccessKeyID,
		SecretAccessKey: c.Credentials.SecretAccessKey,
		UseInstanceRole: c.Credentials.UseInstanceRole,
		ForcePathStyle:  c.ForcePathStyle,
		RateLimit:       c.RateLimit,
	}
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return &ConfigError{Field: "ProtectedBuckets", Message: "invalid pattern " + p}
		}
	}
	return nil
}
