package cmd

import (
	"errors"
	"fmt"
	"strings"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")

	// ErrMissingKey indicates an object URI without a key.
	ErrMissingKey = errors.New("missing object key")
)

// ObjectURI represents a parsed storage URI.
//
// Example URIs:
//   - s3://bucket
//   - s3://bucket/key/path.txt
type ObjectURI struct {
	// Provider is the storage provider (e.g., "s3").
	Provider string

	// Bucket is the bucket name.
	Bucket string

	// Key is the object key. Empty for bucket URIs.
	Key string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	if u.Key != "" {
		return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, u.Key)
	}
	return fmt.Sprintf("%s://%s", u.Provider, u.Bucket)
}

// ParseURI parses a storage URI into its components.
//
// Supported formats:
//   - s3://bucket
//   - s3://bucket/
//   - s3://bucket/key
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://...)", ErrInvalidURI)
	}

	provider := strings.ToLower(uri[:schemeEnd])
	if provider != "s3" {
		return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedProvider, provider)
	}

	bucket, key, _ := strings.Cut(uri[schemeEnd+3:], "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}
	if strings.ContainsAny(bucket, " ?#\\") {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	return &ObjectURI{Provider: provider, Bucket: bucket, Key: key}, nil
}

// parseBucketArg accepts a bare bucket name or an s3:// URI without a key.
func parseBucketArg(arg string) (string, error) {
	if !strings.Contains(arg, "://") {
		if arg == "" || strings.ContainsAny(arg, "/ ?#\\") {
			return "", fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, arg)
		}
		return arg, nil
	}

	u, err := ParseURI(arg)
	if err != nil {
		return "", err
	}
	if u.Key != "" {
		return "", fmt.Errorf("%w: expected a bucket, got object %s", ErrInvalidURI, u)
	}
	return u.Bucket, nil
}

// parseObjectArg requires an s3://bucket/key URI.
func parseObjectArg(arg string) (*ObjectURI, error) {
	u, err := ParseURI(arg)
	if err != nil {
		return nil, err
	}
	if u.Key == "" || strings.HasSuffix(u.Key, "/") {
		return nil, fmt.Errorf("%w: in %s", ErrMissingKey, arg)
	}
	return u, nil
}
