// Package cloudtest runs integration tests against a moto S3 server.
//
// Tests using it carry the cloudintegration build tag and call
// SkipIfUnavailable first:
//
//	func TestDeleteBucket(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    bucket := cloudtest.CreateBucket(t, ctx)
//	    m, _ := lifecycle.Open(ctx, cloudtest.LifecycleConfig(), nil)
//	    ...
//	}
package cloudtest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/3leaps/bucketwarden/pkg/lifecycle"
)

// Moto accepts any credentials; these are passed for form.
const (
	DefaultEndpoint     = "http://localhost:5555"
	DefaultRegion       = "us-east-1"
	TestAccessKeyID     = "testing"
	TestSecretAccessKey = "testing"
)

var (
	// Endpoint is overridden by MOTO_ENDPOINT.
	Endpoint = envOr("MOTO_ENDPOINT", DefaultEndpoint)

	// Region is overridden by MOTO_REGION.
	Region = envOr("MOTO_REGION", DefaultRegion)

	clientOnce sync.Once
	client     *s3.Client
	clientErr  error
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// motoAPI calls a moto control endpoint and checks for 200.
func motoAPI(ctx context.Context, method, path string) error {
	req, err := http.NewRequestWithContext(ctx, method, Endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("moto %s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}

// Available reports whether moto answers within two seconds.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return motoAPI(ctx, http.MethodGet, "/moto-api/") == nil
}

// SkipIfUnavailable skips t when moto is not running.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto not reachable at %s", Endpoint)
	}
}

// Reset drops all moto state.
func Reset(ctx context.Context) error {
	return motoAPI(ctx, http.MethodPost, "/moto-api/reset")
}

// ResetT is Reset that fails t on error.
func ResetT(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := Reset(ctx); err != nil {
		t.Fatalf("reset moto: %v", err)
	}
}

// Client returns a shared path-style S3 client for moto. It is used for
// fixtures only; code under test builds its own through lifecycle.Open.
func Client() (*s3.Client, error) {
	clientOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(TestAccessKeyID, TestSecretAccessKey, "")),
		)
		if err != nil {
			clientErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	return client, clientErr
}

// ClientT is Client that fails t on error.
func ClientT(t *testing.T) *s3.Client {
	t.Helper()
	c, err := Client()
	if err != nil {
		t.Fatalf("s3 client: %v", err)
	}
	return c
}

// LifecycleConfig returns a manager config pointing at moto in Region.
func LifecycleConfig() lifecycle.Config {
	return lifecycle.Config{
		Region:   Region,
		Endpoint: Endpoint,
		Credentials: lifecycle.Credentials{
			AccessKeyID:     TestAccessKeyID,
			SecretAccessKey: TestSecretAccessKey,
		},
		ForcePathStyle: true,
	}
}

// BucketName returns a unique, valid bucket name derived from the test name.
// Nothing is created; a cleanup removes the bucket if the test created it.
func BucketName(t *testing.T) string {
	t.Helper()

	name := strings.ToLower(t.Name())
	name = strings.NewReplacer("/", "-", "_", "-").Replace(name)
	// S3 bucket names max out at 63 characters.
	if len(name) > 50 {
		name = name[:50]
	}
	name = strings.Trim(name, "-")
	name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano()%100000)

	t.Cleanup(func() {
		DeleteBucket(t, context.Background(), name)
	})
	return name
}

// CreateBucket creates a uniquely named bucket in Region and registers cleanup.
func CreateBucket(t *testing.T, ctx context.Context) string {
	t.Helper()
	return CreateBucketIn(t, ctx, Region)
}

// CreateBucketIn creates a uniquely named bucket in region and registers cleanup.
func CreateBucketIn(t *testing.T, ctx context.Context, region string) string {
	t.Helper()

	name := BucketName(t)
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if region != "" && region != DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	if _, err := ClientT(t).CreateBucket(ctx, input); err != nil {
		t.Fatalf("failed to create bucket %s: %v", name, err)
	}
	return name
}

// EnableVersioning turns on versioning for bucket.
func EnableVersioning(t *testing.T, ctx context.Context, bucket string) {
	t.Helper()

	_, err := ClientT(t).PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		t.Fatalf("failed to enable versioning on %s: %v", bucket, err)
	}
}

// DeleteBucket removes every version and delete marker, then the bucket.
// Failures are logged, not fatal; a missing bucket is fine.
func DeleteBucket(t *testing.T, ctx context.Context, bucket string) {
	t.Helper()

	c := ClientT(t)

	paginator := s3.NewListObjectVersionsPaginator(c, &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			// Usually the bucket was never created or is already gone.
			return
		}

		for _, v := range page.Versions {
			deleteVersion(t, ctx, c, bucket, v.Key, v.VersionId)
		}
		for _, m := range page.DeleteMarkers {
			deleteVersion(t, ctx, c, bucket, m.Key, m.VersionId)
		}
	}

	if _, err := c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Logf("warning: failed to delete bucket %s: %v", bucket, err)
	}
}

func deleteVersion(t *testing.T, ctx context.Context, c *s3.Client, bucket string, key, versionID *string) {
	t.Helper()
	_, err := c.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(bucket),
		Key:       key,
		VersionId: versionID,
	})
	if err != nil {
		t.Logf("warning: failed to delete %s@%s: %v", aws.ToString(key), aws.ToString(versionID), err)
	}
}

// PutObject uploads an object to the bucket.
func PutObject(t *testing.T, ctx context.Context, bucket, key string, content []byte) {
	t.Helper()

	_, err := ClientT(t).PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("failed to put object %s/%s: %v", bucket, key, err)
	}
}

// DeleteObject removes the latest version of key, leaving a delete marker on
// versioned buckets.
func DeleteObject(t *testing.T, ctx context.Context, bucket, key string) {
	t.Helper()

	_, err := ClientT(t).DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		t.Fatalf("failed to delete object %s/%s: %v", bucket, key, err)
	}
}
