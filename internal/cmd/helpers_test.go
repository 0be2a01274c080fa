package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/output"
	"github.com/3leaps/bucketwarden/pkg/provider"
)

type memBucket struct {
	region  string
	objects map[string][]byte
	acls    map[string]*provider.ACL
}

// memBackend is an in-memory provider.Backend. Names in foreign behave as
// buckets owned by another account.
type memBackend struct {
	mu        sync.Mutex
	buckets   map[string]*memBucket
	foreign   map[string]bool
	putACLErr error
	calls     int
}

var _ provider.Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{
		buckets: make(map[string]*memBucket),
		foreign: make(map[string]bool),
	}
}

func (b *memBackend) addBucket(name, region string, objects map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb := &memBucket{region: region, objects: make(map[string][]byte), acls: make(map[string]*provider.ACL)}
	for k, v := range objects {
		mb.objects[k] = []byte(v)
	}
	b.buckets[name] = mb
}

func (b *memBackend) errFor(op, bucket, key string, err error) error {
	return &provider.ProviderError{Op: op, Provider: provider.ProviderS3, Bucket: bucket, Key: key, Err: err}
}

// bucket returns the named bucket or the error a real backend would give.
func (b *memBackend) bucket(op, name string) (*memBucket, error) {
	b.calls++
	if b.foreign[name] {
		return nil, b.errFor(op, name, "", provider.ErrAccessDenied)
	}
	mb, ok := b.buckets[name]
	if !ok {
		return nil, b.errFor(op, name, "", provider.ErrBucketNotFound)
	}
	return mb, nil
}

func (b *memBackend) HeadBucket(ctx context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.bucket("HeadBucket", bucket)
	return err
}

func (b *memBackend) BucketLocation(ctx context.Context, bucket string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, err := b.bucket("BucketLocation", bucket)
	if err != nil {
		return "", err
	}
	return mb.region, nil
}

func (b *memBackend) CreateBucket(ctx context.Context, bucket string, opts provider.CreateBucketOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if _, ok := b.buckets[bucket]; ok || b.foreign[bucket] {
		return b.errFor("CreateBucket", bucket, "", &provider.BadRequestError{Code: "BucketAlreadyExists"})
	}
	region := opts.LocationConstraint
	if region == "" {
		region = "us-east-1"
	}
	b.buckets[bucket] = &memBucket{region: region, objects: make(map[string][]byte), acls: make(map[string]*provider.ACL)}
	return nil
}

func (b *memBackend) DeleteBucket(ctx context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.bucket("DeleteBucket", bucket); err != nil {
		return err
	}
	delete(b.buckets, bucket)
	return nil
}

func (b *memBackend) ListObjectVersions(ctx context.Context, opts provider.ListVersionsOptions) (*provider.ListVersionsResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, err := b.bucket("ListObjectVersions", opts.Bucket)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(mb.objects))
	for k := range mb.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &provider.ListVersionsResult{}
	for _, k := range keys {
		res.Versions = append(res.Versions, provider.ObjectVersion{
			Key:       k,
			VersionID: "null",
			IsLatest:  true,
			Size:      int64(len(mb.objects[k])),
		})
	}
	return res, nil
}

func (b *memBackend) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, err := b.bucket("GetObject", bucket)
	if err != nil {
		return nil, err
	}
	data, ok := mb.objects[key]
	if !ok {
		return nil, b.errFor("GetObject", bucket, key, provider.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBackend) DeleteObject(ctx context.Context, bucket, key string, opts provider.DeleteObjectOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, err := b.bucket("DeleteObject", bucket)
	if err != nil {
		return err
	}
	delete(mb.objects, key)
	return nil
}

func (b *memBackend) GetObjectACL(ctx context.Context, bucket, key string) (*provider.ACL, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, err := b.bucket("GetObjectACL", bucket)
	if err != nil {
		return nil, err
	}
	if _, ok := mb.objects[key]; !ok {
		return nil, b.errFor("GetObjectACL", bucket, key, provider.ErrNotFound)
	}
	if acl, ok := mb.acls[key]; ok {
		return acl, nil
	}
	return &provider.ACL{
		Owner: provider.Owner{ID: "owner-id", DisplayName: "owner"},
		Grants: []provider.Grant{{
			Grantee:    provider.Grantee{Type: provider.GranteeCanonicalUser, ID: "owner-id"},
			Permission: provider.PermissionFullControl,
		}},
	}, nil
}

func (b *memBackend) PutObjectACL(ctx context.Context, bucket, key string, acl *provider.ACL) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, err := b.bucket("PutObjectACL", bucket)
	if err != nil {
		return err
	}
	if b.putACLErr != nil {
		return b.putACLErr
	}
	mb.acls[key] = acl
	return nil
}

func (b *memBackend) Close() error { return nil }

// useBackend routes commands to backend for the duration of the test.
func useBackend(t *testing.T, backend provider.Backend) {
	t.Helper()
	orig := openManager
	openManager = func(ctx context.Context, cfg lifecycle.Config, logger *zap.Logger) (*lifecycle.Manager, error) {
		return lifecycle.New(backend, cfg.Region, logger, lifecycle.WithProtectedBuckets(cfg.ProtectedBuckets...))
	}
	t.Cleanup(func() { openManager = orig })
}

// isolateEnv blanks bucketwarden environment variables for the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BUCKETWARDEN_REGION", "AWS_REGION", "BUCKETWARDEN_ENDPOINT", "BUCKETWARDEN_PROFILE",
		"BUCKETWARDEN_READONLY", "BUCKETWARDEN_PROTECTED_BUCKETS", "BUCKETWARDEN_TIMEOUT",
		"BUCKETWARDEN_ACCESS_KEY_ID", "BUCKETWARDEN_SECRET_ACCESS_KEY", "BUCKETWARDEN_INSTANCE_ROLE",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("BUCKETWARDEN_LOG_LEVEL", "error")
}

// resetCommandState clears flag values and package state left by earlier runs.
func resetCommandState() {
	readOnly = false
	cfgFile = ""
	appConfig = nil
	resetFlags(rootCmd)
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCommand executes the CLI with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCommandState()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	rootCmd.SetContext(context.Background())

	err := rootCmd.Execute()

	rootCmd.SetArgs(nil)
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	return out.String(), err
}

// records parses JSONL output into envelopes.
func records(t *testing.T, out string) []output.Record {
	t.Helper()
	var recs []output.Record
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		recs = append(recs, rec)
	}
	return recs
}

// singleRecord expects exactly one record of recordType and decodes its data.
func singleRecord(t *testing.T, out, recordType string, data any) output.Record {
	t.Helper()
	recs := records(t, out)
	require.Len(t, recs, 1, "output: %s", out)
	require.Equal(t, recordType, recs[0].Type)
	require.NoError(t, json.Unmarshal(recs[0].Data, data))
	return recs[0]
}
