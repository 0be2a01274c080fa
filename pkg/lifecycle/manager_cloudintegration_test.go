//go:build cloudintegration

package lifecycle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/provider"
	"github.com/3leaps/bucketwarden/test/cloudtest"
)

func openManager(t *testing.T, ctx context.Context) *lifecycle.Manager {
	t.Helper()
	m, err := lifecycle.Open(ctx, cloudtest.LifecycleConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_BucketStateMachine_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	m := openManager(t, ctx)
	name := cloudtest.BucketName(t)

	exists, err := m.BucketExists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)

	available, err := m.BucketNameAvailable(ctx, name)
	require.NoError(t, err)
	assert.True(t, available)

	require.NoError(t, m.CreateBucket(ctx, name, m.Region()))

	exists, err = m.BucketExists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	empty, err := m.BucketEmpty(ctx, name)
	require.NoError(t, err)
	assert.True(t, empty)

	cloudtest.PutObject(t, ctx, name, "data.txt", []byte("hello"))

	data, err := m.GetObject(ctx, name, "data.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	deleted, err := m.DeleteBucket(ctx, name)
	require.NoError(t, err)
	assert.False(t, deleted, "non-empty bucket must not be deleted")

	require.NoError(t, m.DeleteObject(ctx, name, "data.txt", provider.DeleteObjectOptions{}))

	deleted, err = m.DeleteBucket(ctx, name)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err = m.BucketExists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)

	deleted, err = m.DeleteBucket(ctx, name)
	require.NoError(t, err)
	assert.True(t, deleted, "deleting a missing bucket counts as deleted")
}

func TestManager_DeleteMarkersBlockDeletion_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	m := openManager(t, ctx)

	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.EnableVersioning(t, ctx, bucket)
	cloudtest.PutObject(t, ctx, bucket, "k", []byte("v"))
	cloudtest.DeleteObject(t, ctx, bucket, "k")

	empty, err := m.BucketEmpty(ctx, bucket)
	require.NoError(t, err)
	assert.False(t, empty)

	deleted, err := m.DeleteBucket(ctx, bucket)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestManager_OtherRegion_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	m := openManager(t, ctx)

	bucket := cloudtest.CreateBucketIn(t, ctx, "eu-west-1")

	res, err := m.LookupBucket(ctx, bucket)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePresent, res.State)
	assert.Equal(t, "eu-west-1", res.Region)

	other, err := m.BucketInAnotherRegion(ctx, bucket)
	require.NoError(t, err)
	assert.True(t, other)

	available, err := m.BucketNameAvailable(ctx, bucket)
	require.NoError(t, err)
	assert.False(t, available)
}

func TestManager_ObjectACL_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	m := openManager(t, ctx)

	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.PutObject(t, ctx, bucket, "k", []byte("v"))

	acl, err := m.GetObjectACL(ctx, bucket, "k")
	require.NoError(t, err)
	require.NotEmpty(t, acl.Owner.ID)

	applied, err := m.PutObjectACL(ctx, bucket, "k", []provider.Grant{{
		Grantee:    provider.Grantee{Type: provider.GranteeCanonicalUser, ID: acl.Owner.ID},
		Permission: provider.PermissionFullControl,
	}, {
		Grantee:    provider.Grantee{Type: provider.GranteeGroup, URI: "http://acs.amazonaws.com/groups/global/AllUsers"},
		Permission: provider.PermissionRead,
	}})
	require.NoError(t, err)
	assert.True(t, applied)

	acl, err = m.GetObjectACL(ctx, bucket, "k")
	require.NoError(t, err)
	assert.Len(t, acl.Grants, 2)

	_, err = m.GetObject(ctx, bucket, "missing")
	assert.ErrorIs(t, err, lifecycle.ErrObjectNotFound)
}
