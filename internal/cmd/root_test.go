package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketwarden/internal/config"
	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/output"
	"github.com/3leaps/bucketwarden/pkg/provider"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer SetVersionInfo(origVersion, origCommit, origBuildDate)

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{name: "set all values", version: "1.0.0", commit: "abc123", buildDate: "2024-01-15"},
		{name: "set dev version", version: "dev", commit: "HEAD", buildDate: "unknown"},
		{name: "set empty values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
			assert.Contains(t, rootCmd.Version, "commit "+tt.commit)
		})
	}
}

func TestExitError(t *testing.T) {
	underlying := errors.New("boom")
	err := exitError(foundry.ExitFileWriteError, "failed to write", underlying)

	assert.Equal(t, fmt.Sprintf("failed to write: boom (exit code %d)", foundry.ExitFileWriteError), err.Error())
	assert.ErrorIs(t, err, underlying)
	assert.Equal(t, foundry.ExitFileWriteError, ExitCode(err))
	assert.Equal(t, foundry.ExitFileWriteError, ExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
	assert.Equal(t, 0, ExitCode(nil))
}

func TestClassifyError(t *testing.T) {
	wrap := func(err error) error {
		return &lifecycle.BackendError{Op: "BucketExists", Bucket: "b", Err: &provider.ProviderError{Op: "HeadBucket", Err: err}}
	}

	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{name: "object missing", err: &lifecycle.ObjectNotFoundError{Bucket: "b", Key: "k"}, wantCode: output.ErrCodeNotFound, wantExit: foundry.ExitFileNotFound},
		{name: "bucket missing", err: wrap(provider.ErrBucketNotFound), wantCode: output.ErrCodeNotFound, wantExit: foundry.ExitFileNotFound},
		{name: "access denied", err: wrap(provider.ErrAccessDenied), wantCode: output.ErrCodeAccessDenied, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "bad request", err: wrap(&provider.BadRequestError{Code: "InvalidArgument"}), wantCode: output.ErrCodeBadRequest, wantExit: foundry.ExitInvalidArgument},
		{name: "credentials", err: wrap(provider.ErrInvalidCredentials), wantCode: output.ErrCodeInvalidCredentials, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "throttled", err: wrap(provider.ErrThrottled), wantCode: output.ErrCodeThrottled, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "unavailable", err: wrap(provider.ErrProviderUnavailable), wantCode: output.ErrCodeUnavailable, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "deadline", err: wrap(context.DeadlineExceeded), wantCode: output.ErrCodeTimeout, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "cancelled", err: context.Canceled, wantCode: output.ErrCodeInternal, wantExit: foundry.ExitSignalInt},
		{name: "unclassified backend failure", err: &lifecycle.BackendError{Op: "BucketEmpty", Bucket: "b", Err: lifecycle.ErrStalledListing}, wantCode: output.ErrCodeUnavailable, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "backend connection reset", err: &lifecycle.BackendError{Op: "BucketExists", Bucket: "b", Err: errors.New("connection reset")}, wantCode: output.ErrCodeUnavailable, wantExit: foundry.ExitExternalServiceUnavailable},
		{name: "unknown", err: errors.New("???"), wantCode: output.ErrCodeInternal, wantExit: foundry.ExitExternalServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := classifyError(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestFlagOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("region", "", "")
	fs.String("endpoint", "", "")
	fs.Bool("readonly", false, "")
	fs.Duration("timeout", 0, "")
	fs.String("bucket", "", "")

	require.NoError(t, fs.Parse([]string{"--region", "eu-west-1", "--readonly", "--timeout", "30s", "--bucket", "b"}))

	overrides := flagOverrides(fs)
	assert.Equal(t, "eu-west-1", overrides["storage.region"])
	assert.Equal(t, "true", overrides["readonly"])
	assert.Equal(t, "30s", overrides["timeout"])
	assert.NotContains(t, overrides, "storage.endpoint")
	assert.Len(t, overrides, 3)
}

func TestGlobalFlags_ReachConfiguration(t *testing.T) {
	isolateEnv(t)
	backend := newMemBackend()
	backend.addBucket("reports", "eu-west-1", nil)
	useBackend(t, backend)

	out, err := runCommand(t, "--region", "eu-west-1", "--timeout", "30s", "bucket", "region", "reports")
	require.NoError(t, err)
	require.NotNil(t, appConfig)
	assert.Equal(t, "eu-west-1", appConfig.Storage.Region)
	assert.Equal(t, 30*time.Second, appConfig.Timeout)

	var check output.BucketCheckRecord
	singleRecord(t, out, output.TypeBucketCheck, &check)
	assert.Equal(t, "eu-west-1", check.Region)
	assert.False(t, check.Result, "bucket lives in the configured region")
}

func TestGlobalFlags_CreateUsesRegionFlag(t *testing.T) {
	isolateEnv(t)
	useBackend(t, newMemBackend())

	out, err := runCommand(t, "bucket", "create", "reports-eu", "-r", "eu-west-1")
	require.NoError(t, err)

	var change output.BucketChangeRecord
	singleRecord(t, out, output.TypeBucketChange, &change)
	assert.Equal(t, "eu-west-1", change.Region)
	assert.Equal(t, "eu-west-1", change.LocationConstraint)
}

func TestGlobalFlags_Validated(t *testing.T) {
	isolateEnv(t)
	useBackend(t, newMemBackend())

	for _, args := range [][]string{
		{"--timeout", "-5s", "bucket", "exists", "reports"},
		{"--log-format", "xml", "bucket", "exists", "reports"},
	} {
		_, err := runCommand(t, args...)
		require.Error(t, err, "args %v", args)
		assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
		assert.Contains(t, err.Error(), "invalid configuration")
	}
}

func TestManagerConfig(t *testing.T) {
	defer func() { appConfig = nil }()

	appConfig = nil
	assert.Equal(t, "us-east-1", managerConfig().Region)

	appConfig = &config.Config{Storage: config.StorageConfig{
		Region:   "eu-west-1",
		Endpoint: "http://localhost:5555",
	}}
	cfg := managerConfig()
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.True(t, cfg.ForcePathStyle)

	appConfig = &config.Config{Storage: config.StorageConfig{Region: "eu-west-1"}}
	assert.False(t, managerConfig().ForcePathStyle)
}

func TestCommandContext_Timeout(t *testing.T) {
	defer func() { appConfig = nil }()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	appConfig = &config.Config{Timeout: time.Minute}
	ctx, cancel := commandContext(cmd)
	deadline, ok := ctx.Deadline()
	cancel()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	appConfig = &config.Config{}
	ctx, cancel = commandContext(cmd)
	_, ok = ctx.Deadline()
	cancel()
	assert.False(t, ok)
}

func TestOpenExitCode(t *testing.T) {
	assert.Equal(t, foundry.ExitInvalidArgument, openExitCode(&lifecycle.ConfigError{Field: "Region", Message: "region is required"}))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, openExitCode(errors.New("dial tcp: refused")))
}

func TestInvalidConfiguration(t *testing.T) {
	isolateEnv(t)
	useBackend(t, newMemBackend())

	_, err := runCommand(t, "--log-level", "chatty", "bucket", "exists", "reports")
	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}
