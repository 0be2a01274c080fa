package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/bucketwarden/pkg/lifecycle"
)

var errUnexpectedOpen = errors.New("manager opened in readonly mode")

func failingOpen(err error) func(context.Context, lifecycle.Config, *zap.Logger) (*lifecycle.Manager, error) {
	return func(context.Context, lifecycle.Config, *zap.Logger) (*lifecycle.Manager, error) {
		return nil, err
	}
}

func TestReadOnly_BlocksMutations(t *testing.T) {
	isolateEnv(t)
	orig := openManager
	defer func() { openManager = orig }()
	openManager = failingOpen(errUnexpectedOpen)

	grants := writeGrantFile(t, "grants.yaml", readGrantYAML)

	tests := []struct {
		name string
		args []string
	}{
		{name: "bucket create", args: []string{"--readonly", "bucket", "create", "reports"}},
		{name: "bucket delete", args: []string{"--readonly", "bucket", "delete", "reports"}},
		{name: "object delete", args: []string{"--readonly", "object", "delete", "s3://reports/k"}},
		{name: "object acl put", args: []string{"--readonly", "object", "acl", "put", "s3://reports/k", "--grants", grants}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "readonly")
			assert.NotErrorIs(t, err, errUnexpectedOpen)
			assert.Equal(t, foundry.ExitInvalidArgument, ExitCode(err))
		})
	}
}

func TestReadOnly_FromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("BUCKETWARDEN_READONLY", "true")
	orig := openManager
	defer func() { openManager = orig }()
	openManager = failingOpen(errUnexpectedOpen)

	_, err := runCommand(t, "bucket", "delete", "reports")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")
	assert.True(t, IsReadOnly())
}

func TestReadOnly_AllowsChecks(t *testing.T) {
	isolateEnv(t)
	backend := newMemBackend()
	backend.addBucket("reports", "us-east-1", nil)
	useBackend(t, backend)

	_, err := runCommand(t, "--readonly", "bucket", "exists", "reports")
	require.NoError(t, err)

	_, err = runCommand(t, "--readonly", "bucket", "lookup", "reports")
	require.NoError(t, err)
}
