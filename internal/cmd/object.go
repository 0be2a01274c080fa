package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketwarden/internal/observability"
	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/output"
	"github.com/3leaps/bucketwarden/pkg/provider"
)

// ErrGrantsRejected is returned when the backend rejects a grant set as
// malformed. The backend's messages are logged.
var ErrGrantsRejected = errors.New("grants rejected by backend")

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Read, delete and manage ACLs of objects",
}

var objectGetOut string

var objectGetCmd = &cobra.Command{
	Use:   "get s3://bucket/key",
	Short: "Read an object",
	Long: `Read an object.

Without --out the content is written to stdout and no record is emitted.
With --out the content is written to the file and an object record is
emitted on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runObjectGet,
}

var (
	objectDeleteVersionID string
	objectDeleteMFA       string
	objectDeleteBypass    bool
)

var objectDeleteCmd = &cobra.Command{
	Use:   "delete s3://bucket/key",
	Short: "Delete an object or one of its versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectDelete,
}

var objectACLCmd = &cobra.Command{
	Use:   "acl",
	Short: "Read and replace object ACLs",
}

var objectACLGetCmd = &cobra.Command{
	Use:   "get s3://bucket/key",
	Short: "Print an object's ACL",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectACLGet,
}

var objectACLPutGrants string

var objectACLPutCmd = &cobra.Command{
	Use:   "put s3://bucket/key --grants FILE",
	Short: "Replace an object's grants",
	Example: `  bucketwarden object acl put s3://reports/2024/summary.csv --grants grants.yaml

grants.yaml:
  grants:
    - grantee: {type: CanonicalUser, id: "79a59df900b949e55d96a1e698fbacedfd6e09d98eacf8f8d5218e7cd47ef2be"}
      permission: FULL_CONTROL
    - grantee: {type: Group, uri: "http://acs.amazonaws.com/groups/global/AllUsers"}
      permission: READ`,
	Args: cobra.ExactArgs(1),
	RunE: runObjectACLPut,
}

func init() {
	objectGetCmd.Flags().StringVarP(&objectGetOut, "out", "o", "", "write content to file instead of stdout")

	objectDeleteCmd.Flags().StringVar(&objectDeleteVersionID, "version-id", "", "delete this version instead of adding a delete marker")
	objectDeleteCmd.Flags().StringVar(&objectDeleteMFA, "mfa", "", "MFA device serial and token, space separated")
	objectDeleteCmd.Flags().BoolVar(&objectDeleteBypass, "bypass-governance", false, "bypass governance-mode retention")

	objectACLPutCmd.Flags().StringVar(&objectACLPutGrants, "grants", "", "grant file (.yaml or .json)")
	_ = objectACLPutCmd.MarkFlagRequired("grants")

	objectACLCmd.AddCommand(objectACLGetCmd, objectACLPutCmd)
	objectCmd.AddCommand(objectGetCmd, objectDeleteCmd, objectACLCmd)
}

func runObjectGet(cmd *cobra.Command, args []string) error {
	uri, err := parseObjectArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid object URI", err)
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		data, err := m.GetObject(ctx, uri.Bucket, uri.Key)
		if err != nil {
			return reportFailure(w, uri.Bucket, uri.Key, "object get failed", err)
		}

		if objectGetOut == "" {
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return exitError(foundry.ExitFileWriteError, "failed to write object content", err)
			}
			return nil
		}

		if err := os.WriteFile(objectGetOut, data, 0o644); err != nil {
			return exitError(foundry.ExitFileWriteError, "failed to write "+objectGetOut, err)
		}
		return emit(w.WriteObject(ctx, &output.ObjectRecord{
			Bucket:      uri.Bucket,
			Key:         uri.Key,
			Action:      output.ActionGet,
			Size:        int64(len(data)),
			Destination: objectGetOut,
		}))
	})
}

func runObjectDelete(cmd *cobra.Command, args []string) error {
	if err := requireWritable("object delete"); err != nil {
		return err
	}
	uri, err := parseObjectArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid object URI", err)
	}

	opts := provider.DeleteObjectOptions{
		VersionID:                 objectDeleteVersionID,
		MFA:                       objectDeleteMFA,
		BypassGovernanceRetention: objectDeleteBypass,
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		if err := m.DeleteObject(ctx, uri.Bucket, uri.Key, opts); err != nil {
			return reportFailure(w, uri.Bucket, uri.Key, "object delete failed", err)
		}
		return emit(w.WriteObject(ctx, &output.ObjectRecord{
			Bucket:    uri.Bucket,
			Key:       uri.Key,
			Action:    output.ActionDelete,
			VersionID: opts.VersionID,
		}))
	})
}

func runObjectACLGet(cmd *cobra.Command, args []string) error {
	uri, err := parseObjectArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid object URI", err)
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		acl, err := m.GetObjectACL(ctx, uri.Bucket, uri.Key)
		if err != nil {
			return reportFailure(w, uri.Bucket, uri.Key, "object acl get failed", err)
		}
		return emit(w.WriteACL(ctx, aclRecord(uri, acl)))
	})
}

func runObjectACLPut(cmd *cobra.Command, args []string) error {
	if err := requireWritable("object acl put"); err != nil {
		return err
	}
	uri, err := parseObjectArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid object URI", err)
	}

	grants, err := loadGrants(objectACLPutGrants)
	if err != nil {
		observability.CLILogger.Error("Failed to load grants", zap.String("path", objectACLPutGrants), zap.Error(err))
		return exitError(foundry.ExitFileReadError, "failed to load grants", err)
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		applied, err := m.PutObjectACL(ctx, uri.Bucket, uri.Key, grants)
		if err != nil {
			return reportFailure(w, uri.Bucket, uri.Key, "object acl put failed", err)
		}

		rec := aclRecord(uri, &provider.ACL{Grants: grants})
		rec.Applied = &applied
		if err := emit(w.WriteACL(ctx, rec)); err != nil {
			return err
		}
		if !applied {
			return exitError(foundry.ExitInvalidArgument, "object acl put failed", ErrGrantsRejected)
		}
		return nil
	})
}

func aclRecord(uri *ObjectURI, acl *provider.ACL) *output.ACLRecord {
	rec := &output.ACLRecord{
		Bucket: uri.Bucket,
		Key:    uri.Key,
		Grants: make([]output.ACLGrant, 0, len(acl.Grants)),
	}
	if acl.Owner.ID != "" || acl.Owner.DisplayName != "" {
		rec.Owner = &output.ACLOwner{ID: acl.Owner.ID, DisplayName: acl.Owner.DisplayName}
	}
	for _, g := range acl.Grants {
		rec.Grants = append(rec.Grants, output.ACLGrant{
			GranteeType:  string(g.Grantee.Type),
			ID:           g.Grantee.ID,
			DisplayName:  g.Grantee.DisplayName,
			EmailAddress: g.Grantee.EmailAddress,
			URI:          g.Grantee.URI,
			Permission:   string(g.Permission),
		})
	}
	return rec
}
