package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/output"
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Check, create and delete buckets",
	Long: `Check, create and delete buckets.

Checks re-query the backend on every call. A bucket the backend refuses to
describe (403) counts as owned by another account and as not existing.`,
}

var bucketCreateRegion string

var bucketCreateCmd = &cobra.Command{
	Use:   "create <bucket>",
	Short: "Create a private bucket",
	Example: `  bucketwarden bucket create reports-2024
  bucketwarden bucket create reports-eu --bucket-region eu-west-1`,
	Args: cobra.ExactArgs(1),
	RunE: runBucketCreate,
}

var bucketDeleteCmd = &cobra.Command{
	Use:   "delete <bucket>",
	Short: "Delete a bucket if it holds no versions or delete markers",
	Long: `Delete a bucket if it holds no object versions and no delete markers.

A non-empty or protected bucket is left untouched and reported with
applied=false. A bucket that is already gone is reported as deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runBucketDelete,
}

var bucketLookupCmd = &cobra.Command{
	Use:   "lookup <bucket>",
	Short: "Report bucket state (present, absent, forbidden) and region",
	Args:  cobra.ExactArgs(1),
	RunE:  runBucketLookup,
}

// bucketCheck matches the Manager check method expressions.
type bucketCheck func(m *lifecycle.Manager, ctx context.Context, name string) (bool, error)

func init() {
	bucketCreateCmd.Flags().StringVar(&bucketCreateRegion, "bucket-region", "", "region for the new bucket (default: configured region)")

	bucketCmd.AddCommand(
		newBucketCheckCmd("exists", output.CheckExists, "Report whether the bucket exists and is visible", false,
			(*lifecycle.Manager).BucketExists),
		newBucketCheckCmd("empty", output.CheckEmpty, "Report whether the bucket has no versions or delete markers", false,
			(*lifecycle.Manager).BucketEmpty),
		newBucketCheckCmd("region", output.CheckInAnotherRegion, "Report whether the bucket lives in another region", true,
			(*lifecycle.Manager).BucketInAnotherRegion),
		newBucketCheckCmd("owned", output.CheckOwnedElsewhere, "Report whether another account owns the bucket name", false,
			(*lifecycle.Manager).BucketOwnedByAnotherAccount),
		newBucketCheckCmd("available", output.CheckNameAvailable, "Report whether the name can be used in the configured region", true,
			(*lifecycle.Manager).BucketNameAvailable),
		bucketLookupCmd,
		bucketCreateCmd,
		bucketDeleteCmd,
	)
}

func newBucketCheckCmd(use, check, short string, withRegion bool, fn bucketCheck) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bucket>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := parseBucketArg(args[0])
			if err != nil {
				return exitError(foundry.ExitInvalidArgument, "invalid bucket", err)
			}

			return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
				result, err := fn(m, ctx, name)
				if err != nil {
					return reportFailure(w, name, "", "bucket "+use+" failed", err)
				}

				rec := &output.BucketCheckRecord{Bucket: name, Check: check, Result: result}
				if withRegion {
					rec.Region = m.Region()
				}
				return emit(w.WriteBucketCheck(ctx, rec))
			})
		},
	}
}

func runBucketLookup(cmd *cobra.Command, args []string) error {
	name, err := parseBucketArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid bucket", err)
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		res, err := m.LookupBucket(ctx, name)
		if err != nil {
			return reportFailure(w, name, "", "bucket lookup failed", err)
		}
		return emit(w.WriteBucketCheck(ctx, &output.BucketCheckRecord{
			Bucket:       name,
			Check:        output.CheckLookup,
			Result:       res.State == lifecycle.StatePresent,
			Region:       m.Region(),
			State:        res.State.String(),
			BucketRegion: res.Region,
		}))
	})
}

func runBucketCreate(cmd *cobra.Command, args []string) error {
	if err := requireWritable("bucket create"); err != nil {
		return err
	}
	name, err := parseBucketArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid bucket", err)
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		region := bucketCreateRegion
		if region == "" {
			region = m.Region()
		}

		if err := m.CreateBucket(ctx, name, region); err != nil {
			return reportFailure(w, name, "", "bucket create failed", err)
		}

		constraint, _ := lifecycle.LocationConstraintFor(region)
		return emit(w.WriteBucketChange(ctx, &output.BucketChangeRecord{
			Bucket:             name,
			Action:             output.ActionCreate,
			Applied:            true,
			Region:             region,
			LocationConstraint: constraint,
		}))
	})
}

func runBucketDelete(cmd *cobra.Command, args []string) error {
	if err := requireWritable("bucket delete"); err != nil {
		return err
	}
	name, err := parseBucketArg(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid bucket", err)
	}

	return withManager(cmd, func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error {
		deleted, err := m.DeleteBucket(ctx, name)
		if err != nil {
			return reportFailure(w, name, "", "bucket delete failed", err)
		}

		rec := &output.BucketChangeRecord{Bucket: name, Action: output.ActionDelete, Applied: deleted}
		if !deleted {
			rec.Reason = "bucket not empty or protected"
		}
		return emit(w.WriteBucketChange(ctx, rec))
	})
}
