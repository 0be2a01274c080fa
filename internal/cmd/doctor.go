package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketwarden/internal/observability"
	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/provider/s3"
)

var doctorBucket string

// resolveCredentials is swapped in tests.
var resolveCredentials = s3.ResolveCredentials

var errDoctorFailed = errors.New("one or more checks failed")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and bucket access",
	Long: `Run diagnostic checks and report them on stderr.

Checks the effective configuration, resolves credentials through the same
chain bucket commands use and, with --bucket, looks the bucket up.

Examples:
  bucketwarden doctor
  bucketwarden doctor --bucket my-bucket --region eu-west-1`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorBucket, "bucket", "", "also look up this bucket")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	log := observability.CLILogger
	total := 2
	if doctorBucket != "" {
		total = 3
	}
	ok := true

	log.Info("=== bucketwarden doctor ===")

	cfg := managerConfig()
	if err := cfg.Validate(); err != nil {
		log.Error(fmt.Sprintf("[1/%d] Checking configuration... failed", total), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "invalid configuration", err)
	}
	log.Info(fmt.Sprintf("[1/%d] Checking configuration... ok", total),
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint),
		zap.Strings("protected_buckets", cfg.ProtectedBuckets))

	creds, err := resolveCredentials(ctx, cfg.BackendConfig())
	if err != nil {
		log.Error(fmt.Sprintf("[2/%d] Checking credentials... failed", total), zap.Error(err))
		printCredentialsHelp()
		ok = false
	} else {
		source := creds.Source
		if source == "" {
			source = "unknown"
		}
		log.Info(fmt.Sprintf("[2/%d] Checking credentials... ok", total),
			zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
			zap.String("source", source))
	}

	if doctorBucket != "" && ok {
		ok = checkBucket(ctx, cfg, total)
	}

	if !ok {
		log.Warn("Some checks failed. Review the output above for details.")
		return exitError(foundry.ExitExternalServiceUnavailable, "doctor", errDoctorFailed)
	}
	log.Info("All checks passed")
	return nil
}

func checkBucket(ctx context.Context, cfg lifecycle.Config, total int) bool {
	log := observability.CLILogger
	step := fmt.Sprintf("[3/%d] Checking bucket %s...", total, doctorBucket)

	m, err := openManager(ctx, cfg, log)
	if err != nil {
		log.Error(step+" failed", zap.Error(err))
		return false
	}
	defer func() { _ = m.Close() }()

	res, err := m.LookupBucket(ctx, doctorBucket)
	if err != nil {
		log.Error(step+" failed", zap.Error(err))
		return false
	}

	fields := []zap.Field{zap.String("state", res.State.String())}
	switch res.State {
	case lifecycle.StatePresent:
		fields = append(fields, zap.String("bucket_region", res.Region))
		if res.Region != cfg.Region {
			log.Warn(step+" in another region", fields...)
			return true
		}
		log.Info(step+" ok", fields...)
	case lifecycle.StateForbidden:
		log.Warn(step+" access denied", fields...)
	default:
		log.Info(step+" not found", fields...)
	}
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printCredentialsHelp() {
	log := observability.CLILogger
	log.Info("To configure credentials:")
	log.Info("  1. Set BUCKETWARDEN_ACCESS_KEY_ID and BUCKETWARDEN_SECRET_ACCESS_KEY, or")
	log.Info("  2. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or")
	log.Info("  3. Use --profile with a shared config profile, or")
	log.Info("  4. Use --instance-role when running on EC2")
	log.Info("For S3-compatible storage (MinIO, Wasabi), also set --endpoint.")
}
