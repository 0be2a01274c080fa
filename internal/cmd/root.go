// Package cmd implements the bucketwarden command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/3leaps/bucketwarden/internal/config"
	"github.com/3leaps/bucketwarden/internal/observability"
	"github.com/3leaps/bucketwarden/pkg/lifecycle"
	"github.com/3leaps/bucketwarden/pkg/output"
	"github.com/3leaps/bucketwarden/pkg/provider"
	"github.com/3leaps/bucketwarden/pkg/provider/s3"
)

var (
	cfgFile  string
	readOnly bool

	// appConfig is set by initRuntime before any subcommand runs.
	appConfig *config.Config

	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{
		Version:   "dev",
		Commit:    "HEAD",
		BuildDate: "unknown",
	}
)

// openManager builds the manager for a command. Tests swap it for an
// in-memory backend.
var openManager = func(ctx context.Context, cfg lifecycle.Config, logger *zap.Logger) (*lifecycle.Manager, error) {
	return lifecycle.Open(ctx, cfg, logger)
}

// flagKeys maps persistent flags to config keys. Only flags the user set
// override the file and environment.
var flagKeys = map[string]string{
	"region":        "storage.region",
	"endpoint":      "storage.endpoint",
	"profile":       "storage.profile",
	"instance-role": "storage.use_instance_role",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"readonly":      "readonly",
	"timeout":       "timeout",
}

var rootCmd = &cobra.Command{
	Use:   "bucketwarden",
	Short: "Region- and ownership-aware S3 bucket lifecycle manager",
	Long: `bucketwarden provisions, checks and safely deletes S3-compatible buckets.

Every result is written to stdout as a JSONL record; logs go to stderr.

Safety:
- bucket delete only removes buckets with no object versions and no delete markers.
- --readonly (or BUCKETWARDEN_READONLY=1) refuses every mutating command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (YAML)")
	pf.StringP("region", "r", "", "region to provision into (default us-east-1, or AWS_REGION)")
	pf.String("endpoint", "", "custom S3 endpoint (enables path-style addressing)")
	pf.StringP("profile", "p", "", "AWS shared config profile")
	pf.Bool("instance-role", false, "use EC2 instance role credentials")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")
	pf.BoolVar(&readOnly, "readonly", false, "refuse bucket/object mutations")
	pf.Duration("timeout", 0, "per-command timeout (0 = none)")

	rootCmd.AddCommand(bucketCmd, objectCmd)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Version = versionString()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo records build metadata for --version.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = versionString()
}

func versionString() string {
	return fmt.Sprintf("bucketwarden %s (commit %s, built %s)",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
}

// IsReadOnly reports whether mutations are disabled by flag, env or config.
func IsReadOnly() bool {
	return readOnly || (appConfig != nil && appConfig.ReadOnly)
}

func initRuntime(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(cmd.Context(), cfgFile, flagOverrides(cmd.Flags()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid configuration", err)
	}
	appConfig = cfg

	if err := observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid logging configuration", err)
	}
	return nil
}

// flagOverrides collects the config keys of flags the user set. fs must be
// the executing command's flag set: cobra parses inherited persistent flags
// there, and Visit on the root set would see none of them.
func flagOverrides(fs *pflag.FlagSet) map[string]any {
	overrides := make(map[string]any)
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})
	return overrides
}

// managerConfig derives the lifecycle config from the loaded configuration.
func managerConfig() lifecycle.Config {
	if appConfig == nil {
		return lifecycle.Config{Region: s3.DefaultAWSRegion}
	}
	cfg := appConfig.Lifecycle()
	// S3-compatible services (moto, MinIO) need path-style URLs.
	if cfg.Endpoint != "" {
		cfg.ForcePathStyle = true
	}
	return cfg
}

// requireWritable refuses a mutating action in readonly mode.
func requireWritable(action string) error {
	if IsReadOnly() {
		return exitError(foundry.ExitInvalidArgument,
			"readonly mode enabled: refusing "+action,
			errors.New("disable --readonly or unset BUCKETWARDEN_READONLY"))
	}
	return nil
}

// commandContext applies the configured timeout to the command context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if appConfig != nil && appConfig.Timeout > 0 {
		return context.WithTimeout(ctx, appConfig.Timeout)
	}
	return context.WithCancel(ctx)
}

// withManager opens the manager and a JSONL writer on the command's stdout,
// runs fn, and releases both.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, m *lifecycle.Manager, w output.Writer) error) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	m, err := openManager(ctx, managerConfig(), observability.CLILogger)
	if err != nil {
		observability.CLILogger.Error("Failed to create bucket manager", zap.Error(err))
		return exitError(openExitCode(err), "failed to create bucket manager", err)
	}
	defer func() { _ = m.Close() }()

	jobID := uuid.New().String()
	w := output.NewJSONLWriter(cmd.OutOrStdout(), jobID, string(provider.ProviderS3))
	defer func() { _ = w.Close() }()

	observability.CLILogger.Debug("Running command",
		zap.String("command", cmd.CommandPath()),
		zap.String("job_id", jobID),
		zap.String("region", m.Region()))

	err = fn(ctx, m, w)
	observability.CLILogger.Debug("Command finished",
		zap.String("job_id", jobID),
		zap.Int("records", w.Count()),
		zap.Bool("failed", err != nil))
	return err
}

func openExitCode(err error) int {
	var lcErr *lifecycle.ConfigError
	var s3Err *s3.ConfigError
	if errors.As(err, &lcErr) || errors.As(err, &s3Err) {
		return foundry.ExitInvalidArgument
	}
	return foundry.ExitExternalServiceUnavailable
}

// emit writes a record and maps write failures to an exit error.
func emit(err error) error {
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "failed to write record", err)
	}
	return nil
}

// reportFailure emits an error record for a failed operation and returns
// the matching exit error.
func reportFailure(w output.Writer, bucket, key, message string, err error) error {
	code, exit := classifyError(err)
	rec := &output.ErrorRecord{
		Code:    code,
		Message: err.Error(),
		Bucket:  bucket,
		Key:     key,
	}
	// The command context may already be done; the record still goes out.
	if werr := w.WriteError(context.Background(), rec); werr != nil {
		observability.CLILogger.Debug("Failed to emit error record", zap.Error(werr))
	}
	return exitError(exit, message, err)
}

// classifyError maps an operation failure to a record code and exit code.
func classifyError(err error) (string, int) {
	switch {
	case errors.Is(err, context.Canceled):
		return output.ErrCodeInternal, foundry.ExitSignalInt
	case errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout, foundry.ExitExternalServiceUnavailable
	case lifecycle.IsObjectNotFound(err), provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return output.ErrCodeNotFound, foundry.ExitFileNotFound
	case provider.IsAccessDenied(err):
		return output.ErrCodeAccessDenied, foundry.ExitExternalServiceUnavailable
	case provider.IsBadRequest(err):
		return output.ErrCodeBadRequest, foundry.ExitInvalidArgument
	case provider.IsInvalidCredentials(err):
		return output.ErrCodeInvalidCredentials, foundry.ExitExternalServiceUnavailable
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled, foundry.ExitExternalServiceUnavailable
	case provider.IsProviderUnavailable(err), lifecycle.IsBackendError(err):
		return output.ErrCodeUnavailable, foundry.ExitExternalServiceUnavailable
	}
	return output.ErrCodeInternal, foundry.ExitExternalServiceUnavailable
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the exit code carried by err, 1 for other errors and 0
// for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
