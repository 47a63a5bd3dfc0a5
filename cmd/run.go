package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spreadshirt/s3gw-haproxy/internal/config"
	"github.com/spreadshirt/s3gw-haproxy/internal/scenario"
	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

const (
	ExitAssertionFailed = 1
	ExitSetupFailed     = 2
	// ExitRunError covers interrupted runs and failures that are neither.
	ExitRunError = 3
)

func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the store restart scenario once",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfiguration(cfg); err != nil {
				return srverrors.NewSetupError("validate configuration", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cmd.OutOrStdout(), scenario.NewRunner(cfg))
		},
	}

	registerFlags(cmd, cfg)

	return cmd
}

func registerFlags(cmd *cobra.Command, cfg *config.Configuration) {
	flags := cmd.Flags()

	flags.StringVar(&cfg.Proxy.Binary, "proxy-binary", cfg.Proxy.Binary, "path of the proxy binary")
	flags.StringVar(&cfg.Proxy.ListenHost, "proxy-listen-host", cfg.Proxy.ListenHost, "address the proxy listener binds")

	flags.StringVar(&cfg.Store.Binary, "store-binary", cfg.Store.Binary, "store binary, looked up on PATH")
	flags.StringVar(&cfg.Store.Host, "store-host", cfg.Store.Host, "address the proxy and the harness reach the store on")
	flags.StringVar(&cfg.Store.ExtraArgs, "store-args", cfg.Store.ExtraArgs, "extra store arguments, shell quoted")

	flags.StringVar(&cfg.Origin.Host, "origin-host", cfg.Origin.Host, "address the mock origin binds")
	flags.StringVar(&cfg.Origin.ResponsesFile, "origin-responses", cfg.Origin.ResponsesFile, "YAML file with the origin response table")

	flags.IntVar(&cfg.Ports.Lower, "port-range-lower", cfg.Ports.Lower, "lowest port to allocate")
	flags.IntVar(&cfg.Ports.Upper, "port-range-upper", cfg.Ports.Upper, "port range upper bound, exclusive")
	flags.IntVar(&cfg.Ports.Attempts, "port-attempts", cfg.Ports.Attempts, "random probes per port before giving up")

	flags.StringVar(&cfg.Scenario.Bucket, "bucket", cfg.Scenario.Bucket, "bucket written to")
	flags.StringVar(&cfg.Scenario.Key, "key", cfg.Scenario.Key, "object key written to")
	flags.StringSliceVar(&cfg.Scenario.Buckets, "buckets", cfg.Scenario.Buckets, "buckets the proxy enqueues writes for")
	flags.StringVar(&cfg.Scenario.BucketPrefix, "bucket-prefix", cfg.Scenario.BucketPrefix, "prefix of the queue keys")
	flags.StringVar(&cfg.Scenario.Payload, "payload", cfg.Scenario.Payload, "body of every write")
	flags.IntVar(&cfg.Scenario.InitialWrites, "initial-writes", cfg.Scenario.InitialWrites, "writes before the store is killed")
	flags.IntVar(&cfg.Scenario.FinalWrites, "final-writes", cfg.Scenario.FinalWrites, "writes after the store is restarted")
	flags.DurationVar(&cfg.Scenario.ReadyTimeout, "ready-timeout", cfg.Scenario.ReadyTimeout, "time allowed for the store and the proxy to come up")
	flags.DurationVar(&cfg.Scenario.SettleInterval, "settle-interval", cfg.Scenario.SettleInterval, "wait after the write sent while the store is down")
	flags.DurationVar(&cfg.Scenario.ReconnectInterval, "reconnect-interval", cfg.Scenario.ReconnectInterval, "wait for the proxy to reconnect to the restarted store")
	flags.DurationVar(&cfg.Scenario.AssertTimeout, "assert-timeout", cfg.Scenario.AssertTimeout, "time allowed for a queue to reach the expected length")
	flags.DurationVar(&cfg.Scenario.StopTimeout, "stop-timeout", cfg.Scenario.StopTimeout, "time allowed for a process to exit after termination")
}

func validateConfiguration(cfg *config.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func run(ctx context.Context, out io.Writer, runner *scenario.Runner) error {
	report, err := runner.Run(ctx)
	printReport(out, report, err)
	return err
}

// ExitCode maps the error of a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return ExitRunError
	case srverrors.IsAssertionError(err):
		return ExitAssertionFailed
	case srverrors.IsSetupError(err):
		return ExitSetupFailed
	default:
		return ExitRunError
	}
}

var (
	passColor  = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	setupColor = color.New(color.FgYellow, color.Bold)
	errorColor = color.New(color.FgMagenta, color.Bold)
	warnColor  = color.New(color.FgYellow)
)

func printReport(out io.Writer, report *scenario.Report, err error) {
	switch {
	case err == nil:
		passColor.Fprint(out, "PASS")
	case errors.Is(err, context.Canceled):
		errorColor.Fprint(out, "INTERRUPTED")
	case srverrors.IsAssertionError(err):
		failColor.Fprint(out, "FAIL")
	case srverrors.IsSetupError(err):
		setupColor.Fprint(out, "SETUP FAILED")
	default:
		errorColor.Fprint(out, "ERROR")
	}
	fmt.Fprintf(out, " scenario %s\n", report.ID)
	fmt.Fprintf(out, "  ports: store=%d proxy=%d origin=%d\n", report.Ports.Store, report.Ports.Proxy, report.Ports.Origin)

	for _, c := range report.Checks {
		mark := passColor.Sprint("ok")
		if !c.Passed {
			mark = failColor.Sprint("mismatch")
		}
		fmt.Fprintf(out, "  %-14s %s expected=%d observed=%d %s\n", c.Point, c.Key, c.Expected, c.Observed, mark)
	}
	fmt.Fprintf(out, "  origin requests: %d\n", report.OriginRequests)

	for _, w := range report.Warnings {
		warnColor.Fprintf(out, "  warning: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(out, "  error: %v\n", err)
		zap.S().Debugw("scenario report", "report", report)
	}
}
