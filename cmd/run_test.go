package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-extras/cobraflags"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spreadshirt/s3gw-haproxy/internal/config"
	"github.com/spreadshirt/s3gw-haproxy/internal/scenario"
	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

// setupViperForEnvVars configures viper to read environment variables with the given prefix
func setupViperForEnvVars(envPrefix string) {
	viper.Reset()
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

var _ = Describe("Run Command", func() {
	var cfg *config.Configuration

	BeforeEach(func() {
		cfg = config.NewConfigurationWithOptionsAndDefaults()
	})

	Describe("Flag Parsing", func() {
		It("should parse the process flags", func() {
			cmd := NewRunCommand(cfg)

			err := cmd.ParseFlags([]string{
				"--proxy-binary", "/opt/haproxy/haproxy",
				"--store-binary", "/usr/local/bin/redis-server",
				"--store-args=--save '' --appendonly no",
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Proxy.Binary).To(Equal("/opt/haproxy/haproxy"))
			Expect(cfg.Store.Binary).To(Equal("/usr/local/bin/redis-server"))
			Expect(cfg.Store.ExtraArgs).To(Equal("--save '' --appendonly no"))
		})

		It("should parse the scenario flags", func() {
			cmd := NewRunCommand(cfg)

			err := cmd.ParseFlags([]string{
				"--initial-writes", "10",
				"--final-writes", "3",
				"--bucket", "foo",
				"--key", "bar-key",
				"--buckets", "foo,baz",
				"--bucket-prefix", "queue",
				"--ready-timeout", "30s",
				"--settle-interval", "500ms",
				"--reconnect-interval", "5s",
				"--assert-timeout", "1s",
				"--stop-timeout", "3s",
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Scenario.InitialWrites).To(Equal(10))
			Expect(cfg.Scenario.FinalWrites).To(Equal(3))
			Expect(cfg.Scenario.Bucket).To(Equal("foo"))
			Expect(cfg.Scenario.Key).To(Equal("bar-key"))
			Expect(cfg.Scenario.Buckets).To(Equal([]string{"foo", "baz"}))
			Expect(cfg.Scenario.BucketPrefix).To(Equal("queue"))
			Expect(cfg.Scenario.ReadyTimeout).To(Equal(30 * time.Second))
			Expect(cfg.Scenario.SettleInterval).To(Equal(500 * time.Millisecond))
			Expect(cfg.Scenario.ReconnectInterval).To(Equal(5 * time.Second))
			Expect(cfg.Scenario.AssertTimeout).To(Equal(time.Second))
			Expect(cfg.Scenario.StopTimeout).To(Equal(3 * time.Second))
		})

		It("should parse the port range flags", func() {
			cmd := NewRunCommand(cfg)

			err := cmd.ParseFlags([]string{
				"--port-range-lower", "40000",
				"--port-range-upper", "41000",
				"--origin-responses", "/etc/harness/responses.yaml",
			})
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Ports.Lower).To(Equal(40000))
			Expect(cfg.Ports.Upper).To(Equal(41000))
			Expect(cfg.Origin.ResponsesFile).To(Equal("/etc/harness/responses.yaml"))
		})

		It("should use default values when flags are not provided", func() {
			cmd := NewRunCommand(cfg)
			err := cmd.ParseFlags([]string{})
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Proxy.Binary).To(Equal("./haproxy"))
			Expect(cfg.Store.Binary).To(Equal("redis-server"))
			Expect(cfg.Scenario.InitialWrites).To(Equal(32))
			Expect(cfg.Scenario.FinalWrites).To(Equal(4))
			Expect(cfg.Scenario.Bucket).To(Equal("test-bucket"))
			Expect(cfg.Scenario.Key).To(Equal("foo-key"))
			Expect(cfg.Scenario.SettleInterval).To(Equal(time.Second))
			Expect(cfg.Scenario.ReconnectInterval).To(Equal(2 * time.Second))
		})

		It("should parse the log flags on the root command", func() {
			root := NewRootCommand(cfg)

			err := root.PersistentFlags().Parse([]string{"--log-level", "debug", "--log-format", "json"})
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Log.Level).To(Equal("debug"))
			Expect(cfg.Log.Format).To(Equal("json"))
		})
	})

	Describe("Environment Variable Binding", func() {
		AfterEach(func() {
			os.Unsetenv("S3GW_HARNESS_PROXY_BINARY")
			os.Unsetenv("S3GW_HARNESS_STORE_ARGS")
			os.Unsetenv("S3GW_HARNESS_INITIAL_WRITES")
			os.Unsetenv("S3GW_HARNESS_RECONNECT_INTERVAL")
			os.Unsetenv("S3GW_HARNESS_BUCKET")
		})

		It("should read configuration from environment variables", func() {
			os.Setenv("S3GW_HARNESS_PROXY_BINARY", "/env/haproxy")
			os.Setenv("S3GW_HARNESS_STORE_ARGS", "--loglevel debug")
			os.Setenv("S3GW_HARNESS_INITIAL_WRITES", "64")
			os.Setenv("S3GW_HARNESS_RECONNECT_INTERVAL", "4s")

			cfg = config.NewConfigurationWithOptionsAndDefaults()
			cmd := NewRunCommand(cfg)
			err := cmd.ParseFlags([]string{})
			Expect(err).ToNot(HaveOccurred())

			// Configure viper and trigger environment variable binding
			setupViperForEnvVars(EnvPrefix)
			cobraflags.PresetRequiredFlags(EnvPrefix, make(map[*pflag.Flag]bool), cmd)

			Expect(cfg.Proxy.Binary).To(Equal("/env/haproxy"))
			Expect(cfg.Store.ExtraArgs).To(Equal("--loglevel debug"))
			Expect(cfg.Scenario.InitialWrites).To(Equal(64))
			Expect(cfg.Scenario.ReconnectInterval).To(Equal(4 * time.Second))
		})

		It("should prefer command line flags over environment variables", func() {
			os.Setenv("S3GW_HARNESS_BUCKET", "foo")

			cfg = config.NewConfigurationWithOptionsAndDefaults()
			cmd := NewRunCommand(cfg)
			err := cmd.ParseFlags([]string{"--bucket", "test-bucket"})
			Expect(err).ToNot(HaveOccurred())

			setupViperForEnvVars(EnvPrefix)
			cobraflags.PresetRequiredFlags(EnvPrefix, make(map[*pflag.Flag]bool), cmd)

			Expect(cfg.Scenario.Bucket).To(Equal("test-bucket"))
		})
	})

	Describe("Configuration Validation", func() {
		It("should pass validation with valid configuration", func() {
			err := validateConfiguration(cfg)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should fail when the bucket is not declared to the proxy", func() {
			cfg.Scenario.Bucket = "other"
			err := validateConfiguration(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not among the configured buckets"))
		})

		It("should fail with an inverted port range", func() {
			cfg.Ports.Lower = 50000
			cfg.Ports.Upper = 40000
			err := validateConfiguration(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid configuration"))
		})

		It("should fail without final writes", func() {
			cfg.Scenario.FinalWrites = 0
			err := validateConfiguration(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("FinalWrites"))
		})

		It("should report invalid configuration as a setup failure", func() {
			cfg.Scenario.InitialWrites = 0
			cmd := NewRunCommand(cfg)

			err := cmd.PreRunE(cmd, nil)

			Expect(srverrors.IsSetupError(err)).To(BeTrue())
			Expect(ExitCode(err)).To(Equal(ExitSetupFailed))
		})
	})

	Describe("Exit codes", func() {
		DescribeTable("should map errors to exit codes",
			func(err error, code int) {
				Expect(ExitCode(err)).To(Equal(code))
			},
			Entry("success", nil, 0),
			Entry("assertion failure", srverrors.NewAssertionError("before-fault", "bucket:test-bucket", 32, 31), ExitAssertionFailed),
			Entry("wrapped setup failure", fmt.Errorf("run: %w", srverrors.NewSetupError("launch store", errors.New("boom"))), ExitSetupFailed),
			Entry("proxy exited during writes", srverrors.NewSetupError("write", errors.New("proxy (pid 4242) exited early: signal: segmentation fault")), ExitSetupFailed),
			Entry("interrupted during readiness", srverrors.NewSetupError("wait for readiness", fmt.Errorf("not ready after 2s: %w", context.Canceled)), ExitRunError),
			Entry("interrupted", fmt.Errorf("write 3 of 32 failed: %w", context.Canceled), ExitRunError),
			Entry("other failure", errors.New("write 3 of 32 failed: connection reset by peer"), ExitRunError),
		)
	})

	Describe("Verdict", func() {
		var report *scenario.Report

		BeforeEach(func() {
			report = &scenario.Report{
				ID:    "3f1c",
				Ports: scenario.Ports{Store: 40001, Proxy: 40002, Origin: 40003},
				Checks: []scenario.Check{
					{Point: "before-fault", Key: "bucket:test-bucket", Expected: 32, Observed: 32, Passed: true},
				},
				OriginRequests: 33,
			}
		})

		It("should print a pass verdict with the checks", func() {
			var out bytes.Buffer

			printReport(&out, report, nil)

			Expect(out.String()).To(HavePrefix("PASS scenario 3f1c"))
			Expect(out.String()).To(ContainSubstring("store=40001 proxy=40002 origin=40003"))
			Expect(out.String()).To(ContainSubstring("expected=32 observed=32 ok"))
			Expect(out.String()).To(ContainSubstring("origin requests: 33"))
		})

		It("should print a failure verdict with the error", func() {
			var out bytes.Buffer
			report.Checks[0].Observed = 30
			report.Checks[0].Passed = false
			report.Warnings = []string{"origin did not stop cleanly: timeout"}

			printReport(&out, report, srverrors.NewAssertionError("before-fault", "bucket:test-bucket", 32, 30))

			Expect(out.String()).To(HavePrefix("FAIL scenario 3f1c"))
			Expect(out.String()).To(ContainSubstring("observed=30 mismatch"))
			Expect(out.String()).To(ContainSubstring("warning: origin did not stop cleanly"))
			Expect(out.String()).To(ContainSubstring("error: assertion"))
		})

		It("should print a setup verdict", func() {
			var out bytes.Buffer
			report.Checks = nil

			printReport(&out, report, srverrors.NewSetupError("locate proxy", errors.New("not found")))

			Expect(out.String()).To(HavePrefix("SETUP FAILED scenario 3f1c"))
		})

		It("should print an error verdict for failures that are not assertions", func() {
			var out bytes.Buffer

			printReport(&out, report, errors.New("write 3 of 32 failed: connection reset by peer"))

			Expect(out.String()).To(HavePrefix("ERROR scenario 3f1c"))
			Expect(out.String()).To(ContainSubstring("error: write 3 of 32 failed"))
		})

		It("should print an interrupted verdict when the run was cancelled", func() {
			var out bytes.Buffer

			printReport(&out, report, fmt.Errorf("settle: %w", context.Canceled))

			Expect(out.String()).To(HavePrefix("INTERRUPTED scenario 3f1c"))
		})
	})
})

var _ = Describe("Render Config Command", func() {
	It("should print the configuration for the given ports", func() {
		cfg := config.NewConfigurationWithOptionsAndDefaults()
		cmd := NewRenderConfigCommand(cfg)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--store-port", "40001", "--proxy-port", "40002", "--origin-port", "40003"})

		Expect(cmd.Execute()).To(Succeed())

		Expect(out.String()).To(ContainSubstring("s3.redis_port 40001"))
		Expect(out.String()).To(ContainSubstring("listen  fooapp 0.0.0.0:40002"))
		Expect(out.String()).To(ContainSubstring("server  app1_1 127.0.0.1:40003"))
		Expect(out.String()).To(ContainSubstring("s3.buckets test-bucket"))
	})

	It("should require the ports", func() {
		cfg := config.NewConfigurationWithOptionsAndDefaults()
		cmd := NewRenderConfigCommand(cfg)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--store-port", "40001"})

		Expect(cmd.Execute()).To(MatchError(ContainSubstring("required flag")))
	})
})
