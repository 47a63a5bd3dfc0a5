package cmd

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spreadshirt/s3gw-haproxy/internal/config"
	"github.com/spreadshirt/s3gw-haproxy/internal/proxycfg"
)

// NewRenderConfigCommand prints the proxy configuration a run would use for the given ports.
func NewRenderConfigCommand(cfg *config.Configuration) *cobra.Command {
	var storePort, proxyPort, originPort int

	cmd := &cobra.Command{
		Use:   "render-config",
		Short: "Print the proxy configuration for the given ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := proxycfg.Render(proxycfg.Params{
				StoreAddress:  net.JoinHostPort(cfg.Store.Host, strconv.Itoa(storePort)),
				ListenAddress: net.JoinHostPort(cfg.Proxy.ListenHost, strconv.Itoa(proxyPort)),
				OriginAddress: net.JoinHostPort(cfg.Origin.Host, strconv.Itoa(originPort)),
				BucketPrefix:  cfg.Scenario.BucketPrefix,
				Buckets:       cfg.Scenario.Buckets,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&storePort, "store-port", 0, "port of the store")
	flags.IntVar(&proxyPort, "proxy-port", 0, "port the proxy listens on")
	flags.IntVar(&originPort, "origin-port", 0, "port of the origin")
	for _, name := range []string{"store-port", "proxy-port", "origin-port"} {
		_ = cmd.MarkFlagRequired(name)
	}

	flags.StringVar(&cfg.Store.Host, "store-host", cfg.Store.Host, "address of the store")
	flags.StringVar(&cfg.Proxy.ListenHost, "proxy-listen-host", cfg.Proxy.ListenHost, "address the proxy listener binds")
	flags.StringVar(&cfg.Origin.Host, "origin-host", cfg.Origin.Host, "address of the origin")
	flags.StringSliceVar(&cfg.Scenario.Buckets, "buckets", cfg.Scenario.Buckets, "buckets the proxy enqueues writes for")
	flags.StringVar(&cfg.Scenario.BucketPrefix, "bucket-prefix", cfg.Scenario.BucketPrefix, "prefix of the queue keys")

	return cmd
}
