package main

import (
	"fmt"
	"os"

	"github.com/spreadshirt/s3gw-haproxy/cmd"
	"github.com/spreadshirt/s3gw-haproxy/internal/config"
)

func main() {
	cfg := config.NewConfigurationWithOptionsAndDefaults()

	root := cmd.NewRootCommand(cfg)
	root.AddCommand(cmd.NewRunCommand(cfg))
	root.AddCommand(cmd.NewRenderConfigCommand(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCode(err))
	}
}
