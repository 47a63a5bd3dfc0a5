package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

type configuration struct {
	ProxyBinary       string
	StoreBinary       string
	ReadyTimeout      time.Duration
	ReconnectInterval time.Duration
}

var cfg configuration

func (c configuration) Validate() error {
	if c.ProxyBinary == "" {
		return errors.New("proxy binary is empty")
	}
	if c.StoreBinary == "" {
		return errors.New("store binary is empty")
	}
	return nil
}

func main() {
	flag.StringVar(&cfg.ProxyBinary, "proxy-binary", "./haproxy", "Path of the s3 enabled haproxy binary")
	flag.StringVar(&cfg.StoreBinary, "store-binary", "redis-server", "Store binary, looked up on PATH")
	flag.DurationVar(&cfg.ReadyTimeout, "ready-timeout", 10*time.Second, "Time allowed for the proxy and the store to come up")
	flag.DurationVar(&cfg.ReconnectInterval, "reconnect-interval", 2*time.Second, "Time the proxy gets to reconnect after the store restarted")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("failed to validate configuration: %v", err)
	}

	RegisterFailHandler(Fail)
	if !RunSpecs(&testing.T{}, "E2E Suite") {
		os.Exit(1)
	}
}
