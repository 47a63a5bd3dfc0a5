package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"

	"github.com/spreadshirt/s3gw-haproxy/internal/origin"
	"github.com/spreadshirt/s3gw-haproxy/internal/proxycfg"
	"github.com/spreadshirt/s3gw-haproxy/internal/queue"
	"github.com/spreadshirt/s3gw-haproxy/pkg/ports"
	"github.com/spreadshirt/s3gw-haproxy/pkg/supervisor"
)

const (
	stopTimeout = 5 * time.Second
	loopback    = "127.0.0.1"
)

// Stack is one proxy, one store and one origin wired together.
type Stack struct {
	Sup        *supervisor.Supervisor
	Origin     *origin.Server
	Observer   *queue.Observer
	ProxyAddr  string
	StorePort  int
	configPath string
}

func NewStack() (*Stack, error) {
	prober, err := ports.NewSocketTableProber()
	if err != nil {
		return nil, err
	}
	allocator := ports.NewAllocator(prober, ports.DefaultAttempts)

	var p [3]int
	for i := range p {
		if p[i], err = allocator.Allocate(ports.DefaultLower, ports.DefaultUpper); err != nil {
			return nil, err
		}
	}

	s := &Stack{
		Sup:       supervisor.New(),
		ProxyAddr: net.JoinHostPort(loopback, strconv.Itoa(p[1])),
		StorePort: p[0],
	}
	storeAddr := net.JoinHostPort(loopback, strconv.Itoa(p[0]))
	originAddr := net.JoinHostPort(loopback, strconv.Itoa(p[2]))
	s.Observer = queue.NewObserver(storeAddr)

	text, err := proxycfg.Render(proxycfg.Params{
		StoreAddress:  storeAddr,
		ListenAddress: s.ProxyAddr,
		OriginAddress: originAddr,
		Buckets:       []string{"foo", "test-bucket"},
	})
	if err != nil {
		return nil, err
	}
	if s.configPath, err = proxycfg.WriteFile("", "e2e", text); err != nil {
		return nil, err
	}

	if err := s.StartStore(); err != nil {
		return s, err
	}
	if s.Origin, err = origin.Listen(originAddr, origin.DefaultResponseTable()); err != nil {
		return s, err
	}
	if _, err := s.Sup.Start("proxy", cfg.ProxyBinary, "-f", s.configPath); err != nil {
		return s, err
	}
	return s, s.waitProxy()
}

func (s *Stack) StartStore() error {
	if _, err := s.Sup.Start("store", cfg.StoreBinary, "--port", strconv.Itoa(s.StorePort), "--loglevel", "warning"); err != nil {
		return err
	}
	return poll(cfg.ReadyTimeout, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return s.Observer.Ping(ctx)
	})
}

func (s *Stack) StopStore() error {
	p := s.Sup.Get("store")
	if p == nil {
		return nil
	}
	if err := p.Stop(); err != nil {
		return err
	}
	return p.Wait(stopTimeout)
}

func (s *Stack) waitProxy() error {
	err := poll(cfg.ReadyTimeout, func() error {
		conn, err := net.DialTimeout("tcp", s.ProxyAddr, time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	})
	if err != nil {
		return fmt.Errorf("proxy not listening on %s: %w", s.ProxyAddr, err)
	}
	return nil
}

// poll retries check with a capped exponential backoff until it passes or
// limit has elapsed, returning the last error.
func poll(limit time.Duration, check func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = limit
	return backoff.Retry(check, b)
}

func (s *Stack) URL(path string) string {
	return "http://" + s.ProxyAddr + path
}

func (s *Stack) Close() error {
	errs := s.Sup.StopAll(stopTimeout)
	if s.Origin != nil {
		errs = multierr.Append(errs, s.Origin.Stop())
	}
	if s.configPath != "" {
		errs = multierr.Append(errs, proxycfg.Remove(s.configPath))
	}
	return errs
}
