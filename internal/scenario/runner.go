package scenario

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spreadshirt/s3gw-haproxy/internal/config"
	"github.com/spreadshirt/s3gw-haproxy/internal/origin"
	"github.com/spreadshirt/s3gw-haproxy/internal/proxycfg"
	"github.com/spreadshirt/s3gw-haproxy/internal/queue"
	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
	"github.com/spreadshirt/s3gw-haproxy/pkg/ports"
	"github.com/spreadshirt/s3gw-haproxy/pkg/supervisor"
)

const (
	storeName = "store"
	proxyName = "proxy"

	// points at which queue lengths are asserted
	PointBeforeFault  = "before-fault"
	PointAfterRestart = "after-restart"
)

type Option func(r *Runner)

func WithAllocator(a PortAllocator) Option {
	return func(r *Runner) {
		r.allocator = a
	}
}

func WithLauncher(l Launcher) Option {
	return func(r *Runner) {
		r.launcher = l
	}
}

func WithObserverFactory(f ObserverFactory) Option {
	return func(r *Runner) {
		r.observers = f
	}
}

// WithConfigDir sets where the rendered proxy configuration is written.
// Defaults to the system temp directory.
func WithConfigDir(dir string) Option {
	return func(r *Runner) {
		r.configDir = dir
	}
}

// Runner drives the store crash and restart scenario once per Run call.
type Runner struct {
	cfg       *config.Configuration
	allocator PortAllocator
	launcher  Launcher
	observers ObserverFactory
	configDir string

	// per run
	state    State
	report   *Report
	storeArg []string
	store    Process
	proxy    Process
	origin   *origin.Server
	observer QueueObserver
	client   *http.Client
	target   string
}

// NewRunner returns a runner launching real processes unless WithLauncher
// says otherwise.
func NewRunner(cfg *config.Configuration, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		launcher:  NewSupervisorLauncher(supervisor.New()),
		observers: newQueueObserver,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run provisions the processes, performs the scenario and tears everything
// down again. The returned report is never nil. The error is a SetupError when
// the scenario could not be stood up and an AssertionError when a queue length
// did not match.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.reset()
	report := r.report

	zap.S().Infow("starting scenario", "id", report.ID, "bucket", r.cfg.Scenario.Bucket, "key", r.cfg.Scenario.Key)

	err := r.run(ctx)
	if err != nil {
		report.Error = err.Error()
		r.transition(StateFailed)
		zap.S().Errorw("scenario failed", "id", report.ID, "error", err)
	}

	r.teardown()

	if err == nil {
		zap.S().Infow("scenario passed", "id", report.ID, "origin_requests", report.OriginRequests)
	}
	return report, err
}

func (r *Runner) reset() {
	r.state = StateIdle
	r.report = newReport()
	r.storeArg = nil
	r.store = nil
	r.proxy = nil
	r.origin = nil
	r.observer = nil
	r.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 1,
			DisableCompression:  true,
		},
		Timeout: 5 * time.Second,
	}
}

func (r *Runner) run(ctx context.Context) error {
	sc := r.cfg.Scenario
	key := queue.Key(sc.BucketPrefix, sc.Bucket)

	if err := r.provision(ctx); err != nil {
		return err
	}
	r.transition(StateProvisioned)

	if err := r.write(ctx, sc.InitialWrites); err != nil {
		return err
	}
	r.transition(StateRunning)

	if err := r.assertLength(ctx, PointBeforeFault, key, int64(sc.InitialWrites)); err != nil {
		return err
	}

	zap.S().Infow("terminating store", "pid", r.store.Pid())
	if err := r.store.Stop(); err != nil {
		return srverrors.NewSetupError("terminate store", err)
	}
	r.transition(StateFaultInjected)

	r.writeUnchecked(ctx)

	if err := sleep(ctx, sc.SettleInterval); err != nil {
		return err
	}
	if err := r.restartStore(ctx); err != nil {
		return err
	}
	r.transition(StateRunning)

	zap.S().Infow("waiting for proxy to reconnect", "interval", sc.ReconnectInterval)
	if err := sleep(ctx, sc.ReconnectInterval); err != nil {
		return err
	}

	if err := r.write(ctx, sc.FinalWrites); err != nil {
		return err
	}
	if err := r.assertLength(ctx, PointAfterRestart, key, int64(sc.FinalWrites)); err != nil {
		return err
	}
	r.transition(StateVerified)

	return nil
}

func (r *Runner) provision(ctx context.Context) error {
	allocated, err := r.allocatePorts()
	if err != nil {
		return srverrors.NewSetupError("allocate ports", err)
	}
	r.report.Ports = allocated

	storeAddr := net.JoinHostPort(r.cfg.Store.Host, strconv.Itoa(allocated.Store))
	params := proxycfg.Params{
		StoreAddress:  storeAddr,
		ListenAddress: net.JoinHostPort(r.cfg.Proxy.ListenHost, strconv.Itoa(allocated.Proxy)),
		OriginAddress: net.JoinHostPort(r.cfg.Origin.Host, strconv.Itoa(allocated.Origin)),
		BucketPrefix:  r.cfg.Scenario.BucketPrefix,
		Buckets:       r.cfg.Scenario.Buckets,
	}
	text, err := proxycfg.Render(params)
	if err != nil {
		return srverrors.NewSetupError("render proxy configuration", err)
	}
	path, err := proxycfg.WriteFile(r.configDir, r.report.ID, text)
	if err != nil {
		return srverrors.NewSetupError("write proxy configuration", err)
	}
	r.report.ConfigPath = path

	proxyArgv := []string{r.cfg.Proxy.Binary, "-f", path}
	if _, err := exec.LookPath(r.cfg.Proxy.Binary); err != nil {
		return srverrors.NewSetupError("locate proxy", srverrors.NewLaunchError(proxyArgv, err))
	}

	extra, err := shellquote.Split(r.cfg.Store.ExtraArgs)
	if err != nil {
		return srverrors.NewSetupError("launch store", srverrors.NewInvalidArgumentError("store args", err.Error()))
	}
	r.storeArg = append([]string{r.cfg.Store.Binary, "--port", strconv.Itoa(allocated.Store)}, extra...)
	r.observer = r.observers(storeAddr)

	if r.store, err = r.launcher.Start(storeName, r.storeArg...); err != nil {
		return srverrors.NewSetupError("launch store", err)
	}

	table := origin.DefaultResponseTable()
	if r.cfg.Origin.ResponsesFile != "" {
		if table, err = origin.LoadResponseTable(r.cfg.Origin.ResponsesFile); err != nil {
			return srverrors.NewSetupError("load origin responses", err)
		}
	}
	if r.origin, err = origin.Listen(params.OriginAddress, table); err != nil {
		return srverrors.NewSetupError("start origin", err)
	}

	if r.proxy, err = r.launcher.Start(proxyName, proxyArgv...); err != nil {
		return srverrors.NewSetupError("launch proxy", err)
	}

	proxyAddr := net.JoinHostPort(dialHost(r.cfg.Proxy.ListenHost), strconv.Itoa(allocated.Proxy))
	r.target = fmt.Sprintf("http://%s/%s/%s", proxyAddr, r.cfg.Scenario.Bucket, r.cfg.Scenario.Key)

	if err := r.waitReady(ctx, r.storeReady, r.proxyReady(proxyAddr)); err != nil {
		return srverrors.NewSetupError("wait for readiness", err)
	}
	return nil
}

func (r *Runner) allocatePorts() (Ports, error) {
	allocator := r.allocator
	if allocator == nil {
		prober, err := ports.NewSocketTableProber()
		if err != nil {
			return Ports{}, err
		}
		allocator = ports.NewAllocator(prober, r.cfg.Ports.Attempts)
	}

	var p Ports
	for _, dst := range []*int{&p.Store, &p.Proxy, &p.Origin} {
		port, err := allocator.Allocate(r.cfg.Ports.Lower, r.cfg.Ports.Upper)
		if err != nil {
			return Ports{}, err
		}
		*dst = port
	}

	zap.S().Infow("ports allocated", "store", p.Store, "proxy", p.Proxy, "origin", p.Origin)
	return p, nil
}

func (r *Runner) restartStore(ctx context.Context) error {
	if err := r.store.Wait(r.cfg.Scenario.StopTimeout); err != nil {
		return srverrors.NewSetupError("join store", err)
	}

	zap.S().Infow("restarting store", "port", r.report.Ports.Store)
	store, err := r.launcher.Start(storeName, r.storeArg...)
	if err != nil {
		return srverrors.NewSetupError("relaunch store", err)
	}
	r.store = store

	if err := r.waitReady(ctx, r.storeReady); err != nil {
		return srverrors.NewSetupError("wait for store after restart", err)
	}
	return nil
}

func (r *Runner) transition(to State) {
	if r.state == to {
		return
	}
	r.report.Transitions = append(r.report.Transitions, Transition{From: r.state, To: to, At: time.Now()})
	zap.S().Infow("scenario state changed", "id", r.report.ID, "from", r.state, "to", to)
	r.state = to
	r.report.State = to
}

// teardown stops everything provisioned so far. Problems are recorded as
// warnings and never replace the error of the run.
func (r *Runner) teardown() {
	var warnings error

	timeout := r.cfg.Scenario.StopTimeout
	for _, c := range []struct {
		name string
		proc Process
	}{
		{proxyName, r.proxy},
		{storeName, r.store},
	} {
		if c.proc == nil {
			continue
		}
		if err := stopProcess(c.proc, timeout); err != nil {
			warnings = multierr.Append(warnings, srverrors.NewTeardownWarning(c.name, err))
		}
	}

	if r.origin != nil {
		r.report.OriginRequests = r.origin.Requests()
		if err := r.origin.Stop(); err != nil {
			warnings = multierr.Append(warnings, err)
		}
	}

	if r.report.ConfigPath != "" {
		if err := proxycfg.Remove(r.report.ConfigPath); err != nil {
			warnings = multierr.Append(warnings, srverrors.NewTeardownWarning("proxy configuration", err))
		}
	}

	if t, ok := r.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}

	for _, w := range multierr.Errors(warnings) {
		r.report.Warnings = append(r.report.Warnings, w.Error())
		zap.S().Warnw("teardown warning", "id", r.report.ID, "warning", w)
	}

	r.transition(StateTornDown)
}

// stopProcess terminates p and joins it. A process that does not exit in time is killed.
func stopProcess(p Process, timeout time.Duration) error {
	var errs error
	if err := p.Stop(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := p.Wait(timeout); err != nil {
		errs = multierr.Append(errs, err)
		if kerr := p.Kill(); kerr != nil {
			errs = multierr.Append(errs, kerr)
		}
	}
	return errs
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dialHost maps a wildcard listen host to the loopback address.
func dialHost(host string) string {
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsUnspecified() {
		return host
	}
	if ip.To4() != nil {
		return "127.0.0.1"
	}
	return "::1"
}
