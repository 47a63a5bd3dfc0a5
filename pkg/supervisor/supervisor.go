package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
	"golang.org/x/sys/unix"

	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

// outputDrainDelay bounds how long Wait keeps copying output after the process
// exited, in case a grandchild still holds the pipes.
const outputDrainDelay = time.Second

// Supervisor starts external programs and keeps track of them by name. At most
// one live process exists per name.
type Supervisor struct {
	mu    sync.Mutex
	procs map[string]*Process
}

func New() *Supervisor {
	return &Supervisor{procs: make(map[string]*Process)}
}

// Start launches argv in its own process group and returns without waiting for
// the program to become ready.
func (s *Supervisor) Start(name string, argv ...string) (*Process, error) {
	if len(argv) == 0 {
		return nil, srverrors.NewInvalidArgumentError("command", "empty command line")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.procs[name]; ok && prev.Alive() {
		return nil, fmt.Errorf("process %s is already running with pid %d", name, prev.Pid())
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, srverrors.NewLaunchError(argv, err)
	}

	logger := zap.L().Named(name)
	stdout := &zapio.Writer{Log: logger.With(zap.String("stream", "stdout")), Level: zapcore.DebugLevel}
	stderr := &zapio.Writer{Log: logger.With(zap.String("stream", "stderr")), Level: zapcore.DebugLevel}

	cmd := exec.Command(path, argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = outputDrainDelay

	if err := cmd.Start(); err != nil {
		return nil, srverrors.NewLaunchError(argv, err)
	}

	p := &Process{
		Name:   name,
		Args:   append([]string(nil), argv...),
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		done:   make(chan struct{}),
		stdout: stdout,
		stderr: stderr,
	}
	go p.wait()

	s.procs[name] = p
	zap.S().Infow("process started", "name", name, "pid", p.pid, "command", shellquote.Join(argv...))

	return p, nil
}

// Get returns the last process started under name, or nil.
func (s *Supervisor) Get(name string) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[name]
}

// StopAll terminates every tracked process and joins each within timeout.
// Processes still alive after the timeout are killed.
func (s *Supervisor) StopAll(timeout time.Duration) error {
	s.mu.Lock()
	procs := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	var errs error
	for _, p := range procs {
		if err := p.Stop(); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := p.Wait(timeout); err != nil {
			errs = multierr.Append(errs, err)
			_ = p.Kill()
		}
	}
	return errs
}

// Process is a handle on a launched program.
type Process struct {
	Name string
	Args []string

	cmd    *exec.Cmd
	pid    int
	done   chan struct{}
	stdout *zapio.Writer
	stderr *zapio.Writer

	mu      sync.Mutex
	exitErr error
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	_ = p.stdout.Close()
	_ = p.stderr.Close()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)

	zap.S().Infow("process exited", "name", p.Name, "pid", p.pid, "status", exitStatus(err))
}

func (p *Process) Pid() int {
	return p.pid
}

// Done is closed once the process has exited and its output was drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the error reported by the process exit, or nil while it is
// running or when it exited with status 0.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Stop sends SIGTERM to the process group. It does not wait for the exit.
func (p *Process) Stop() error {
	return p.signal(unix.SIGTERM)
}

// Kill sends SIGKILL to the process group.
func (p *Process) Kill() error {
	return p.signal(unix.SIGKILL)
}

// Wait joins the process for at most timeout. It may be called any number of
// times; an already exited process returns immediately.
func (p *Process) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("process %s (pid %d) still running after %s", p.Name, p.pid, timeout)
	}
}

func (p *Process) signal(sig unix.Signal) error {
	if !p.Alive() {
		return nil
	}
	if err := unix.Kill(-p.pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to signal %s (pid %d): %w", p.Name, p.pid, err)
	}
	return nil
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
