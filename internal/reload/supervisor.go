package reload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultStopTimeout = 5 * time.Second

// BuildFunc compiles the service and returns the path of the binary.
type BuildFunc func(ctx context.Context) (string, error)

// StartFunc launches binary with args.
type StartFunc func(binary string, args []string) (Process, error)

// Process is a running child service.
type Process interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Stop asks the process to exit and kills it after timeout.
	Stop(timeout time.Duration) error
}

// Supervisor keeps one child process running and replaces it after every
// successful rebuild.
type Supervisor struct {
	build       BuildFunc
	start       StartFunc
	args        []string
	logger      *zap.Logger
	stopTimeout time.Duration
}

// NewSupervisor wires the build and start steps. args are passed unchanged to
// every child.
func NewSupervisor(build BuildFunc, start StartFunc, args []string, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		build:       build,
		start:       start,
		args:        append([]string(nil), args...),
		logger:      logger,
		stopTimeout: defaultStopTimeout,
	}
}

// Run builds and starts the child, then restarts it on every value from
// changes until ctx is done. If the first build or start fails Run returns
// the error; later failed builds keep the previous child running.
func (s *Supervisor) Run(ctx context.Context, changes <-chan struct{}) error {
	binary, err := s.build(ctx)
	if err != nil {
		return fmt.Errorf("initial build: %w", err)
	}
	child, err := s.start(binary, s.args)
	if err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}
	s.logger.Info("service started", zap.String("binary", binary))
	defer func() {
		s.stop(child)
	}()

	for {
		var exited <-chan struct{}
		if child != nil {
			exited = child.Done()
		}

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			s.logger.Info("change detected, reloading")
			child = s.restart(ctx, child)
		case <-exited:
			s.logger.Warn("service exited, waiting for changes")
			child = nil
		}
	}
}

func (s *Supervisor) restart(ctx context.Context, current Process) Process {
	binary, err := s.build(ctx)
	if err != nil {
		s.logger.Error("build failed", zap.Error(err))
		return current
	}

	s.stop(current)

	next, err := s.start(binary, s.args)
	if err != nil {
		s.logger.Error("failed to start service", zap.String("binary", binary), zap.Error(err))
		return nil
	}
	s.logger.Info("service started", zap.String("binary", binary))
	return next
}

func (s *Supervisor) stop(p Process) {
	if p == nil {
		return
	}
	if err := p.Stop(s.stopTimeout); err != nil {
		s.logger.Warn("failed to stop service", zap.Error(err))
	}
}

// GoBuild returns a BuildFunc that runs "go build" for pkg into output.
func GoBuild(pkg, output string) BuildFunc {
	return func(ctx context.Context) (string, error) {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, "go", "build", "-o", output, pkg)
		cmd.Stdout = os.Stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("go build %s: %w: %s", pkg, err, strings.TrimSpace(stderr.String()))
		}
		return output, nil
	}
}

// DefaultBinaryPath is where GoBuild output goes when nothing else is configured.
func DefaultBinaryPath(name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(os.TempDir(), name)
}

// ExecStart launches children as regular processes sharing this process's
// standard streams and environment.
func ExecStart(binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			return errors.Join(err, killErr)
		}
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill: %w", err)
		}
		<-p.done
		return nil
	}
}

// ChildArgs strips the dev flag from args so the child serves directly
// instead of supervising again.
func ChildArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if arg == "--dev" || arg == "--no-dev" || strings.HasPrefix(arg, "--dev=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}
