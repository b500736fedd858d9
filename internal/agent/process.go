package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/logging"
)

// reapTimeout bounds how long Stop waits for a killed process to be reaped.
const reapTimeout = 5 * time.Second

// Process is a running agent child.
type Process struct {
	cmd    *exec.Cmd
	tree   *procTree
	pid    int
	runID  string
	grace  time.Duration
	logger *logging.Logger

	state atomic.Int32

	readers  conc.WaitGroup
	exited   chan struct{}
	exitErr  error
	stopOnce sync.Once
	stopErr  error
}

// ResolveExecutable makes exec absolute relative to cwd, resolving
// symlinks when possible.
func ResolveExecutable(cwd, exec string) string {
	path := exec
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return path
}

// agentEnv returns the child environment with UTF-8 output forced.
func agentEnv() []string {
	env := append(os.Environ(),
		"PYTHONIOENCODING=utf-8",
		"PYTHONUTF8=1",
	)
	return append(env, platformEnv()...)
}

// spawn starts execPath and begins draining its output.
func spawn(execPath string, args []string, cwd string, out *output, grace time.Duration) (*Process, error) {
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = agentEnv()
	configureCmd(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		runID:  uuid.NewString(),
		grace:  grace,
		logger: out.logger,
		exited: make(chan struct{}),
	}
	p.state.Store(int32(StateConnecting))
	p.logger = p.logger.With("pid", p.pid, "run_id", p.runID)

	tree, err := attachTree(cmd)
	if err != nil {
		p.logger.Warn("agent process tree not tracked, stop kills the direct child only", "error", err)
	}
	p.tree = tree

	p.readers.Go(func() { out.drain(event.StreamStdout, stdout) })
	p.readers.Go(func() { out.drain(event.StreamStderr, stderr) })

	// Wait must follow the last pipe read.
	go func() {
		if r := p.readers.WaitAndRecover(); r != nil {
			p.logger.Error("agent output reader panicked", "panic", r.Value, "stack", string(r.Stack))
		}
		p.exitErr = cmd.Wait()
		if p.tree != nil {
			p.tree.release()
		}
		p.logger.Info("agent process exited", "exit_error", p.exitErr)
		close(p.exited)
	}()

	return p, nil
}

// PID returns the child process id.
func (p *Process) PID() int { return p.pid }

// State returns the current lifecycle state. A child that exited without
// being stopped reports StateStopped, or StateFailed after a non-zero exit.
func (p *Process) State() State {
	s := State(p.state.Load())
	if s == StateStopped || s == StateFailed {
		return s
	}
	select {
	case <-p.exited:
		if p.exitErr != nil {
			return StateFailed
		}
		return StateStopped
	default:
		return s
	}
}

func (p *Process) setState(s State) { p.state.Store(int32(s)) }

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Stop kills the child (its whole process group on unix) and reaps it.
// Calling Stop again returns the first result.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		if p.grace > 0 {
			select {
			case <-p.exited:
			case <-time.After(p.grace):
			}
		}

		select {
		case <-p.exited:
		default:
			if err := p.kill(); err != nil {
				p.logger.Debug("agent kill failed", "error", err)
			}
		}

		select {
		case <-p.exited:
		case <-time.After(reapTimeout):
			p.stopErr = fmt.Errorf("agent process %d not reaped after %s", p.pid, reapTimeout)
		}
		p.setState(StateStopped)
	})
	return p.stopErr
}

// kill takes down the whole process tree, falling back to the direct child.
func (p *Process) kill() error {
	if p.tree != nil {
		err := p.tree.kill()
		if err == nil {
			return nil
		}
		p.logger.Debug("agent tree kill failed", "error", err)
	}
	return p.cmd.Process.Kill()
}
