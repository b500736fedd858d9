//go:build !windows

package agent

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func platformEnv() []string {
	return []string{"LC_ALL=C.UTF-8", "LANG=C.UTF-8"}
}

// configureCmd puts the child in its own process group so Stop can take
// down anything it forked.
func configureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// procTree is the process group the agent leads.
type procTree struct {
	pgid int
}

func attachTree(cmd *exec.Cmd) (*procTree, error) {
	return &procTree{pgid: cmd.Process.Pid}, nil
}

func (t *procTree) kill() error {
	if err := unix.Kill(-t.pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

func (t *procTree) release() {}
