// Package launch is the external collaborator spec.md §1 and §6 describe
// as out of the core's scope: it starts the target process and hands
// the core its PID. Start returns after the child has already exec'd the
// target, so no separate "start execing" signal is handed over. The
// core's only contract with it is that handoff — nothing here
// participates in tracing.
package launch

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/itzagasta/sentryd/internal/config"
)

// Target is a started (but not yet waited-on) child process.
type Target struct {
	Cmd *exec.Cmd
	PID int
}

// Start launches cfg.Command with the requested stdio redirection and
// user, and returns once the child has been forked and exec'd. Grounded
// on the exec-mode launch logic in the scale03-badfd example (cmd.Start,
// stdio wiring, SysProcAttr for a dedicated process group so signals
// can be forwarded to the whole child tree).
func Start(cfg *config.Config) (*Target, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("launch: no command given")
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, stdout, stderr, err := openStdio(cfg)
	if err != nil {
		return nil, err
	}
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if cfg.User != "" {
		cred, err := credentialFor(cfg.User)
		if err != nil {
			return nil, err
		}
		cmd.SysProcAttr.Credential = cred
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch: start %q: %w", cfg.Command[0], err)
	}

	return &Target{Cmd: cmd, PID: cmd.Process.Pid}, nil
}

func openStdio(cfg *config.Config) (stdin, stdout, stderr *os.File, err error) {
	stdin = os.Stdin
	stdout = os.Stdout
	stderr = os.Stderr

	if cfg.Stdin != "" {
		if stdin, err = os.Open(cfg.Stdin); err != nil {
			return nil, nil, nil, fmt.Errorf("launch: open stdin file: %w", err)
		}
	}
	if cfg.Stdout != "" {
		if stdout, err = os.Create(cfg.Stdout); err != nil {
			return nil, nil, nil, fmt.Errorf("launch: open stdout file: %w", err)
		}
	}
	if cfg.Stderr != "" {
		if stderr, err = os.Create(cfg.Stderr); err != nil {
			return nil, nil, nil, fmt.Errorf("launch: open stderr file: %w", err)
		}
	}
	return stdin, stdout, stderr, nil
}

func credentialFor(spec string) (*syscall.Credential, error) {
	u, err := user.Lookup(spec)
	if err != nil {
		if u2, err2 := user.LookupId(spec); err2 == nil {
			u = u2
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("launch: resolve user %q: %w", spec, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("launch: bad uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("launch: bad gid %q: %w", u.Gid, err)
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}

// Wait blocks until the target exits and returns its exit status.
func (t *Target) Wait() error {
	return t.Cmd.Wait()
}
