// Package run launches pipelines as POSIX process groups.
//
// Every pipeline runs in a fresh process group whose id is the pid of its
// first started stage. The group id is assigned from both sides: the child
// via SysProcAttr before exec, and the parent right after Start, so that
// neither side can observe the other's half of the race. Foreground
// pipelines of an interactive shell additionally get the controlling
// terminal for the duration of the wait.
package run

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/elves/minish/pkg/jobs"
	"github.com/elves/minish/pkg/pipeline"
	"github.com/elves/minish/pkg/proc"
)

// Runner executes pipelines against one job table and one terminal.
type Runner struct {
	Jobs *jobs.Table

	// ShellPgid is the group the terminal is handed back to after a
	// foreground pipeline; TTY is the terminal fd, -1 when the shell is not
	// interactive.
	ShellPgid int
	TTY       int

	Out io.Writer
	Err io.Writer
}

// New returns a Runner writing job notices to stdout and diagnostics to
// stderr.
func New(jt *jobs.Table, shellPgid, tty int) *Runner {
	return &Runner{Jobs: jt, ShellPgid: shellPgid, TTY: tty, Out: os.Stdout, Err: os.Stderr}
}

// Run starts every stage of p, then either registers the group as a
// background job or waits for it in the foreground. It returns the
// pipeline's exit status.
func (r *Runner) Run(p *pipeline.Pipeline) int {
	n := len(p.Stages)
	if n == 0 {
		return 0
	}

	// All pipes are created up front; a failure here aborts before any
	// process has been started.
	pipes := make([][2]*os.File, n-1)
	for i := range pipes {
		pr, pw, err := os.Pipe()
		if err != nil {
			for j := 0; j < i; j++ {
				pipes[j][0].Close()
				pipes[j][1].Close()
			}
			fmt.Fprintln(r.Err, "minish: unable to create pipe for pipeline:", err)
			return proc.StatusPipeError
		}
		pipes[i][0], pipes[i][1] = pr, pw
	}

	interactive := r.TTY >= 0
	foreground := interactive && !p.Background

	pgid := 0
	var pids []int
	// Status of the last stage when it never produced a process to wait
	// for; -1 while the waited status is authoritative.
	lastSynth := -1

	for i, stage := range p.Stages {
		status, pid, fatal := r.startStage(i, n, stage, pipes, pgid, foreground)
		if pid > 0 {
			pids = append(pids, pid)
			if pgid == 0 {
				pgid = pid
			}
			_ = unix.Setpgid(pid, pgid)
		} else if i == n-1 {
			lastSynth = status
		}
		if fatal {
			if i < n-1 {
				lastSynth = status
			}
			break
		}
	}

	// Closing the parent's pipe ends delivers EOF to stages whose neighbor
	// never started.
	for _, pp := range pipes {
		pp[0].Close()
		pp[1].Close()
	}

	if len(pids) == 0 {
		if lastSynth >= 0 {
			return lastSynth
		}
		return 0
	}

	if p.Background {
		j := r.Jobs.Add(pgid, p.Text(), pids...)
		fmt.Fprintf(r.Out, "[%d] %d\n", j.ID, j.Pgid)
		return 0
	}

	if interactive {
		_ = proc.SetForeground(r.TTY, pgid)
	}
	res := proc.WaitGroup(pgid)
	if interactive {
		_ = proc.SetForeground(r.TTY, r.ShellPgid)
	}
	if res.Stopped {
		j := r.Jobs.AddStopped(pgid, p.Text(), pids...)
		fmt.Fprintln(r.Err, j.Line())
		return res.Status
	}
	if lastSynth >= 0 {
		return lastSynth
	}
	return res.Status
}

// startStage starts one stage in group pgid (0 means lead a new group) and
// returns its synthetic status when no process was started, the child pid,
// and whether the failure should abort the remaining stages.
func (r *Runner) startStage(i, n int, stage pipeline.Stage, pipes [][2]*os.File, pgid int, foreground bool) (status, pid int, fatal bool) {
	// Redirection files are opened before anything else: `> out.txt` with no
	// command still creates (or truncates) the file. Only the last of each
	// kind survived extraction.
	var in, out *os.File
	closeRedirs := func() {
		if in != nil {
			in.Close()
		}
		if out != nil {
			out.Close()
		}
	}
	if stage.Redir.In != "" {
		f, err := os.Open(stage.Redir.In)
		if err != nil {
			fmt.Fprintln(r.Err, "minish:", err)
			return 1, 0, false
		}
		in = f
	}
	if stage.Redir.Out != "" {
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if stage.Redir.Append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(stage.Redir.Out, flags, 0o644)
		if err != nil {
			closeRedirs()
			fmt.Fprintln(r.Err, "minish:", err)
			return 1, 0, false
		}
		out = f
	}

	if len(stage.Args) == 0 {
		// An empty stage contributes nothing beyond its redirection side
		// effects and an immediate success.
		closeRedirs()
		return 0, 0, false
	}

	cmd := exec.Command(stage.Args[0], stage.Args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if i > 0 {
		cmd.Stdin = pipes[i-1][0]
	}
	if i < n-1 {
		cmd.Stdout = pipes[i][1]
	}
	if in != nil {
		cmd.Stdin = in
	}
	if out != nil {
		cmd.Stdout = out
	}

	attr := &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	if foreground {
		attr.Foreground = true
		attr.Ctty = r.TTY
	}
	cmd.SysProcAttr = attr

	err := cmd.Start()
	closeRedirs()
	if err != nil {
		fmt.Fprintln(r.Err, "minish:", err)
		// Resource exhaustion means no further stage can be started either;
		// everything else confines the failure to this stage.
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM) {
			return 1, 0, true
		}
		return proc.StatusCommandNotFound, 0, false
	}
	return 0, cmd.Process.Pid, false
}
