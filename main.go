package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/sys/unix"
	"src.elv.sh/pkg/sys"

	"github.com/elves/minish/pkg/builtin"
	"github.com/elves/minish/pkg/jobs"
	"github.com/elves/minish/pkg/pipeline"
	"github.com/elves/minish/pkg/proc"
	"github.com/elves/minish/pkg/prompt"
	"github.com/elves/minish/pkg/run"
)

var command = flag.String("c", "", "run the given command and exit")

func main() {
	os.Exit(Main())
}

func Main() int {
	flag.Parse()
	args := flag.Args()

	if *command != "" {
		sh := newShell(false)
		sh.execLine(*command)
		return sh.lastStatus
	}
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "minish:", err)
			return 1
		}
		defer f.Close()
		sh := newShell(false)
		sh.batch(f)
		return sh.lastStatus
	}
	if sys.IsATTY(os.Stdin.Fd()) {
		sh := newShell(true)
		sh.repl()
		return sh.lastStatus
	}
	sh := newShell(false)
	sh.batch(os.Stdin)
	return sh.lastStatus
}

type shell struct {
	env    *builtin.Env
	jobs   *jobs.Table
	runner *run.Runner

	sigchld    chan os.Signal
	lastStatus int
	quit       bool

	// Terminal modes captured around liner setup: cooked is what children
	// should see, uncooked is what line editing needs.
	cooked   liner.ModeApplier
	uncooked liner.ModeApplier
}

func newShell(interactive bool) *shell {
	tty := -1
	shellPgid := unix.Getpgrp()
	if interactive {
		tty = int(os.Stdin.Fd())
		// Lead our own process group and own the terminal, so that job
		// control signals only ever reach the pipelines we launch.
		if err := unix.Setpgid(0, 0); err == nil {
			shellPgid = unix.Getpid()
		}
		_ = proc.SetForeground(tty, shellPgid)
	}

	sh := &shell{
		env:     builtin.NewEnv(),
		jobs:    jobs.New(shellPgid, tty),
		runner:  nil,
		sigchld: make(chan os.Signal, 64),
	}
	sh.runner = run.New(sh.jobs, shellPgid, tty)

	// Handled, not ignored: children must inherit default dispositions
	// across exec. The keyboard signals land in a drained channel so the
	// shell itself survives ^C and ^Z; SIGCHLD is queued for the main loop,
	// which reaps between commands. A merely handled SIGTTOU would still
	// make the kernel refuse terminal transfers from the background, so
	// proc.SetForeground blocks it around the ioctl.
	signal.Notify(sh.sigchld, unix.SIGCHLD)
	keyboard := make(chan os.Signal, 8)
	signal.Notify(keyboard, unix.SIGINT, unix.SIGQUIT, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	go func() {
		for range keyboard {
		}
	}()

	builtin.LoadRC(sh.env, os.Stdout)
	return sh
}

func (sh *shell) repl() {
	sh.cooked, _ = liner.TerminalMode()
	cli := liner.NewLiner()
	defer cli.Close()
	sh.uncooked, _ = liner.TerminalMode()
	cli.SetCtrlCAborts(true)

	histPath := filepath.Join(builtin.HomeDir(), ".minish_history")
	if f, err := os.Open(histPath); err == nil {
		cli.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			cli.WriteHistory(f)
			f.Close()
		}
	}()

	for !sh.quit {
		sh.reapPending()
		line, err := cli.Prompt(prompt.Build(sh.lastStatus))
		if err == liner.ErrPromptAborted {
			sh.lastStatus = 130
			continue
		}
		if err != nil {
			if err != io.EOF {
				fmt.Fprintln(os.Stderr, "minish:", err)
			}
			fmt.Println()
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		cli.AppendHistory(line)
		sh.execLine(line)
	}
}

func (sh *shell) batch(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for !sh.quit && scanner.Scan() {
		sh.reapPending()
		sh.execLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "minish:", err)
	}
}

// reapPending collapses all queued SIGCHLD notifications into one pass over
// the job table. Nothing is reaped while a foreground pipeline is being
// waited for; the wait itself collects those children.
func (sh *shell) reapPending() {
	pending := false
	for {
		select {
		case <-sh.sigchld:
			pending = true
		default:
			if pending {
				sh.jobs.Reap()
			}
			return
		}
	}
}

func (sh *shell) execLine(line string) {
	p := pipeline.Parse(line, sh.env.Expand)
	if p == nil {
		return
	}
	if len(p.Stages) == 1 && !p.Background {
		args := p.Stages[0].Args
		if builtin.TryAutoCd(args) {
			sh.lastStatus = 0
			return
		}
		if handled, status := builtin.Dispatch(sh.env, args, os.Stdout, os.Stderr); handled {
			sh.lastStatus = status
			return
		}
		if sh.jobCommand(args) {
			return
		}
	}
	sh.withCookedTTY(func() {
		sh.lastStatus = sh.runner.Run(p)
	})
}

// withCookedTTY applies the pre-liner terminal mode for the duration of f,
// so that foreground children see a sane terminal, and switches back for
// line editing afterwards.
func (sh *shell) withCookedTTY(f func()) {
	if sh.cooked != nil {
		sh.cooked.ApplyMode()
	}
	f()
	if sh.uncooked != nil {
		sh.uncooked.ApplyMode()
	}
}

// jobCommand handles the builtins that need the job table or end the shell.
func (sh *shell) jobCommand(args []string) bool {
	switch args[0] {
	case "exit":
		sh.quit = true
		if len(args) > 1 {
			if status, err := strconv.Atoi(args[1]); err == nil {
				sh.lastStatus = status
			}
		}
		return true
	case "jobs":
		sh.jobs.List(os.Stdout)
		sh.lastStatus = 0
		return true
	case "fg", "bg":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "%s: job id required\n", args[0])
			sh.lastStatus = 1
			return true
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: not a job id\n", args[0], args[1])
			sh.lastStatus = 1
			return true
		}
		if args[0] == "fg" {
			var status int
			sh.withCookedTTY(func() {
				status, err = sh.jobs.Fg(id)
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "fg:", err)
				sh.lastStatus = 1
				return true
			}
			sh.lastStatus = status
			return true
		}
		if err := sh.jobs.Bg(id, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "bg:", err)
			sh.lastStatus = 1
			return true
		}
		sh.lastStatus = 0
		return true
	}
	return false
}
