// Package proc wraps the process-group and terminal primitives that both the
// orchestrator and the job table need: waiting on a whole group, translating
// wait statuses into shell exit statuses, and moving the controlling
// terminal between process groups.
package proc

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Status codes returned by the shell itself.
//
// POSIX only specifies the code for a command that cannot be found or
// executed, and the 128+signal convention for commands killed by a signal;
// setup failures only need to land between 1 and 125.
const (
	StatusPipeError = 100
	StatusWaitOther = 102

	StatusCommandNotFound = 127
	StatusSignalBase      = 128
)

// WaitResult describes how a foreground process group left the foreground:
// either every process exited (Stopped false, Status is the last collected
// process's translated status), or the group was stopped by a signal.
type WaitResult struct {
	Status  int
	Stopped bool
}

// WaitGroup blocks until every process in the group has exited, or until the
// group is stopped by a stop signal. Waiting is restarted on EINTR; ECHILD
// means the whole group has been collected.
func WaitGroup(pgid int) WaitResult {
	var last unix.WaitStatus
	collected := false
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-pgid, &ws, unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			break
		}
		collected = true
		last = ws
		if ws.Stopped() {
			return WaitResult{
				Status:  StatusSignalBase + int(ws.StopSignal()),
				Stopped: true,
			}
		}
	}
	if !collected {
		return WaitResult{}
	}
	return WaitResult{Status: TranslateStatus(last)}
}

// TranslateStatus converts a wait status into a shell exit status: the exit
// code for a normal exit, 128+signal for a fatal signal.
func TranslateStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return StatusSignalBase + int(ws.Signal())
	}
	return StatusWaitOther
}

// Continue delivers SIGCONT to every process in the group.
func Continue(pgid int) error {
	return unix.Kill(-pgid, unix.SIGCONT)
}

// SetForeground makes pgid the foreground process group of the terminal open
// on fd. The caller is usually in the background at this point, and a
// background group changing the terminal's owner raises SIGTTOU; unless that
// signal is ignored or blocked the kernel refuses the change, which would
// strand the terminal with a finished child group. SIGTTOU is therefore
// blocked on the calling thread for the duration of the ioctl, which is also
// retried on EINTR.
func SetForeground(fd, pgid int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var mask, old unix.Sigset_t
	mask.Val[(unix.SIGTTOU-1)/64] |= 1 << (uint(unix.SIGTTOU-1) % 64)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, &old); err == nil {
		defer unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)
	}

	for {
		err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid)
		if err != unix.EINTR {
			return err
		}
	}
}
