// Package jobs tracks background and stopped process groups.
//
// A Job is the shell's bookkeeping record for one pipeline's process group.
// The table owns all job state: jobs are created when a pipeline launches in
// the background (or a foreground pipeline is stopped instead of finishing),
// mutated by the reaper and by fg/bg, and deleted the moment their group is
// observed to have exited.
//
// Reaping must be driven from the main loop. SIGCHLD should be routed to a
// buffered channel with os/signal; draining that channel and calling Reap is
// the caller's job, so that no table mutation or printing ever happens in
// signal context.
package jobs

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/elves/minish/pkg/proc"
)

// ErrNoSuchJob is returned by Fg and Bg for an unknown job id.
var ErrNoSuchJob = errors.New("no such job")

// State is a job's lifecycle state. There is no Done state: a job whose
// group has exited is deleted from the table instead.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Job is one tracked process group.
type Job struct {
	ID    int
	Pgid  int
	Text  string
	State State

	// Member pids recorded at launch. Exits are matched against these,
	// since an already-reaped pid can no longer be mapped to its group.
	pids map[int]bool
}

// Line formats the job the way the jobs builtin prints it.
func (j *Job) Line() string {
	return fmt.Sprintf("[%d] %d  %s  %s", j.ID, j.Pgid, j.State, j.Text)
}

// Table is the shell-wide job registry. It is not safe for concurrent use;
// the shell's main loop is its only caller.
type Table struct {
	jobs   map[int]*Job
	order  []int
	nextID int

	// Terminal bookkeeping for fg: the shell's own process group to hand the
	// terminal back to, and the terminal fd (-1 when not interactive).
	shellPgid int
	tty       int
}

// New returns an empty table. tty is the file descriptor of the controlling
// terminal, or -1 when the shell has none; shellPgid is the group the
// terminal is returned to after every foreground transfer.
func New(shellPgid, tty int) *Table {
	return &Table{
		jobs:      make(map[int]*Job),
		nextID:    1,
		shellPgid: shellPgid,
		tty:       tty,
	}
}

// Add inserts a Running job for pgid and returns it. Ids are monotonic and
// never reused. pids are the group members launched for the job; passing
// them lets the reaper match exits of non-leader members.
func (t *Table) Add(pgid int, text string, pids ...int) *Job {
	return t.add(pgid, text, Running, pids)
}

// AddStopped inserts a job already in the Stopped state; used when a
// foreground pipeline is stopped by a signal rather than completing.
func (t *Table) AddStopped(pgid int, text string, pids ...int) *Job {
	return t.add(pgid, text, Stopped, pids)
}

func (t *Table) add(pgid int, text string, state State, pids []int) *Job {
	j := &Job{ID: t.nextID, Pgid: pgid, Text: text, State: state, pids: make(map[int]bool)}
	for _, pid := range pids {
		j.pids[pid] = true
	}
	t.nextID++
	t.jobs[j.ID] = j
	t.order = append(t.order, j.ID)
	return j
}

// Jobs returns the tracked jobs in insertion order.
func (t *Table) Jobs() []*Job {
	var js []*Job
	for _, id := range t.order {
		if j, ok := t.jobs[id]; ok {
			js = append(js, j)
		}
	}
	return js
}

// Get looks a job up by id.
func (t *Table) Get(id int) (*Job, bool) {
	j, ok := t.jobs[id]
	return j, ok
}

// Len returns the number of tracked jobs.
func (t *Table) Len() int { return len(t.jobs) }

// List writes the job table to w in insertion order.
func (t *Table) List(w io.Writer) {
	js := t.Jobs()
	if len(js) == 0 {
		fmt.Fprintln(w, "No background jobs.")
		return
	}
	for _, j := range js {
		fmt.Fprintln(w, j.Line())
	}
}

// Reap collects every pending child state change without blocking and
// applies it to the table: stops and continues update the job's state, exits
// and fatal signals delete the job. State changes for untracked groups are
// ignored; they belong either to a pipeline that is still being registered
// or to a group the foreground path already handled.
func (t *Table) Reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
		// Recorded member pids are the reliable mapping; an exited process
		// can no longer be asked for its group. The Getpgid route remains
		// for jobs registered without pids, where the fallback to the pid
		// itself covers the group leader.
		j := t.byPid(pid)
		if j == nil {
			pg, perr := unix.Getpgid(pid)
			if perr != nil {
				pg = pid
			}
			j = t.byPgid(pg)
		}
		if j == nil {
			continue
		}
		switch {
		case ws.Exited() || ws.Signaled():
			// One member going away is not the whole group going away: the
			// leader can exit while a sibling is still running or stopped.
			// The job is dropped once its last recorded member is collected
			// or the group has no members left.
			delete(j.pids, pid)
			if len(j.pids) == 0 || unix.Kill(-j.Pgid, 0) != nil {
				t.remove(j.ID)
			}
		case ws.Stopped():
			j.State = Stopped
		case ws.Continued():
			j.State = Running
		}
	}
}

// Fg moves the job's group to the foreground: terminal handoff, SIGCONT,
// then a blocking wait until the group exits or stops again. The terminal is
// returned to the shell in every case. The returned status is the group's
// translated exit status.
func (t *Table) Fg(id int) (int, error) {
	j, ok := t.jobs[id]
	if !ok {
		return 0, ErrNoSuchJob
	}
	if t.tty >= 0 {
		if err := proc.SetForeground(t.tty, j.Pgid); err != nil {
			return 0, err
		}
	}
	if err := proc.Continue(j.Pgid); err != nil {
		if t.tty >= 0 {
			_ = proc.SetForeground(t.tty, t.shellPgid)
		}
		return 0, err
	}
	j.State = Running
	res := proc.WaitGroup(j.Pgid)
	if t.tty >= 0 {
		_ = proc.SetForeground(t.tty, t.shellPgid)
	}
	if res.Stopped {
		j.State = Stopped
	} else {
		t.remove(id)
	}
	return res.Status, nil
}

// Bg continues the job's group in the background, without touching the
// terminal, and marks it Running.
func (t *Table) Bg(id int, w io.Writer) error {
	j, ok := t.jobs[id]
	if !ok {
		return ErrNoSuchJob
	}
	if err := proc.Continue(j.Pgid); err != nil {
		return err
	}
	j.State = Running
	fmt.Fprintf(w, "[%d] %d continued in background\n", j.ID, j.Pgid)
	return nil
}

func (t *Table) byPid(pid int) *Job {
	for _, id := range t.order {
		if j, ok := t.jobs[id]; ok && j.pids[pid] {
			return j
		}
	}
	return nil
}

func (t *Table) byPgid(pgid int) *Job {
	for _, id := range t.order {
		if j, ok := t.jobs[id]; ok && j.Pgid == pgid {
			return j
		}
	}
	return nil
}

func (t *Table) remove(id int) {
	delete(t.jobs, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
