// Package job tracks the processes launched by the shell as foreground and
// background jobs.
package job

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Kind says whether the shell is waiting on a job.
type Kind int

const (
	Foreground Kind = iota
	Background
)

func (k Kind) String() string {
	switch k {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the lifecycle state of a job.
type State int

const (
	Running State = iota
	Stopped
	Exited
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Exited:
		return "Exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNoSuchJob is returned when a job id is unknown or the job has
	// already finished.
	ErrNoSuchJob = errors.New("no such job")

	// ErrForegroundBusy is returned when registering a foreground job while
	// another one is being waited on.
	ErrForegroundBusy = errors.New("a foreground job is already running")
)

// Job is a tracked top-level pipeline.
type Job struct {
	ID int
	// Pid is the terminal stage of the pipeline, the one the shell waits on.
	Pid Pid
	// Members holds every process of the pipeline including Pid.
	Members []Pid
	Kind    Kind
	State   State
	// Command is the text the user typed.
	Command string
	// Status is set once the job has stopped or exited.
	Status Status
}

func (j *Job) String() string {
	return fmt.Sprintf("[%d] %s %s", j.ID, j.describe(), j.Command)
}

func (j *Job) describe() string {
	if j.State == Running {
		return "Running"
	}
	return j.Status.String()
}

// signal delivers sig to the job's process group, or to every member when
// the job shares the shell's group.
func (j *Job) signal(sig os.Signal) error {
	if j.Pid.Pgid > 0 {
		return j.Pid.Signal(sig)
	}
	var firstErr error
	for _, m := range j.members() {
		if err := m.Signal(sig); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (j *Job) members() []Pid {
	if len(j.Members) == 0 {
		return []Pid{j.Pid}
	}
	return j.Members
}

// Table holds the jobs of one session. Ids start at 1 and are never reused.
type Table struct {
	mu         sync.Mutex
	lastID     int
	jobs       map[int]*Job
	foreground *Job
	orphans    []Pid
}

// NewTable creates an empty job table.
func NewTable() *Table {
	return &Table{jobs: make(map[int]*Job)}
}

func (t *Table) add(pid Pid, members []Pid, text string, kind Kind) *Job {
	t.lastID++
	j := &Job{
		ID:      t.lastID,
		Pid:     pid,
		Members: members,
		Kind:    kind,
		State:   Running,
		Command: text,
	}
	t.jobs[j.ID] = j
	return j
}

// RegisterBackground records a running background job. It never blocks.
func (t *Table) RegisterBackground(pid Pid, members []Pid, text string) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.add(pid, members, text, Background)
}

// RegisterForeground records the job the shell is about to wait on.
func (t *Table) RegisterForeground(pid Pid, members []Pid, text string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.foreground != nil {
		return nil, ErrForegroundBusy
	}
	t.foreground = t.add(pid, members, text, Foreground)
	return t.foreground, nil
}

// Wait blocks until the job's terminal process exits or stops. Exited jobs
// leave the table and their remaining members are reaped later; stopped jobs
// move to the background.
func (t *Table) Wait(j *Job) (Status, error) {
	status, err := j.Pid.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.foreground == j {
		t.foreground = nil
	}
	if err != nil {
		t.finish(j, Status{})
		return Status{}, err
	}

	j.Status = status
	if status.Stopped {
		j.Kind = Background
		j.State = Stopped
		if j.Pid.Pgid == 0 {
			// The rest of a foreground pipeline got the same terminal signal.
			for _, m := range j.members() {
				if m.Pid != j.Pid.Pid {
					m.Signal(unix.SIGSTOP)
				}
			}
		}
		return status, nil
	}
	t.finish(j, status)
	return status, nil
}

func (t *Table) finish(j *Job, status Status) {
	j.State = Exited
	j.Status = status
	delete(t.jobs, j.ID)
	for _, m := range j.members() {
		if m.Pid != j.Pid.Pid {
			t.orphans = append(t.orphans, m)
		}
	}
}

// Lookup returns a live job by id.
func (t *Table) Lookup(id int) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%%%d: %w", id, ErrNoSuchJob)
	}
	return j, nil
}

// Last returns the most recently created live job.
func (t *Table) Last() (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var last *Job
	for _, j := range t.jobs {
		if last == nil || j.ID > last.ID {
			last = j
		}
	}
	if last == nil {
		return nil, fmt.Errorf("current: %w", ErrNoSuchJob)
	}
	return last, nil
}

// Restart resumes job id and makes it the foreground job. The caller then
// waits on it like any other foreground job.
func (t *Table) Restart(id int) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok || j.State == Exited {
		return nil, fmt.Errorf("%%%d: %w", id, ErrNoSuchJob)
	}
	if t.foreground != nil {
		return nil, ErrForegroundBusy
	}

	if err := j.signal(unix.SIGCONT); err != nil {
		if errors.Is(err, unix.ESRCH) {
			t.finish(j, j.Status)
			return nil, fmt.Errorf("%%%d: %w", id, ErrNoSuchJob)
		}
		return nil, fmt.Errorf("continue %%%d: %w", id, err)
	}
	j.Kind = Foreground
	j.State = Running
	t.foreground = j
	return j, nil
}

// Adopt hands processes that don't belong to any job to the table so they
// are reaped once they exit.
func (t *Table) Adopt(pids ...Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.orphans = append(t.orphans, pids...)
}

// Reap polls background jobs and orphans without blocking. It returns the
// jobs that exited or stopped since the last call; exited jobs are removed.
func (t *Table) Reap() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []*Job
	for _, j := range t.sortedLocked() {
		if j == t.foreground {
			continue
		}
		status, done, err := j.Pid.poll()
		switch {
		case err != nil:
			// Someone else collected it, nothing left to report but the exit.
			t.finish(j, j.Status)
			changed = append(changed, j)
		case !done:
		case status.Stopped:
			if j.State != Stopped {
				j.State = Stopped
				j.Status = status
				changed = append(changed, j)
			}
		default:
			t.finish(j, status)
			changed = append(changed, j)
		}
	}

	remaining := t.orphans[:0]
	for _, o := range t.orphans {
		status, done, err := o.poll()
		if err != nil || (done && !status.Stopped) {
			continue
		}
		remaining = append(remaining, o)
	}
	t.orphans = remaining

	return changed
}

// List returns the live jobs ordered by id.
func (t *Table) List() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sortedLocked()
}

func (t *Table) sortedLocked() []*Job {
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Orphans returns the number of processes still waiting to be reaped.
func (t *Table) Orphans() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.orphans)
}
