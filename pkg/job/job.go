// Package job implements the asynchronous execution engine: every client
// operation becomes a Job that is first offered to the backend's
// non-blocking form on the dispatcher's coordinator goroutine and, if that
// form is missing or would block, executed by the blocking form on a
// bounded worker pool. Each Job sends exactly one reply.
package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// State is the lifecycle position of a Job.
type State int32

const (
	StateNew State = iota
	StateTrying
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateTrying:
		return "trying"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// Execution modes, as reported to metrics.
const (
	modeNone = "none"
	modeTry  = "try"
	modeRun  = "run"
)

// ReplyFunc transmits the outcome of a finished job. It is called exactly
// once, after the job reached a terminal state.
type ReplyFunc func(j *Job)

// Job is one in-flight client operation.
type Job struct {
	id        uuid.UUID
	mount     string
	op        Operation
	reply     ReplyFunc
	submitted time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	mode  string
	err   error

	once sync.Once
	done chan struct{}
}

func newJob(parent context.Context, mount string, op Operation, reply ReplyFunc) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		id:        uuid.New(),
		mount:     mount,
		op:        op,
		reply:     reply,
		submitted: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		mode:      modeNone,
		done:      make(chan struct{}),
	}
}

func (j *Job) ID() uuid.UUID        { return j.id }
func (j *Job) Mount() string        { return j.mount }
func (j *Job) Operation() Operation { return j.op }

// Context is the cancellation token shared with the backend call.
func (j *Job) Context() context.Context {
	return j.ctx
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure of a finished job, nil on success.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed after the reply has been sent.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finished or ctx is done, and returns the job
// error.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cancellation. A job that has not reached the backend yet
// fails with ErrCancelled; a running one is cancelled when the backend
// observes the token. Either way exactly one reply is sent.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// finish moves the job to its terminal state and sends the reply. Only the
// first call has an effect.
func (j *Job) finish(err error, mode string) bool {
	first := false
	j.once.Do(func() {
		first = true

		state := StateSucceeded
		if err != nil {
			state = StateFailed
			if j.ctx.Err() != nil || vfs.IsCode(err, vfs.ErrCancelled) {
				state = StateCancelled
				if !vfs.IsCode(err, vfs.ErrCancelled) {
					err = vfs.NewError(vfs.ErrCancelled, "operation was cancelled")
				}
			}
			err = asVFSError(err)
		}

		j.mu.Lock()
		j.state = state
		j.mode = mode
		j.err = err
		j.mu.Unlock()

		if j.reply != nil {
			j.reply(j)
		}
		j.cancel()
		close(j.done)
	})
	return first
}

// asVFSError makes sure every reply carries an error kind.
func asVFSError(err error) error {
	var verr *vfs.Error
	if errors.As(err, &verr) {
		return err
	}
	return &vfs.Error{Code: vfs.CodeOf(err), Message: err.Error()}
}
