// Package run executes configured shell commands and captures their output.
package run

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	ErrNotStarted = errors.New("command not started")
	ErrInProgress = errors.New("command in progress")
)

// LineFunc receives one stderr line at a time while the command runs.
type LineFunc func(ctx context.Context, line string)

// Command describes one shell invocation. Shell is handed to `sh -c`
// verbatim, matching the configuration's command strings. A zero Timeout
// means the command may run forever. CombineOutput folds stderr into the
// captured stdout, the way the test command is observed; when false, stderr
// lines go to the LineFunc instead.
type Command struct {
	Shell         string
	Timeout       time.Duration
	CombineOutput bool
}

// Result is the terminal outcome of one command execution. A non-zero exit
// code is not an error here: Err is set only when the command could not be
// run or was killed, and callers decide whether output is still worth
// examining.
type Result struct {
	Shell   string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Stdout  *bytes.Buffer
	Err     error
}

// ExitCode returns the command's exit code, or -1 when it never ran.
func (r Result) ExitCode() int {
	if r.State == nil {
		return -1
	}
	return r.State.ExitCode()
}

// Elapsed returns the wall time the command took.
func (r Result) Elapsed() time.Duration {
	if r.Started.IsZero() || r.Stopped.IsZero() {
		return 0
	}
	return r.Stopped.Sub(r.Started)
}

// Runner starts shell commands and reports their results. A single Runner
// executes at most one command at a time; it spawns an internal goroutine to
// wait on the process and an optional one for stderr.
type Runner struct {
	mx         sync.RWMutex
	cmd        *exec.Cmd
	cancelFunc context.CancelFunc
	result     Result
	waits      []chan Result
	stderrDone chan struct{}
}

func NewRunner() *Runner {
	return &Runner{
		result: Result{Err: ErrNotStarted},
	}
}

// Start launches the command. It returns ErrInProgress when a command is
// already running, or the launch error when the shell cannot be started at
// all. It does not wait for completion, use ResultsChan.
func (r *Runner) Start(ctx context.Context, proto Command, stderrFunc LineFunc) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd != nil {
		return ErrInProgress
	}

	r.result = Result{Shell: proto.Shell}

	if proto.Timeout == 0 {
		slog.DebugContext(ctx, "command has no timeout", "command", proto.Shell)
	} else {
		ctx, r.cancelFunc = context.WithTimeout(ctx, proto.Timeout)
	}

	r.cmd = exec.CommandContext(ctx, "sh", "-c", proto.Shell)

	var buf bytes.Buffer
	r.result.Stdout = &buf
	r.cmd.Stdout = &buf

	var stderr io.ReadCloser
	if proto.CombineOutput {
		r.cmd.Stderr = &buf
	} else if stderrFunc != nil {
		var err error
		stderr, err = r.cmd.StderrPipe()
		if err != nil {
			r.reset()
			return err
		}
	}

	r.result.Started = time.Now().UTC()
	if err := r.cmd.Start(); err != nil {
		r.result.Stopped = time.Now().UTC()
		r.result.Err = err
		r.reset()
		return err
	}

	if stderr != nil {
		r.stderrDone = make(chan struct{})
		go r.processStderr(ctx, stderr, stderrFunc, r.stderrDone)
	}
	go r.wait(r.cmd)
	return nil
}

func (r *Runner) reset() {
	if r.cancelFunc != nil {
		r.cancelFunc()
		r.cancelFunc = nil
	}
	r.cmd = nil
}

func (r *Runner) processStderr(ctx context.Context, stderr io.Reader, stderrFunc LineFunc, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		stderrFunc(ctx, scanner.Text())
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		slog.ErrorContext(ctx, "processing stderr", "error", err)
	}
}

func (r *Runner) wait(cmd *exec.Cmd) {
	r.mx.RLock()
	stderrDone := r.stderrDone
	r.mx.RUnlock()
	if stderrDone != nil {
		// Wait closes the stderr pipe, so it must be drained first
		<-stderrDone
	}

	err := cmd.Wait()
	stopped := time.Now().UTC()

	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cancelFunc != nil {
		r.cancelFunc()
		r.cancelFunc = nil
	}
	r.result.Stopped = stopped
	r.result.State = cmd.ProcessState
	r.result.Err = err
	r.cmd = nil
	r.stderrDone = nil
	waits := r.waits
	r.waits = nil
	for _, ch := range waits {
		ch <- r.result
		close(ch)
	}
}

// ResultsChan returns a channel delivering the result of the running
// command. The channel is closed after the single result.
func (r *Runner) ResultsChan() <-chan Result {
	ch := make(chan Result, 1)
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd == nil {
		// nothing running, deliver the last known result
		ch <- r.result
		close(ch)
		return ch
	}
	r.waits = append(r.waits, ch)
	return ch
}

// LastResult returns the last command result, or a Result carrying
// ErrNotStarted when nothing ran yet.
func (r *Runner) LastResult() Result {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.result
}

// Run starts the command and blocks until it finishes.
func (r *Runner) Run(ctx context.Context, proto Command, stderrFunc LineFunc) (Result, error) {
	if err := r.Start(ctx, proto, stderrFunc); err != nil {
		return Result{Shell: proto.Shell, Err: err}, err
	}
	return <-r.ResultsChan(), nil
}
