/*
Package jobs runs background work that can be canceled and waited on when
the server shuts down.
*/
package jobs

import (
	"context"
	"time"

	"git.handmade.network/hmn/forum/src/logging"
	"github.com/rs/zerolog"
)

// A Job tracks one background task. The task watches Canceled() and calls
// Finish() when it has wrapped up.
type Job struct {
	Name   string
	Ctx    context.Context
	Logger *zerolog.Logger
	cancel func()
	done   chan struct{}
}

func New(name string) *Job {
	logger := logging.With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job{
		Name:   name,
		Ctx:    ctx,
		Logger: &logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run starts f on a new goroutine as a Job. The job finishes when f returns,
// and a panic in f is logged instead of taking the server down.
func Run(name string, f func(ctx context.Context)) *Job {
	job := New(name)
	go func() {
		defer job.Finish()
		defer logging.LogPanics(job.Logger)
		f(job.Ctx)
	}()
	return job
}

// A Job that is already finished. Used when a feature is turned off by config
// but the caller still wants something to put in a Jobs list.
func Noop() *Job {
	return New("noop").Finish()
}

// Asks the job to stop by canceling its context.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

// Marks the job as done. Must be called exactly once, by the job itself.
func (j *Job) Finish() *Job {
	close(j.done)
	return j
}

func (j *Job) Finished() <-chan struct{} {
	return j.done
}

// A utility for running and canceling multiple jobs at once. Because this type
// is simply a slice of Jobs, you can construct it using normal slice syntax.
type Jobs []*Job

// Cancels all jobs and waits for them to finish, up to timeout. Returns the
// names of jobs that did not finish in time.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	allDoneChan := make(chan struct{})
	for _, job := range jobs {
		job.Cancel()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDoneChan)
	}()

	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDoneChan:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
			continue
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
