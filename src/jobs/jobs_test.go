package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500, "jobs did not finish fast enough")
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"Job B"}, unfinished)
	})
	t.Run("noop is already finished", func(t *testing.T) {
		assert.Nil(t, Jobs{Noop()}.CancelAndWait(time.Millisecond))
	})
}

func TestRun(t *testing.T) {
	t.Run("finishes when the function returns", func(t *testing.T) {
		job := Run("quick", func(ctx context.Context) {})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			t.Fatal("job never finished")
		}
	})
	t.Run("survives a panic", func(t *testing.T) {
		job := Run("panicky", func(ctx context.Context) {
			panic("oh no")
		})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			t.Fatal("job never finished")
		}
	})
	t.Run("sees cancellation", func(t *testing.T) {
		job := Run("waits", func(ctx context.Context) {
			<-ctx.Done()
		})
		assert.Nil(t, Jobs{job}.CancelAndWait(time.Second))
	})
}

func FakeJob(name string, timeout time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Canceled()
		timer := time.NewTimer(timeout)
		<-timer.C
		job.Finish()
	}()
	return job
}
