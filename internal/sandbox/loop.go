package sandbox

import "context"

// eventLoop serializes completions of asynchronous helpers onto the
// goroutine that owns the VM. Helpers register work with schedule and
// their goroutines hand back a job that runs on the loop.
type eventLoop struct {
	ctx     context.Context
	jobs    chan func()
	pending int
}

func newEventLoop(ctx context.Context) *eventLoop {
	return &eventLoop{
		ctx:  ctx,
		jobs: make(chan func(), 64),
	}
}

// schedule counts one unit of outstanding work and returns the function
// its goroutine uses to post the completion. Posting after the loop
// stopped drops the job.
func (l *eventLoop) schedule() func(job func()) {
	l.pending++
	return func(job func()) {
		select {
		case l.jobs <- job:
		case <-l.ctx.Done():
		}
	}
}

// run executes posted jobs until no work is outstanding. after is called
// following each job, on the loop goroutine.
func (l *eventLoop) run(after func() error) error {
	for l.pending > 0 {
		select {
		case job := <-l.jobs:
			l.pending--
			job()
			if err := after(); err != nil {
				return err
			}
		case <-l.ctx.Done():
			return l.ctx.Err()
		}
	}
	return nil
}
