package workerpool

import (
	"sync"
)

// Job is a single unit of work executed by a Pool
type Job func() error

// Pool executes jobs on a fixed number of worker goroutines.
// The first error returned by a job is retained and returned by Wait.
type Pool struct {
	jobs chan Job
	stop chan struct{}

	m    sync.Mutex
	cond *sync.Cond
	// pending counts jobs that have been added but not yet finished or discarded
	pending int
	err     error

	stopOnce sync.Once
}

// New creates a Pool with numWorkers worker goroutines ready to accept jobs
func New(numWorkers int) *Pool {
	p := &Pool{
		jobs: make(chan Job),
		stop: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.m)
	for i := 0; i < numWorkers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	for {
		select {
		case <-p.stop:
			return
		case job := <-p.jobs:
			err := job()
			p.m.Lock()
			if err != nil && p.err == nil {
				p.err = err
			}
			p.pending--
			p.cond.Broadcast()
			p.m.Unlock()
		}
	}
}

// Add enqueues jobs without blocking the caller
func (p *Pool) Add(jobs []Job) {
	p.track(len(jobs))
	go p.feed(jobs)
}

// AddBlocking enqueues jobs, returning once every job has been handed to a
// worker or discarded by Stop
func (p *Pool) AddBlocking(jobs []Job) {
	p.track(len(jobs))
	p.feed(jobs)
}

func (p *Pool) track(n int) {
	p.m.Lock()
	p.pending += n
	p.m.Unlock()
}

func (p *Pool) feed(jobs []Job) {
	for i, job := range jobs {
		select {
		case p.jobs <- job:
		case <-p.stop:
			// discard the jobs that never started
			p.m.Lock()
			p.pending -= len(jobs) - i
			p.cond.Broadcast()
			p.m.Unlock()
			return
		}
	}
}

// Wait blocks until all added jobs have completed or been discarded by Stop,
// and returns the first error encountered by any job
func (p *Pool) Wait() error {
	p.m.Lock()
	defer p.m.Unlock()
	for p.pending > 0 {
		p.cond.Wait()
	}
	return p.err
}

// Stop discards any jobs that have not yet started and shuts the workers down
// once running jobs finish. It is safe to call Stop more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
