package dispatch

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Job is a unit of work bound to a serialization key.
type Job func()

// Dispatcher runs jobs with per-key FIFO ordering. Jobs sharing a key never
// overlap, so two messages from the same sender cannot race each other;
// jobs on different keys run in parallel, bounded by the worker limit.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[string][]Job
	active map[string]bool
	slots  chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a dispatcher allowing up to maxWorkers jobs to run
// at the same time across all keys.
func NewDispatcher(maxWorkers int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Dispatcher{
		queues: make(map[string][]Job),
		active: make(map[string]bool),
		slots:  make(chan struct{}, maxWorkers),
	}
}

// Submit enqueues job under key. Returns false once the dispatcher has been
// stopped, in which case the job is dropped.
func (d *Dispatcher) Submit(key string, job Job) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}

	d.queues[key] = append(d.queues[key], job)
	if d.active[key] {
		d.mu.Unlock()
		return true
	}

	d.active[key] = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(key)
	return true
}

// drain runs queued jobs for key in arrival order until the queue empties.
// At most one drain loop exists per key at any time.
func (d *Dispatcher) drain(key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			delete(d.active, key)
			d.mu.Unlock()
			return
		}
		job := q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()

		d.slots <- struct{}{}
		d.run(key, job)
		<-d.slots
	}
}

// run executes one job, containing any panic so the key's queue keeps moving.
func (d *Dispatcher) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("key", key).Msg("Dispatched job panicked")
		}
	}()
	job()
}

// Stop rejects further submissions and waits for every queued job to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
