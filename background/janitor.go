// Package background contains work that runs outside the request-response cycle.
// The Janitor removes asset files that records no longer reference (replaced thumbnails
// and avatars, thumbnails of deleted posts) so that a slow or failing filesystem never
// delays or fails the mutation that orphaned them.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// removeTimeout bounds a single file removal.
const removeTimeout = 10 * time.Second

// Remover deletes a stored asset by name.
type Remover interface {
	Remove(ctx context.Context, name string) error
}

// removal is the outcome of one job, handed from a worker to the reporter.
type removal struct {
	Name     string
	WorkerID int
	Err      error
}

// JanitorOptions configures a Janitor.
type JanitorOptions struct {
	Workers   int
	QueueSize int
	// SweepInterval triggers Sweep periodically when both are set.
	SweepInterval time.Duration
	Sweep         func(ctx context.Context) (int, error)
}

// Janitor runs a bounded pool of workers that remove assets scheduled for deletion.
//
// Jobs flow queue -> workers -> results -> reporter. Stop closes the queue, the workers
// drain it, the last worker to exit closes results, and the reporter finishes logging.
type Janitor struct {
	remover Remover
	logger  logrus.FieldLogger
	opts    JanitorOptions

	queue   chan string
	results chan removal
	stop    chan struct{}

	// mu guards stopped; Schedule holds it for reading while sending so the queue is
	// never closed underneath a send.
	mu      sync.RWMutex
	stopped bool

	workersWg  sync.WaitGroup
	mainWg     sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	removedOK  int
	removedErr int
	statsMu    sync.Mutex
}

// NewJanitor creates a Janitor. Call Start before scheduling work.
func NewJanitor(remover Remover, opts JanitorOptions, logger logrus.FieldLogger) *Janitor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	return &Janitor{
		remover: remover,
		logger:  logger.WithField("component", "janitor"),
		opts:    opts,
		queue:   make(chan string, opts.QueueSize),
		results: make(chan removal, opts.QueueSize),
		stop:    make(chan struct{}),
	}
}

// Start launches the workers, the reporter and, when configured, the periodic sweep.
func (j *Janitor) Start() {
	j.startOnce.Do(func() {
		j.logger.WithField("workers", j.opts.Workers).Info("Asset janitor starting")

		for i := 0; i < j.opts.Workers; i++ {
			j.workersWg.Add(1)
			go j.work(i)
		}

		// Results is closed only once every worker has exited.
		go func() {
			j.workersWg.Wait()
			close(j.results)
		}()

		j.mainWg.Add(1)
		go j.report()

		if j.opts.SweepInterval > 0 && j.opts.Sweep != nil {
			j.mainWg.Add(1)
			go j.sweepLoop()
		}
	})
}

func (j *Janitor) work(workerID int) {
	defer j.workersWg.Done()
	for name := range j.queue {
		j.results <- removal{Name: name, WorkerID: workerID, Err: j.removeNow(name)}
	}
}

func (j *Janitor) report() {
	defer j.mainWg.Done()
	for r := range j.results {
		j.record(r)
	}
}

func (j *Janitor) record(r removal) {
	j.statsMu.Lock()
	if r.Err != nil {
		j.removedErr++
	} else {
		j.removedOK++
	}
	j.statsMu.Unlock()

	entry := j.logger.WithFields(logrus.Fields{"asset": r.Name, "worker": r.WorkerID})
	if r.Err != nil {
		entry.WithError(r.Err).Warn("Failed to remove orphaned asset")
		return
	}
	entry.Debug("Removed orphaned asset")
}

func (j *Janitor) sweepLoop() {
	defer j.mainWg.Done()
	ticker := time.NewTicker(j.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), j.opts.SweepInterval)
			removed, err := j.opts.Sweep(ctx)
			cancel()
			if err != nil {
				j.logger.WithError(err).Warn("Orphan sweep failed")
				continue
			}
			if removed > 0 {
				j.logger.WithField("removed", removed).Info("Orphan sweep removed assets")
			}
		case <-j.stop:
			return
		}
	}
}

func (j *Janitor) removeNow(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	return j.remover.Remove(ctx, name)
}

// Schedule queues name for removal and never blocks the caller for long.
// When the queue is full, or the janitor has stopped, the removal runs inline so the
// asset is not leaked. Errors are only logged.
func (j *Janitor) Schedule(name string) {
	if name == "" {
		return
	}

	j.mu.RLock()
	if !j.stopped {
		select {
		case j.queue <- name:
			j.mu.RUnlock()
			return
		default:
		}
	}
	j.mu.RUnlock()

	j.logger.WithField("asset", name).Debug("Janitor queue unavailable, removing inline")
	j.record(removal{Name: name, WorkerID: -1, Err: j.removeNow(name)})
}

// Stop stops accepting work, drains queued removals and waits for all goroutines.
// It returns early with ctx's error if the drain does not finish in time.
func (j *Janitor) Stop(ctx context.Context) error {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		j.stopped = true
		close(j.queue)
		close(j.stop)
		j.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		j.workersWg.Wait()
		j.mainWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("Asset janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns how many removals succeeded and failed so far.
func (j *Janitor) Stats() (removed, failed int) {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	return j.removedOK, j.removedErr
}
