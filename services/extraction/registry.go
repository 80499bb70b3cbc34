package extraction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidbridge/internal/metrics"
	"vidbridge/models"
)

// watcherQueueCap bounds each attached watcher's pending events. A slow
// consumer loses intermediate progress frames, never the terminal one.
const watcherQueueCap = 32

// Registry tracks in-flight and recently-finished extraction jobs. Finished
// jobs linger for a grace window so a watcher that reconnects right after
// completion still receives the terminal event.
type Registry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	grace time.Duration
}

func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Registry{jobs: map[string]*Job{}, grace: grace}
}

// NewJob registers a fresh job under a generated request ID.
func (r *Registry) NewJob() *Job {
	j := &Job{
		ID:       uuid.New().String(),
		reg:      r,
		watchers: map[*Watcher]struct{}{},
		done:     make(chan struct{}),
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	metrics.ActiveJobs.Inc()
	return j
}

func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// ActiveCount reports jobs that have not yet emitted a terminal event.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		j.mu.Lock()
		if !j.terminal {
			n++
		}
		j.mu.Unlock()
	}
	return n
}

func (r *Registry) scheduleRemoval(id string) {
	time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		delete(r.jobs, id)
		r.mu.Unlock()
	})
}

// Job is one extraction's progress state and fan-out point.
type Job struct {
	ID  string
	reg *Registry

	mu       sync.Mutex
	phase    models.Phase
	progress int
	last     *models.ProgressEvent
	terminal bool
	followUp string
	watchers map[*Watcher]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// Bind attaches the job's cancel function. Called once before the job runs.
func (j *Job) Bind(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
}

// Cancel aborts the running extraction. The job still ends with a terminal
// error event from the worker.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done closes when the job has emitted its terminal event.
func (j *Job) Done() <-chan struct{} { return j.done }

// SetFollowUp records the successor job created by an auto-switch. Set
// before the autoswitch event is emitted so watchers can chain atomically.
func (j *Job) SetFollowUp(id string) {
	j.mu.Lock()
	j.followUp = id
	j.mu.Unlock()
}

func (j *Job) FollowUp() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.followUp
}

// Emit publishes an event to every watcher. Progress is clamped monotone
// non-decreasing; events after the terminal one are dropped.
func (j *Job) Emit(ev models.ProgressEvent) {
	ev.RequestID = j.ID

	j.mu.Lock()
	if j.terminal {
		j.mu.Unlock()
		return
	}
	if ev.Progress < j.progress {
		ev.Progress = j.progress
	}
	j.progress = ev.Progress
	j.phase = ev.Phase
	j.last = &ev

	if ev.Phase.Terminal() {
		j.terminal = true
	}
	for w := range j.watchers {
		w.push(ev)
	}
	terminal := j.terminal
	j.mu.Unlock()

	metrics.ExtractionPhaseTransitions.WithLabelValues(string(ev.Phase)).Inc()
	if terminal {
		close(j.done)
		metrics.ActiveJobs.Dec()
		j.reg.scheduleRemoval(j.ID)
	}
}

// FinishSwitched ends the job without a terminal wire event. Used after an
// autoswitch: watchers continue on the follow-up job, so the original must
// stop counting as active without emitting error or complete.
func (j *Job) FinishSwitched() {
	j.mu.Lock()
	if j.terminal {
		j.mu.Unlock()
		return
	}
	j.terminal = true
	j.mu.Unlock()

	close(j.done)
	metrics.ActiveJobs.Dec()
	j.reg.scheduleRemoval(j.ID)
}

// Phase returns the job's current phase.
func (j *Job) Phase() models.Phase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

// Attach registers a watcher. It is seeded with the latest event so a late
// joiner sees current state immediately, including a terminal event within
// the grace window.
func (j *Job) Attach() *Watcher {
	w := &Watcher{job: j, wake: make(chan struct{}, 1)}
	j.mu.Lock()
	j.watchers[w] = struct{}{}
	if j.last != nil {
		w.push(*j.last)
	}
	j.mu.Unlock()
	return w
}

// Watcher is one consumer's bounded view of a job's event stream.
type Watcher struct {
	job  *Job
	wake chan struct{}

	mu    sync.Mutex
	queue []models.ProgressEvent
}

// push appends under the job lock. On overflow the oldest droppable event is
// discarded: preferably an older frame of the same phase as the incoming
// one, otherwise the oldest non-terminal frame. Terminal frames are never
// discarded.
func (w *Watcher) push(ev models.ProgressEvent) {
	w.mu.Lock()
	if len(w.queue) >= watcherQueueCap {
		dropped := false
		for i, queued := range w.queue {
			if queued.Phase == ev.Phase && !queued.Phase.Terminal() {
				w.queue = append(w.queue[:i], w.queue[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			for i, queued := range w.queue {
				if !queued.Phase.Terminal() {
					w.queue = append(w.queue[:i], w.queue[i+1:]...)
					dropped = true
					break
				}
			}
		}
		if !dropped {
			// Queue full of terminal frames cannot happen (one terminal per
			// job), but never drop a terminal on the floor.
			if !ev.Phase.Terminal() {
				w.mu.Unlock()
				return
			}
		}
	}
	w.queue = append(w.queue, ev)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Next returns the next pending event. ok is false when wait elapsed with
// nothing pending, letting the caller emit a heartbeat. A ctx error ends the
// stream.
func (w *Watcher) Next(ctx context.Context, wait time.Duration) (models.ProgressEvent, bool, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			ev := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return ev, true, nil
		}
		w.mu.Unlock()

		select {
		case <-w.wake:
		case <-deadline.C:
			return models.ProgressEvent{}, false, nil
		case <-ctx.Done():
			return models.ProgressEvent{}, false, ctx.Err()
		}
	}
}

// Close detaches the watcher from its job.
func (w *Watcher) Close() {
	w.job.mu.Lock()
	delete(w.job.watchers, w)
	w.job.mu.Unlock()
}
