package services

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"fermata/config"
	"fermata/types"
	"fermata/websocket"
)

// MaxConcurrency is the hard cap on concurrent encodes, independent of
// hardware.
const MaxConcurrency = 10

// BackoffSchedule controls how a worker waits out host overload before
// retiring. Injectable so tests run without wall-clock sleeps.
type BackoffSchedule struct {
	InitialWait time.Duration
	RetryWait   time.Duration
	MaxRetries  int
}

// DefaultBackoff is the production overload backoff schedule.
var DefaultBackoff = BackoffSchedule{
	InitialWait: 10 * time.Second,
	RetryWait:   15 * time.Second,
	MaxRetries:  3,
}

// DefaultTickInterval is how often the scheduler re-checks for queued work
// with no active worker (e.g. after all workers retired under sustained
// overload).
const DefaultTickInterval = 30 * time.Second

// Scheduler is the entry point for transcode scheduling: it builds candidate
// tasks from books, deduplicates them against the cache, the in-flight
// registry and the queue, and supervises the worker pool that drains them.
type Scheduler struct {
	queue    *TaskQueue
	pipeline *EncodingPipeline
	cache    *CacheStore
	monitor  LoadMonitor
	cfg      *config.Store
	hub      websocket.Hub

	backoff      BackoffSchedule
	tickInterval time.Duration
	coreCount    int

	mu              sync.Mutex
	active          int
	cancelRequested bool

	wg   sync.WaitGroup
	stop chan struct{}
}

// SchedulerOption customizes a Scheduler at construction.
type SchedulerOption func(*Scheduler)

// WithCoreCount overrides the detected host core count.
func WithCoreCount(n int) SchedulerOption {
	return func(s *Scheduler) { s.coreCount = n }
}

// WithBackoff overrides the overload backoff schedule.
func WithBackoff(b BackoffSchedule) SchedulerOption {
	return func(s *Scheduler) { s.backoff = b }
}

// WithTickInterval overrides the reschedule tick interval.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithHub attaches a WebSocket hub for transcode lifecycle events.
func WithHub(hub websocket.Hub) SchedulerOption {
	return func(s *Scheduler) { s.hub = hub }
}

// NewScheduler creates a scheduler. All collaborators are injected; there
// are no package-level singletons.
func NewScheduler(queue *TaskQueue, pipeline *EncodingPipeline, cache *CacheStore,
	monitor LoadMonitor, cfg *config.Store, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		queue:        queue,
		pipeline:     pipeline,
		cache:        cache,
		monitor:      monitor,
		cfg:          cfg,
		backoff:      DefaultBackoff,
		tickInterval: DefaultTickInterval,
		coreCount:    runtime.NumCPU(),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ceiling returns the dynamic concurrency ceiling:
// clamp(cores/2, 1, MaxConcurrency).
func (s *Scheduler) Ceiling() int {
	ceiling := s.coreCount / 2
	if ceiling < 1 {
		ceiling = 1
	}
	if ceiling > MaxConcurrency {
		ceiling = MaxConcurrency
	}
	return ceiling
}

// Start launches the periodic reschedule tick. Without it, tasks left queued
// after every worker retired under overload would wait for the next enqueue.
func (s *Scheduler) Start() {
	go func() {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				stalled := s.active == 0 && !s.cancelRequested
				s.mu.Unlock()
				if stalled && s.queue.Len() > 0 {
					s.ScheduleWorkers(s.queue.Len())
				}
			}
		}
	}()
}

// Stop halts the reschedule tick. Running workers finish their current task.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// WaitIdle blocks until every active worker has exited. Test hook; prefer it
// over wall-clock polling.
func (s *Scheduler) WaitIdle() {
	s.wg.Wait()
}

// PreTranscodeBook collects up to autoTranscodeCount episodes needing
// conversion starting from the book's very first episode and enqueues them
// as a normal-priority batch. Intended for "just added this book".
func (s *Scheduler) PreTranscodeBook(book types.Book) int {
	limit := s.cfg.Snapshot().AutoTranscodeCount
	tasks := s.collectFrom(book, 0, 0, limit)
	return s.enqueue(tasks, false)
}

// PreTranscodeFromPosition collects up to autoTranscodeCount episodes
// needing conversion starting immediately after the given position, crossing
// season boundaries, and enqueues them as a priority batch so playback
// continuation wins over any backlog.
func (s *Scheduler) PreTranscodeFromPosition(book types.Book, seasonIndex, episodeIndex int) int {
	limit := s.cfg.Snapshot().AutoTranscodeCount
	tasks := s.collectFrom(book, seasonIndex, episodeIndex+1, limit)
	return s.enqueue(tasks, true)
}

// collectFrom walks the book forward from (seasonIndex, episodeIndex) and
// gathers tasks for episodes that need conversion and have no valid artifact
// yet.
func (s *Scheduler) collectFrom(book types.Book, seasonIndex, episodeIndex, limit int) []types.TranscodeTask {
	var tasks []types.TranscodeTask
	for si := seasonIndex; si < len(book.Seasons) && len(tasks) < limit; si++ {
		season := book.Seasons[si]
		start := 0
		if si == seasonIndex {
			start = episodeIndex
		}
		for ei := start; ei < len(season.Episodes) && len(tasks) < limit; ei++ {
			ep := season.Episodes[ei]
			if !ep.NeedsTranscode {
				continue
			}
			ref := types.EpisodeRef{BookID: book.ID, SeasonID: season.ID, EpisodeID: ep.ID}
			if s.cache.IsValid(ref) {
				continue
			}
			tasks = append(tasks, types.TranscodeTask{SourcePath: ep.Path, Ref: ref})
		}
	}
	return tasks
}

// enqueue admits candidate tasks past the cache, in-flight and queue dedup
// filters, then recomputes worker concurrency from the admitted count. A
// fresh request always clears any pending cancellation.
func (s *Scheduler) enqueue(tasks []types.TranscodeTask, priority bool) int {
	s.mu.Lock()
	s.cancelRequested = false
	s.mu.Unlock()

	candidates := make([]types.TranscodeTask, 0, len(tasks))
	for _, task := range tasks {
		if s.cache.IsValid(task.Ref) || s.pipeline.InFlight(task.Ref) {
			continue
		}
		candidates = append(candidates, task)
	}

	admitted := s.queue.Push(candidates, priority)
	if admitted > 0 {
		log.Printf("Enqueued %d transcode task(s) (priority=%v, queue=%d)", admitted, priority, s.queue.Len())
		for _, task := range candidates {
			if s.queue.Contains(task.Ref) {
				s.broadcastRef(task.Ref, "queued", "")
			}
		}
	}

	s.ScheduleWorkers(admitted)
	return admitted
}

// ScheduleWorkers recomputes desired concurrency after newlyAdmitted tasks
// entered the queue and starts additional workers, fire-and-forget. Under
// overload at most one worker runs; it self-throttles internally.
func (s *Scheduler) ScheduleWorkers(newlyAdmitted int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queueLen := s.queue.Len()
	if queueLen == 0 {
		return
	}

	if s.monitor.IsOverloaded() {
		if s.active == 0 {
			s.spawnLocked(1)
		}
		// A worker is already active; avoid pile-up.
		return
	}

	desired := newlyAdmitted
	if queueLen < desired {
		desired = queueLen
	}
	if ceiling := s.Ceiling(); ceiling < desired {
		desired = ceiling
	}

	if toSpawn := desired - s.active; toSpawn > 0 {
		s.spawnLocked(toSpawn)
	}
}

// spawnLocked starts n worker loops. Caller holds s.mu; the active count is
// raised before the goroutine runs so the ceiling check never over-admits.
func (s *Scheduler) spawnLocked(n int) {
	for i := 0; i < n; i++ {
		s.active++
		s.wg.Add(1)
		workerID := uuid.New().String()[:8]
		go s.runWorker(workerID)
	}
}

// runWorker drains the queue until it empties, cancellation is requested,
// autoTranscode is switched off, or sustained overload forces retirement.
// Failure of one task never aborts the loop.
func (s *Scheduler) runWorker(workerID string) {
	defer s.wg.Done()
	log.Printf("Transcode worker %s started", workerID)

	for s.queue.Len() > 0 {
		s.mu.Lock()
		cancelled := s.cancelRequested
		s.mu.Unlock()
		if cancelled {
			break
		}

		// Config is re-read every iteration so a live toggle takes effect
		// within one loop.
		if !s.cfg.Snapshot().AutoTranscode {
			s.mu.Lock()
			s.cancelRequested = true
			s.mu.Unlock()
			break
		}

		if s.monitor.IsOverloaded() {
			if !s.waitForHeadroom(workerID) {
				log.Printf("Transcode worker %s retiring under sustained overload", workerID)
				break
			}
		}

		task, ok := s.queue.Claim()
		if !ok {
			break
		}

		s.broadcastRef(task.Ref, "started", "")
		if _, err := s.pipeline.EnsureTranscoded(context.Background(), task.SourcePath, task.Ref); err != nil {
			log.Printf("Transcode of %s failed: %v", task.Ref, err)
			s.broadcastRef(task.Ref, "failed", err.Error())
			continue
		}
		s.broadcastRef(task.Ref, "completed", "")
	}

	s.mu.Lock()
	s.active--
	if s.active == 0 && s.cancelRequested {
		dropped := s.queue.Len()
		s.queue.Clear()
		s.cancelRequested = false
		log.Printf("Transcode worker %s was last out; dropped %d cancelled task(s)", workerID, dropped)
	}
	s.mu.Unlock()

	log.Printf("Transcode worker %s exited", workerID)
}

// waitForHeadroom sleeps out an overload episode: one initial wait, then up
// to MaxRetries re-checks spaced RetryWait apart. Returns false when the
// host is still overloaded after the last retry and the worker should
// retire. Queued tasks stay queued; retirement is not a failure.
func (s *Scheduler) waitForHeadroom(workerID string) bool {
	log.Printf("Transcode worker %s backing off: host overloaded", workerID)
	time.Sleep(s.backoff.InitialWait)

	for i := 0; i < s.backoff.MaxRetries; i++ {
		if !s.monitor.IsOverloaded() {
			return true
		}
		time.Sleep(s.backoff.RetryWait)
	}
	return !s.monitor.IsOverloaded()
}

// Cancel requests cooperative cancellation. In-flight encodes always run to
// completion; the queue drains once the last active worker exits. A no-op
// when nothing is queued or running.
func (s *Scheduler) Cancel() types.CancelResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 && s.active == 0 {
		return types.CancelResult{}
	}

	s.cancelRequested = true
	result := types.CancelResult{
		Cancelled:        true,
		DroppedTasks:     s.queue.Len(),
		FinishingWorkers: s.active,
	}

	// Nothing is running, so no worker will perform the last-out drain.
	if s.active == 0 {
		s.queue.Clear()
		s.cancelRequested = false
	}

	return result
}

// Status returns a snapshot of scheduler and host state.
func (s *Scheduler) Status() types.SchedulerStatus {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	return types.SchedulerStatus{
		QueueLength:    s.queue.Len(),
		ActiveWorkers:  active,
		Ceiling:        s.Ceiling(),
		InFlight:       s.pipeline.InFlightCount(),
		CPUUtilization: s.monitor.CPUUtilization(),
		MemUtilization: s.monitor.MemUtilization(),
		Threshold:      s.monitor.Threshold(),
		CoreCount:      s.coreCount,
		TotalMemory:    s.monitor.TotalMemoryBytes(),
		QueuePreview:   s.queue.Preview(10),
	}
}

// ActiveWorkers returns the current worker count.
func (s *Scheduler) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) broadcastRef(ref types.EpisodeRef, eventType, message string) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ref.String(), eventType, message)
	}
}
