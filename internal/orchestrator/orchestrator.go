package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/analysis"
	"clipflow/internal/config"
	"clipflow/internal/discovery"
	"clipflow/internal/logging"
	"clipflow/internal/notifications"
	"clipflow/internal/publish"
	"clipflow/internal/queue"
	"clipflow/internal/transcode"
)

// Orchestrator owns the drive loop: discovery, job creation, and stage
// dispatch across the worker pool.
type Orchestrator struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	adapter   discovery.Adapter
	analyzer  analysis.Analyzer
	executor  *transcode.Executor
	publisher publish.Publisher

	stages map[queue.Status]pipelineStage

	// passCh collapses concurrent triggers: a tick or manual trigger that
	// arrives while a pass is running is dropped, not queued.
	passCh chan struct{}

	mu           sync.Mutex
	busy         map[int64]struct{}
	retries      map[int64]*retryState
	running      bool
	activePasses int
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type retryState struct {
	attempts    int
	nextAttempt time.Time
}

// Option overrides orchestrator collaborators, primarily for tests.
type Option func(*Orchestrator)

// WithAdapter injects a discovery adapter.
func WithAdapter(adapter discovery.Adapter) Option {
	return func(o *Orchestrator) { o.adapter = adapter }
}

// WithAnalyzer injects an analyzer.
func WithAnalyzer(analyzer analysis.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = analyzer }
}

// WithExecutor injects a transcode executor.
func WithExecutor(executor *transcode.Executor) Option {
	return func(o *Orchestrator) { o.executor = executor }
}

// WithPublisher injects a publisher.
func WithPublisher(publisher publish.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = publisher }
}

// WithNotifier injects a notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = notifier }
}

// New constructs an orchestrator. Collaborators not overridden by options
// are built lazily from configuration on the first pass that needs them.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
		notifier: notifications.NewService(cfg),
		passCh:   make(chan struct{}, 1),
		busy:     make(map[int64]struct{}),
		retries:  make(map[int64]*retryState),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.executor == nil {
		o.executor = transcode.NewExecutor(cfg, o.logger)
	}
	o.stages = o.buildStages()
	return o
}

// Start launches the drive loop: a poll-interval ticker plus the manual
// trigger channel, both funneling into single-flight passes.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(runCtx)
	return nil
}

// Stop terminates the drive loop and waits for the in-flight pass to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

// TriggerPass requests an asynchronous pass. Requests arriving while a pass
// is already pending or running are dropped, not queued: the in-flight pass
// satisfies them.
func (o *Orchestrator) TriggerPass() bool {
	o.mu.Lock()
	active := o.activePasses > 0
	o.mu.Unlock()
	if active {
		return false
	}
	select {
	case o.passCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// ClearBackoff resets the in-memory retry schedule for a job. Called after a
// manual retry so the job is eligible on the next pass regardless of prior
// backoff.
func (o *Orchestrator) ClearBackoff(jobID int64) {
	o.mu.Lock()
	delete(o.retries, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()

	interval := time.Duration(o.cfg.Discovery.PollInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.TriggerPass()
		case <-o.passCh:
			o.runPass(ctx)
		}
	}
}

// RunPass executes one synchronous pass. Exposed for tests and the CLI
// trigger path; the daemon loop calls it via the trigger channel.
func (o *Orchestrator) RunPass(ctx context.Context) {
	o.runPass(ctx)
}

func (o *Orchestrator) runPass(ctx context.Context) {
	o.mu.Lock()
	o.activePasses++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.activePasses--
		o.mu.Unlock()
	}()

	passID := uuid.NewString()
	passLogger := o.logger.With(logging.String(logging.FieldCorrelationID, passID))
	passStart := time.Now()

	passLogger.Debug("pass started", logging.String(logging.FieldEventType, "pass_start"))

	o.ingest(ctx, passLogger)

	jobs, err := o.store.List(ctx, queue.NonTerminalStatuses()...)
	if err != nil {
		// Infrastructure failure aborts the pass cleanly; the next tick
		// retries.
		passLogger.Error("failed to list runnable jobs",
			logging.Error(err),
			logging.String(logging.FieldEventType, "pass_abort"),
			logging.String(logging.FieldErrorHint, "check job database access"))
		return
	}

	workers := o.cfg.Pipeline.MaxConcurrentJobs
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var (
		passWG    sync.WaitGroup
		resultsMu sync.Mutex
		processed int
		failed    int
	)

	now := time.Now()
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !o.eligible(job.ID, now) {
			continue
		}
		if !o.acquire(job.ID) {
			continue
		}

		passWG.Add(1)
		sem <- struct{}{}
		go func(job *queue.Job) {
			defer passWG.Done()
			defer func() { <-sem }()
			defer o.release(job.ID)

			outcome := o.processJob(ctx, passLogger, job)
			resultsMu.Lock()
			switch outcome {
			case outcomeDone:
				processed++
			case outcomeFailed:
				failed++
			}
			resultsMu.Unlock()
		}(job)
	}

	passWG.Wait()

	passLogger.Info("pass completed",
		logging.String(logging.FieldEventType, "pass_complete"),
		logging.Int("processed", processed),
		logging.Int("failed", failed),
		logging.Duration("pass_duration", time.Since(passStart)))

	if processed > 0 || failed > 0 {
		if err := o.notifier.NotifyPassCompleted(ctx, processed, failed, time.Since(passStart)); err != nil {
			passLogger.Warn("pass notification failed", logging.Error(err))
		}
	}
}

// ingest polls the remote folder and creates jobs for unseen candidates.
// Ingestion is skipped entirely while the non-terminal backlog strictly
// exceeds the configured threshold; a backlog at the threshold still ingests.
func (o *Orchestrator) ingest(ctx context.Context, passLogger *slog.Logger) {
	backlog, err := o.store.CountNonTerminal(ctx)
	if err != nil {
		passLogger.Error("failed to count backlog", logging.Error(err))
		return
	}
	if backlog > o.cfg.Pipeline.BacklogThreshold {
		passLogger.Warn("backlog exceeds threshold, pausing ingestion",
			logging.Int("backlog", backlog),
			logging.Int("threshold", o.cfg.Pipeline.BacklogThreshold),
			logging.String(logging.FieldEventType, "ingest_paused"))
		return
	}

	adapter, err := o.discoveryAdapter()
	if err != nil {
		passLogger.Warn("discovery unavailable", logging.Error(err))
		return
	}

	candidates, err := adapter.Poll(ctx)
	if err != nil {
		passLogger.Warn("discovery poll failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "discovery_failed"))
		return
	}

	created := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}
		if _, err := o.store.GetBySourceRef(ctx, candidate.ID); err == nil {
			continue
		} else if !errors.Is(err, queue.ErrNotFound) {
			passLogger.Error("dedupe lookup failed", logging.Error(err))
			continue
		}

		job, err := o.store.Create(ctx, candidate.ID, candidate.Name)
		if err != nil {
			if errors.Is(err, queue.ErrConflict) {
				continue
			}
			passLogger.Error("failed to create job",
				logging.Error(err),
				logging.String("source_ref", candidate.ID))
			continue
		}
		created++
		passLogger.Info("job created",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String("file_name", job.FileName),
			logging.String(logging.FieldEventType, "job_created"))
	}
	if created > 0 {
		passLogger.Info("ingestion complete", logging.Int("created", created))
	}
}

func (o *Orchestrator) discoveryAdapter() (discovery.Adapter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.adapter != nil {
		return o.adapter, nil
	}
	adapter, err := discovery.NewClient(o.cfg)
	if err != nil {
		return nil, err
	}
	o.adapter = adapter
	return adapter, nil
}

func (o *Orchestrator) eligible(jobID int64, now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.retries[jobID]
	if !ok {
		return true
	}
	return !now.Before(state.nextAttempt)
}

func (o *Orchestrator) acquire(jobID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, held := o.busy[jobID]; held {
		return false
	}
	o.busy[jobID] = struct{}{}
	return true
}

func (o *Orchestrator) release(jobID int64) {
	o.mu.Lock()
	delete(o.busy, jobID)
	o.mu.Unlock()
}

// scheduleRetry records an in-memory backoff for a job and returns the
// attempt count. Delay doubles per attempt from the configured base up to
// the ceiling.
func (o *Orchestrator) scheduleRetry(jobID int64) int {
	base := time.Duration(o.cfg.Pipeline.RetryBackoffBase) * time.Second
	if base <= 0 {
		base = 10 * time.Second
	}
	ceiling := time.Duration(o.cfg.Pipeline.RetryBackoffCeiling) * time.Second
	if ceiling < base {
		ceiling = base
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.retries[jobID]
	if !ok {
		state = &retryState{}
		o.retries[jobID] = state
	}
	state.attempts++

	delay := base
	for i := 1; i < state.attempts && delay < ceiling; i++ {
		delay *= 2
	}
	if delay > ceiling {
		delay = ceiling
	}
	state.nextAttempt = time.Now().Add(delay)
	return state.attempts
}

func (o *Orchestrator) retryAttempts(jobID int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.retries[jobID]; ok {
		return state.attempts
	}
	return 0
}
