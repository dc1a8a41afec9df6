package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/prospector/internal/dedup"
	"github.com/ppiankov/prospector/internal/extract"
	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/normalize"
	"github.com/ppiankov/prospector/internal/pacing"
	"github.com/ppiankov/prospector/internal/planner"
	"github.com/ppiankov/prospector/internal/search"
	"github.com/ppiankov/prospector/internal/worker"
)

// StrategySelector picks the extraction strategy for a URL
type StrategySelector interface {
	Choose(ctx context.Context, rawURL string) extract.Decision
}

// Extractor pulls raw contact candidates from one URL
type Extractor interface {
	Extract(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error)
}

// Sink persists a full snapshot of accepted records
type Sink interface {
	Write(ctx context.Context, records []model.ContactRecord) error
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Provider   search.Provider
	Selector   StrategySelector
	Static     Extractor
	Dynamic    Extractor
	Normalizer *normalize.Normalizer
	Store      dedup.Store
	Sink       Sink
	Policy     pacing.Policy
	Logger     *slog.Logger
}

// Orchestrator drives one prospecting run: plan, search, extract,
// consolidate and persist, tolerating per-URL and per-task failures.
type Orchestrator struct {
	cfg  *model.Config
	deps Deps
	gate *worker.HostGate

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	newID func() string

	stopped atomic.Bool

	mu      sync.Mutex
	state   model.RunState
	summary model.RunSummary
	visited map[string]bool

	flushMu    sync.Mutex
	lastFlush  time.Time
	sinceFlush int

	closers []func() error
}

// New creates an orchestrator for cfg
func New(cfg *model.Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Policy == nil {
		deps.Policy = pacing.NewRandom(cfg.Search.DelayBetweenSearches, cfg.Extraction.DelayBetweenExtractions, cfg.Extraction.UserAgents)
	}
	if deps.Store == nil {
		deps.Store = dedup.NewMemoryStore()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(cfg.Normalize)
	}
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		gate:    worker.NewHostGate(),
		now:     time.Now,
		sleep:   pacing.Sleep,
		newID:   uuid.NewString,
		state:   model.StateIdle,
		visited: make(map[string]bool),
	}
}

// Stop requests a cooperative stop. The run finishes the URL in flight,
// flushes and completes.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

// State returns the current lifecycle state
func (o *Orchestrator) State() model.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Summary returns a copy of the run counters so far
func (o *Orchestrator) Summary() model.RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

// Close releases resources registered by the builder (browser, sinks, Redis)
func (o *Orchestrator) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run executes the whole plan. Only configuration errors and
// search.ErrQuotaExceeded are returned; every other failure is logged,
// counted and skipped.
func (o *Orchestrator) Run(ctx context.Context) (model.RunSummary, error) {
	start := o.now()
	o.mu.Lock()
	o.summary = model.RunSummary{RunID: o.newID(), StartedAt: start.UTC(), State: model.StateIdle}
	o.mu.Unlock()
	o.lastFlush = start

	log := o.deps.Logger.With("run_id", o.Summary().RunID)

	o.setState(model.StatePlanning)
	if err := o.cfg.Validate(); err != nil {
		return o.finish(log, start, model.StateAborted, err.Error()), err
	}
	tasks, err := planner.Plan(o.cfg)
	if err != nil {
		return o.finish(log, start, model.StateAborted, err.Error()), err
	}
	o.update(func(s *model.RunSummary) { s.TasksPlanned = len(tasks) })
	log.Info("plan ready", "tasks", len(tasks), "sample_mode", o.cfg.SampleMode)

	for i, task := range tasks {
		if o.stopRequested(ctx) {
			o.update(func(s *model.RunSummary) { s.Stopped = true })
			break
		}

		quotaErr := o.runTask(ctx, log, task, len(tasks))
		if quotaErr != nil {
			o.flush(ctx, log)
			return o.finish(log, start, model.StateAborted, quotaErr.Error()), quotaErr
		}

		if o.stopRequested(ctx) {
			o.update(func(s *model.RunSummary) { s.Stopped = true })
			break
		}
		if i < len(tasks)-1 {
			if err := o.sleep(ctx, o.deps.Policy.SearchDelay()); err != nil {
				o.update(func(s *model.RunSummary) { s.Stopped = true })
				break
			}
		}
	}

	if ctx.Err() != nil || o.stopped.Load() {
		o.update(func(s *model.RunSummary) { s.Stopped = s.Stopped || s.TasksRun < s.TasksPlanned })
	}
	o.flush(ctx, log)
	return o.finish(log, start, model.StateCompleted, ""), nil
}

// runTask searches one task and extracts its URLs. It returns an error only for quota exhaustion.
func (o *Orchestrator) runTask(ctx context.Context, log *slog.Logger, task model.SearchTask, total int) error {
	o.setState(model.StateSearching)
	o.update(func(s *model.RunSummary) { s.TasksRun++ })

	query := search.BuildQuery(task, o.cfg.Search.QuerySuffix)
	log.Info("searching", "task", task.Index, "of", total, "query", query)

	urls, err := search.Collect(ctx, o.deps.Provider, query, o.cfg.Search.ResultsPerSearch)
	if err != nil {
		if errors.Is(err, search.ErrQuotaExceeded) {
			log.Warn("search quota exhausted", "task", task.Index, "error", err)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		o.update(func(s *model.RunSummary) { s.SearchFailures++ })
		log.Warn("search failed, skipping task", "task", task.Index, "error", err)
		return nil
	}
	o.update(func(s *model.RunSummary) { s.URLsFound += len(urls) })
	log.Debug("search results", "task", task.Index, "urls", len(urls))

	var fresh []model.CandidateURL
	o.mu.Lock()
	for _, u := range urls {
		if o.visited[u] {
			o.summary.URLsRepeated++
			continue
		}
		o.visited[u] = true
		fresh = append(fresh, model.CandidateURL{URL: u, Task: task})
	}
	o.mu.Unlock()

	if o.cfg.Extraction.Workers > 1 {
		o.extractConcurrently(ctx, log, fresh)
		return nil
	}
	for _, cand := range fresh {
		if o.stopRequested(ctx) {
			break
		}
		o.consume(ctx, log, o.extractURL(ctx, cand))
	}
	return nil
}

// urlResult is the outcome of extracting one URL
type urlResult struct {
	cand       model.CandidateURL
	strategy   model.Strategy
	candidates []model.RawContactCandidate
	err        error
	skipped    bool
}

func (r *urlResult) GetError() error { return r.err }

// urlJob extracts one URL on the worker pool
type urlJob struct {
	o    *Orchestrator
	cand model.CandidateURL
	host string
}

func (j *urlJob) Host() string { return j.host }

func (j *urlJob) Execute(ctx context.Context) worker.Result {
	if j.o.stopRequested(ctx) {
		return &urlResult{cand: j.cand, skipped: true}
	}
	return j.o.extractURL(ctx, j.cand)
}

func (o *Orchestrator) extractConcurrently(ctx context.Context, log *slog.Logger, cands []model.CandidateURL) {
	jobs := make([]worker.HostJob, 0, len(cands))
	for _, c := range cands {
		host, err := worker.HostOf(c.URL)
		if err != nil || host == "" {
			host = c.URL
		}
		jobs = append(jobs, &urlJob{o: o, cand: c, host: host})
	}

	bp := worker.NewBatchProcessor(o.cfg.Extraction.Workers, o.gate)
	bp.Process(ctx, jobs, func(r worker.Result) {
		res, ok := r.(*urlResult)
		if !ok {
			// job never ran: the gate gave up because the context ended
			return
		}
		o.consume(ctx, log, res)
	})
}

func (o *Orchestrator) extractURL(ctx context.Context, cand model.CandidateURL) *urlResult {
	o.setState(model.StateExtracting)

	decision := o.deps.Selector.Choose(ctx, cand.URL)
	ex := o.deps.Static
	if decision.Strategy == model.StrategyDynamic {
		ex = o.deps.Dynamic
	}
	o.deps.Logger.Debug("extracting", "url", cand.URL, "strategy", decision.Strategy.String(), "reason", decision.Reason)

	cands, err := ex.Extract(ctx, cand)
	return &urlResult{cand: cand, strategy: decision.Strategy, candidates: cands, err: err}
}

// consume accounts for one extraction and consolidates its candidates.
// It always runs on the Run goroutine.
func (o *Orchestrator) consume(ctx context.Context, log *slog.Logger, r *urlResult) {
	if r.skipped {
		return
	}
	if r.err != nil && (errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded)) && ctx.Err() != nil {
		return
	}

	var failure *extract.ExtractionFailure
	o.update(func(s *model.RunSummary) {
		s.URLsVisited++
		switch {
		case errors.Is(r.err, extract.ErrRobotsDisallowed):
			s.RobotsSkipped++
			return
		case r.err != nil && !errors.As(r.err, &failure):
			s.ExtractionFailures++
			return
		case r.err != nil:
			s.ExtractionFailures++
		}
		if r.strategy == model.StrategyDynamic {
			s.DynamicExtractions++
		} else {
			s.StaticExtractions++
		}
	})

	switch {
	case errors.Is(r.err, extract.ErrRobotsDisallowed):
		log.Debug("skipped by robots.txt", "url", r.cand.URL)
		return
	case r.err != nil:
		log.Warn("extraction failed", "url", r.cand.URL, "error", r.err)
		return
	}

	o.setState(model.StateConsolidating)
	for _, raw := range r.candidates {
		rec, ok := o.deps.Normalizer.Normalize(raw, r.cand.Task, o.now())
		if !ok {
			o.update(func(s *model.RunSummary) { s.Rejected++ })
			log.Debug("candidate rejected", "url", r.cand.URL)
			continue
		}

		outcome, err := o.deps.Store.Admit(ctx, rec)
		if err != nil {
			o.update(func(s *model.RunSummary) { s.Rejected++ })
			log.Warn("admit failed", "url", r.cand.URL, "error", err)
			continue
		}

		switch outcome {
		case dedup.Accepted:
			o.update(func(s *model.RunSummary) {
				s.Accepted++
				if rec.Email != "" {
					s.WithEmail++
				}
				if rec.Phone != "" {
					s.WithPhone++
				}
			})
			o.flushMu.Lock()
			o.sinceFlush++
			o.flushMu.Unlock()
			log.Info("contact accepted", "business", rec.BusinessName, "email", rec.Email, "phone", rec.Phone)
		case dedup.Duplicate:
			o.update(func(s *model.RunSummary) { s.Duplicates++ })
			log.Debug("duplicate contact", "url", r.cand.URL)
		}
	}

	if o.flushDue() {
		o.flush(ctx, log)
	}
}

func (o *Orchestrator) flushDue() bool {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	p := o.cfg.Persist
	if p.FlushEvery > 0 && o.sinceFlush >= p.FlushEvery {
		return true
	}
	if p.FlushInterval > 0 && o.sinceFlush > 0 && o.now().Sub(o.lastFlush) >= model.Seconds(p.FlushInterval) {
		return true
	}
	return false
}

// flush overwrites every sink with a snapshot of the store.
// Writes are not cancelled by the run context so a stop still saves results.
func (o *Orchestrator) flush(ctx context.Context, log *slog.Logger) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	if o.deps.Sink == nil {
		return
	}

	prev := o.State()
	o.setState(model.StatePersisting)
	defer o.setState(prev)

	records := o.deps.Store.Snapshot()
	err := o.deps.Sink.Write(context.WithoutCancel(ctx), records)

	o.sinceFlush = 0
	o.lastFlush = o.now()
	o.update(func(s *model.RunSummary) {
		s.Flushes++
		if err != nil {
			s.FlushErrors++
			return
		}
		s.RecordsSaved = len(records)
	})

	if err != nil {
		log.Error("flush failed", "records", len(records), "error", err)
		return
	}
	log.Debug("flushed", "records", len(records))
}

func (o *Orchestrator) finish(log *slog.Logger, start time.Time, state model.RunState, reason string) model.RunSummary {
	o.setState(state)
	o.update(func(s *model.RunSummary) {
		s.State = state
		s.AbortReason = reason
		s.Elapsed = o.now().Sub(start)
	})

	s := o.Summary()
	attrs := []any{
		"state", s.State,
		"tasks", fmt.Sprintf("%d/%d", s.TasksRun, s.TasksPlanned),
		"urls_found", s.URLsFound,
		"urls_visited", s.URLsVisited,
		"accepted", s.Accepted,
		"duplicates", s.Duplicates,
		"rejected", s.Rejected,
		"elapsed", s.Elapsed.Round(time.Millisecond),
	}
	if state == model.StateAborted {
		log.Error("run aborted", append(attrs, "reason", reason)...)
	} else {
		log.Info("run completed", attrs...)
	}
	return s
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	return o.stopped.Load() || ctx.Err() != nil
}

func (o *Orchestrator) setState(s model.RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Terminal() && !s.Terminal() {
		return
	}
	o.state = s
}

func (o *Orchestrator) update(fn func(*model.RunSummary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.summary)
}
