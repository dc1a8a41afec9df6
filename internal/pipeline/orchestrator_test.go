package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/prospector/internal/extract"
	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/pacing"
	"github.com/ppiankov/prospector/internal/search"
	"github.com/ppiankov/prospector/internal/worker"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	queries []string
	respond func(call int, q search.Query) ([]string, error)
}

func (p *fakeProvider) Search(ctx context.Context, q search.Query) ([]string, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.queries = append(p.queries, q.Text)
	p.mu.Unlock()
	return p.respond(call, q)
}

type fakeSelector struct{}

func (fakeSelector) Choose(ctx context.Context, rawURL string) extract.Decision {
	if strings.Contains(rawURL, "facebook.com") {
		return extract.Decision{Strategy: model.StrategyDynamic, Reason: "known dynamic domain facebook.com"}
	}
	return extract.Decision{Strategy: model.StrategyStatic, Reason: "static markup"}
}

type fakeExtractor struct {
	mu      sync.Mutex
	visited []string
	extract func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error)
}

func (e *fakeExtractor) Extract(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
	e.mu.Lock()
	e.visited = append(e.visited, cand.URL)
	e.mu.Unlock()
	return e.extract(ctx, cand)
}

type fakeSink struct {
	mu     sync.Mutex
	writes [][]model.ContactRecord
	err    error
}

func (s *fakeSink) Write(ctx context.Context, records []model.ContactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, records)
	return s.err
}

func (s *fakeSink) last() []model.ContactRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return nil
	}
	return s.writes[len(s.writes)-1]
}

// contactFor derives a unique email from the URL path
func contactFor(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
	slug := cand.URL[strings.LastIndex(cand.URL, "/")+1:]
	return []model.RawContactCandidate{{
		Emails:       []string{"info@" + slug + ".es"},
		BusinessName: "Tienda " + slug,
		SourceURL:    cand.URL,
	}}, nil
}

// testConfig plans cities*keywords tasks in one region
func testConfig(keywords, cities int) *model.Config {
	cfg := model.DefaultConfig()
	cfg.SampleMode = false
	cfg.Keywords = nil
	for i := 0; i < keywords; i++ {
		cfg.Keywords = append(cfg.Keywords, fmt.Sprintf("tienda%d", i))
	}
	region := model.Region{Name: "Andalucía"}
	for i := 0; i < cities; i++ {
		region.Cities = append(region.Cities, fmt.Sprintf("ciudad%d", i))
	}
	cfg.Regions = []model.Region{region}
	cfg.Persist.FlushEvery = 0
	cfg.Persist.FlushInterval = 0
	return cfg
}

type harness struct {
	o        *Orchestrator
	provider *fakeProvider
	static   *fakeExtractor
	dynamic  *fakeExtractor
	sink     *fakeSink
}

func newHarness(cfg *model.Config, respond func(int, search.Query) ([]string, error)) *harness {
	h := &harness{
		provider: &fakeProvider{respond: respond},
		static:   &fakeExtractor{extract: contactFor},
		dynamic:  &fakeExtractor{extract: contactFor},
		sink:     &fakeSink{},
	}
	h.o = New(cfg, Deps{
		Provider: h.provider,
		Selector: fakeSelector{},
		Static:   h.static,
		Dynamic:  h.dynamic,
		Sink:     h.sink,
		Policy:   pacing.Fixed{},
		Logger:   nil,
	})
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h.o.now = func() time.Time { return clock }
	h.o.sleep = func(context.Context, time.Duration) error { return nil }
	h.o.newID = func() string { return "run-1" }
	return h
}

// urlsPerCall returns n distinct URLs for every search call
func urlsPerCall(n int) func(int, search.Query) ([]string, error) {
	return func(call int, q search.Query) ([]string, error) {
		var urls []string
		for i := 0; i < n; i++ {
			urls = append(urls, fmt.Sprintf("https://t%d-%d.es/c%d-%d", call, i, call, i))
		}
		return urls, nil
	}
}

func TestRun_DuplicateEmailAcrossURLs(t *testing.T) {
	cfg := testConfig(1, 1)
	h := newHarness(cfg, func(int, search.Query) ([]string, error) {
		return []string{"https://a.es/contacto", "https://b.es/contacto"}, nil
	})
	h.static.extract = func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		return []model.RawContactCandidate{{Emails: []string{"Info@Growshop.es"}, SourceURL: cand.URL}}, nil
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.State != model.StateCompleted || h.o.State() != model.StateCompleted {
		t.Errorf("unexpected state %s", summary.State)
	}
	if summary.Accepted != 1 || summary.Duplicates != 1 {
		t.Errorf("accepted=%d duplicates=%d, want 1/1", summary.Accepted, summary.Duplicates)
	}
	saved := h.sink.last()
	if len(saved) != 1 || saved[0].SourceURL != "https://a.es/contacto" {
		t.Errorf("first-seen record should be saved, got %+v", saved)
	}
	if summary.RecordsSaved != 1 || summary.WithEmail != 1 || summary.RunID != "run-1" {
		t.Errorf("unexpected summary %+v", summary)
	}
	if h.provider.queries[0] != "tienda0 ciudad0 contacto site:.es" {
		t.Errorf("unexpected query %q", h.provider.queries[0])
	}
}

func TestRun_QuotaAbortsAfterFlush(t *testing.T) {
	cfg := testConfig(2, 5)
	perTask := []int{2, 2, 1}
	h := newHarness(cfg, func(call int, q search.Query) ([]string, error) {
		if call > len(perTask) {
			return nil, search.ErrQuotaExceeded
		}
		return urlsPerCall(perTask[call-1])(call, q)
	})

	summary, err := h.o.Run(context.Background())
	if !errors.Is(err, search.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if summary.State != model.StateAborted || summary.AbortReason == "" {
		t.Errorf("expected aborted with reason, got %+v", summary)
	}
	if summary.TasksPlanned != 10 || summary.TasksRun != 4 {
		t.Errorf("tasks %d/%d, want 4/10", summary.TasksRun, summary.TasksPlanned)
	}
	if got := len(h.sink.last()); got != 5 {
		t.Errorf("expected 5 records flushed before abort, got %d", got)
	}
	if summary.RecordsSaved != 5 || summary.Accepted != 5 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestRun_RejectedCandidates(t *testing.T) {
	cfg := testConfig(1, 1)
	h := newHarness(cfg, urlsPerCall(1))
	h.static.extract = func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		return []model.RawContactCandidate{{Emails: []string{"no-es-un-email"}, Phones: []string{"123"}, SourceURL: cand.URL}}, nil
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Rejected != 1 || summary.Accepted != 0 {
		t.Errorf("rejected=%d accepted=%d", summary.Rejected, summary.Accepted)
	}
	if len(h.sink.last()) != 0 {
		t.Error("rejected candidate was persisted")
	}
}

func TestRun_FailuresAreCountedAndSkipped(t *testing.T) {
	cfg := testConfig(1, 3)
	h := newHarness(cfg, func(call int, q search.Query) ([]string, error) {
		switch call {
		case 1:
			return nil, errors.New("503 from search API")
		case 2:
			return []string{"https://robots.es/a", "https://broken.es/b", "https://ok.es/c"}, nil
		default:
			return []string{"https://ok.es/c", "https://www.facebook.com/tienda"}, nil
		}
	})
	h.static.extract = func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		switch {
		case strings.Contains(cand.URL, "robots.es"):
			return nil, fmt.Errorf("%s: %w", cand.URL, extract.ErrRobotsDisallowed)
		case strings.Contains(cand.URL, "broken.es"):
			return nil, &extract.ExtractionFailure{URL: cand.URL, Strategy: model.StrategyStatic, Err: errors.New("404")}
		}
		return contactFor(ctx, cand)
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.SearchFailures != 1 {
		t.Errorf("search failures = %d", summary.SearchFailures)
	}
	if summary.RobotsSkipped != 1 || summary.ExtractionFailures != 1 {
		t.Errorf("robots=%d failures=%d", summary.RobotsSkipped, summary.ExtractionFailures)
	}
	if summary.URLsRepeated != 1 {
		t.Errorf("repeated = %d, want 1", summary.URLsRepeated)
	}
	if summary.URLsFound != 5 || summary.URLsVisited != 4 {
		t.Errorf("found=%d visited=%d", summary.URLsFound, summary.URLsVisited)
	}
	if summary.DynamicExtractions != 1 || len(h.dynamic.visited) != 1 {
		t.Errorf("expected one dynamic extraction, got %d", summary.DynamicExtractions)
	}
	if summary.StaticExtractions != 2 {
		t.Errorf("static extractions = %d, want 2", summary.StaticExtractions)
	}
	if summary.Accepted != 2 || summary.State != model.StateCompleted {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestRun_StopFinishesCurrentURL(t *testing.T) {
	cfg := testConfig(2, 5)
	h := newHarness(cfg, urlsPerCall(3))
	h.static.extract = func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		h.o.Stop()
		return contactFor(ctx, cand)
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.Stopped || summary.State != model.StateCompleted {
		t.Errorf("expected stopped completed run, got %+v", summary)
	}
	if len(h.static.visited) != 1 || summary.TasksRun != 1 {
		t.Errorf("visited %d URLs in %d tasks after stop", len(h.static.visited), summary.TasksRun)
	}
	if len(h.sink.last()) != 1 {
		t.Error("in-flight result should be flushed on stop")
	}
}

func TestRun_StopSkipsSearchDelay(t *testing.T) {
	cfg := testConfig(1, 3)
	h := newHarness(cfg, urlsPerCall(1))
	var sleeps atomic.Int32
	h.o.sleep = func(context.Context, time.Duration) error {
		sleeps.Add(1)
		return nil
	}
	h.static.extract = func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		h.o.Stop()
		return contactFor(ctx, cand)
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sleeps.Load() != 0 {
		t.Errorf("waited %d search delays after Stop", sleeps.Load())
	}
	if !summary.Stopped || summary.TasksRun != 1 || summary.RecordsSaved != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestRun_CancelBehavesLikeStop(t *testing.T) {
	cfg := testConfig(1, 3)
	h := newHarness(cfg, urlsPerCall(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.static.extract = func(c context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		cancel()
		return contactFor(c, cand)
	}

	summary, err := h.o.Run(ctx)
	if err != nil {
		t.Fatalf("cancellation should not be an error, got %v", err)
	}
	if !summary.Stopped || summary.Accepted != 1 || summary.RecordsSaved != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestRun_FlushCadence(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.Persist.FlushEvery = 2
	h := newHarness(cfg, urlsPerCall(5))

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Flushes != 3 {
		t.Errorf("flushes = %d, want 3 (after 2, after 4, final)", summary.Flushes)
	}
	sizes := make([]int, 0, len(h.sink.writes))
	for _, w := range h.sink.writes {
		sizes = append(sizes, len(w))
	}
	if fmt.Sprint(sizes) != "[2 4 5]" {
		t.Errorf("snapshot sizes = %v, want [2 4 5]", sizes)
	}
}

func TestRun_FlushInterval(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.Persist.FlushInterval = 60
	h := newHarness(cfg, urlsPerCall(3))

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h.o.now = func() time.Time {
		clock = clock.Add(45 * time.Second)
		return clock
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Flushes < 2 {
		t.Errorf("expected an interval flush before the final one, got %d", summary.Flushes)
	}
}

func TestRun_FlushErrorsDoNotAbort(t *testing.T) {
	cfg := testConfig(1, 1)
	h := newHarness(cfg, urlsPerCall(2))
	h.sink.err = errors.New("disk full")

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FlushErrors != 1 || summary.RecordsSaved != 0 {
		t.Errorf("flush errors=%d saved=%d", summary.FlushErrors, summary.RecordsSaved)
	}
	if summary.State != model.StateCompleted {
		t.Errorf("flush failure must not abort, got %s", summary.State)
	}
}

func TestRun_ConfigurationError(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.Keywords = nil
	h := newHarness(cfg, urlsPerCall(1))

	summary, err := h.o.Run(context.Background())
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if summary.State != model.StateAborted {
		t.Errorf("expected aborted, got %s", summary.State)
	}
	if h.provider.calls != 0 {
		t.Error("search must not run with an invalid configuration")
	}
}

func TestRun_ConcurrentExtraction(t *testing.T) {
	cfg := testConfig(1, 2)
	cfg.Extraction.Workers = 4
	h := newHarness(cfg, func(call int, q search.Query) ([]string, error) {
		var urls []string
		for i := 0; i < 5; i++ {
			urls = append(urls, fmt.Sprintf("https://host%d.es/c%d-%d", i%2, call, i))
		}
		return urls, nil
	})

	var (
		mu       sync.Mutex
		inFlight = map[string]int{}
		overlap  atomic.Bool
	)
	h.static.extract = func(ctx context.Context, cand model.CandidateURL) ([]model.RawContactCandidate, error) {
		host, _ := worker.HostOf(cand.URL)
		mu.Lock()
		inFlight[host]++
		if inFlight[host] > 1 {
			overlap.Store(true)
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight[host]--
		mu.Unlock()
		return contactFor(ctx, cand)
	}

	summary, err := h.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if overlap.Load() {
		t.Error("two extractions ran against the same host at once")
	}
	if summary.Accepted != 10 || summary.URLsVisited != 10 {
		t.Errorf("accepted=%d visited=%d, want 10/10", summary.Accepted, summary.URLsVisited)
	}
	if len(h.sink.last()) != 10 {
		t.Errorf("expected 10 saved records, got %d", len(h.sink.last()))
	}
}
