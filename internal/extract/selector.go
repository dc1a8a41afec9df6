package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"github.com/ppiankov/prospector/internal/fetch"
	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/pacing"
)

const (
	// contactlessMinBytes is the page size above which a contact-free probe is suspicious
	contactlessMinBytes = 10000
	defaultProbeBytes   = 512 * 1024
	decisionTTL         = 6 * time.Hour
)

// Prober performs the lightweight strategy probe
type Prober interface {
	Probe(ctx context.Context, rawURL string, header http.Header, timeout time.Duration, maxBytes int64) (*fetch.Result, error)
}

// Decision is the chosen strategy plus a reason for logs
type Decision struct {
	Strategy model.Strategy
	Reason   string
}

// Selector decides per URL whether a plain GET is enough or a browser render is needed
type Selector struct {
	prober       Prober
	policy       pacing.Policy
	scanner      *Scanner
	knownDomains []string
	indicators   []string
	selectors    []string
	contactless  bool
	probeTimeout time.Duration
	probeBytes   int64
	decisions    *cache.Cache
	logger       *slog.Logger
}

// SelectorOption configures a Selector
type SelectorOption func(*Selector)

// WithSelectorLogger sets the logger used for decisions
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSelector builds a selector from the extraction configuration
func NewSelector(cfg model.ExtractionConfig, prober Prober, policy pacing.Policy, scanner *Scanner, opts ...SelectorOption) *Selector {
	s := &Selector{
		prober:       prober,
		policy:       policy,
		scanner:      scanner,
		knownDomains: lowerAll(cfg.KnownDynamicDomains),
		indicators:   lowerAll(cfg.DynamicIndicators),
		selectors:    cfg.DynamicSelectors,
		contactless:  cfg.ContactlessPagesDynamic,
		probeTimeout: model.Seconds(cfg.ProbeTimeout),
		probeBytes:   cfg.MaxBodyBytes,
		decisions:    cache.New(decisionTTL, 10*time.Minute),
		logger:       slog.Default(),
	}
	if s.probeTimeout <= 0 {
		s.probeTimeout = 5 * time.Second
	}
	if s.probeBytes <= 0 || s.probeBytes > defaultProbeBytes {
		s.probeBytes = defaultProbeBytes
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Choose returns the extraction strategy for rawURL. It never fails: any
// probe problem resolves to Dynamic. Decisions are cached per URL.
func (s *Selector) Choose(ctx context.Context, rawURL string) Decision {
	if d, ok := s.decisions.Get(rawURL); ok {
		return d.(Decision)
	}

	d := s.decide(ctx, rawURL)
	// decisions made under a cancelled context are not cached
	if ctx.Err() == nil {
		s.decisions.Set(rawURL, d, cache.DefaultExpiration)
	}
	s.logger.Debug("strategy selected", "url", rawURL, "strategy", d.Strategy.String(), "reason", d.Reason)
	return d
}

func (s *Selector) decide(ctx context.Context, rawURL string) Decision {
	if domain, ok := s.knownDomain(rawURL); ok {
		return Decision{Strategy: model.StrategyDynamic, Reason: "known dynamic domain " + domain}
	}

	ua := ""
	if s.policy != nil {
		ua = s.policy.UserAgent()
	}
	res, err := s.prober.Probe(ctx, rawURL, pacing.Headers(ua), s.probeTimeout, s.probeBytes)
	if err != nil {
		return Decision{Strategy: model.StrategyDynamic, Reason: fmt.Sprintf("probe failed: %v", err)}
	}

	markup := strings.ToLower(res.HTML)
	for _, ind := range s.indicators {
		if ind != "" && strings.Contains(markup, ind) {
			return Decision{Strategy: model.StrategyDynamic, Reason: "indicator " + ind}
		}
	}

	if len(s.selectors) > 0 {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
		if err == nil {
			for _, sel := range s.selectors {
				if doc.Find(sel).Length() > 0 {
					return Decision{Strategy: model.StrategyDynamic, Reason: "contact widget " + sel}
				}
			}
		}
	}

	if s.contactless && s.scanner != nil && !s.scanner.HasContactPattern(res.HTML) {
		lowerURL := strings.ToLower(rawURL)
		if len(res.HTML) > contactlessMinBytes || strings.Contains(lowerURL, "contact") {
			return Decision{Strategy: model.StrategyDynamic, Reason: "no contact data in probe"}
		}
	}

	return Decision{Strategy: model.StrategyStatic, Reason: "static markup"}
}

// knownDomain reports whether the URL host is, or is a subdomain of, a known dynamic domain
func (s *Selector) knownDomain(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, d := range s.knownDomains {
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}
