// Package loadgen drives a circulation workflow with a random mix of borrows, returns and payments.
//
// The generator picks every request up front in a single producer goroutine, so a fixed seed yields
// the same request sequence. Workers execute the requests concurrently against the workflow.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/observable"
)

// Scenario names.
const (
	ScenarioBorrow = "borrow"
	ScenarioReturn = "return"
	ScenarioPay    = "pay"
)

const (
	logMsgStats      = "load generator stats"
	logMsgFinalStats = "load generator final stats"
	logMsgFailed     = "load generator request failed"

	defaultWorkers        = 4
	defaultPatrons        = 20
	defaultRequestTimeout = 5 * time.Second
	defaultReportInterval = 10 * time.Second
)

var (
	// ErrNoItems is returned when the generator has no item IDs to work with.
	ErrNoItems = errors.New("at least one item id is required")

	// ErrInvalidConfig is returned for negative rates, counts or weights.
	ErrInvalidConfig = errors.New("invalid load generator config")
)

// Weights sets the relative frequency of the scenarios. The zero value means 45/45/10.
type Weights struct {
	Borrow int
	Return int
	Pay    int
}

func (w Weights) total() int {
	return w.Borrow + w.Return + w.Pay
}

// Config defines one load generator run.
type Config struct {
	ItemIDs  []circulation.ItemIDInt64
	Patrons  int     // number of distinct patrons, default 20
	Workers  int     // concurrent requests, default 4
	Rate     int     // requests per second, 0 means as fast as the workers allow
	Requests int     // stop after this many requests, 0 means until the context ends
	Seed     uint64  // seed of the request sequence
	Weights  Weights // scenario mix
}

// Stats summarizes a run.
type Stats struct {
	Requests   int64            `json:"requests"`
	Succeeded  int64            `json:"succeeded"`
	Rejected   int64            `json:"rejected"`
	Failed     int64            `json:"failed"`
	ByScenario map[string]int64 `json:"by_scenario"`
	Duration   time.Duration    `json:"duration_ns"`
}

// RequestsPerSecond is the achieved throughput.
func (s Stats) RequestsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}

	return float64(s.Requests) / s.Duration.Seconds()
}

type request struct {
	scenario string
	patronID circulation.PatronIDString
	itemID   circulation.ItemIDInt64
}

// Generator runs load against a workflow.
type Generator struct {
	workflow       observable.Circulation
	cfg            Config
	logger         circulation.ContextualLogger
	requestTimeout time.Duration
	reportInterval time.Duration
	patronIDs      []circulation.PatronIDString

	mu    sync.Mutex
	stats Stats
}

// Option configures a Generator.
type Option func(*Generator) error

// WithContextualLogger sets the logger for periodic stats and failed requests.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(g *Generator) error {
		g.logger = logger
		return nil
	}
}

// WithRequestTimeout bounds each single request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(g *Generator) error {
		if timeout <= 0 {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("request timeout must be positive, got %s", timeout))
		}

		g.requestTimeout = timeout

		return nil
	}
}

// WithReportInterval sets how often the stats are logged during a run.
func WithReportInterval(interval time.Duration) Option {
	return func(g *Generator) error {
		if interval <= 0 {
			return errors.Join(ErrInvalidConfig, fmt.Errorf("report interval must be positive, got %s", interval))
		}

		g.reportInterval = interval

		return nil
	}
}

// New creates a Generator and fills in the defaults of cfg.
func New(workflow observable.Circulation, cfg Config, opts ...Option) (*Generator, error) {
	if len(cfg.ItemIDs) == 0 {
		return nil, ErrNoItems
	}

	if cfg.Patrons < 0 || cfg.Workers < 0 || cfg.Rate < 0 || cfg.Requests < 0 ||
		cfg.Weights.Borrow < 0 || cfg.Weights.Return < 0 || cfg.Weights.Pay < 0 {

		return nil, ErrInvalidConfig
	}

	if cfg.Patrons == 0 {
		cfg.Patrons = defaultPatrons
	}

	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}

	if cfg.Weights.total() == 0 {
		cfg.Weights = Weights{Borrow: 45, Return: 45, Pay: 10}
	}

	g := &Generator{
		workflow:       workflow,
		cfg:            cfg,
		requestTimeout: defaultRequestTimeout,
		reportInterval: defaultReportInterval,
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	g.patronIDs = make([]circulation.PatronIDString, cfg.Patrons)
	for i := range g.patronIDs {
		g.patronIDs[i] = PatronID(i + 1)
	}

	return g, nil
}

// PatronID derives the stable patron ID of the n-th generated patron.
func PatronID(n int) circulation.PatronIDString {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "patron-%d", n)).String()
}

// Run generates load until cfg.Requests are done or ctx ends.
// Ending ctx is a regular stop for an unbounded run; a bounded run reports it as an error.
func (g *Generator) Run(ctx context.Context) (Stats, error) {
	g.mu.Lock()
	g.stats = Stats{ByScenario: make(map[string]int64)}
	g.mu.Unlock()

	start := time.Now()
	requests := make(chan request)

	var workers sync.WaitGroup
	for range g.cfg.Workers {
		workers.Add(1)
		go func() {
			defer workers.Done()

			for req := range requests {
				g.execute(ctx, req)
			}
		}()
	}

	reportCtx, stopReporting := context.WithCancel(ctx)
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		g.report(reportCtx, start)
	}()

	produceErr := g.produce(ctx, requests)
	close(requests)
	workers.Wait()
	stopReporting()
	<-reporterDone

	stats := g.snapshot(time.Since(start))
	g.logInfo(ctx, logMsgFinalStats, stats)

	if produceErr != nil && g.cfg.Requests > 0 {
		return stats, produceErr
	}

	return stats, nil
}

func (g *Generator) produce(ctx context.Context, requests chan<- request) error {
	rng := rand.New(rand.NewPCG(g.cfg.Seed, g.cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // load generation needs no secure random

	var tick <-chan time.Time
	if g.cfg.Rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(g.cfg.Rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := 0; g.cfg.Requests == 0 || n < g.cfg.Requests; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		req := g.nextRequest(rng)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case requests <- req:
		}
	}

	return nil
}

func (g *Generator) nextRequest(rng *rand.Rand) request {
	req := request{
		patronID: g.patronIDs[rng.IntN(len(g.patronIDs))],
		itemID:   g.cfg.ItemIDs[rng.IntN(len(g.cfg.ItemIDs))],
	}

	switch r := rng.IntN(g.cfg.Weights.total()); {
	case r < g.cfg.Weights.Borrow:
		req.scenario = ScenarioBorrow
	case r < g.cfg.Weights.Borrow+g.cfg.Weights.Return:
		req.scenario = ScenarioReturn
	default:
		req.scenario = ScenarioPay
	}

	return req
}

func (g *Generator) execute(ctx context.Context, req request) {
	reqCtx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	var err error

	switch req.scenario {
	case ScenarioBorrow:
		_, err = g.workflow.BorrowItem(reqCtx, req.patronID, req.itemID)
	case ScenarioReturn:
		_, err = g.workflow.ReturnItem(reqCtx, req.patronID, req.itemID)
	case ScenarioPay:
		err = g.settle(reqCtx, req.patronID)
	}

	status := observable.ClassifyOutcome(err)

	g.mu.Lock()
	g.stats.Requests++
	g.stats.ByScenario[req.scenario]++

	switch status {
	case observable.StatusSuccess:
		g.stats.Succeeded++
	case observable.StatusRejected:
		g.stats.Rejected++
	default:
		g.stats.Failed++
	}
	g.mu.Unlock()

	if status != observable.StatusSuccess && status != observable.StatusRejected && g.logger != nil {
		g.logger.WarnContext(ctx, logMsgFailed, "scenario", req.scenario, "status", status, "error", err.Error())
	}
}

// settle pays the patron's whole outstanding fine, if any.
func (g *Generator) settle(ctx context.Context, patronID circulation.PatronIDString) error {
	total, err := g.workflow.TotalFine(ctx, patronID)
	if err != nil || total == 0 {
		return err
	}

	_, err = g.workflow.PayFine(ctx, patronID, total)

	return err
}

func (g *Generator) report(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(g.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.logInfo(ctx, logMsgStats, g.snapshot(time.Since(start)))
		}
	}
}

func (g *Generator) snapshot(duration time.Duration) Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := g.stats
	stats.Duration = duration
	stats.ByScenario = make(map[string]int64, len(g.stats.ByScenario))
	for scenario, count := range g.stats.ByScenario {
		stats.ByScenario[scenario] = count
	}

	return stats
}

func (g *Generator) logInfo(ctx context.Context, msg string, stats Stats) {
	if g.logger == nil {
		return
	}

	g.logger.InfoContext(ctx, msg,
		"requests", stats.Requests,
		"succeeded", stats.Succeeded,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
		"requests_per_second", stats.RequestsPerSecond(),
	)
}
