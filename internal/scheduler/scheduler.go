package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/abdulachik/amplibot/internal/engage"
	"github.com/abdulachik/amplibot/internal/model"
	"github.com/abdulachik/amplibot/internal/notify"
	"github.com/abdulachik/amplibot/internal/state"
	"github.com/abdulachik/amplibot/internal/twitter"
)

// Search results, as counted in metrics.
const (
	SearchOK          = "ok"
	SearchEmpty       = "empty"
	SearchNoResponse  = "no_response"
	SearchRateLimited = "rate_limited"
	SearchAPIError    = "api_error"
	SearchFatal       = "fatal"
)

// Searcher runs the recent search. A nil batch with a nil error means no response.
type Searcher interface {
	Search(ctx context.Context, query, sinceID string, max int) (*model.Batch, error)
}

// Processor handles one candidate post.
type Processor interface {
	Process(ctx context.Context, post model.Post, batch *model.Batch) engage.PostResult
}

// Recorder receives loop-level counts.
type Recorder interface {
	ObserveSearch(result string)
	ObserveCycle(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSearch(string)        {}
func (nopRecorder) ObserveCycle(time.Duration) {}

// Intervals are the loop's pauses.
type Intervals struct {
	// Success follows a batch with posts or attempted actions.
	Success time.Duration
	// NoResults follows an empty batch or a missing response.
	NoResults time.Duration
	// AfterAction and AfterNoAction pause between posts of one batch.
	AfterAction   time.Duration
	AfterNoAction time.Duration
	// APIError follows a search API error.
	APIError time.Duration
	// RateLimitBuffer is added to Success after a search rate limit.
	RateLimitBuffer time.Duration
	// CriticalError is waited once before a fatal stop.
	CriticalError time.Duration
}

// Config holds scheduler configuration.
type Config struct {
	Query      string
	MaxResults int
	Intervals  Intervals

	Searcher  Searcher
	Processor Processor
	Ledger    *state.Ledger
	Notifier  notify.Notifier
	Sleep     Sleeper
	Metrics   Recorder
	Health    *Health
}

// Scheduler is the poll loop: search, process each post, advance the
// watermark, wait.
type Scheduler struct {
	query      string
	maxResults int
	intervals  Intervals

	searcher  Searcher
	processor Processor
	ledger    *state.Ledger
	notifier  notify.Notifier
	sleep     Sleeper
	metrics   Recorder
	health    *Health
}

// New creates a new scheduler.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		query:      cfg.Query,
		maxResults: cfg.MaxResults,
		intervals:  cfg.Intervals,
		searcher:   cfg.Searcher,
		processor:  cfg.Processor,
		ledger:     cfg.Ledger,
		notifier:   cfg.Notifier,
		sleep:      cfg.Sleep,
		metrics:    cfg.Metrics,
		health:     cfg.Health,
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier()
	}
	if s.sleep == nil {
		s.sleep = Sleep
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.health == nil {
		s.health = NewHealth()
	}
	return s
}

// Health returns the health tracker.
func (s *Scheduler) Health() *Health {
	return s.health
}

// RunCycle performs one search and processes its posts. It returns the wait
// before the next search. Errors come from the search or from ctx.
func (s *Scheduler) RunCycle(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveCycle(time.Since(start)) }()

	since := s.ledger.Watermark()
	slog.Info("searching",
		"query", s.query,
		"since_id", since,
		"max_results", s.maxResults,
	)

	batch, err := s.searcher.Search(ctx, s.query, since, s.maxResults)
	if err != nil {
		if ctx.Err() == nil {
			s.health.SetUnhealthy(ComponentSearch, err)
		}
		return 0, fmt.Errorf("search: %w", err)
	}
	if batch == nil {
		s.metrics.ObserveSearch(SearchNoResponse)
		s.health.SetHealthy(ComponentSearch, "no response")
		slog.Warn("search returned no response")
		return s.intervals.NoResults, nil
	}
	s.health.SetHealthy(ComponentSearch, fmt.Sprintf("%d posts", len(batch.Posts)))

	if len(batch.Posts) == 0 {
		s.metrics.ObserveSearch(SearchEmpty)
		slog.Info("no new posts found")
		return s.intervals.NoResults, nil
	}
	s.metrics.ObserveSearch(SearchOK)
	slog.Info("found posts", "count", len(batch.Posts))

	highest := ""
	attempted := false
	for _, post := range batch.Posts {
		highest = model.MaxID(highest, post.ID)

		res := s.processor.Process(ctx, post, batch)
		pause := s.intervals.AfterNoAction
		if res.Attempted {
			attempted = true
			pause = s.intervals.AfterAction
		}

		// An interrupted batch keeps the previous watermark so the whole
		// batch is searched again; the id sets skip what was already done.
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.sleep(ctx, pause, fmt.Sprintf("Post %s delay: ", post.ID)); err != nil {
			return 0, err
		}
	}

	s.advance(ctx, highest)

	slog.Info("batch complete",
		"posts", len(batch.Posts),
		"attempted", attempted,
		"watermark", s.ledger.Watermark(),
	)
	return s.intervals.Success, nil
}

// advance moves the watermark forward. A persistence failure is logged and
// the in-memory value is kept for the final flush.
func (s *Scheduler) advance(ctx context.Context, id string) {
	moved, err := s.ledger.Advance(context.WithoutCancel(ctx), id)
	if err != nil {
		s.health.SetUnhealthy(ComponentState, err)
		slog.Error("failed to save watermark", "watermark", id, "error", err)
		return
	}
	if moved {
		s.health.SetHealthy(ComponentState, "watermark saved")
		slog.Info("watermark advanced", "watermark", id)
	}
}

// Run loops until ctx is canceled or an unexpected error occurs. Search rate
// limits and API errors are waited out. On interrupt the watermark is flushed
// and Run returns nil. Any other error, including a panic, is fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("starting poll loop",
		"query", s.query,
		"max_results", s.maxResults,
		"success_interval", s.intervals.Success,
		"no_results_interval", s.intervals.NoResults,
		"watermark", s.ledger.Watermark(),
	)

	for {
		wait, err := s.step(ctx)
		label := "Next search batch in: "

		if err != nil {
			var rl *twitter.RateLimitError
			var apiErr *twitter.APIError
			switch {
			case ctx.Err() != nil:
				return s.stop(ctx)
			case errors.As(err, &rl):
				s.metrics.ObserveSearch(SearchRateLimited)
				wait = s.intervals.Success + s.intervals.RateLimitBuffer
				label = "Search rate limit cooldown: "
				slog.Error("search rate limited", "reset_at", rl.ResetAt, "wait", wait)
			case errors.As(err, &apiErr):
				s.metrics.ObserveSearch(SearchAPIError)
				wait = s.intervals.APIError
				label = "Waiting after API error: "
				slog.Error("search api error",
					"status", apiErr.StatusCode,
					"title", apiErr.Title,
					"detail", apiErr.Detail,
					"error", err,
				)
			default:
				s.metrics.ObserveSearch(SearchFatal)
				return s.fatal(ctx, err)
			}
		}

		if err := s.sleep(ctx, wait, label); err != nil {
			return s.stop(ctx)
		}
	}
}

// panicError carries a recovered panic out of a cycle.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (s *Scheduler) step(ctx context.Context) (wait time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return s.RunCycle(ctx)
}

func (s *Scheduler) stop(ctx context.Context) error {
	slog.Info("poll loop interrupted")
	s.flush(ctx)
	return nil
}

func (s *Scheduler) fatal(ctx context.Context, err error) error {
	stack := debug.Stack()
	var pe *panicError
	if errors.As(err, &pe) {
		stack = pe.stack
	}
	slog.Error("unexpected error, stopping poll loop",
		"error", err,
		"stack", string(stack),
	)

	s.flush(ctx)

	notifyCtx := context.WithoutCancel(ctx)
	if nerr := s.notifier.Send(notifyCtx, notify.Notification{
		Subject: "amplibot stopped",
		Body:    fmt.Sprintf("The poll loop stopped after an unexpected error: %v (watermark %q)", err, s.ledger.Watermark()),
	}); nerr != nil {
		slog.Warn("failed to send notification", "error", nerr)
	}

	if serr := s.sleep(ctx, s.intervals.CriticalError, "Exiting after critical error in: "); serr != nil {
		slog.Info("exit delay interrupted")
	}
	return fmt.Errorf("poll loop: %w", err)
}

func (s *Scheduler) flush(ctx context.Context) {
	if err := s.ledger.Flush(context.WithoutCancel(ctx)); err != nil {
		slog.Error("failed to flush watermark", "error", err)
		return
	}
	if wm := s.ledger.Watermark(); wm != "" {
		slog.Info("watermark flushed", "watermark", wm)
	}
}
