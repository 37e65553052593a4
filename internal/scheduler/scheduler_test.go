package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/amplibot/internal/cooldown"
	"github.com/abdulachik/amplibot/internal/engage"
	"github.com/abdulachik/amplibot/internal/filter"
	"github.com/abdulachik/amplibot/internal/model"
	"github.com/abdulachik/amplibot/internal/notify"
	"github.com/abdulachik/amplibot/internal/state"
	"github.com/abdulachik/amplibot/internal/twitter"
)

var testIntervals = Intervals{
	Success:         905 * time.Second,
	NoResults:       300 * time.Second,
	AfterAction:     60 * time.Second,
	AfterNoAction:   10 * time.Second,
	APIError:        61 * time.Second,
	RateLimitBuffer: 60 * time.Second,
	CriticalError:   11 * time.Second,
}

type searchReply struct {
	batch *model.Batch
	err   error
	panic bool
}

// fakeSearcher replays scripted replies and records the since ids it saw.
type fakeSearcher struct {
	replies []searchReply
	since   []string
	// onExhausted runs when the script is empty.
	onExhausted func()
}

func (f *fakeSearcher) Search(_ context.Context, _, sinceID string, _ int) (*model.Batch, error) {
	f.since = append(f.since, sinceID)
	if len(f.replies) == 0 {
		if f.onExhausted != nil {
			f.onExhausted()
		}
		return nil, context.Canceled
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.panic {
		panic("search exploded")
	}
	return r.batch, r.err
}

// fakeProcessor marks the listed post ids as attempted.
type fakeProcessor struct {
	attempted map[string]bool
	seen      []string
}

func (p *fakeProcessor) Process(_ context.Context, post model.Post, _ *model.Batch) engage.PostResult {
	p.seen = append(p.seen, post.ID)
	return engage.PostResult{PostID: post.ID, Attempted: p.attempted[post.ID]}
}

type sleepCall struct {
	d     time.Duration
	label string
}

// fakeSleeper records pauses and can cancel the run after n of them.
type fakeSleeper struct {
	calls    []sleepCall
	cancel   context.CancelFunc
	cancelAt int
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration, label string) error {
	s.calls = append(s.calls, sleepCall{d, label})
	if s.cancel != nil && len(s.calls) == s.cancelAt {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

func (s *fakeSleeper) durations() []time.Duration {
	out := make([]time.Duration, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.d
	}
	return out
}

// countingStore counts watermark writes.
type countingStore struct {
	*state.MemoryStore
	saves int
}

func (s *countingStore) SaveWatermark(ctx context.Context, id string) error {
	s.saves++
	return s.MemoryStore.SaveWatermark(ctx, id)
}

type fakeNotifier struct {
	sent []notify.Notification
}

func (n *fakeNotifier) Send(_ context.Context, notification notify.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

type loopFixture struct {
	sched     *Scheduler
	searcher  *fakeSearcher
	processor *fakeProcessor
	sleeper   *fakeSleeper
	store     *countingStore
	ledger    *state.Ledger
	notifier  *fakeNotifier
}

func newLoop(t *testing.T, replies ...searchReply) *loopFixture {
	t.Helper()
	f := &loopFixture{
		searcher:  &fakeSearcher{replies: replies},
		processor: &fakeProcessor{attempted: map[string]bool{}},
		sleeper:   &fakeSleeper{},
		store:     &countingStore{MemoryStore: state.NewMemoryStore()},
		notifier:  &fakeNotifier{},
	}
	ledger, err := state.Load(context.Background(), f.store)
	require.NoError(t, err)
	f.ledger = ledger

	f.sched = New(Config{
		Query:      "#alxafrica",
		MaxResults: 10,
		Intervals:  testIntervals,
		Searcher:   f.searcher,
		Processor:  f.processor,
		Ledger:     ledger,
		Notifier:   f.notifier,
		Sleep:      f.sleeper.Sleep,
	})
	return f
}

func posts(ids ...string) *model.Batch {
	b := &model.Batch{}
	for _, id := range ids {
		b.Posts = append(b.Posts, model.Post{ID: id, AuthorID: "1"})
	}
	return b
}

func TestRunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("no response waits the short interval", func(t *testing.T) {
		f := newLoop(t, searchReply{})
		wait, err := f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, testIntervals.NoResults, wait)
		assert.Equal(t, "", f.ledger.Watermark())
	})

	t.Run("empty batch keeps the watermark", func(t *testing.T) {
		f := newLoop(t, searchReply{batch: posts()})
		_, err := f.ledger.Advance(ctx, "500")
		require.NoError(t, err)

		wait, err := f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, testIntervals.NoResults, wait)
		assert.Equal(t, "500", f.ledger.Watermark())
		assert.Equal(t, []string{"500"}, f.searcher.since)
	})

	t.Run("posts without actions", func(t *testing.T) {
		f := newLoop(t, searchReply{batch: posts("102", "101")})

		wait, err := f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, testIntervals.Success, wait)
		assert.Equal(t, []string{"102", "101"}, f.processor.seen)
		assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, f.sleeper.durations())
		assert.Equal(t, "102", f.ledger.Watermark())
		assert.Equal(t, 1, f.store.saves, "persisted once per advance")
	})

	t.Run("acted posts get the longer pause", func(t *testing.T) {
		f := newLoop(t, searchReply{batch: posts("7", "8")})
		f.processor.attempted["8"] = true

		_, err := f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{10 * time.Second, 60 * time.Second}, f.sleeper.durations())
		assert.Equal(t, "Post 8 delay: ", f.sleeper.calls[1].label)
	})

	t.Run("watermark never moves back", func(t *testing.T) {
		f := newLoop(t, searchReply{batch: posts("300", "400")})
		_, err := f.ledger.Advance(ctx, "500")
		require.NoError(t, err)
		saves := f.store.saves

		_, err = f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, "500", f.ledger.Watermark())
		assert.Equal(t, saves, f.store.saves)
	})

	t.Run("ids wider than int64 compare numerically", func(t *testing.T) {
		f := newLoop(t, searchReply{batch: posts("99999999999999999999", "100000000000000000000")})

		_, err := f.sched.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, "100000000000000000000", f.ledger.Watermark())
	})

	t.Run("search errors are returned", func(t *testing.T) {
		f := newLoop(t, searchReply{err: &twitter.APIError{Endpoint: twitter.EndpointSearch, StatusCode: 503}})

		_, err := f.sched.RunCycle(ctx)
		assert.True(t, twitter.IsAPIError(err))
		assert.False(t, f.sched.Health().IsOverallHealthy())
	})
}

func TestRun_Recovery(t *testing.T) {
	t.Run("search rate limit waits success plus buffer", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newLoop(t,
			searchReply{err: &twitter.RateLimitError{Endpoint: twitter.EndpointSearch}},
			searchReply{batch: posts("10")},
		)
		f.searcher.onExhausted = cancel

		err := f.sched.Run(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, f.sleeper.calls)
		assert.Equal(t, 965*time.Second, f.sleeper.calls[0].d)
		assert.Equal(t, []string{"", ""}, f.searcher.since[:2])
		assert.Equal(t, "10", f.searcher.since[2], "the next search starts from the new watermark")
	})

	t.Run("api error waits the generic delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newLoop(t, searchReply{err: &twitter.APIError{Endpoint: twitter.EndpointSearch, StatusCode: 400, Detail: "bad query"}})
		f.searcher.onExhausted = cancel

		require.NoError(t, f.sched.Run(ctx))
		assert.Equal(t, testIntervals.APIError, f.sleeper.calls[0].d)
		assert.Empty(t, f.notifier.sent)
	})

	t.Run("interrupt mid-batch keeps the previous watermark", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newLoop(t,
			searchReply{batch: posts("10")},
			searchReply{batch: posts("300", "200", "100")},
		)
		f.sleeper.cancel = cancel
		// post 10 pause, success wait, post 300 pause
		f.sleeper.cancelAt = 3

		require.NoError(t, f.sched.Run(ctx))
		assert.Equal(t, []string{"10", "300"}, f.processor.seen)
		assert.Equal(t, "10", f.ledger.Watermark(), "unprocessed posts 200 and 100 stay above the watermark")

		wm, err := f.store.LoadWatermark(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "10", wm)
		assert.Equal(t, 2, f.store.saves, "advance plus final flush")
	})

	t.Run("interrupt in the first batch persists nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newLoop(t, searchReply{batch: posts("300", "200", "100")})
		f.sleeper.cancel = cancel
		f.sleeper.cancelAt = 1

		require.NoError(t, f.sched.Run(ctx))
		assert.Equal(t, []string{"300"}, f.processor.seen)
		assert.Empty(t, f.ledger.Watermark())
		assert.Equal(t, 0, f.store.saves)
	})

	t.Run("interrupt with no watermark writes nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f := newLoop(t, searchReply{})
		f.sleeper.cancel = cancel
		f.sleeper.cancelAt = 1

		require.NoError(t, f.sched.Run(ctx))
		assert.Equal(t, 0, f.store.saves)
	})
}

func TestRun_Fatal(t *testing.T) {
	t.Run("unexpected error stops the loop", func(t *testing.T) {
		f := newLoop(t,
			searchReply{batch: posts("30")},
			searchReply{err: errors.New("disk on fire")},
		)

		err := f.sched.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")

		require.Len(t, f.notifier.sent, 1)
		assert.Contains(t, f.notifier.sent[0].Body, "disk on fire")

		last := f.sleeper.calls[len(f.sleeper.calls)-1]
		assert.Equal(t, testIntervals.CriticalError, last.d)

		wm, _ := f.store.LoadWatermark(context.Background())
		assert.Equal(t, "30", wm)
		assert.Equal(t, 2, f.store.saves)
	})

	t.Run("panics are fatal", func(t *testing.T) {
		f := newLoop(t, searchReply{panic: true})

		err := f.sched.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search exploded")
		assert.Len(t, f.notifier.sent, 1)
	})
}

// TestRun_Scenarios drives the real engine against a file store.
func TestRun_Scenarios(t *testing.T) {
	type actorCall struct {
		kind model.Kind
		id   string
	}

	setup := func(t *testing.T, batch *model.Batch) (*Scheduler, *[]actorCall, string) {
		t.Helper()
		ctx := context.Background()
		dir := t.TempDir()

		store, err := state.NewFileStore(dir)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		ledger, err := state.Load(ctx, store)
		require.NoError(t, err)

		calls := &[]actorCall{}
		actor := actorFunc(func(kind model.Kind, id string) error {
			*calls = append(*calls, actorCall{kind, id})
			return nil
		})

		engine := engage.New(engage.Config{
			Enabled: map[model.Kind]bool{
				model.KindRetweet: true,
				model.KindLike:    true,
				model.KindFollow:  true,
			},
			BotID:  "42",
			Filter: filter.New(filter.Config{Languages: []string{"en"}}),
			Cooldowns: cooldown.New(map[model.Kind]time.Duration{
				model.KindRetweet: 910 * time.Second,
				model.KindLike:    915 * time.Second,
				model.KindFollow:  920 * time.Second,
			}),
			Ledger: ledger,
			Actor:  actor,
		})

		sched := New(Config{
			Query:      "#alxafrica",
			MaxResults: 10,
			Intervals:  testIntervals,
			Searcher:   &fakeSearcher{replies: []searchReply{{batch: batch}}},
			Processor:  engine,
			Ledger:     ledger,
			Sleep:      func(context.Context, time.Duration, string) error { return nil },
		})
		return sched, calls, dir
	}

	alice := model.Post{ID: "100", AuthorID: "1", AuthorUsername: "alice", Lang: "en", Text: "hello #alxafrica"}

	t.Run("alice gets all three actions", func(t *testing.T) {
		sched, calls, dir := setup(t, &model.Batch{Posts: []model.Post{alice}})

		_, err := sched.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []actorCall{
			{model.KindRetweet, "100"},
			{model.KindLike, "100"},
			{model.KindFollow, "1"},
		}, *calls)

		for file, want := range map[string]string{
			state.RetweetedIDsFile: "100\n",
			state.LikedIDsFile:     "100\n",
			state.FollowedIDsFile:  "1\n",
			state.WatermarkFile:    "100",
		} {
			b, err := os.ReadFile(filepath.Join(dir, file))
			require.NoError(t, err, file)
			assert.Equal(t, want, string(b), file)
		}
	})

	t.Run("french post is skipped but advances the watermark", func(t *testing.T) {
		fr := alice
		fr.Lang = "fr"
		sched, calls, dir := setup(t, &model.Batch{Posts: []model.Post{fr}})

		_, err := sched.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Empty(t, *calls)

		b, err := os.ReadFile(filepath.Join(dir, state.WatermarkFile))
		require.NoError(t, err)
		assert.Equal(t, "100", string(b))
	})
}

type actorFunc func(kind model.Kind, id string) error

func (f actorFunc) Retweet(_ context.Context, id string) error { return f(model.KindRetweet, id) }
func (f actorFunc) Like(_ context.Context, id string) error    { return f(model.KindLike, id) }
func (f actorFunc) Follow(_ context.Context, id string) error  { return f(model.KindFollow, id) }
