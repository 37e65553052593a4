// Package engage decides, per candidate post, which reciprocal actions to
// take and records what happened.
package engage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/abdulachik/amplibot/internal/cooldown"
	"github.com/abdulachik/amplibot/internal/filter"
	"github.com/abdulachik/amplibot/internal/model"
	"github.com/abdulachik/amplibot/internal/state"
	"github.com/abdulachik/amplibot/internal/twitter"
)

// Status is the result of one action attempt.
type Status string

const (
	StatusSkipped     Status = "skipped"
	StatusSucceeded   Status = "succeeded"
	StatusRateLimited Status = "rate_limited"
	StatusFailed      Status = "failed"
)

// Reasons attached to outcomes and post results.
const (
	ReasonDisabled           = "disabled"
	ReasonAlreadyReshare     = "already_a_retweet_in_search_result"
	ReasonSelf               = "self"
	ReasonDuplicate          = "duplicate"
	ReasonCooldown           = "cooldown"
	ReasonRateLimited        = "rate_limited"
	ReasonAlreadyPerformed   = "already_performed"
	ReasonAPIError           = "api_error"
	ReasonError              = "error"
	ReasonSelfAuthored       = "self_authored"
	ReasonTargetSelfAuthored = "target_self_authored"
)

// Post decisions, as counted in metrics.
const (
	DecisionActed    = "acted"
	DecisionSkipped  = "skipped"
	DecisionFiltered = "filtered"
	DecisionSelf     = "self"
)

// Fallback usernames when a response does not include the author.
const (
	UnknownUser     = "UnknownUser"
	OriginalUnknown = "OriginalUnknown"
)

// alreadyPerformed holds lowercase fragments X uses when the action was
// already taken on the subject.
var alreadyPerformed = map[model.Kind][]string{
	model.KindRetweet: {"already retweeted", "you have already retweeted this tweet"},
	model.KindLike:    {"already liked", "you have already liked this tweet", "already favorited"},
	model.KindFollow:  {"already following", "you are already following"},
}

// Actor performs the external actions.
type Actor interface {
	Retweet(ctx context.Context, postID string) error
	Like(ctx context.Context, postID string) error
	Follow(ctx context.Context, userID string) error
}

// Recorder receives counts for every outcome.
type Recorder interface {
	ObserveAction(kind, status, reason string)
	ObservePost(decision string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAction(string, string, string) {}
func (nopRecorder) ObservePost(string)                   {}

// Outcome describes one action attempt.
type Outcome struct {
	Kind      model.Kind
	SubjectID string
	Status    Status
	Reason    string
	// Remaining is set for cooldown skips.
	Remaining time.Duration
	// AlreadyPerformed marks failures X reported as a repeat of a past action.
	AlreadyPerformed bool
	Err              error
}

// Attempted reports whether the actor was invoked.
func (o Outcome) Attempted() bool {
	return o.Status != StatusSkipped
}

// Config wires the engine.
type Config struct {
	Enabled   map[model.Kind]bool
	BotID     string
	Filter    *filter.Filter
	Cooldowns *cooldown.Tracker
	Ledger    *state.Ledger
	Actor     Actor
	Metrics   Recorder
}

// Engine applies the action rules. It is not safe for concurrent use.
type Engine struct {
	enabled   map[model.Kind]bool
	botID     string
	filter    *filter.Filter
	cooldowns *cooldown.Tracker
	ledger    *state.Ledger
	actor     Actor
	metrics   Recorder
}

// New creates an engine.
func New(cfg Config) *Engine {
	e := &Engine{
		enabled:   cfg.Enabled,
		botID:     cfg.BotID,
		filter:    cfg.Filter,
		cooldowns: cfg.Cooldowns,
		ledger:    cfg.Ledger,
		actor:     cfg.Actor,
		metrics:   cfg.Metrics,
	}
	if e.filter == nil {
		e.filter = filter.New(filter.Config{})
	}
	if e.metrics == nil {
		e.metrics = nopRecorder{}
	}
	return e
}

// Attempt runs the precondition checks for kind against target and, when
// they pass, invokes the actor. Errors are folded into the outcome.
func (e *Engine) Attempt(ctx context.Context, kind model.Kind, target Target) Outcome {
	out := Outcome{Kind: kind, SubjectID: subject(kind, target)}

	switch {
	case !e.enabled[kind]:
		out.Status, out.Reason = StatusSkipped, ReasonDisabled
	case kind == model.KindRetweet && target.AlreadyReshare:
		out.Status, out.Reason = StatusSkipped, ReasonAlreadyReshare
	case kind == model.KindFollow && target.Post.AuthorID == e.botID:
		out.Status, out.Reason = StatusSkipped, ReasonSelf
	case e.ledger.Contains(kind, out.SubjectID):
		out.Status, out.Reason = StatusSkipped, ReasonDuplicate
	case !e.cooldowns.Allowed(kind):
		out.Status, out.Reason = StatusSkipped, ReasonCooldown
		out.Remaining = e.cooldowns.Remaining(kind)
	default:
		e.invoke(ctx, &out)
	}

	e.log(out, target)
	e.metrics.ObserveAction(string(out.Kind), string(out.Status), out.Reason)
	return out
}

func (e *Engine) invoke(ctx context.Context, out *Outcome) {
	var err error
	switch out.Kind {
	case model.KindRetweet:
		err = e.actor.Retweet(ctx, out.SubjectID)
	case model.KindLike:
		err = e.actor.Like(ctx, out.SubjectID)
	case model.KindFollow:
		err = e.actor.Follow(ctx, out.SubjectID)
	}

	switch {
	case err == nil:
		out.Status = StatusSucceeded
		e.record(ctx, out.Kind, out.SubjectID)
		e.cooldowns.RecordSuccess(out.Kind)
	case twitter.IsRateLimit(err):
		out.Status, out.Reason, out.Err = StatusRateLimited, ReasonRateLimited, err
		// Start the window anyway so the next attempt waits it out.
		e.cooldowns.RecordSuccess(out.Kind)
	case isAlreadyPerformed(out.Kind, err):
		out.Status, out.Reason, out.Err = StatusFailed, ReasonAlreadyPerformed, err
		out.AlreadyPerformed = true
		e.record(ctx, out.Kind, out.SubjectID)
	case twitter.IsAPIError(err):
		out.Status, out.Reason, out.Err = StatusFailed, ReasonAPIError, err
	default:
		out.Status, out.Reason, out.Err = StatusFailed, ReasonError, err
	}
}

func (e *Engine) record(ctx context.Context, kind model.Kind, id string) {
	if err := e.ledger.Record(ctx, kind, id); err != nil {
		slog.Error("failed to persist action id",
			"kind", kind,
			"subject", id,
			"error", err,
		)
	}
}

func (e *Engine) log(out Outcome, target Target) {
	attrs := []any{
		"kind", out.Kind,
		"subject", out.SubjectID,
		"status", out.Status,
	}
	if out.Reason != "" {
		attrs = append(attrs, "reason", out.Reason)
	}
	if out.Kind == model.KindFollow {
		attrs = append(attrs, "username", target.Post.AuthorUsername)
	}

	switch out.Status {
	case StatusSkipped:
		if out.Reason == ReasonCooldown {
			attrs = append(attrs,
				"remaining", out.Remaining.Round(time.Second),
				"window", e.cooldowns.Window(out.Kind),
			)
			if last, ok := e.cooldowns.Last(out.Kind); ok {
				attrs = append(attrs, "last_success", last.Format(time.RFC3339))
			}
		}
		slog.Debug("action skipped", attrs...)
	case StatusSucceeded:
		slog.Info("action succeeded", attrs...)
	case StatusRateLimited:
		var rl *twitter.RateLimitError
		if errors.As(out.Err, &rl) && !rl.ResetAt.IsZero() {
			attrs = append(attrs, "reset_at", rl.ResetAt)
		}
		slog.Warn("action rate limited", attrs...)
	case StatusFailed:
		attrs = append(attrs, "error", out.Err)
		if out.AlreadyPerformed {
			slog.Info("action already performed", attrs...)
			return
		}
		slog.Error("action failed", attrs...)
	}
}

func subject(kind model.Kind, target Target) string {
	if kind == model.KindFollow {
		return target.Post.AuthorID
	}
	return target.Post.ID
}

func isAlreadyPerformed(kind model.Kind, err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range alreadyPerformed[kind] {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
