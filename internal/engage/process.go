package engage

import (
	"context"
	"log/slog"

	"github.com/abdulachik/amplibot/internal/model"
)

const previewLength = 150

// Target is the post actions are aimed at after reshare resolution.
type Target struct {
	Post model.Post
	// AlreadyReshare is set when the candidate was itself a retweet.
	AlreadyReshare bool
	// Unresolved is set when the original of a reshare was not in the batch
	// and the reshare wrapper is targeted instead.
	Unresolved bool
}

// Resolve picks the post actions should target. A retweet resolves to its
// original when the batch carries it.
func Resolve(post model.Post, batch *model.Batch) Target {
	if !post.IsReshare() {
		return Target{Post: post}
	}

	if batch != nil {
		if original, ok := batch.Originals[post.RetweetOf]; ok {
			original.AuthorUsername = batch.Username(original.AuthorID, OriginalUnknown)
			return Target{Post: original, AlreadyReshare: true}
		}
	}

	slog.Warn("retweet original not in response, targeting the retweet",
		"post_id", post.ID,
		"original_id", post.RetweetOf,
	)
	return Target{Post: post, AlreadyReshare: true, Unresolved: true}
}

// PostResult summarizes what happened to one candidate post.
type PostResult struct {
	PostID   string
	Decision string
	Reason   string
	Target   *Target
	Outcomes []Outcome
	// Attempted is true when at least one outcome invoked the actor.
	Attempted bool
}

// Process applies the self, filter and action rules to one candidate post.
func (e *Engine) Process(ctx context.Context, post model.Post, batch *model.Batch) PostResult {
	res := PostResult{PostID: post.ID}
	if post.AuthorUsername == "" {
		post.AuthorUsername = batch.Username(post.AuthorID, UnknownUser)
	}

	slog.Info("processing post",
		"post_id", post.ID,
		"author", post.AuthorUsername,
		"text", model.Preview(post.Text, previewLength),
	)
	slog.Debug("full post text", "post_id", post.ID, "text", post.Text)

	switch {
	case post.AuthorID == e.botID:
		res.Decision, res.Reason = DecisionSelf, ReasonSelfAuthored
		slog.Info("skipping post by the bot itself", "post_id", post.ID)
	default:
		if fr := e.filter.Check(post.Text, post.AuthorUsername, post.Lang); fr.Skip {
			res.Decision, res.Reason = DecisionFiltered, fr.Rule
			slog.Info("post filtered",
				"post_id", post.ID,
				"reason", fr.Rule,
				"detail", fr.Detail,
			)
			break
		}

		target := Resolve(post, batch)
		res.Target = &target
		if target.Post.ID != post.ID {
			slog.Info("targeting retweeted original",
				"post_id", post.ID,
				"target_id", target.Post.ID,
				"author", target.Post.AuthorUsername,
			)
		}

		if target.Post.AuthorID == e.botID {
			res.Decision, res.Reason = DecisionSelf, ReasonTargetSelfAuthored
			slog.Info("skipping actions on the bot's own post", "post_id", post.ID, "target_id", target.Post.ID)
			break
		}

		for _, kind := range model.Kinds {
			if ctx.Err() != nil {
				break
			}
			out := e.Attempt(ctx, kind, target)
			res.Outcomes = append(res.Outcomes, out)
			if out.Attempted() {
				res.Attempted = true
			}
		}
		res.Decision = DecisionSkipped
		if res.Attempted {
			res.Decision = DecisionActed
		}
	}

	e.metrics.ObservePost(res.Decision)
	return res
}
