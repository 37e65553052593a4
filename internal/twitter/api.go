package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/abdulachik/amplibot/internal/model"
)

const (
	minSearchResults = 10
	maxSearchResults = 100

	searchTweetFields = "created_at,author_id,referenced_tweets,lang"
	searchExpansions  = "author_id,referenced_tweets.id,referenced_tweets.id.author_id"
	searchUserFields  = "username,name"
)

type tweetObject struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	AuthorID         string `json:"author_id"`
	Lang             string `json:"lang"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type userObject struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type searchResponse struct {
	problem
	Data     []tweetObject `json:"data"`
	Includes struct {
		Users  []userObject  `json:"users"`
		Tweets []tweetObject `json:"tweets"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
	} `json:"meta"`
}

// Search runs a recent search for posts newer than sinceID. At most max posts
// are returned, oldest first by id when the API returns more. A nil batch
// with a nil error means the API answered with an empty body.
func (c *Client) Search(ctx context.Context, query, sinceID string, max int) (*model.Batch, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(clamp(max, minSearchResults, maxSearchResults)))
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	q.Set("tweet.fields", searchTweetFields)
	q.Set("expansions", searchExpansions)
	q.Set("user.fields", searchUserFields)

	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: EndpointSearch,
		path:     "/2/tweets/search/recent",
		query:    q,
	})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: EndpointSearch, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return nil, resp.apiError(EndpointSearch, http.StatusOK)
	}

	batch := resp.batch()
	if max > 0 {
		batch.Posts = oldest(batch.Posts, max)
	}

	slog.Debug("search completed",
		"query", query,
		"since_id", sinceID,
		"result_count", resp.Meta.ResultCount,
		"kept", len(batch.Posts),
	)

	return batch, nil
}

func (r searchResponse) batch() *model.Batch {
	b := &model.Batch{
		Users:     make(map[string]model.User, len(r.Includes.Users)),
		Originals: make(map[string]model.Post, len(r.Includes.Tweets)),
	}
	for _, u := range r.Includes.Users {
		b.Users[u.ID] = model.User{ID: u.ID, Username: u.Username, Name: u.Name}
	}
	for _, t := range r.Includes.Tweets {
		b.Originals[t.ID] = t.post(b.Users)
	}
	b.Posts = make([]model.Post, 0, len(r.Data))
	for _, t := range r.Data {
		b.Posts = append(b.Posts, t.post(b.Users))
	}
	return b
}

func (t tweetObject) post(users map[string]model.User) model.Post {
	p := model.Post{
		ID:             t.ID,
		AuthorID:       t.AuthorID,
		AuthorUsername: users[t.AuthorID].Username,
		Text:           t.Text,
		Lang:           t.Lang,
	}
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "retweeted" {
			p.RetweetOf = ref.ID
			break
		}
	}
	return p
}

// oldest keeps the max posts with the smallest ids, preserving order.
func oldest(posts []model.Post, max int) []model.Post {
	if len(posts) <= max {
		return posts
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	sort.Slice(ids, func(i, j int) bool { return model.CompareIDs(ids[i], ids[j]) < 0 })
	limit := ids[max-1]

	kept := make([]model.Post, 0, max)
	for _, p := range posts {
		if len(kept) < max && model.CompareIDs(p.ID, limit) <= 0 {
			kept = append(kept, p)
		}
	}
	return kept
}

// Me returns the authenticated account. The result is cached.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	c.mu.Lock()
	cached := c.me
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	q := url.Values{}
	q.Set("user.fields", "username,name")
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: EndpointMe,
		path:     "/2/users/me",
		query:    q,
		user:     true,
	})
	if err != nil {
		return model.User{}, err
	}

	var resp struct {
		problem
		Data *userObject `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.User{}, &APIError{Endpoint: EndpointMe, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return model.User{}, resp.apiError(EndpointMe, http.StatusOK)
	}

	me := model.User{ID: resp.Data.ID, Username: resp.Data.Username, Name: resp.Data.Name}
	c.mu.Lock()
	c.me = &me
	c.mu.Unlock()
	return me, nil
}

// Like likes the post with the given id as the authenticated account.
func (c *Client) Like(ctx context.Context, postID string) error {
	return c.act(ctx, EndpointLike, "likes", map[string]string{"tweet_id": postID})
}

// Retweet reposts the post with the given id as the authenticated account.
func (c *Client) Retweet(ctx context.Context, postID string) error {
	return c.act(ctx, EndpointRetweet, "retweets", map[string]string{"tweet_id": postID})
}

// Follow follows the user with the given id as the authenticated account.
func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.act(ctx, EndpointFollow, "following", map[string]string{"target_user_id": userID})
}

func (c *Client) act(ctx context.Context, endpoint, resource string, payload map[string]string) error {
	me, err := c.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolve bot account: %w", err)
	}

	body, err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: endpoint,
		path:     "/2/users/" + url.PathEscape(me.ID) + "/" + resource,
		body:     payload,
		user:     true,
	})
	if err != nil {
		return err
	}

	var resp struct {
		problem
		Data json.RawMessage `json:"data"`
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &APIError{Endpoint: endpoint, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return resp.apiError(endpoint, http.StatusOK)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
