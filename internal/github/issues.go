package github

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/triage/internal/types"
)

// MaxComments is how many comments FetchIssue reads per issue
const MaxComments = 20

type apiIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      *string   `json:"body"`
	HTMLURL   string    `json:"html_url"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request"`
}

type apiComment struct {
	Body string `json:"body"`
}

type searchResult struct {
	TotalCount int        `json:"total_count"`
	Items      []apiIssue `json:"items"`
}

func (i *apiIssue) body() string {
	if i.Body == nil {
		return ""
	}
	return *i.Body
}

func (i *apiIssue) toItem(repo string) *types.Item {
	state, err := types.ParseItemState(i.State)
	if err != nil {
		state = types.StateOpen
	}
	item := &types.Item{
		Number:    i.Number,
		Repo:      repo,
		Title:     i.Title,
		Body:      i.body(),
		URL:       i.HTMLURL,
		State:     state,
		Author:    i.User.Login,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
	for _, l := range i.Labels {
		item.Labels = append(item.Labels, l.Name)
	}
	return item
}

// ParseRepo splits "owner/name" or a github.com URL into owner and name
func ParseRepo(s string) (owner, name string, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
	if i := strings.Index(s, "github.com/"); i >= 0 {
		s = s[i+len("github.com/"):]
	}
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q (want owner/name)", s)
	}
	return parts[0], parts[1], nil
}

// FetchIssue reads one issue and up to MaxComments of its comments. A
// failure to read comments is logged and yields an issue without comments.
func (c *Client) FetchIssue(ctx context.Context, repo string, number int) (*types.Item, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, name, number)

	var issue apiIssue
	if err := c.do(ctx, "GET", path, nil, nil, &issue); err != nil {
		return nil, fmt.Errorf("failed to fetch issue %s/%s#%d: %w", owner, name, number, err)
	}
	item := issue.toItem(owner + "/" + name)

	var comments []apiComment
	query := url.Values{"per_page": {strconv.Itoa(MaxComments)}}
	if err := c.do(ctx, "GET", path+"/comments", query, nil, &comments); err != nil {
		log.Printf("[GITHUB] [WARN] failed to fetch comments for %s: %v", item.Ref(), err)
		return item, nil
	}
	for _, cm := range comments {
		if strings.TrimSpace(cm.Body) == "" {
			continue
		}
		item.Comments = append(item.Comments, cm.Body)
		if len(item.Comments) == MaxComments {
			break
		}
	}
	return item, nil
}

// FetchIssues lists issues in state ("open", "closed" or "all") through the
// search API, which leaves out pull requests. Comments are not fetched.
func (c *Client) FetchIssues(ctx context.Context, repo, state string, limit int) ([]*types.Item, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := fmt.Sprintf("repo:%s/%s is:issue", owner, name)
	if state != "" && state != "all" {
		q += " state:" + state
	}

	items, err := c.search(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues for %s/%s: %w", owner, name, err)
	}
	out := make([]*types.Item, 0, len(items))
	for i := range items {
		out = append(out, items[i].toItem(owner+"/"+name))
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, q string, limit int) ([]apiIssue, error) {
	var res searchResult
	query := url.Values{"q": {q}, "per_page": {strconv.Itoa(limit)}}
	if err := c.do(ctx, "GET", "/search/issues", query, nil, &res); err != nil {
		return nil, err
	}
	items := res.Items[:0]
	for _, it := range res.Items {
		if it.PullRequest == nil {
			items = append(items, it)
		}
	}
	return items, nil
}

// ApplyLabels adds labels to an issue. Existing labels are kept.
func (c *Client) ApplyLabels(ctx context.Context, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, name, number)
	if err := c.do(ctx, "POST", path, nil, map[string][]string{"labels": labels}, nil); err != nil {
		return fmt.Errorf("failed to apply labels to %s/%s#%d: %w", owner, name, number, err)
	}
	log.Printf("[GITHUB] Applied labels %v to %s/%s#%d", labels, owner, name, number)
	return nil
}

// PostComment adds a comment to an issue
func (c *Client) PostComment(ctx context.Context, repo string, number int, body string) error {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, name, number)
	if err := c.do(ctx, "POST", path, nil, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("failed to comment on %s/%s#%d: %w", owner, name, number, err)
	}
	log.Printf("[GITHUB] Posted comment on %s/%s#%d", owner, name, number)
	return nil
}
