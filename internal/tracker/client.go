// Package tracker files issues in Jira and maps chat identities to Jira
// accounts.
package tracker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	jira "github.com/andygrunwald/go-jira"
)

type Config struct {
	BaseURL  string
	Username string
	APIKey   string
}

// Client is a thin wrapper over go-jira for the calls the bot makes.
type Client struct {
	api     *jira.Client
	baseURL string
}

// CreatedIssue is the tracker's answer to an issue-creation request.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

func New(cfg Config) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.APIKey,
	}
	api, err := jira.NewClient(tp.Client(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating jira client: %w", err)
	}
	return &Client{api: api, baseURL: strings.TrimSuffix(cfg.BaseURL, "/")}, nil
}

// BrowseURL links to an issue in the Jira web UI.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// CreateIssue posts a raw field map. Custom fields are passed through as-is,
// which go-jira's typed IssueFields cannot express for every screen.
func (c *Client) CreateIssue(ctx context.Context, fields map[string]any) (CreatedIssue, error) {
	req, err := c.api.NewRequestWithContext(ctx, http.MethodPost, "rest/api/2/issue", map[string]any{"fields": fields})
	if err != nil {
		return CreatedIssue{}, fmt.Errorf("building create issue request: %w", err)
	}

	var created CreatedIssue
	resp, err := c.api.Do(req, &created)
	if err != nil {
		return CreatedIssue{}, jira.NewJiraError(resp, err)
	}
	return created, nil
}

// AddAttachment uploads one file to an existing issue.
func (c *Client) AddAttachment(ctx context.Context, issueKey, name string, data []byte) error {
	_, resp, err := c.api.Issue.PostAttachmentWithContext(ctx, issueKey, bytes.NewReader(data), name)
	if err != nil {
		return jira.NewJiraError(resp, err)
	}
	return nil
}

// FindAccountID searches the user directory by email. An empty id with a nil
// error means nobody matched.
func (c *Client) FindAccountID(ctx context.Context, email string) (string, error) {
	var users []jira.User
	if err := c.get(ctx, "rest/api/2/user/search", url.Values{"query": {email}}, &users); err != nil {
		return "", fmt.Errorf("searching jira user %s: %w", email, err)
	}
	for _, u := range users {
		if u.AccountID != "" {
			return u.AccountID, nil
		}
	}
	return "", nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	req, err := c.api.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.api.Do(req, v)
	if err != nil {
		return jira.NewJiraError(resp, err)
	}
	return nil
}
