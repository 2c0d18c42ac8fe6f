// Package gh provides a GraphQL client for the GitHub Projects v2 API.
// It implements a deep module interface - simple methods hiding complex
// GraphQL queries - and carries the run-scoped caches (field ids, column
// option ids, the project item list) so that one sync run never asks the
// API the same question twice.
package gh

import (
	"context"
	"fmt"

	"github.com/machinebox/graphql"
)

// Field names used by the sync. Projects created from GitHub's templates
// use these names; projects with renamed fields are not supported.
const (
	StatusField = "Status"
	SprintField = "Sprint"
)

// Client is a GitHub GraphQL API client for Projects v2. All caches live
// for the lifetime of the Client; create a fresh Client per sync run.
type Client struct {
	gql   *graphql.Client
	token string

	// projectID -> field name -> field metadata
	fields map[string]map[string]*fieldInfo
	// projectID -> content node id -> project item id
	items map[string]map[string]string
	// login -> user node id
	userIDs map[string]string
}

// fieldInfo is the cached definition of one project field.
type fieldInfo struct {
	ID string
	// lowercased option name -> option id (single-select fields)
	options map[string]string
	// display names in configured order, for error messages
	optionNames []string
	iterations  []iterationInfo
}

// iterationInfo is one window of an iteration field's configuration.
type iterationInfo struct {
	ID        string
	Title     string
	StartDate string // YYYY-MM-DD
	Duration  int    // days
}

// New creates a GitHub GraphQL client with the given token.
func New(token string) *Client {
	return &Client{
		gql:     graphql.NewClient("https://api.github.com/graphql"),
		token:   token,
		fields:  make(map[string]map[string]*fieldInfo),
		items:   make(map[string]map[string]string),
		userIDs: make(map[string]string),
	}
}

// makeRequest executes a GraphQL request with authentication.
// This is a helper method to avoid repeating the authorization header setup.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.gql.Run(ctx, req, resp)
}

// UserID resolves a login to its node id, cached per run. Assignee
// mutations need actor ids, not logins.
func (c *Client) UserID(ctx context.Context, login string) (string, error) {
	if id, ok := c.userIDs[login]; ok {
		return id, nil
	}

	req := graphql.NewRequest(`
		query($login: String!) {
			user(login: $login) {
				id
			}
		}
	`)
	req.Var("login", login)

	var resp struct {
		User *struct {
			ID string `json:"id"`
		} `json:"user"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve user %q: %w", login, err)
	}
	if resp.User == nil {
		return "", fmt.Errorf("user %q not found", login)
	}

	c.userIDs[login] = resp.User.ID
	return resp.User.ID, nil
}
