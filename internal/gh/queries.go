package gh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/machinebox/graphql"
	"github.com/robby/boardsync/internal/domain"
)

// ResolveProject resolves an organization project number to the project
// node id.
func (c *Client) ResolveProject(ctx context.Context, org string, number int) (string, error) {
	req := graphql.NewRequest(`
		query($org: String!, $number: Int!) {
			organization(login: $org) {
				projectV2(number: $number) {
					id
				}
			}
		}
	`)
	req.Var("org", org)
	req.Var("number", number)

	var resp struct {
		Organization *struct {
			ProjectV2 *struct {
				ID string `json:"id"`
			} `json:"projectV2"`
		} `json:"organization"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve project: %w", err)
	}
	if resp.Organization == nil || resp.Organization.ProjectV2 == nil {
		return "", fmt.Errorf("project %d not found in organization %s", number, org)
	}

	return resp.Organization.ProjectV2.ID, nil
}

// searchNode is the shared response shape for Issue and PullRequest search
// results.
type searchNode struct {
	Typename string `json:"__typename"`
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	State    string `json:"state"`
	Merged   bool   `json:"merged"`
	Author   *struct {
		Login string `json:"login"`
	} `json:"author"`
	Repository *struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
	Assignees *struct {
		Nodes []struct {
			Login string `json:"login"`
		} `json:"nodes"`
	} `json:"assignees"`
	ClosingIssuesReferences *struct {
		Nodes []searchNode `json:"nodes"`
	} `json:"closingIssuesReferences"`
}

const searchItemFields = `
	... on Issue {
		__typename
		id
		number
		title
		state
		author {
			login
		}
		repository {
			nameWithOwner
		}
		assignees(first: 10) {
			nodes {
				login
			}
		}
	}
	... on PullRequest {
		__typename
		id
		number
		title
		state
		merged
		author {
			login
		}
		repository {
			nameWithOwner
		}
		assignees(first: 10) {
			nodes {
				login
			}
		}
		closingIssuesReferences(first: 10) {
			nodes {
				id
				number
				title
				state
				repository {
					nameWithOwner
				}
				assignees(first: 10) {
					nodes {
						login
					}
				}
				author {
					login
				}
			}
		}
	}
`

// SearchRecentItems fetches candidate items for one sync run: items
// updated in the monitored repositories since the given time, merged with
// items authored by the monitored user anywhere, de-duplicated by node id.
func (c *Client) SearchRecentItems(ctx context.Context, scope domain.Scope, since time.Time) ([]domain.Item, error) {
	var queries []string

	if len(scope.MonitoredRepos) > 0 {
		terms := make([]string, 0, len(scope.MonitoredRepos)+1)
		for _, repo := range scope.MonitoredRepos {
			terms = append(terms, "repo:"+repo)
		}
		terms = append(terms, "updated:>="+since.UTC().Format(time.RFC3339))
		queries = append(queries, strings.Join(terms, " "))
	}

	if scope.MonitoredUser != "" {
		queries = append(queries, fmt.Sprintf(
			"author:%s updated:>=%s", scope.MonitoredUser, since.UTC().Format(time.RFC3339)))
	}

	seen := make(map[string]bool)
	var items []domain.Item

	for _, q := range queries {
		nodes, err := c.searchItems(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			if seen[node.ID] {
				continue
			}
			seen[node.ID] = true
			items = append(items, nodeToItem(node))
		}
	}

	return items, nil
}

// searchItems runs one search query and returns raw nodes.
func (c *Client) searchItems(ctx context.Context, query string) ([]searchNode, error) {
	req := graphql.NewRequest(`
		query($q: String!, $first: Int!) {
			search(query: $q, type: ISSUE, first: $first) {
				nodes {` + searchItemFields + `}
			}
		}
	`)
	req.Var("q", query)
	req.Var("first", 50)

	var resp struct {
		Search struct {
			Nodes []searchNode `json:"nodes"`
		} `json:"search"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("search %q failed: %w", query, err)
	}

	return resp.Search.Nodes, nil
}

// nodeToItem converts a search node into a domain Item, normalizing the
// state enum and flattening the linked-issue references.
func nodeToItem(node searchNode) domain.Item {
	item := domain.Item{
		Kind:       domain.ItemKind(node.Typename),
		Number:     node.Number,
		NodeID:     node.ID,
		Title:      node.Title,
		State:      normalizeState(node.State, node.Merged),
	}
	if node.Typename == "" {
		// Linked-issue sub-nodes carry no __typename in the query above.
		item.Kind = domain.KindIssue
	}
	if node.Author != nil {
		item.Author = node.Author.Login
	}
	if node.Repository != nil {
		item.Repository = node.Repository.NameWithOwner
	}
	if node.Assignees != nil {
		for _, a := range node.Assignees.Nodes {
			item.Assignees = append(item.Assignees, a.Login)
		}
	}
	if node.ClosingIssuesReferences != nil {
		for _, linked := range node.ClosingIssuesReferences.Nodes {
			item.LinkedIssues = append(item.LinkedIssues, nodeToItem(linked))
		}
	}
	return item
}

// normalizeState maps GitHub's OPEN/CLOSED/MERGED strings to the domain
// enum. A PR with merged=true always reports Merged, regardless of the
// state string the API version returned.
func normalizeState(state string, merged bool) domain.ItemState {
	if merged {
		return domain.StateMerged
	}
	switch strings.ToUpper(state) {
	case "CLOSED":
		return domain.StateClosed
	case "MERGED":
		return domain.StateMerged
	default:
		return domain.StateOpen
	}
}

// projectItems returns the content-node-id -> project-item-id map for a
// project, fetching all pages on first use and caching for the run.
func (c *Client) projectItems(ctx context.Context, projectID string) (map[string]string, error) {
	if cached, ok := c.items[projectID]; ok {
		return cached, nil
	}

	result := make(map[string]string)
	cursor := ""

	for {
		req := graphql.NewRequest(`
			query($projectId: ID!, $first: Int!, $after: String) {
				node(id: $projectId) {
					... on ProjectV2 {
						items(first: $first, after: $after) {
							pageInfo {
								hasNextPage
								endCursor
							}
							nodes {
								id
								content {
									... on Issue {
										id
									}
									... on PullRequest {
										id
									}
								}
							}
						}
					}
				}
			}
		`)
		req.Var("projectId", projectID)
		req.Var("first", 100)
		if cursor != "" {
			req.Var("after", cursor)
		} else {
			req.Var("after", nil)
		}

		var resp struct {
			Node struct {
				Items struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						ID      string `json:"id"`
						Content *struct {
							ID string `json:"id"`
						} `json:"content"`
					} `json:"nodes"`
				} `json:"items"`
			} `json:"node"`
		}

		if err := c.makeRequest(ctx, req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list project items: %w", err)
		}

		for _, node := range resp.Node.Items.Nodes {
			// Draft items have no content node and cannot be synced.
			if node.Content != nil && node.Content.ID != "" {
				result[node.Content.ID] = node.ID
			}
		}

		if !resp.Node.Items.PageInfo.HasNextPage {
			break
		}
		cursor = resp.Node.Items.PageInfo.EndCursor
	}

	c.items[projectID] = result
	return result, nil
}

// IsInProject reports whether the content node is already on the board,
// returning the project item id when it is. Served from the run-scoped
// item-list cache.
func (c *Client) IsInProject(ctx context.Context, nodeID, projectID string) (bool, string, error) {
	items, err := c.projectItems(ctx, projectID)
	if err != nil {
		return false, "", err
	}
	itemID, ok := items[nodeID]
	return ok, itemID, nil
}

// loadFields fetches and caches all field definitions for a project:
// ids, single-select options, and iteration configurations.
func (c *Client) loadFields(ctx context.Context, projectID string) (map[string]*fieldInfo, error) {
	if cached, ok := c.fields[projectID]; ok {
		return cached, nil
	}

	req := graphql.NewRequest(`
		query($projectId: ID!) {
			node(id: $projectId) {
				... on ProjectV2 {
					fields(first: 50) {
						nodes {
							... on ProjectV2Field {
								id
								name
							}
							... on ProjectV2SingleSelectField {
								id
								name
								options {
									id
									name
								}
							}
							... on ProjectV2IterationField {
								id
								name
								configuration {
									iterations {
										id
										title
										startDate
										duration
									}
								}
							}
						}
					}
				}
			}
		}
	`)
	req.Var("projectId", projectID)

	var resp struct {
		Node struct {
			Fields struct {
				Nodes []struct {
					ID      string `json:"id"`
					Name    string `json:"name"`
					Options []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"options"`
					Configuration *struct {
						Iterations []struct {
							ID        string `json:"id"`
							Title     string `json:"title"`
							StartDate string `json:"startDate"`
							Duration  int    `json:"duration"`
						} `json:"iterations"`
					} `json:"configuration"`
				} `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get project fields: %w", err)
	}

	fields := make(map[string]*fieldInfo, len(resp.Node.Fields.Nodes))
	for _, node := range resp.Node.Fields.Nodes {
		info := &fieldInfo{ID: node.ID}
		if len(node.Options) > 0 {
			info.options = make(map[string]string, len(node.Options))
			for _, opt := range node.Options {
				key := strings.ToLower(opt.Name)
				if _, dup := info.options[key]; !dup {
					info.options[key] = opt.ID
					info.optionNames = append(info.optionNames, opt.Name)
				}
			}
		}
		if node.Configuration != nil {
			for _, it := range node.Configuration.Iterations {
				info.iterations = append(info.iterations, iterationInfo{
					ID:        it.ID,
					Title:     it.Title,
					StartDate: it.StartDate,
					Duration:  it.Duration,
				})
			}
		}
		fields[node.Name] = info
	}

	c.fields[projectID] = fields
	return fields, nil
}

// FieldID returns the node id of a project field by name, cached per run.
func (c *Client) FieldID(ctx context.Context, projectID, fieldName string) (string, error) {
	fields, err := c.loadFields(ctx, projectID)
	if err != nil {
		return "", err
	}
	info, ok := fields[fieldName]
	if !ok {
		return "", fmt.Errorf("field %q not found in project", fieldName)
	}
	return info.ID, nil
}

// ColumnOptionID resolves a column name to its single-select option id,
// case-insensitively. The error on a miss enumerates the available
// (case-deduplicated) column names so a bad rule file is easy to fix.
func (c *Client) ColumnOptionID(ctx context.Context, projectID, columnName string) (string, error) {
	fields, err := c.loadFields(ctx, projectID)
	if err != nil {
		return "", err
	}
	info, ok := fields[StatusField]
	if !ok {
		return "", fmt.Errorf("field %q not found in project", StatusField)
	}
	optionID, ok := info.options[strings.ToLower(columnName)]
	if !ok {
		return "", fmt.Errorf("column %q not found, available: %s",
			columnName, strings.Join(info.optionNames, ", "))
	}
	return optionID, nil
}

// CurrentSprint resolves the project's current iteration: the one whose
// [startDate, startDate+duration) window contains today.
func (c *Client) CurrentSprint(ctx context.Context, projectID string) (domain.Sprint, error) {
	return c.currentSprintAt(ctx, projectID, time.Now())
}

func (c *Client) currentSprintAt(ctx context.Context, projectID string, now time.Time) (domain.Sprint, error) {
	fields, err := c.loadFields(ctx, projectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	info, ok := fields[SprintField]
	if !ok {
		return domain.Sprint{}, fmt.Errorf("field %q not found in project", SprintField)
	}

	for _, it := range info.iterations {
		start, err := time.Parse("2006-01-02", it.StartDate)
		if err != nil {
			return domain.Sprint{}, fmt.Errorf("iteration %q has invalid start date %q: %w", it.Title, it.StartDate, err)
		}
		end := start.AddDate(0, 0, it.Duration)
		if !now.Before(start) && now.Before(end) {
			return domain.Sprint{ID: it.ID, Title: it.Title}, nil
		}
	}

	return domain.Sprint{}, fmt.Errorf("no current iteration on field %q contains %s", SprintField, now.Format("2006-01-02"))
}

// Column returns the current Status value of a project item, or the empty
// string when unset.
func (c *Client) Column(ctx context.Context, projectID, itemID string) (string, error) {
	req := graphql.NewRequest(`
		query($itemId: ID!, $fieldName: String!) {
			node(id: $itemId) {
				... on ProjectV2Item {
					fieldValueByName(name: $fieldName) {
						... on ProjectV2ItemFieldSingleSelectValue {
							name
						}
					}
				}
			}
		}
	`)
	req.Var("itemId", itemID)
	req.Var("fieldName", StatusField)

	var resp struct {
		Node struct {
			FieldValueByName *struct {
				Name string `json:"name"`
			} `json:"fieldValueByName"`
		} `json:"node"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to get column: %w", err)
	}
	if resp.Node.FieldValueByName == nil {
		return "", nil
	}
	return resp.Node.FieldValueByName.Name, nil
}

// Sprint returns the current iteration of a project item, or nil when no
// sprint is assigned.
func (c *Client) Sprint(ctx context.Context, projectID, itemID string) (*domain.Sprint, error) {
	req := graphql.NewRequest(`
		query($itemId: ID!, $fieldName: String!) {
			node(id: $itemId) {
				... on ProjectV2Item {
					fieldValueByName(name: $fieldName) {
						... on ProjectV2ItemFieldIterationValue {
							iterationId
							title
						}
					}
				}
			}
		}
	`)
	req.Var("itemId", itemID)
	req.Var("fieldName", SprintField)

	var resp struct {
		Node struct {
			FieldValueByName *struct {
				IterationID string `json:"iterationId"`
				Title       string `json:"title"`
			} `json:"fieldValueByName"`
		} `json:"node"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}
	if resp.Node.FieldValueByName == nil || resp.Node.FieldValueByName.IterationID == "" {
		return nil, nil
	}
	return &domain.Sprint{
		ID:    resp.Node.FieldValueByName.IterationID,
		Title: resp.Node.FieldValueByName.Title,
	}, nil
}

// Assignees returns the logins currently assigned to a project item's
// underlying Issue or PR.
func (c *Client) Assignees(ctx context.Context, projectID, itemID string) ([]string, error) {
	req := graphql.NewRequest(`
		query($itemId: ID!) {
			node(id: $itemId) {
				... on ProjectV2Item {
					content {
						... on Issue {
							assignees(first: 10) {
								nodes {
									login
								}
							}
						}
						... on PullRequest {
							assignees(first: 10) {
								nodes {
									login
								}
							}
						}
					}
				}
			}
		}
	`)
	req.Var("itemId", itemID)

	var resp struct {
		Node struct {
			Content *struct {
				Assignees struct {
					Nodes []struct {
						Login string `json:"login"`
					} `json:"nodes"`
				} `json:"assignees"`
			} `json:"content"`
		} `json:"node"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get assignees: %w", err)
	}
	if resp.Node.Content == nil {
		return nil, nil
	}

	logins := make([]string, 0, len(resp.Node.Content.Assignees.Nodes))
	for _, a := range resp.Node.Content.Assignees.Nodes {
		logins = append(logins, a.Login)
	}
	return logins, nil
}
