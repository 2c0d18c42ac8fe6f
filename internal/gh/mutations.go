package gh

import (
	"context"
	"fmt"

	"github.com/machinebox/graphql"
)

// AddToProject adds a content node (Issue or PR) to the board and returns
// the new project item id. The run-scoped item-list cache is updated so a
// follow-up IsInProject sees the add without another fetch.
func (c *Client) AddToProject(ctx context.Context, nodeID, projectID string) (string, error) {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $contentId: ID!) {
			addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
				item {
					id
				}
			}
		}
	`)
	req.Var("projectId", projectID)
	req.Var("contentId", nodeID)

	var resp struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to add item to project: %w", err)
	}

	itemID := resp.AddProjectV2ItemByID.Item.ID
	if itemID == "" {
		return "", fmt.Errorf("add mutation returned no item id")
	}

	if cached, ok := c.items[projectID]; ok {
		cached[nodeID] = itemID
	}

	return itemID, nil
}

// SetColumn updates a project item's Status field to the given
// single-select option.
func (c *Client) SetColumn(ctx context.Context, projectID, itemID, optionID string) error {
	fieldID, err := c.FieldID(ctx, projectID, StatusField)
	if err != nil {
		return err
	}
	return c.updateItemField(ctx, projectID, itemID, fieldID, map[string]interface{}{
		"singleSelectOptionId": optionID,
	})
}

// SetSprint updates a project item's Sprint field to the given iteration.
func (c *Client) SetSprint(ctx context.Context, projectID, itemID, iterationID string) error {
	fieldID, err := c.FieldID(ctx, projectID, SprintField)
	if err != nil {
		return err
	}
	return c.updateItemField(ctx, projectID, itemID, fieldID, map[string]interface{}{
		"iterationId": iterationID,
	})
}

// updateItemField runs the shared updateProjectV2ItemFieldValue mutation.
func (c *Client) updateItemField(ctx context.Context, projectID, itemID, fieldID string, value map[string]interface{}) error {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
			updateProjectV2ItemFieldValue(
				input: {
					projectId: $projectId
					itemId: $itemId
					fieldId: $fieldId
					value: $value
				}
			) {
				projectV2Item {
					id
				}
			}
		}
	`)

	req.Var("projectId", projectID)
	req.Var("itemId", itemID)
	req.Var("fieldId", fieldID)
	req.Var("value", value)

	var resp struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID string `json:"id"`
			} `json:"projectV2Item"`
		} `json:"updateProjectV2ItemFieldValue"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to update item field: %w", err)
	}

	return nil
}

// SetAssignees replaces the assignee set of an Issue or PR content node
// with exactly the given logins. Assignees live on the content, not the
// project item, so this takes the content node id.
func (c *Client) SetAssignees(ctx context.Context, nodeID string, logins []string) error {
	actorIDs := make([]string, 0, len(logins))
	for _, login := range logins {
		id, err := c.UserID(ctx, login)
		if err != nil {
			return err
		}
		actorIDs = append(actorIDs, id)
	}

	req := graphql.NewRequest(`
		mutation($assignableId: ID!, $actorIds: [ID!]!) {
			replaceActorsForAssignable(input: {assignableId: $assignableId, actorIds: $actorIds}) {
				assignable {
					... on Issue {
						id
					}
					... on PullRequest {
						id
					}
				}
			}
		}
	`)
	req.Var("assignableId", nodeID)
	req.Var("actorIds", actorIDs)

	var resp struct {
		ReplaceActorsForAssignable struct {
			Assignable struct {
				ID string `json:"id"`
			} `json:"assignable"`
		} `json:"replaceActorsForAssignable"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to set assignees: %w", err)
	}

	return nil
}
