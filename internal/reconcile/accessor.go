package reconcile

import (
	"context"

	"github.com/robby/boardsync/internal/domain"
)

// Accessor is the narrow contract the reconciler has with the remote
// board. Satisfied by *gh.Client; tests substitute a recording fake.
// Implementations are expected to cache field ids, column option ids,
// and the full project item list for the lifetime of one run.
type Accessor interface {
	// IsInProject reports whether the content node is on the board and
	// returns the project item id when it is.
	IsInProject(ctx context.Context, nodeID, projectID string) (bool, string, error)

	// AddToProject adds a content node to the board and returns the new
	// project item id. Fails if the content is already present.
	AddToProject(ctx context.Context, nodeID, projectID string) (string, error)

	// Column returns the item's current Status value, empty when unset.
	Column(ctx context.Context, projectID, itemID string) (string, error)

	// SetColumn writes a Status single-select option.
	SetColumn(ctx context.Context, projectID, itemID, optionID string) error

	// ColumnOptionID resolves a column name to its option id,
	// case-insensitively; a miss enumerates the available names.
	ColumnOptionID(ctx context.Context, projectID, columnName string) (string, error)

	// Sprint returns the item's current iteration, nil when unset.
	Sprint(ctx context.Context, projectID, itemID string) (*domain.Sprint, error)

	// CurrentSprint resolves the iteration whose window contains today.
	CurrentSprint(ctx context.Context, projectID string) (domain.Sprint, error)

	// SetSprint writes an iteration value.
	SetSprint(ctx context.Context, projectID, itemID, iterationID string) error

	// Assignees returns the logins assigned to the item's content.
	Assignees(ctx context.Context, projectID, itemID string) ([]string, error)

	// SetAssignees replaces the content node's assignee set.
	SetAssignees(ctx context.Context, nodeID string, logins []string) error
}
