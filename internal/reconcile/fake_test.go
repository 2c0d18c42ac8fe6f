package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robby/boardsync/internal/domain"
)

// fakeAccessor is an in-memory board for reconciler tests. It records
// every mutation so idempotence tests can assert "zero writes on the
// second pass", and can be told to fail specific calls for
// failure-isolation tests.
type fakeAccessor struct {
	// nodeID -> project item id
	onBoard map[string]string
	// project item id -> state
	columns map[string]string
	sprints map[string]*domain.Sprint
	// content node id -> logins
	assignees map[string][]string

	optionIDs   map[string]string // lower column name -> option id
	optionNames []string
	current     domain.Sprint
	currentErr  error

	mutations []string          // "verb key=value" per mutation issued
	failures  map[string]error  // "verb key" -> error to return
	addSeq    int
	// reads before an add settles return not-found this many times
	addLagReads map[string]int
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{
		onBoard:   make(map[string]string),
		columns:   make(map[string]string),
		sprints:   make(map[string]*domain.Sprint),
		assignees: make(map[string][]string),
		optionIDs: map[string]string{
			"new":    "OPT_NEW",
			"next":   "OPT_NEXT",
			"active": "OPT_ACTIVE",
			"done":   "OPT_DONE",
		},
		optionNames: []string{"New", "Next", "Active", "Done"},
		current:     domain.Sprint{ID: "IT_CURRENT", Title: "Sprint 3"},
		failures:    make(map[string]error),
		addLagReads: make(map[string]int),
	}
}

// seed puts an item on the board with the given state and returns its
// project item id.
func (f *fakeAccessor) seed(nodeID, column string, sprint *domain.Sprint, assignees ...string) string {
	f.addSeq++
	itemID := fmt.Sprintf("PVTI_%d", f.addSeq)
	f.onBoard[nodeID] = itemID
	f.columns[itemID] = column
	f.sprints[itemID] = sprint
	f.assignees[nodeID] = assignees
	return itemID
}

func (f *fakeAccessor) nodeFor(itemID string) string {
	for nodeID, id := range f.onBoard {
		if id == itemID {
			return nodeID
		}
	}
	return ""
}

func (f *fakeAccessor) fail(verb, key string, err error) {
	f.failures[verb+" "+key] = err
}

func (f *fakeAccessor) check(verb, key string) error {
	return f.failures[verb+" "+key]
}

func (f *fakeAccessor) record(format string, args ...interface{}) {
	f.mutations = append(f.mutations, fmt.Sprintf(format, args...))
}

func (f *fakeAccessor) IsInProject(ctx context.Context, nodeID, projectID string) (bool, string, error) {
	if err := f.check("isInProject", nodeID); err != nil {
		return false, "", err
	}
	itemID, ok := f.onBoard[nodeID]
	return ok, itemID, nil
}

func (f *fakeAccessor) AddToProject(ctx context.Context, nodeID, projectID string) (string, error) {
	if err := f.check("add", nodeID); err != nil {
		return "", err
	}
	if _, ok := f.onBoard[nodeID]; ok {
		return "", fmt.Errorf("content %s already in project", nodeID)
	}
	f.addSeq++
	itemID := fmt.Sprintf("PVTI_%d", f.addSeq)
	f.onBoard[nodeID] = itemID
	f.record("add %s", nodeID)
	return itemID, nil
}

func (f *fakeAccessor) Column(ctx context.Context, projectID, itemID string) (string, error) {
	if lag := f.addLagReads[itemID]; lag > 0 {
		f.addLagReads[itemID] = lag - 1
		return "", fmt.Errorf("node %s not found", itemID)
	}
	if err := f.check("readColumn", itemID); err != nil {
		return "", err
	}
	return f.columns[itemID], nil
}

func (f *fakeAccessor) SetColumn(ctx context.Context, projectID, itemID, optionID string) error {
	if err := f.check("setColumn", itemID); err != nil {
		return err
	}
	for _, display := range f.optionNames {
		if f.optionIDs[strings.ToLower(display)] == optionID {
			f.columns[itemID] = display
			f.record("setColumn %s=%s", itemID, display)
			return nil
		}
	}
	return fmt.Errorf("unknown option id %s", optionID)
}

func (f *fakeAccessor) ColumnOptionID(ctx context.Context, projectID, columnName string) (string, error) {
	id, ok := f.optionIDs[strings.ToLower(columnName)]
	if !ok {
		return "", fmt.Errorf("column %q not found, available: %s",
			columnName, strings.Join(f.optionNames, ", "))
	}
	return id, nil
}

func (f *fakeAccessor) Sprint(ctx context.Context, projectID, itemID string) (*domain.Sprint, error) {
	if err := f.check("readSprint", itemID); err != nil {
		return nil, err
	}
	return f.sprints[itemID], nil
}

func (f *fakeAccessor) CurrentSprint(ctx context.Context, projectID string) (domain.Sprint, error) {
	if f.currentErr != nil {
		return domain.Sprint{}, f.currentErr
	}
	return f.current, nil
}

func (f *fakeAccessor) SetSprint(ctx context.Context, projectID, itemID, iterationID string) error {
	if err := f.check("setSprint", itemID); err != nil {
		return err
	}
	f.sprints[itemID] = &domain.Sprint{ID: iterationID, Title: f.current.Title}
	f.record("setSprint %s=%s", itemID, iterationID)
	return nil
}

func (f *fakeAccessor) Assignees(ctx context.Context, projectID, itemID string) ([]string, error) {
	if err := f.check("readAssignees", itemID); err != nil {
		return nil, err
	}
	return f.assignees[f.nodeFor(itemID)], nil
}

func (f *fakeAccessor) SetAssignees(ctx context.Context, nodeID string, logins []string) error {
	if err := f.check("setAssignees", nodeID); err != nil {
		return err
	}
	f.assignees[nodeID] = logins
	f.record("setAssignees %s=%s", nodeID, strings.Join(logins, ","))
	return nil
}

// noSleep keeps settle delays and backoff out of test time.
func noSleep(ctx context.Context, d time.Duration) error { return nil }
