package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/robby/boardsync/internal/domain"
	"github.com/robby/boardsync/internal/rules"
)

// doneColumn is the terminal Status value. GitHub's own automation owns
// it: once an item sits in Done, this system never moves it.
const doneColumn = "Done"

// defaultSettleDelay is the observed eventual-consistency lag between an
// add mutation and the item becoming visible to reads.
const defaultSettleDelay = 2 * time.Second

// Outcome reports what one apply did: whether a mutation was issued and
// a human-readable reason either way.
type Outcome struct {
	Changed bool
	Reason  string
}

// Config configures a Reconciler. Accessor and ProjectID are required;
// everything else has working defaults.
type Config struct {
	Accessor    Accessor
	ProjectID   string
	Logger      *slog.Logger
	Retry       Policy
	Sleep       SleepFunc
	SettleDelay time.Duration
}

// Reconciler applies rule-engine actions to the board idempotently: each
// apply first decides whether remote state already satisfies the desired
// state, issues at most one mutation when it does not, and records
// before/after snapshots in the verification log.
type Reconciler struct {
	acc         Accessor
	projectID   string
	log         *slog.Logger
	retry       Policy
	sleep       SleepFunc
	settleDelay time.Duration
	verify      VerifyLog

	sprintResolved bool
	sprint         domain.Sprint
	sprintErr      error
}

// New creates a Reconciler. Caches inside it (the resolved current
// sprint, the verification log) are scoped to one run.
func New(cfg Config) *Reconciler {
	r := &Reconciler{
		acc:         cfg.Accessor,
		projectID:   cfg.ProjectID,
		log:         cfg.Logger,
		retry:       cfg.Retry,
		sleep:       cfg.Sleep,
		settleDelay: cfg.SettleDelay,
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.retry.MaxAttempts == 0 {
		r.retry = DefaultPolicy()
	}
	if r.sleep == nil {
		r.sleep = Sleep
	}
	if r.settleDelay == 0 {
		r.settleDelay = defaultSettleDelay
	}
	return r
}

// Verify returns the run's verification log.
func (r *Reconciler) Verify() *VerifyLog { return &r.verify }

// CurrentSprint resolves the current iteration once per run. Both the
// value and a resolution failure are cached; a project with no current
// iteration fails every sprint action the same way.
func (r *Reconciler) CurrentSprint(ctx context.Context) (domain.Sprint, error) {
	if !r.sprintResolved {
		r.sprint, r.sprintErr = r.acc.CurrentSprint(ctx, r.projectID)
		r.sprintResolved = true
	}
	return r.sprint, r.sprintErr
}

// BoardState reads the item's current board-side state, or nil when the
// item is not on the board.
func (r *Reconciler) BoardState(ctx context.Context, item domain.Item) (*domain.ProjectItem, error) {
	inProject, itemID, err := r.acc.IsInProject(ctx, item.NodeID, r.projectID)
	if err != nil {
		return nil, err
	}
	if !inProject {
		return nil, nil
	}

	snap, err := r.snapshot(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &domain.ProjectItem{
		ID:        itemID,
		Column:    snap.Column,
		Sprint:    snap.Sprint,
		Assignees: snap.Assignees,
	}, nil
}

// snapshot point-reads column, sprint, and assignees for one project item.
func (r *Reconciler) snapshot(ctx context.Context, itemID string) (*StateSnapshot, error) {
	column, err := r.acc.Column(ctx, r.projectID, itemID)
	if err != nil {
		return nil, err
	}
	sprint, err := r.acc.Sprint(ctx, r.projectID, itemID)
	if err != nil {
		return nil, err
	}
	assignees, err := r.acc.Assignees(ctx, r.projectID, itemID)
	if err != nil {
		return nil, err
	}
	return &StateSnapshot{
		OnBoard:   true,
		ItemID:    itemID,
		Column:    column,
		Sprint:    sprint,
		Assignees: assignees,
	}, nil
}

// Apply reconciles one requested action. It returns the outcome and the
// (possibly new) board state after the apply. Safe to invoke repeatedly
// with identical results; the second application of any action is a
// no-op.
func (r *Reconciler) Apply(ctx context.Context, item domain.Item, board *domain.ProjectItem, req rules.Request) (Outcome, *domain.ProjectItem, error) {
	switch req.Action.Kind {
	case rules.AddToBoard:
		return r.applyAdd(ctx, item, board)
	case rules.SetColumn:
		out, err := r.applySetColumn(ctx, item, board, req.Action.Value)
		return out, board, err
	case rules.SetSprint:
		out, err := r.applySetSprint(ctx, item, board)
		return out, board, err
	case rules.SetAssignee:
		out, err := r.applySetAssignee(ctx, item, board)
		return out, board, err
	default:
		// inherit_* actions only make sense per linked issue and are
		// routed through ProcessLinkedIssues.
		return Outcome{}, board, fmt.Errorf("action %q cannot be applied directly", req.Action.Kind)
	}
}

// applyAdd puts the item on the board unless it is already there, then
// waits out the settle delay and verifies the add under the retry
// policy.
func (r *Reconciler) applyAdd(ctx context.Context, item domain.Item, board *domain.ProjectItem) (Outcome, *domain.ProjectItem, error) {
	if board != nil {
		return Outcome{Reason: "already in project"}, board, nil
	}

	itemID, err := r.acc.AddToProject(ctx, item.NodeID, r.projectID)
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("add %s to board: %w", item.Ref(), err)
	}

	// An added item may not be visible to an immediately-following read.
	if err := r.sleep(ctx, r.settleDelay); err != nil {
		return Outcome{}, nil, err
	}

	snap, err := Do(ctx, r.retry, r.sleep, "verify add of "+item.Ref(), func(attempt int) (*StateSnapshot, error) {
		st, readErr := r.snapshot(ctx, itemID)
		entry := VerifyEntry{
			ItemRef: item.Ref(),
			Step:    "add_to_board",
			Attempt: attempt,
			Before:  &StateSnapshot{OnBoard: false},
			After:   st,
		}
		if readErr != nil {
			entry.Err = readErr.Error()
		}
		r.verify.Record(entry)
		return st, readErr
	})
	if err != nil {
		return Outcome{}, nil, err
	}

	r.log.Debug("added item to board", "item", item.Ref(), "project_item", itemID)
	return Outcome{Changed: true, Reason: "added to board"}, &domain.ProjectItem{
		ID:        itemID,
		Column:    snap.Column,
		Sprint:    snap.Sprint,
		Assignees: snap.Assignees,
	}, nil
}

// applySetColumn moves the item to the target column unless the current
// column already matches (case-insensitively) or is the terminal Done.
func (r *Reconciler) applySetColumn(ctx context.Context, item domain.Item, board *domain.ProjectItem, target string) (Outcome, error) {
	if board == nil {
		return Outcome{Reason: "not on board"}, nil
	}

	current, err := r.acc.Column(ctx, r.projectID, board.ID)
	if err != nil {
		return Outcome{}, err
	}

	if strings.EqualFold(current, doneColumn) {
		// Done is terminal whatever put the item there; GitHub's own
		// automation moves closed items and must never be contested.
		return Outcome{Reason: "column Done is terminal"}, nil
	}
	if current != "" && strings.EqualFold(current, target) {
		return Outcome{Reason: "column already " + current}, nil
	}

	optionID, err := r.acc.ColumnOptionID(ctx, r.projectID, target)
	if err != nil {
		return Outcome{}, err
	}

	if err := r.acc.SetColumn(ctx, r.projectID, board.ID, optionID); err != nil {
		return Outcome{}, fmt.Errorf("set column of %s: %w", item.Ref(), err)
	}

	r.verify.Record(VerifyEntry{
		ItemRef: item.Ref(),
		Step:    "set_column",
		Attempt: 1,
		Before:  &StateSnapshot{OnBoard: true, ItemID: board.ID, Column: current},
		After:   &StateSnapshot{OnBoard: true, ItemID: board.ID, Column: target},
	})

	board.Column = target
	r.log.Debug("set column", "item", item.Ref(), "column", target)
	return Outcome{Changed: true, Reason: "set column to " + target}, nil
}

// applySetSprint assigns the current iteration. A Done item with any
// sprint keeps it forever; other items are a no-op when they already
// carry the current iteration.
func (r *Reconciler) applySetSprint(ctx context.Context, item domain.Item, board *domain.ProjectItem) (Outcome, error) {
	if board == nil {
		return Outcome{Reason: "not on board"}, nil
	}

	existing, err := r.acc.Sprint(ctx, r.projectID, board.ID)
	if err != nil {
		return Outcome{}, err
	}

	if board.ColumnIs(doneColumn) && existing != nil {
		// Finished work keeps its history even when the current
		// iteration has since advanced.
		return Outcome{Reason: "sprint already set on Done item"}, nil
	}

	current, err := r.CurrentSprint(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil && existing.ID == current.ID {
		return Outcome{Reason: "sprint already current"}, nil
	}

	if err := r.acc.SetSprint(ctx, r.projectID, board.ID, current.ID); err != nil {
		return Outcome{}, fmt.Errorf("set sprint of %s: %w", item.Ref(), err)
	}

	r.verify.Record(VerifyEntry{
		ItemRef: item.Ref(),
		Step:    "set_sprint",
		Attempt: 1,
		Before:  &StateSnapshot{OnBoard: true, ItemID: board.ID, Sprint: existing},
		After:   &StateSnapshot{OnBoard: true, ItemID: board.ID, Sprint: &current},
	})

	board.Sprint = &domain.Sprint{ID: current.ID, Title: current.Title}
	r.log.Debug("set sprint", "item", item.Ref(), "sprint", current.Title)
	return Outcome{Changed: true, Reason: "set sprint to " + current.Title}, nil
}

// applySetAssignee defaults the assignee to the PR author when nobody is
// assigned yet. It never removes existing assignees.
func (r *Reconciler) applySetAssignee(ctx context.Context, item domain.Item, board *domain.ProjectItem) (Outcome, error) {
	if board == nil {
		return Outcome{Reason: "not on board"}, nil
	}

	assignees, err := r.acc.Assignees(ctx, r.projectID, board.ID)
	if err != nil {
		return Outcome{}, err
	}
	if len(assignees) > 0 {
		return Outcome{Reason: "assignees already set"}, nil
	}
	if !item.IsPR() || item.Author == "" {
		return Outcome{Reason: "no author to default to"}, nil
	}

	if err := r.acc.SetAssignees(ctx, item.NodeID, []string{item.Author}); err != nil {
		return Outcome{}, fmt.Errorf("set assignee of %s: %w", item.Ref(), err)
	}

	r.verify.Record(VerifyEntry{
		ItemRef: item.Ref(),
		Step:    "set_assignee",
		Attempt: 1,
		Before:  &StateSnapshot{OnBoard: true, ItemID: board.ID},
		After:   &StateSnapshot{OnBoard: true, ItemID: board.ID, Assignees: []string{item.Author}},
	})

	board.Assignees = []string{item.Author}
	r.log.Debug("assigned author", "item", item.Ref(), "assignee", item.Author)
	return Outcome{Changed: true, Reason: "assigned author " + item.Author}, nil
}
