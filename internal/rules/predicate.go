// Package rules implements the declarative sync rule set: the rule-file
// format, the closed predicate vocabulary, and the per-group evaluation
// that turns one item snapshot into an ordered list of actions.
package rules

import (
	"strings"

	"github.com/robby/boardsync/internal/domain"
)

// PredicateKind is the closed vocabulary of conditions a rule may test.
// Predicates are parsed from the rule file into this enum once; nothing
// downstream ever matches on raw condition strings.
type PredicateKind string

const (
	AuthorIsMonitoredUser   PredicateKind = "author_is_monitored_user"
	AssigneeIsMonitoredUser PredicateKind = "assignee_is_monitored_user"
	RepoIsMonitored         PredicateKind = "repo_is_monitored"
	ColumnIsUnset           PredicateKind = "column_is_unset"
	ColumnEquals            PredicateKind = "column_equals"
	ColumnIn                PredicateKind = "column_in"
	SprintIsCurrent         PredicateKind = "sprint_is_current"
	AlreadyInProject        PredicateKind = "already_in_project"
	PRClosedNotMerged       PredicateKind = "pr_closed_not_merged"
	PROpenOrMerged          PredicateKind = "pr_open_or_merged"
	InheritanceSatisfied    PredicateKind = "inheritance_satisfied"
)

// Predicate is one condition with its typed parameters. Value is used by
// column_equals, Values by column_in; both are empty otherwise.
type Predicate struct {
	Kind   PredicateKind
	Value  string
	Values []string
}

// ParentState carries the PR-side state for inheritance predicates: the
// resolved column and assignee set of the pull request whose linked
// issue is being evaluated.
type ParentState struct {
	Column    string
	Assignees []string
}

// Facts is the snapshot a predicate is evaluated against. Board is nil
// until the item has been observed on the project board. Parent is only
// set while evaluating a linked issue against its PR.
type Facts struct {
	Item            domain.Item
	Board           *domain.ProjectItem
	Scope           domain.Scope
	CurrentSprintID string
	Parent          *ParentState
}

// column returns the observed column, or the empty string when the item
// is not on the board or the column is unset.
func (f Facts) column() string {
	if f.Board == nil || !f.Board.ColumnSet() {
		return ""
	}
	return f.Board.Column
}

// assignees returns the board-side assignee set when known, falling back
// to the item snapshot.
func (f Facts) assignees() []string {
	if f.Board != nil {
		return f.Board.Assignees
	}
	return f.Item.Assignees
}

// Evaluate applies one predicate to a facts snapshot. It is deterministic
// and side-effect-free. An unknown predicate kind is a configuration
// error for the owning rule, not for the run.
func Evaluate(p Predicate, f Facts) (bool, error) {
	switch p.Kind {
	case AuthorIsMonitoredUser:
		// No monitored user configured: false, not an error.
		return f.Scope.MonitoredUser != "" && f.Item.Author == f.Scope.MonitoredUser, nil

	case AssigneeIsMonitoredUser:
		return f.Scope.MonitoredUser != "" && f.Item.HasAssignee(f.Scope.MonitoredUser), nil

	case RepoIsMonitored:
		return f.Scope.RepoMonitored(f.Item.Repository), nil

	case ColumnIsUnset:
		return f.column() == "", nil

	case ColumnEquals:
		return strings.EqualFold(f.column(), p.Value) && f.column() != "", nil

	case ColumnIn:
		col := f.column()
		if col == "" {
			return false, nil
		}
		for _, v := range p.Values {
			if strings.EqualFold(col, v) {
				return true, nil
			}
		}
		return false, nil

	case SprintIsCurrent:
		return f.Board != nil && f.Board.Sprint != nil &&
			f.CurrentSprintID != "" && f.Board.Sprint.ID == f.CurrentSprintID, nil

	case AlreadyInProject:
		return f.Board != nil, nil

	case PRClosedNotMerged:
		return f.Item.IsPR() && f.Item.State == domain.StateClosed, nil

	case PROpenOrMerged:
		return f.Item.IsPR() &&
			(f.Item.State == domain.StateOpen || f.Item.State == domain.StateMerged), nil

	case InheritanceSatisfied:
		if f.Parent == nil {
			return false, nil
		}
		if !strings.EqualFold(f.column(), f.Parent.Column) {
			return false, nil
		}
		return domain.SameLogins(f.assignees(), f.Parent.Assignees), nil

	default:
		return false, &ConfigError{
			Code:    ErrCodeUnknownPredicate,
			Message: "unknown predicate kind " + string(p.Kind),
		}
	}
}
