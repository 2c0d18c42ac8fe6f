package reconcile

import (
	"context"
	"fmt"

	"github.com/robby/boardsync/internal/domain"
	"github.com/robby/boardsync/internal/rules"
)

// LinkedResult aggregates one PR's linked-issue processing. Processed
// counts issues brought (or found) in sync; Errors counts issues whose
// mutations failed. One failing issue never aborts its siblings.
type LinkedResult struct {
	Changed   bool
	Processed int
	Errors    int
	Reason    string
}

// reasonClosedNotMerged is the gate reason for PRs that were closed
// without merging; such PRs must not propagate anything.
const reasonClosedNotMerged = "PR is closed but not merged"

// ProcessLinkedIssues propagates column and assignees from a PR to each
// issue its closing references name, subject to the linked_issues rule
// group and the same no-op discipline as every other apply. The PR's
// board state should be the post-reconciliation one so inherited values
// reflect what this run just established.
func (r *Reconciler) ProcessLinkedIssues(ctx context.Context, pr domain.Item, prBoard *domain.ProjectItem, group []rules.Rule, scope domain.Scope) LinkedResult {
	if !pr.IsPR() || len(pr.LinkedIssues) == 0 {
		return LinkedResult{Reason: "no linked issues"}
	}
	if pr.State == domain.StateClosed {
		// Closed-and-unmerged: zero actions and a reason, not an error.
		return LinkedResult{Reason: reasonClosedNotMerged}
	}

	parent := rules.ParentState{Assignees: pr.Assignees}
	if prBoard != nil {
		if prBoard.ColumnSet() {
			parent.Column = prBoard.Column
		}
		parent.Assignees = prBoard.Assignees
	}

	prFacts := rules.Facts{Item: pr, Board: prBoard, Scope: scope}

	var result LinkedResult
	for _, issue := range pr.LinkedIssues {
		changed, err := r.syncLinkedIssue(ctx, issue, group, prFacts, parent, scope)
		if err != nil {
			// Partial-failure isolation: record and keep going with the
			// remaining linked issues.
			r.log.Warn("linked issue sync failed", "pr", pr.Ref(), "issue", issue.Ref(), "error", err)
			result.Errors++
			continue
		}
		result.Processed++
		result.Changed = result.Changed || changed
	}

	if result.Reason == "" {
		result.Reason = fmt.Sprintf("synced %d linked issue(s)", result.Processed)
	}
	return result
}

// syncLinkedIssue reconciles one linked issue against the PR's state.
func (r *Reconciler) syncLinkedIssue(ctx context.Context, issue domain.Item, group []rules.Rule, prFacts rules.Facts, parent rules.ParentState, scope domain.Scope) (bool, error) {
	board, err := r.BoardState(ctx, issue)
	if err != nil {
		return false, err
	}

	pairFacts := rules.Facts{Item: issue, Board: board, Scope: scope, Parent: &parent}
	requests, evalErr := rules.EvaluateLinkedGroup(group, prFacts, pairFacts)
	if evalErr != nil {
		// Rule-scoped config problem; the valid rules still ran.
		r.log.Warn("linked-issue rule evaluation", "issue", issue.Ref(), "error", evalErr)
	}

	changed := false
	for _, req := range requests {
		switch req.Action.Kind {
		case rules.InheritColumn:
			didChange, newBoard, err := r.inheritColumn(ctx, issue, board, parent.Column)
			if err != nil {
				return changed, err
			}
			board = newBoard
			changed = changed || didChange

		case rules.InheritAssignees:
			didChange, err := r.inheritAssignees(ctx, issue, board, parent.Assignees)
			if err != nil {
				return changed, err
			}
			changed = changed || didChange

		default:
			out, newBoard, err := r.Apply(ctx, issue, board, req)
			if err != nil {
				return changed, err
			}
			board = newBoard
			changed = changed || out.Changed
		}
	}

	return changed, nil
}

// inheritColumn moves the linked issue into the PR's column. An issue
// that is not on the board yet is added first; a PR with no resolved
// column propagates nothing.
func (r *Reconciler) inheritColumn(ctx context.Context, issue domain.Item, board *domain.ProjectItem, column string) (bool, *domain.ProjectItem, error) {
	if column == "" {
		return false, board, nil
	}

	changed := false
	if board == nil {
		out, newBoard, err := r.applyAdd(ctx, issue, nil)
		if err != nil {
			return false, nil, err
		}
		board = newBoard
		changed = out.Changed
	}

	out, err := r.applySetColumn(ctx, issue, board, column)
	if err != nil {
		return changed, board, err
	}
	return changed || out.Changed, board, nil
}

// inheritAssignees replaces the linked issue's assignees with the PR's.
// This is the one place the system overwrites existing assignees: the PR
// is authoritative for the issues it closes. A PR with no assignees
// propagates nothing.
func (r *Reconciler) inheritAssignees(ctx context.Context, issue domain.Item, board *domain.ProjectItem, assignees []string) (bool, error) {
	if len(assignees) == 0 {
		return false, nil
	}

	current := issue.Assignees
	if board != nil {
		var err error
		current, err = r.acc.Assignees(ctx, r.projectID, board.ID)
		if err != nil {
			return false, err
		}
	}
	if domain.SameLogins(current, assignees) {
		return false, nil
	}

	if err := r.acc.SetAssignees(ctx, issue.NodeID, assignees); err != nil {
		return false, fmt.Errorf("inherit assignees of %s: %w", issue.Ref(), err)
	}

	r.verify.Record(VerifyEntry{
		ItemRef: issue.Ref(),
		Step:    "inherit_assignees",
		Attempt: 1,
		Before:  &StateSnapshot{OnBoard: board != nil, Assignees: current},
		After:   &StateSnapshot{OnBoard: board != nil, Assignees: assignees},
	})

	if board != nil {
		board.Assignees = assignees
	}
	r.log.Debug("inherited assignees", "issue", issue.Ref(), "assignees", assignees)
	return true, nil
}
