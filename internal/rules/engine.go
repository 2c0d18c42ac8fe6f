package rules

import (
	"errors"
	"fmt"

	"github.com/robby/boardsync/internal/domain"
)

// ActionKind is the closed vocabulary of mutations a rule may request.
type ActionKind string

const (
	AddToBoard       ActionKind = "add_to_board"
	SetColumn        ActionKind = "set_column"
	SetSprint        ActionKind = "set_sprint"
	SetAssignee      ActionKind = "set_assignee"
	InheritColumn    ActionKind = "inherit_column"
	InheritAssignees ActionKind = "inherit_assignees"
)

// Action is one requested mutation with its typed parameter. Value is a
// column name for set_column, the literal "current" for set_sprint, and
// the literal "author" for set_assignee.
type Action struct {
	Kind  ActionKind `yaml:"kind"`
	Value string     `yaml:"value,omitempty"`
}

// Group names one of the five fixed rule groups.
type Group string

const (
	GroupBoardItems   Group = "board_items"
	GroupColumns      Group = "columns"
	GroupSprints      Group = "sprints"
	GroupAssignees    Group = "assignees"
	GroupLinkedIssues Group = "linked_issues"
)

// GroupOrder is the fixed evaluation order. Later groups read state that
// earlier groups may have just established (a column rule needs the item
// on the board; a sprint rule needs the column), so this order never
// changes.
var GroupOrder = []Group{
	GroupBoardItems,
	GroupColumns,
	GroupSprints,
	GroupAssignees,
	GroupLinkedIssues,
}

// Rule is one declarative unit: when Trigger holds (and SkipIf does not),
// every listed action is requested.
type Rule struct {
	Name      string
	AppliesTo []domain.ItemKind
	Trigger   Predicate
	SkipIf    *Predicate
	Actions   []Action
}

// appliesTo reports whether the rule's kind filter includes kind. An
// empty filter applies to every kind.
func (r Rule) appliesTo(kind domain.ItemKind) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}
	for _, k := range r.AppliesTo {
		if k == kind {
			return true
		}
	}
	return false
}

// Request is one action to apply, tagged with the rule that produced it
// so the run summary can say why a mutation happened.
type Request struct {
	Action   Action
	RuleName string
}

// EvaluateGroup runs every rule of one group against a facts snapshot, in
// declaration order, and returns the requested actions.
//
// Semantics, in order, per rule:
//  1. the kind filter excludes the item -> rule skipped
//  2. skip_if present and true -> rule skipped (skip wins over trigger)
//  3. trigger true -> one Request per listed action
//
// All matching rules contribute; duplicates are possible here and are
// deduplicated by the caller right before apply, never suppressed during
// evaluation. A predicate error disables that rule only; the remaining
// rules still run and the joined errors are returned alongside the
// requests.
func EvaluateGroup(group []Rule, f Facts) ([]Request, error) {
	var requests []Request
	var errs []error

	for _, rule := range group {
		if !rule.appliesTo(f.Item.Kind) {
			continue
		}

		if rule.SkipIf != nil {
			skip, err := Evaluate(*rule.SkipIf, f)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %q skip condition: %w", rule.Name, err))
				continue
			}
			if skip {
				continue
			}
		}

		matched, err := Evaluate(rule.Trigger, f)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q trigger: %w", rule.Name, err))
			continue
		}
		if !matched {
			continue
		}

		for _, action := range rule.Actions {
			requests = append(requests, Request{Action: action, RuleName: rule.Name})
		}
	}

	return requests, errors.Join(errs...)
}

// EvaluateLinkedGroup evaluates the linked_issues group for one
// PR/linked-issue pair. A linked rule's kind filter and trigger describe
// the pull request, so they run against prFacts; its skip condition
// describes the pair (the issue's state relative to the PR's) and runs
// against pairFacts, whose Parent carries the PR's resolved column and
// assignees. Skip still wins over trigger.
func EvaluateLinkedGroup(group []Rule, prFacts, pairFacts Facts) ([]Request, error) {
	var requests []Request
	var errs []error

	for _, rule := range group {
		if !rule.appliesTo(prFacts.Item.Kind) {
			continue
		}

		if rule.SkipIf != nil {
			skip, err := Evaluate(*rule.SkipIf, pairFacts)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %q skip condition: %w", rule.Name, err))
				continue
			}
			if skip {
				continue
			}
		}

		matched, err := Evaluate(rule.Trigger, prFacts)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q trigger: %w", rule.Name, err))
			continue
		}
		if !matched {
			continue
		}

		for _, action := range rule.Actions {
			requests = append(requests, Request{Action: action, RuleName: rule.Name})
		}
	}

	return requests, errors.Join(errs...)
}
