// Package domain defines the normalized domain types for board
// synchronization. These types represent the core concepts independent of
// the GitHub GraphQL API structure.
package domain

import (
	"fmt"
	"strings"
)

// ItemKind identifies the content type of a synchronized item.
type ItemKind string

const (
	KindIssue       ItemKind = "Issue"
	KindPullRequest ItemKind = "PullRequest"
)

// ItemState is the lifecycle state of an Issue or PR. Merged only occurs
// for pull requests; a merged PR reports Merged, not Closed.
type ItemState string

const (
	StateOpen   ItemState = "Open"
	StateClosed ItemState = "Closed"
	StateMerged ItemState = "Merged"
)

// Item is an immutable snapshot of an Issue or PR taken once per sync
// pass. Reconciliation never mutates it; current truth is re-read from
// the board when needed.
type Item struct {
	Kind         ItemKind
	Number       int
	NodeID       string // GitHub content node ID
	Repository   string // nameWithOwner, e.g. "acme/widgets"
	Author       string // login, empty when the author account is gone
	Assignees    []string
	State        ItemState
	Title        string
	LinkedIssues []Item // closing-issue references; PRs only
}

// IsPR reports whether the item is a pull request.
func (i Item) IsPR() bool { return i.Kind == KindPullRequest }

// HasAssignee reports whether login is among the item's assignees.
func (i Item) HasAssignee(login string) bool {
	for _, a := range i.Assignees {
		if a == login {
			return true
		}
	}
	return false
}

// Ref returns a short human identifier, e.g. "acme/widgets#42".
func (i Item) Ref() string {
	return fmt.Sprintf("%s#%d", i.Repository, i.Number)
}

// NoColumn is the sentinel column name reported for items whose Status
// field is unset in some views. Treated the same as an absent column.
const NoColumn = "None"

// Sprint is an iteration field value.
type Sprint struct {
	ID    string // iteration id
	Title string // human title, e.g. "Sprint 12"
}

// ProjectItem is the board-side representation of an Item. Column and
// sprint are the currently observed values; empty column means unset.
type ProjectItem struct {
	ID        string // ProjectV2Item node ID, assigned on first add
	Column    string
	Sprint    *Sprint
	Assignees []string
}

// ColumnIs compares the observed column against name, case-insensitively.
// An unset column never matches.
func (p ProjectItem) ColumnIs(name string) bool {
	return p.ColumnSet() && strings.EqualFold(p.Column, name)
}

// ColumnSet reports whether the item has a real column value, treating
// the NoColumn sentinel as unset.
func (p ProjectItem) ColumnSet() bool {
	return p.Column != "" && !strings.EqualFold(p.Column, NoColumn)
}

// HasAnyAssignee reports whether the board item has at least one assignee.
func (p ProjectItem) HasAnyAssignee() bool { return len(p.Assignees) > 0 }

// Scope is the process-wide monitored context, fixed for the run. An
// empty MonitoredUser disables user-scoped rules.
type Scope struct {
	MonitoredUser  string
	MonitoredRepos []string
	Organization   string
}

// RepoMonitored reports whether fullName is one of the monitored
// repositories.
func (s Scope) RepoMonitored(fullName string) bool {
	for _, r := range s.MonitoredRepos {
		if r == fullName {
			return true
		}
	}
	return false
}

// SameLogins reports whether two assignee sets contain the same logins,
// ignoring order. Duplicates are not expected from the API.
func SameLogins(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, l := range a {
		seen[l] = true
	}
	for _, l := range b {
		if !seen[l] {
			return false
		}
	}
	return true
}
