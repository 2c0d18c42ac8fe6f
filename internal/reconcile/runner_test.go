package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/robby/boardsync/internal/domain"
	"github.com/robby/boardsync/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRulesConfig() *rules.Config {
	return &rules.Config{
		MonitoredUser: "octocat",
		Repos:         []string{"acme/widgets"},
		Groups: map[rules.Group][]rules.Rule{
			rules.GroupBoardItems: {{
				Name:      "Add authored PRs",
				AppliesTo: []domain.ItemKind{domain.KindPullRequest},
				Trigger:   rules.Predicate{Kind: rules.AuthorIsMonitoredUser},
				SkipIf:    &rules.Predicate{Kind: rules.AlreadyInProject},
				Actions:   []rules.Action{{Kind: rules.AddToBoard}},
			}},
			rules.GroupColumns: {{
				Name:      "Initial PR placement",
				AppliesTo: []domain.ItemKind{domain.KindPullRequest},
				Trigger:   rules.Predicate{Kind: rules.ColumnIsUnset},
				Actions:   []rules.Action{{Kind: rules.SetColumn, Value: "Active"}},
			}},
			rules.GroupSprints: {{
				Name:    "Assign current sprint",
				Trigger: rules.Predicate{Kind: rules.ColumnIn, Values: []string{"Next", "Active", "Done"}},
				Actions: []rules.Action{{Kind: rules.SetSprint, Value: "current"}},
			}},
			rules.GroupAssignees: {{
				Name:      "Default to author",
				AppliesTo: []domain.ItemKind{domain.KindPullRequest},
				Trigger:   rules.Predicate{Kind: rules.AuthorIsMonitoredUser},
				Actions:   []rules.Action{{Kind: rules.SetAssignee, Value: "author"}},
			}},
			rules.GroupLinkedIssues: linkedGroup(),
		},
	}
}

func newTestRunner(fake *fakeAccessor, cfg *rules.Config) *Runner {
	return NewRunner(RunnerConfig{
		Accessor:  fake,
		Rules:     cfg,
		Scope:     testScope(),
		ProjectID: "PROJ",
		Sleep:     noSleep,
	})
}

func TestRun_NewAuthoredPR(t *testing.T) {
	// A fresh PR flows through every group in order: onto the board,
	// into Active, into the current sprint, assigned to its author.
	fake := newFakeAccessor()
	runner := newTestRunner(fake, testRulesConfig())

	summary := runner.Run(context.Background(), []domain.Item{testPR()})

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, summary.Examined)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Errors)

	assert.Equal(t, []string{
		"add PR_42",
		"setColumn PVTI_1=Active",
		"setSprint PVTI_1=IT_CURRENT",
		"setAssignees PR_42=octocat",
	}, fake.mutations)

	require.Len(t, summary.Items, 1)
	item := summary.Items[0]
	assert.True(t, item.Added)
	assert.Len(t, item.Reasons, 4)
	assert.Contains(t, item.Reasons[0], "Add authored PRs")
}

func TestRun_SecondRunConverged(t *testing.T) {
	fake := newFakeAccessor()
	cfg := testRulesConfig()

	newTestRunner(fake, cfg).Run(context.Background(), []domain.Item{testPR()})
	written := len(fake.mutations)
	require.Equal(t, 4, written)

	summary := newTestRunner(fake, cfg).Run(context.Background(), []domain.Item{testPR()})

	assert.Equal(t, 0, summary.Added)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, written, len(fake.mutations), "converged run issued mutations")
}

func TestRun_ItemFailureIsIsolated(t *testing.T) {
	fake := newFakeAccessor()
	fake.fail("add", "PR_41", errors.New("boom"))

	bad := testPR()
	bad.Number = 41
	bad.NodeID = "PR_41"

	summary := newTestRunner(fake, testRulesConfig()).Run(context.Background(),
		[]domain.Item{bad, testPR()})

	assert.Equal(t, 2, summary.Examined)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Added)
	require.Len(t, summary.Items, 2)
	assert.Error(t, summary.Items[0].Err)
	assert.NoError(t, summary.Items[1].Err)
	// The good PR still got its full treatment.
	assert.Equal(t, "Active", fake.columns[fake.onBoard["PR_42"]])
}

func TestRun_DuplicateRequestsCollapse(t *testing.T) {
	cfg := testRulesConfig()
	cfg.Groups[rules.GroupColumns] = []rules.Rule{
		{
			Name:    "first placement",
			Trigger: rules.Predicate{Kind: rules.ColumnIsUnset},
			Actions: []rules.Action{{Kind: rules.SetColumn, Value: "Active"}},
		},
		{
			Name:    "second placement",
			Trigger: rules.Predicate{Kind: rules.ColumnIsUnset},
			Actions: []rules.Action{{Kind: rules.SetColumn, Value: "Active"}},
		},
	}

	fake := newFakeAccessor()
	newTestRunner(fake, cfg).Run(context.Background(), []domain.Item{testPR()})

	count := 0
	for _, m := range fake.mutations {
		if m == "setColumn PVTI_1=Active" {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical requests must collapse to one mutation")
}

func TestRun_LinkedIssueCountsRollUp(t *testing.T) {
	fake := newFakeAccessor()

	pr := testPR()
	pr.State = domain.StateMerged
	pr.LinkedIssues = []domain.Item{testIssue(1), testIssue(2)}

	summary := newTestRunner(fake, testRulesConfig()).Run(context.Background(), []domain.Item{pr})

	assert.Equal(t, 2, summary.LinkedProcessed)
	assert.Equal(t, 0, summary.LinkedErrors)
	require.Len(t, summary.Items, 1)
	require.NotNil(t, summary.Items[0].Linked)
	assert.Equal(t, 2, summary.Items[0].Linked.Processed)
}

func TestRun_ConfigWarningsCounted(t *testing.T) {
	cfg := testRulesConfig()
	cfg.Warnings = []error{errors.New(`rule "bad": unknown predicate`)}

	fake := newFakeAccessor()
	summary := newTestRunner(fake, cfg).Run(context.Background(), nil)

	assert.Equal(t, 1, summary.Warnings)
	assert.Equal(t, 0, summary.Examined)
}

func TestRun_UnmonitoredItemSkipped(t *testing.T) {
	fake := newFakeAccessor()

	other := testPR()
	other.Author = "someone-else"
	other.NodeID = "PR_99"
	other.Number = 99

	summary := newTestRunner(fake, testRulesConfig()).Run(context.Background(), []domain.Item{other})

	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, fake.mutations)
}
