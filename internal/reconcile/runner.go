package reconcile

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/robby/boardsync/internal/domain"
	"github.com/robby/boardsync/internal/rules"
)

// RunnerConfig wires a Runner. Uses a struct because the run has too
// many collaborators for positional parameters.
type RunnerConfig struct {
	Accessor    Accessor
	Rules       *rules.Config
	Scope       domain.Scope
	ProjectID   string
	Logger      *slog.Logger
	Retry       Policy
	Sleep       SleepFunc
	SettleDelay time.Duration
}

// Runner drives one sync run: strictly sequential per-item processing
// with failure isolation at item granularity.
type Runner struct {
	rec   *Reconciler
	cfg   *rules.Config
	scope domain.Scope
	log   *slog.Logger
}

// ItemResult is the outcome of one item's reconciliation.
type ItemResult struct {
	Ref      string
	Added    bool
	Updated  bool
	Reasons  []string // one per mutation, "<rule>: <what happened>"
	Linked   *LinkedResult
	Warnings []error // rule-scoped evaluation problems
	Err      error   // item-scoped failure; later actions were not applied
}

// Summary is what one run reports. Added, Updated, and Skipped partition
// the error-free items.
type Summary struct {
	RunID           string
	Duration        time.Duration
	Examined        int
	Added           int
	Updated         int
	Skipped         int
	Errors          int
	Warnings        int
	LinkedProcessed int
	LinkedErrors    int
	Items           []ItemResult
}

// NewRunner creates a Runner and its per-run Reconciler.
func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		rec: New(Config{
			Accessor:    cfg.Accessor,
			ProjectID:   cfg.ProjectID,
			Logger:      log,
			Retry:       cfg.Retry,
			Sleep:       cfg.Sleep,
			SettleDelay: cfg.SettleDelay,
		}),
		cfg:   cfg.Rules,
		scope: cfg.Scope,
		log:   log,
	}
}

// Verify exposes the run's verification log for diagnostics.
func (r *Runner) Verify() *VerifyLog { return r.rec.Verify() }

// Run processes the candidate items in order. An item's failure is
// recorded and the run moves on; only the caller decides whether item
// errors fail the process.
func (r *Runner) Run(ctx context.Context, items []domain.Item) Summary {
	start := time.Now()
	summary := Summary{
		RunID:    uuid.NewString(),
		Examined: len(items),
		Warnings: len(r.cfg.Warnings),
	}

	log := r.log.With("run_id", summary.RunID)
	for _, warn := range r.cfg.Warnings {
		log.Warn("rule configuration", "error", warn)
	}

	for _, item := range items {
		result := r.processItem(ctx, log, item)
		summary.Items = append(summary.Items, result)
		summary.Warnings += len(result.Warnings)

		if result.Linked != nil {
			summary.LinkedProcessed += result.Linked.Processed
			summary.LinkedErrors += result.Linked.Errors
		}

		switch {
		case result.Err != nil:
			log.Error("item failed", "item", result.Ref, "error", result.Err)
			summary.Errors++
		case result.Added:
			summary.Added++
		case result.Updated:
			summary.Updated++
		default:
			summary.Skipped++
		}
	}

	summary.Duration = time.Since(start)
	return summary
}

// groupsInOrder are the rule groups the runner applies directly; the
// linked_issues group runs afterwards through the inheritance engine.
var groupsInOrder = []rules.Group{
	rules.GroupBoardItems,
	rules.GroupColumns,
	rules.GroupSprints,
	rules.GroupAssignees,
}

// processItem applies the full rule set to one item. Once actions begin
// applying, either all of them complete or the item is recorded as
// errored; there is no mid-item cancellation.
func (r *Runner) processItem(ctx context.Context, log *slog.Logger, item domain.Item) ItemResult {
	result := ItemResult{Ref: item.Ref()}

	board, err := r.rec.BoardState(ctx, item)
	if err != nil {
		result.Err = err
		return result
	}

	// A project without a current iteration only matters if a sprint
	// action actually fires; the predicate just never matches.
	currentSprintID := ""
	if sprint, err := r.rec.CurrentSprint(ctx); err == nil {
		currentSprintID = sprint.ID
	}

	for _, group := range groupsInOrder {
		groupRules := r.cfg.Groups[group]
		if len(groupRules) == 0 {
			continue
		}

		facts := rules.Facts{
			Item:            item,
			Board:           board,
			Scope:           r.scope,
			CurrentSprintID: currentSprintID,
		}
		requests, evalErr := rules.EvaluateGroup(groupRules, facts)
		if evalErr != nil {
			result.Warnings = append(result.Warnings, evalErr)
		}

		for _, req := range dedupe(requests) {
			out, newBoard, err := r.rec.Apply(ctx, item, board, req)
			if err != nil {
				result.Err = err
				return result
			}
			board = newBoard

			if !out.Changed {
				log.Debug("no-op", "item", item.Ref(), "rule", req.RuleName, "reason", out.Reason)
				continue
			}
			result.Updated = true
			if req.Action.Kind == rules.AddToBoard {
				result.Added = true
			}
			result.Reasons = append(result.Reasons, req.RuleName+": "+out.Reason)
			log.Info("applied", "item", item.Ref(), "rule", req.RuleName, "reason", out.Reason)
		}
	}

	if item.IsPR() {
		linked := r.rec.ProcessLinkedIssues(ctx, item, board, r.cfg.Groups[rules.GroupLinkedIssues], r.scope)
		result.Linked = &linked
		if linked.Changed {
			result.Updated = true
		}
	}

	return result
}

// dedupe drops repeated (kind, value) action requests, keeping the first
// occurrence. Multiple rules may legitimately request the same mutation;
// the board only needs it once.
func dedupe(requests []rules.Request) []rules.Request {
	seen := make(map[string]bool, len(requests))
	out := requests[:0]
	for _, req := range requests {
		key := string(req.Action.Kind) + "\x00" + req.Action.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, req)
	}
	return out
}
