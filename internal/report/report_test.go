package report

import (
	"errors"
	"testing"
	"time"

	"github.com/robby/boardsync/internal/reconcile"
	"github.com/stretchr/testify/assert"
)

func TestRender_Counts(t *testing.T) {
	out := Render(reconcile.Summary{
		RunID:    "5b7e5f3a",
		Duration: 1234 * time.Millisecond,
		Examined: 5,
		Added:    1,
		Updated:  2,
		Skipped:  2,
	})

	assert.Contains(t, out, "boardsync run 5b7e5f3a")
	assert.Contains(t, out, "examined 5 item(s)")
	assert.Contains(t, out, "added 1")
	assert.Contains(t, out, "updated 2")
	assert.Contains(t, out, "skipped 2")
	assert.Contains(t, out, "errors 0")
	assert.NotContains(t, out, "warnings")
	assert.NotContains(t, out, "linked issues")
}

func TestRender_ChangedAndFailedItemsListed(t *testing.T) {
	out := Render(reconcile.Summary{
		RunID:    "run",
		Examined: 3,
		Updated:  1,
		Skipped:  1,
		Errors:   1,
		Items: []reconcile.ItemResult{
			{Ref: "acme/widgets#42", Updated: true, Reasons: []string{"Initial PR placement: set column to Active"}},
			{Ref: "acme/widgets#43"},
			{Ref: "acme/widgets#44", Err: errors.New("add acme/widgets#44 to board: boom")},
		},
	})

	assert.Contains(t, out, "✓ acme/widgets#42")
	assert.Contains(t, out, "set column to Active")
	assert.NotContains(t, out, "acme/widgets#43", "unchanged items are counted, not listed")
	assert.Contains(t, out, "✗ acme/widgets#44")
	assert.Contains(t, out, "boom")
}

func TestRender_LinkedLine(t *testing.T) {
	out := Render(reconcile.Summary{
		RunID:           "run",
		LinkedProcessed: 3,
		LinkedErrors:    1,
		Warnings:        2,
		Errors:          1,
	})

	assert.Contains(t, out, "linked issues: 3 synced, 1 failed")
	assert.Contains(t, out, "warnings 2")
	assert.Contains(t, out, "errors 1")
}
