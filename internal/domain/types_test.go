package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItem_Ref(t *testing.T) {
	item := Item{Repository: "acme/widgets", Number: 42}
	assert.Equal(t, "acme/widgets#42", item.Ref())
}

func TestProjectItem_ColumnSet(t *testing.T) {
	assert.False(t, ProjectItem{}.ColumnSet())
	assert.False(t, ProjectItem{Column: "None"}.ColumnSet())
	assert.False(t, ProjectItem{Column: "none"}.ColumnSet())
	assert.True(t, ProjectItem{Column: "Active"}.ColumnSet())
}

func TestProjectItem_ColumnIs(t *testing.T) {
	item := ProjectItem{Column: "ACTIVE"}
	assert.True(t, item.ColumnIs("Active"))
	assert.False(t, item.ColumnIs("Done"))
	// Sentinel column matches nothing, not even itself.
	assert.False(t, ProjectItem{Column: "None"}.ColumnIs("None"))
}

func TestScope_RepoMonitored(t *testing.T) {
	scope := Scope{MonitoredRepos: []string{"acme/widgets", "acme/gadgets"}}
	assert.True(t, scope.RepoMonitored("acme/widgets"))
	assert.False(t, scope.RepoMonitored("acme/other"))
	assert.False(t, Scope{}.RepoMonitored("acme/widgets"))
}

func TestSameLogins(t *testing.T) {
	assert.True(t, SameLogins(nil, nil))
	assert.True(t, SameLogins([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, SameLogins([]string{"a"}, []string{"b"}))
	assert.False(t, SameLogins([]string{"a"}, []string{"a", "b"}))
}
