package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestUpdateOperationSetKeepsInsertionOrder(t *testing.T) {
	set := UpdateOperationSet{}.
		Add(Increment("age", int64(1))).
		Add(Set("name", "bob")).
		Add(Set("age", int64(7)))

	assert.Equal(t, []string{"age", "name", "age"}, set.Paths())
	assert.Equal(t, []string{"age"}, set.DuplicatePaths())
}

func TestCollapseKeepsLastWritePerPath(t *testing.T) {
	set := UpdateOperationSet{
		Increment("age", int64(1)),
		Set("name", "bob"),
		Set("age", int64(7)),
	}

	want := UpdateOperationSet{Set("name", "bob"), Set("age", int64(7))}
	if diff := cmp.Diff(want, set.Collapse()); diff != "" {
		t.Errorf("Collapse() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, set, 3, "Collapse must not modify the receiver")
}

func TestCollapseMergesListOperations(t *testing.T) {
	set := UpdateOperationSet{
		{Kind: UpdateListAppend, Path: "tags", Value: "a"},
		Set("name", "bob"),
		{Kind: UpdateListAppend, Path: "tags", Value: "b"},
		{Kind: UpdateListAddUnique, Path: "roles", Value: "admin"},
		{Kind: UpdateListAddUnique, Path: "roles", Value: "ops"},
		{Kind: UpdateListAddUnique, Path: "roles", Value: "admin"},
		{Kind: UpdateListRemove, Path: "aliases", Value: "x"},
	}

	want := UpdateOperationSet{
		Set("name", "bob"),
		{Kind: UpdateListAppend, Path: "tags", Value: Elements{"a", "b"}},
		{Kind: UpdateListAddUnique, Path: "roles", Value: Elements{"admin", "ops"}},
		{Kind: UpdateListRemove, Path: "aliases", Value: "x"},
	}
	if diff := cmp.Diff(want, set.Collapse()); diff != "" {
		t.Errorf("Collapse() mismatch (-want +got):\n%s", diff)
	}
}

func TestCollapseMergesOnlyTheTrailingListRun(t *testing.T) {
	set := UpdateOperationSet{
		{Kind: UpdateListAppend, Path: "tags", Value: "a"},
		Set("tags", []any{"z"}),
		{Kind: UpdateListAppend, Path: "tags", Value: "b"},
		{Kind: UpdateListAppend, Path: "tags", Value: "c"},
	}

	want := UpdateOperationSet{{Kind: UpdateListAppend, Path: "tags", Value: Elements{"b", "c"}}}
	assert.Equal(t, want, set.Collapse())
}

func TestCollapseWithoutDuplicatesIsIdentity(t *testing.T) {
	set := UpdateOperationSet{Set("a", int64(1)), Set("b", int64(2))}
	assert.Equal(t, set, set.Collapse())
	assert.Empty(t, set.DuplicatePaths())
}

func TestUpdateOperationString(t *testing.T) {
	assert.Equal(t, "INC(age, -3)", Increment("age", int64(-3)).String())
	assert.Equal(t, "ADD_TO_SET(tags, x)", UpdateOperation{Kind: UpdateListAddUnique, Path: "tags", Value: "x"}.String())
}
