// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the update model shared by the patch compiler, the
// snapshot differ and the drivers: an ordered set of field-level operations.
package core

import (
	"fmt"
	"reflect"
)

// UpdateKind identifies the server-side operator applied by an UpdateOperation.
type UpdateKind string

const (
	// Field overwrite
	updateSet UpdateKind = "SET"
	// Numeric delta applied server-side
	updateIncrement UpdateKind = "INC"
	// Append one element to a list field
	updateListAppend UpdateKind = "PUSH"
	// Remove every element equal to the value from a list field
	updateListRemove UpdateKind = "PULL"
	// Append one element to a list field unless already present
	updateListAddUnique UpdateKind = "ADD_TO_SET"
)

// Public update kind aliases, mirroring the Operator aliases used by conditions.
var (
	UpdateSet           = updateSet
	UpdateIncrement     = updateIncrement
	UpdateListAppend    = updateListAppend
	UpdateListRemove    = updateListRemove
	UpdateListAddUnique = updateListAddUnique
)

// UpdateOperation is one atomic field-level change destined for a document store.
//
// Value always holds a coerced (wire-safe) value, see Coerce. For
// UpdateIncrement it is the signed delta; for the list kinds it is the
// single element appended, removed or added, or Elements once Collapse has
// merged several list operations on the same path.
type UpdateOperation struct {
	Kind  UpdateKind
	Path  string
	Value any
}

// String renders the operation for logs and test failures.
func (operation UpdateOperation) String() string {
	return fmt.Sprintf("%s(%s, %v)", operation.Kind, operation.Path, operation.Value)
}

// IsList reports whether the kind appends to, removes from or adds to a list.
func (kind UpdateKind) IsList() bool {
	switch kind {
	case UpdateListAppend, UpdateListRemove, UpdateListAddUnique:
		return true
	}
	return false
}

// Elements is the value of a list operation merged by Collapse, in binding
// order.
type Elements []any

// Set builds an UpdateSet operation.
func Set(path string, value any) UpdateOperation {
	return UpdateOperation{Kind: UpdateSet, Path: path, Value: value}
}

// Increment builds an UpdateIncrement operation.
func Increment(path string, delta any) UpdateOperation {
	return UpdateOperation{Kind: UpdateIncrement, Path: path, Value: delta}
}

// UpdateOperationSet is an ordered sequence of update operations.
//
// Ordering is the insertion order of the fields encountered. Duplicate paths
// are allowed; the accepted semantics is last-write-wins, resolved at apply
// time by Collapse.
type UpdateOperationSet []UpdateOperation

// Add appends an operation and returns the extended set.
func (set UpdateOperationSet) Add(operation UpdateOperation) UpdateOperationSet {
	return append(set, operation)
}

// Paths lists the path of every operation, in order, duplicates included.
func (set UpdateOperationSet) Paths() []string {
	pathList := make([]string, 0, len(set))
	for _, operation := range set {
		pathList = append(pathList, operation.Path)
	}
	return pathList
}

// DuplicatePaths returns the paths that appear more than once, in order of
// their second appearance.
func (set UpdateOperationSet) DuplicatePaths() []string {
	seen := make(map[string]int, len(set))
	var duplicateList []string
	for _, operation := range set {
		seen[operation.Path]++
		if seen[operation.Path] == 2 {
			duplicateList = append(duplicateList, operation.Path)
		}
	}
	return duplicateList
}

// Collapse resolves duplicate paths with last-write-wins.
//
// Only the last operation for each path is kept, and it keeps the position of
// that last occurrence. List operations are not overwrites: when the last
// operations of a path are list operations of the same kind, they merge into
// one operation whose Value is Elements. Merged ADD_TO_SET elements keep the
// first of equal values. A set without duplicates is returned as a copy in
// the same order.
func (set UpdateOperationSet) Collapse() UpdateOperationSet {
	lastIndex := make(map[string]int, len(set))
	for index, operation := range set {
		lastIndex[operation.Path] = index
	}
	collapsed := make(UpdateOperationSet, 0, len(lastIndex))
	for index, operation := range set {
		if lastIndex[operation.Path] != index {
			continue
		}
		if operation.Kind.IsList() {
			operation = set.mergeList(index)
		}
		collapsed = append(collapsed, operation)
	}
	return collapsed
}

// mergeList merges the run of list operations of the same kind and path
// ending at last. A run of one is returned unchanged.
func (set UpdateOperationSet) mergeList(last int) UpdateOperation {
	operation := set[last]
	var run []any
	for index := last; index >= 0; index-- {
		previous := set[index]
		if previous.Path != operation.Path {
			continue
		}
		if previous.Kind != operation.Kind {
			break
		}
		run = append(run, previous.Value)
	}
	if len(run) == 1 {
		return operation
	}

	elements := make(Elements, 0, len(run))
	for index := len(run) - 1; index >= 0; index-- {
		if operation.Kind == UpdateListAddUnique && containsValue(elements, run[index]) {
			continue
		}
		elements = append(elements, run[index])
	}
	operation.Value = elements
	return operation
}

func containsValue(list []any, value any) bool {
	for _, element := range list {
		if reflect.DeepEqual(element, value) {
			return true
		}
	}
	return false
}
