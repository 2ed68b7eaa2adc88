package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compilePerson(t *testing.T, patch *Patch[Person], options ...CompilerOption) (UpdateOperationSet, error) {
	t.Helper()
	return NewCompiler(personSchema(), options...).Compile(patch)
}

func assertOperations(t *testing.T, want UpdateOperationSet, got UpdateOperationSet) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("operation set mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileIncrement(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		Assign(func(p *Person) *int { return &p.Age }, Inc(2)),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Increment("age", int64(2))}, set)
}

func TestCompileDecrementFlipsSign(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		Assign(func(p *Person) *int { return &p.Age }, Dec(3)),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Increment("age", int64(-3))}, set)
}

func TestCompileFloatAndDecimalDeltas(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("Score", Dec(0.5)),
		AssignField("balance", Inc(decimal.RequireFromString("12.345"))),
		AssignField("Balance", Dec("0.005")),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		Increment("score", -0.5),
		Increment("balance", "12.345"),
		Increment("balance", "-0.005"),
	}, set)
}

func TestCompileEnumAssignmentUsesOrdinal(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		Assign(func(p *Person) *Sex { return &p.Sex }, Lit(SexMale)),
		Assign(func(p *Person) *Tier { return &p.Tier }, Lit(TierGold)),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		Set("sex", int64(2)),
		Set("tier", int64(2)),
	}, set)
}

func TestCompileListLiteralIsOrderedSequence(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("AddressList", List("b", "a", "b")),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Set("address_list", []any{"b", "a", "b"})}, set)
}

func TestCompileNestedObjectIsSingleSet(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("Son", Obj(
			AssignField("Age", Lit(3)),
			AssignField("Name", Lit("x")),
		)),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		Set("son", Document{{Key: "age", Value: int64(3)}, {Key: "name", Value: "x"}}),
	}, set)
}

func TestCompileNestedObjectWithSelectors(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		Assign(func(p *Person) *Address { return &p.Home }, Obj(
			Assign(func(a *Address) *string { return &a.City }, Lit("Lisbon")),
		)),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		Set("home", Document{{Key: "city", Value: "Lisbon"}}),
	}, set)
}

func TestCompileStructLiteralBecomesDocument(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("home", Lit(Address{Street: "Main", City: "Porto"})),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		Set("home", Document{{Key: "street", Value: "Main"}, {Key: "city", Value: "Porto"}}),
	}, set)
}

func TestCompileUnsupportedDeltaEmitsNothing(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("Age", Inc(1)),
		AssignField("Name", Dec(1)),
	))
	var deltaErr *UnsupportedDeltaTypeError
	require.ErrorAs(t, err, &deltaErr)
	assert.Equal(t, "name", deltaErr.Field)
	assert.Nil(t, set)
}

func TestCompileDeltaOnEnumIsRejected(t *testing.T) {
	_, err := compilePerson(t, NewPatch[Person](AssignField("Tier", Inc(1))))
	var deltaErr *UnsupportedDeltaTypeError
	assert.ErrorAs(t, err, &deltaErr)
}

func TestCompileReadSources(t *testing.T) {
	old := &Person{Name: "ann", Age: 40}
	patch := NewPatch[Person](
		AssignField("Nickname", ReadOld("name")),
		AssignField("Age", ReadExpr("old.Age + bonus")),
		AssignField("Name", ReadVar("name")),
		AssignField("AddressList", ReadValue([]string{"x"})),
		AssignField("Score", ReadFunc(func(env Env) (any, error) { return 9.5, nil })),
	).WithOld(old).WithVar("bonus", 2).WithVar("name", "bea")

	set, err := compilePerson(t, patch)
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		Set("nickname", "ann"),
		Set("age", int64(42)),
		Set("name", "bea"),
		Set("address_list", []any{"x"}),
		Set("score", 9.5),
	}, set)
}

func TestCompileReadFailureIsEvaluationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := compilePerson(t, NewPatch[Person](
		AssignField("Name", ReadFunc(func(Env) (any, error) { return nil, boom })),
	))
	var evaluationErr *EvaluationError
	require.ErrorAs(t, err, &evaluationErr)
	assert.Equal(t, "func", evaluationErr.Source)
	assert.ErrorIs(t, err, boom)

	_, err = compilePerson(t, NewPatch[Person](AssignField("Name", ReadVar("missing"))))
	assert.ErrorAs(t, err, &evaluationErr)
}

func TestCompileRejectsBadTargets(t *testing.T) {
	testCases := []struct {
		name    string
		binding Binding
	}{
		{name: "identity", binding: AssignField("ID", Lit("x"))},
		{name: "identity by selector", binding: Assign(func(p *Person) *string { return &p.ID }, Lit("x"))},
		{name: "anonymous", binding: AssignField("", Lit("x"))},
		{name: "nil target", binding: Binding{Value: Lit("x")}},
		{name: "unknown", binding: AssignField("nope", Lit("x"))},
		{name: "ignored field", binding: AssignField("Internal", Lit("x"))},
		{name: "computed", binding: Assign(func(p *Person) *int { value := p.Age + 1; return &value }, Lit(1))},
		{name: "nested member", binding: Assign(func(p *Person) *string { return &p.Home.Street }, Lit("x"))},
		{name: "foreign type", binding: Assign(func(a *Address) *string { return &a.City }, Lit("x"))},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			set, err := compilePerson(t, NewPatch[Person](testCase.binding))
			var targetErr *UnsupportedTargetError
			assert.ErrorAs(t, err, &targetErr)
			assert.Nil(t, set)
		})
	}
}

func TestCompileTypeMismatch(t *testing.T) {
	for name, value := range map[string]any{
		"string into int":     "x",
		"fraction into int":   2.5,
		"overflowing integer": uint64(1 << 63),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := compilePerson(t, NewPatch[Person](AssignField("Age", Lit(value))))
			var mismatchErr *TypeMismatchError
			assert.ErrorAs(t, err, &mismatchErr)
		})
	}
}

func TestCompileConvertsIntegralNumbers(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("Age", Lit(3.0)),
		AssignField("Score", Lit(int8(4))),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Set("age", int64(3)), Set("score", 4.0)}, set)
}

func TestCompileListOperators(t *testing.T) {
	cases := []struct {
		name string
		node *ListOp
		want UpdateOperation
	}{
		{"push", Push("a"), UpdateOperation{Kind: UpdateListAppend, Path: "address_list", Value: "a"}},
		{"pull", Pull("b"), UpdateOperation{Kind: UpdateListRemove, Path: "address_list", Value: "b"}},
		{"add to set", AddToSet(ReadVar("c")), UpdateOperation{Kind: UpdateListAddUnique, Path: "address_list", Value: "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := compilePerson(t, NewPatch[Person](AssignField("AddressList", tc.node)).WithVar("c", "c"))
			require.NoError(t, err)
			assertOperations(t, UpdateOperationSet{tc.want}, set)
		})
	}

	_, err := compilePerson(t, NewPatch[Person](AssignField("Name", Push("a"))))
	var listErr *UnsupportedListTypeError
	assert.ErrorAs(t, err, &listErr)

	_, err = compilePerson(t, NewPatch[Person](AssignField("Avatar", Push(byte(1)))))
	assert.ErrorAs(t, err, &listErr, "byte slices are binary values, not lists")
}

func TestCompileKeepsEverySameKindListOperation(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("AddressList", Push("a")),
		AssignField("Name", Lit("bob")),
		AssignField("AddressList", Push("b")),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{
		{Kind: UpdateListAppend, Path: "address_list", Value: "a"},
		Set("name", "bob"),
		{Kind: UpdateListAppend, Path: "address_list", Value: "b"},
	}, set)
	assertOperations(t, UpdateOperationSet{
		Set("name", "bob"),
		{Kind: UpdateListAppend, Path: "address_list", Value: Elements{"a", "b"}},
	}, set.Collapse())
}

func TestCompileRejectsMixedOperationsOnAListPath(t *testing.T) {
	cases := map[string]*Patch[Person]{
		"push then pull": NewPatch[Person](
			AssignField("AddressList", Push("a")),
			AssignField("AddressList", Pull("a")),
		),
		"set then push": NewPatch[Person](
			AssignField("AddressList", List("a")),
			AssignField("AddressList", Push("b")),
		),
		"add to set then set": NewPatch[Person](
			AssignField("AddressList", AddToSet("a")),
			AssignField("AddressList", List("b")),
		),
	}
	for name, patch := range cases {
		t.Run(name, func(t *testing.T) {
			set, err := compilePerson(t, patch)
			var duplicateErr *DuplicatePathError
			require.ErrorAs(t, err, &duplicateErr)
			assert.Equal(t, "address_list", duplicateErr.Path)
			assert.Nil(t, set)
		})
	}
}

func TestCompileDuplicatePaths(t *testing.T) {
	patch := NewPatch[Person](
		AssignField("Name", Lit("a")),
		AssignField("name", Lit("b")),
	)

	set, err := compilePerson(t, patch)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, set.DuplicatePaths())
	assertOperations(t, UpdateOperationSet{Set("name", "b")}, set.Collapse())

	_, err = compilePerson(t, patch, StrictPaths())
	var duplicateErr *DuplicatePathError
	require.ErrorAs(t, err, &duplicateErr)
	assert.Equal(t, "name", duplicateErr.Path)
}

func TestCompileEmptyPatch(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person]())
	require.NoError(t, err)
	assert.Empty(t, set)

	set, err = compilePerson(t, nil)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestCompileNilValues(t *testing.T) {
	set, err := compilePerson(t, NewPatch[Person](
		AssignField("Nickname", Lit(nil)),
		AssignField("Son", Lit((*Person)(nil))),
	))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Set("nickname", nil), Set("son", nil)}, set)
}

func TestCompileRejectsNilForValueFields(t *testing.T) {
	cases := map[string]Binding{
		"int":           AssignField("Age", Lit(nil)),
		"string":        AssignField("Name", ReadValue(nil)),
		"typed nil":     AssignField("Name", Lit((*string)(nil))),
		"decimal":       AssignField("Balance", Lit(nil)),
		"struct":        AssignField("Home", Lit(nil)),
		"list element":  AssignField("AddressList", Push(nil)),
		"nested member": AssignField("Home", Obj(AssignField("City", Lit(nil)))),
		"decimal delta": AssignField("Balance", Inc(nil)),
	}
	for name, binding := range cases {
		t.Run(name, func(t *testing.T) {
			set, err := compilePerson(t, NewPatch[Person](binding))
			var mismatchErr *TypeMismatchError
			require.ErrorAs(t, err, &mismatchErr)
			assert.Nil(t, set)
		})
	}
}

func TestResolvePath(t *testing.T) {
	compiler := NewCompiler(personSchema())

	path, err := compiler.ResolvePath(Assign(func(p *Person) *[]string { return &p.AddressList }, nil))
	require.NoError(t, err)
	assert.Equal(t, "address_list", path)

	path, err = compiler.ResolvePath(AssignField("Home", nil))
	require.NoError(t, err)
	assert.Equal(t, "home", path)
}

func TestCompileHonoursSchemaTagKey(t *testing.T) {
	type Tagged struct {
		ID   string `bson:"_id"`
		Name string `bson:"full_name"`
	}
	schema := Schema[Tagged](TagKey[Tagged]("bson"), Table[Tagged]("tagged"))
	set, err := NewCompiler(schema).Compile(NewPatch[Tagged](AssignField("Name", Lit("x"))))
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Set("full_name", "x")}, set)
}

func TestReadOldUsesSchemaTagKey(t *testing.T) {
	type Tagged struct {
		ID    string `bson:"_id"`
		Name  string `bson:"full_name"`
		Alias string `bson:"alias"`
	}
	schema := Schema[Tagged](TagKey[Tagged]("bson"), Table[Tagged]("tagged"))
	patch := NewPatch[Tagged](AssignField("alias", ReadOld("full_name"))).
		WithOld(&Tagged{ID: "t1", Name: "Ann Lee"})

	set, err := NewCompiler(schema).Compile(patch)
	require.NoError(t, err)
	assertOperations(t, UpdateOperationSet{Set("alias", "Ann Lee")}, set)
}
