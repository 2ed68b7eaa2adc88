package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffAllEmitsOneSetPerSettableField(t *testing.T) {
	schema := personSchema()
	nickname := "bo"
	person := &Person{
		ID:          "p1",
		Name:        "ann",
		Age:         40,
		Balance:     decimal.RequireFromString("10.50"),
		Sex:         SexFemale,
		Tier:        TierGold,
		AddressList: []string{"a", "b"},
		Home:        Address{City: "Porto"},
		Nickname:    &nickname,
	}

	set, err := NewDiffer(schema).DiffAll(person)
	require.NoError(t, err)

	settableList := schema.SettableFields()
	require.Len(t, set, len(settableList))
	assert.Empty(t, set.DuplicatePaths())
	assert.NotContains(t, set.Paths(), "_id")

	for index, field := range settableList {
		operation := set[index]
		assert.Equal(t, UpdateSet, operation.Kind)
		assert.Equal(t, field.DatabaseColumnName, operation.Path)

		want, err := Coerce(field.valueIn(reflectValue(person)).Interface(), field.Type, field.DatabaseColumnName)
		require.NoError(t, err)
		assert.Equal(t, want, operation.Value, field.DatabaseColumnName)
	}

	assert.Equal(t, []string{
		"name", "age", "score", "balance", "sex", "tier",
		"address_list", "son", "home", "avatar", "nickname",
	}, set.Paths())
}

func TestDiffAllSpecificValues(t *testing.T) {
	set, err := NewDiffer(personSchema()).DiffAll(&Person{
		Balance: decimal.RequireFromString("12.345"),
		Sex:     SexMale,
	})
	require.NoError(t, err)

	byPath := make(map[string]any, len(set))
	for _, operation := range set {
		byPath[operation.Path] = operation.Value
	}
	assert.Equal(t, "12.345", byPath["balance"])
	assert.Equal(t, int64(2), byPath["sex"])
	assert.Nil(t, byPath["son"])
	assert.Nil(t, byPath["address_list"])
	assert.Nil(t, byPath["nickname"])
}

func TestDiffAllNilEntity(t *testing.T) {
	_, err := NewDiffer(personSchema()).DiffAll(nil)
	assert.ErrorIs(t, err, ErrNilEntity)
}

func TestDiffAllAbortsOnUnsupportedField(t *testing.T) {
	type Broken struct {
		ID       string `db:"_id"`
		Name     string
		Callback func()
	}
	set, err := NewDiffer(Schema[Broken](Table[Broken]("broken"))).DiffAll(&Broken{Name: "x"})
	var valueErr *UnsupportedValueTypeError
	require.ErrorAs(t, err, &valueErr)
	assert.Equal(t, "Callback", valueErr.Field)
	assert.Nil(t, set)
}

func TestDiffAllRejectsSelfReferencingEntity(t *testing.T) {
	person := &Person{ID: "p1", Name: "ann"}
	person.Son = person

	set, err := NewDiffer(personSchema()).DiffAll(person)
	var valueErr *UnsupportedValueTypeError
	require.ErrorAs(t, err, &valueErr)
	assert.True(t, valueErr.Cyclic)
	assert.Equal(t, "son.son", valueErr.Field)
	assert.Nil(t, set)
}
