package core

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var personType = reflect.TypeOf(Person{})

func TestResolveStorageLocationPrecedence(t *testing.T) {
	config := Config{
		DefaultDatabase: "fallback",
		Entities: map[string]Location{
			"Person": {Database: "configured", Collection: "persons"},
			"Note":   {Collection: "notes_from_config"},
		},
	}

	t.Run("schema wins", func(t *testing.T) {
		registry := NewRegistry(config)
		registry.Register(&personSchema().SchemaCore)
		location, err := registry.ResolveStorageLocation(personType)
		require.NoError(t, err)
		assert.Equal(t, Location{Database: "app", Collection: "people"}, location)
	})

	t.Run("config entry fills gaps", func(t *testing.T) {
		registry := NewRegistry(config)
		registry.Register(&Schema[Person]().SchemaCore)
		location, err := registry.ResolveStorageLocation(reflect.TypeOf(&Person{}))
		require.NoError(t, err)
		assert.Equal(t, Location{Database: "configured", Collection: "persons"}, location)
	})

	t.Run("default database", func(t *testing.T) {
		registry := NewRegistry(config)
		location, err := registry.ResolveStorageLocation(reflect.TypeOf(Note{}))
		require.NoError(t, err)
		assert.Equal(t, Location{Database: "fallback", Collection: "notes_from_config"}, location)
	})

	t.Run("missing collection", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(&Schema[Person]().SchemaCore)
		_, err := registry.ResolveStorageLocation(personType)
		var routingErr *MissingRoutingMetadataError
		require.ErrorAs(t, err, &routingErr)
		assert.Equal(t, personType, routingErr.Type)
	})
}

func TestRegistrySettableFields(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.SettableFields(personType)
	var routingErr *MissingRoutingMetadataError
	require.ErrorAs(t, err, &routingErr)

	registry.Register(&personSchema().SchemaCore)
	fieldList, err := registry.SettableFields(personType)
	require.NoError(t, err)
	for _, field := range fieldList {
		assert.False(t, field.IsPrimaryKey)
	}
	assert.Len(t, fieldList, 11)
}

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`
defaultDatabase: app
entities:
  Person:
    collection: people
  Note:
    database: archive
    collection: notes
`))
	require.NoError(t, err)
	assert.Equal(t, "app", config.DefaultDatabase)
	assert.Equal(t, Location{Collection: "people"}, config.Entities["Person"])
	assert.Equal(t, Location{Database: "archive", Collection: "notes"}, config.Entities["Note"])
}

func TestParseConfigEnvironmentOverride(t *testing.T) {
	t.Setenv(DefaultDatabaseEnv, "from_env")
	config, err := ParseConfig([]byte("defaultDatabase: app\n"))
	require.NoError(t, err)
	assert.Equal(t, "from_env", config.DefaultDatabase)
	assert.NotNil(t, config.Entities)
}

func TestParseConfigRejectsInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("entities: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patchwork.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaultDatabase: disk\n"), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "disk", config.DefaultDatabase)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
