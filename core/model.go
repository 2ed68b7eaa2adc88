// Package core provides the fundamental building blocks of the patchwork ORM.
// This file defines the Model[T], which represents the entry point for working
// with a specific schema (entity). A Model compiles patches and snapshots into
// update operation sets, routes them to the entity's storage location, and
// handles hooks, soft-deletes, timestamps and event emission.
package core

import (
	"context"
	"errors"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrMissingIdentity is returned by Save when the schema has no identity field.
var ErrMissingIdentity = errors.New("core: schema has no identity field")

// Model represents a repository-like abstraction for a schema T.
//
// It wraps a SchemaMeta[T] and a Driver, exposing high-level operations such as
// Create, Update, UpdateOne, Save, Delete and Count. Models are generic and
// type-safe, ensuring that all operations are tied to a specific entity type.
type Model[T any] struct {
	schema   *SchemaMeta[T]
	driver   Driver
	registry *Registry
	logger   *zap.Logger
	tenant   string
	compiler *Compiler[T]
	differ   *Differ[T]
}

// modelSettings collects the options of NewModel.
type modelSettings struct {
	registry        *Registry
	logger          *zap.Logger
	compilerOptions []CompilerOption
}

// ModelOption customizes a Model.
type ModelOption func(*modelSettings)

// WithRegistry routes the model through registry instead of DefaultRegistry.
func WithRegistry(registry *Registry) ModelOption {
	return func(settings *modelSettings) { settings.registry = registry }
}

// WithLogger sets the logger used for compiled operation sets.
func WithLogger(logger *zap.Logger) ModelOption {
	return func(settings *modelSettings) { settings.logger = logger }
}

// WithCompilerOptions forwards options to the model's patch compiler.
func WithCompilerOptions(options ...CompilerOption) ModelOption {
	return func(settings *modelSettings) {
		settings.compilerOptions = append(settings.compilerOptions, options...)
	}
}

// NewModel creates a new Model instance bound to a schema and driver.
//
// Example:
//
//	userModel := core.NewModel(userSchema, mongoDriver, core.WithLogger(logger))
func NewModel[T any](schema *SchemaMeta[T], driver Driver, options ...ModelOption) *Model[T] {
	settings := modelSettings{registry: DefaultRegistry(), logger: zap.NewNop()}
	for _, option := range options {
		option(&settings)
	}
	return &Model[T]{
		schema:   schema,
		driver:   driver,
		registry: settings.registry,
		logger:   settings.logger.With(zap.String("entity", schema.Type.Name())),
		compiler: NewCompiler(schema, settings.compilerOptions...),
		differ:   NewDiffer(schema),
	}
}

// WithTenant creates a new Model[T] instance bound to a different database.
//
// The collection is still resolved through the registry. This is useful for
// multi-tenant or sharded architectures.
func (m *Model[T]) WithTenant(database string) *Model[T] {
	clone := *m
	clone.tenant = database
	return &clone
}

// Compiler returns the patch compiler used by Update and UpdateOne.
func (m *Model[T]) Compiler() *Compiler[T] {
	return m.compiler
}

// location resolves the routed schema handed to the driver.
func (m *Model[T]) location() (*SchemaCore, error) {
	routed, err := m.registry.route(&m.schema.SchemaCore)
	if err != nil {
		return nil, err
	}
	if m.tenant != "" {
		routed.Database = m.tenant
	}
	return routed, nil
}

// runPre executes all registered PreHooks for the given operation.
func (m *Model[T]) runPre(hook PreHook, doc *T) error {
	for _, fn := range m.schema.PreHookList[hook] {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// runPost executes all registered PostHooks for the given operation.
func (m *Model[T]) runPost(hook PostHook, doc *T) error {
	for _, fn := range m.schema.PostHookList[hook] {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// checkCondition rejects conditions on columns the schema does not map.
func (m *Model[T]) checkCondition(condition *Condition) error {
	for _, name := range condition.FieldNames() {
		if m.schema.FieldByName(name) == nil {
			return &UnsupportedTargetError{Target: name, Reason: "no field named " + name}
		}
	}
	return nil
}

// withSoftDelete excludes soft-deleted entities from a condition when the
// schema has a deletedAt field.
func (m *Model[T]) withSoftDelete(condition *Condition) *Condition {
	if m.schema.deletedAtField == nil {
		return condition
	}
	return foldConditionsAnd(condition, Where(m.schema.deletedAtField.DatabaseColumnName).Nil())
}

// Create inserts a new entity into the database.
//
// An empty string identity receives a dashless random UUID and a zero
// ObjectID identity a new ObjectID. createdAt and updatedAt fields (if
// defined in the schema) are set. PreInsert hooks run before the insert,
// PostInsert hooks after it, and an EventInsert is emitted.
func (m *Model[T]) Create(ctx context.Context, doc *T) error {
	if doc == nil {
		return ErrNilEntity
	}
	return dispatchOperation(ctx, OperationInsert, doc, func() error {
		now := time.Now()
		value := reflect.ValueOf(doc).Elem()

		if identity := m.schema.IdentityField(); identity != nil {
			assignIdentity(identity.valueIn(value))
		}
		if m.schema.createdAtField != nil {
			setTimeField(m.schema.createdAtField.valueIn(value), now)
		}
		if m.schema.updatedAtField != nil {
			setTimeField(m.schema.updatedAtField.valueIn(value), now)
		}

		if err := m.runPre(PreInsert, doc); err != nil {
			return err
		}
		schema, err := m.location()
		if err != nil {
			return err
		}
		if err := m.driver.Insert(ctx, schema, doc); err != nil {
			return err
		}
		if err := m.runPost(PostInsert, doc); err != nil {
			return err
		}
		snapshot := *doc
		Emit(EventInsert, InsertPayload[T]{Schema: schema, Doc: &snapshot})
		return nil
	})
}

// Update compiles a patch and applies it to every entity matching the
// condition. It returns the number of modified entities.
//
// Example:
//
//	modified, err := userModel.Update(ctx, core.Where("active").Eq(true),
//		core.NewPatch[User](core.Assign(func(u *User) *int { return &u.Logins }, core.Inc(1))))
func (m *Model[T]) Update(ctx context.Context, condition *Condition, patch *Patch[T]) (int64, error) {
	return m.update(ctx, condition, patch, true)
}

// UpdateOne compiles a patch and applies it to at most one entity matching
// the condition.
func (m *Model[T]) UpdateOne(ctx context.Context, condition *Condition, patch *Patch[T]) (int64, error) {
	return m.update(ctx, condition, patch, false)
}

func (m *Model[T]) update(ctx context.Context, condition *Condition, patch *Patch[T], multi bool) (int64, error) {
	operations, err := m.compiler.Compile(patch)
	if err != nil {
		return 0, err
	}
	if len(operations) == 0 {
		return 0, nil
	}
	if m.schema.updatedAtField != nil {
		operations = touch(operations, m.schema.updatedAtField.DatabaseColumnName)
	}
	return m.Apply(ctx, condition, operations, multi)
}

// Apply sends an already built operation set to the driver. An empty set
// never reaches the driver.
func (m *Model[T]) Apply(ctx context.Context, condition *Condition, operations UpdateOperationSet, multi bool) (int64, error) {
	if len(operations) == 0 {
		return 0, nil
	}
	if err := m.checkCondition(condition); err != nil {
		return 0, err
	}
	var modified int64
	err := dispatchOperation(ctx, OperationUpdate, operations, func() error {
		schema, err := m.location()
		if err != nil {
			return err
		}
		m.logger.Debug("applying update",
			zap.String("collection", schema.Collection),
			zap.Bool("multi", multi),
			zap.Stringers("operations", []UpdateOperation(operations)),
		)
		modified, err = m.driver.Update(ctx, schema, condition, operations, multi)
		if err != nil {
			return err
		}
		Emit(EventUpdate, UpdatePayload{
			Schema:     schema,
			Condition:  condition,
			Operations: append(UpdateOperationSet(nil), operations...),
			Modified:   modified,
		})
		return nil
	})
	return modified, err
}

// Save overwrites every settable field of the stored entity with the same
// identity as doc. PreUpdate hooks run before the snapshot is taken and
// PostUpdate hooks after the write. updatedAt (if defined) is refreshed.
func (m *Model[T]) Save(ctx context.Context, doc *T) (int64, error) {
	if doc == nil {
		return 0, ErrNilEntity
	}
	identity := m.schema.IdentityField()
	if identity == nil {
		return 0, ErrMissingIdentity
	}
	if m.schema.updatedAtField != nil {
		setTimeField(m.schema.updatedAtField.valueIn(reflect.ValueOf(doc).Elem()), time.Now())
	}
	if err := m.runPre(PreUpdate, doc); err != nil {
		return 0, err
	}
	operations, err := m.differ.DiffAll(doc)
	if err != nil {
		return 0, err
	}
	key, err := Coerce(identity.valueIn(reflect.ValueOf(doc).Elem()).Interface(), identity.Type, identity.DatabaseColumnName)
	if err != nil {
		return 0, err
	}
	modified, err := m.Apply(ctx, Where(identity.DatabaseColumnName).Eq(key), operations, false)
	if err != nil {
		return 0, err
	}
	return modified, m.runPost(PostUpdate, doc)
}

// Delete removes entities matching a condition.
//
// If soft-delete is enabled (deletedAt field exists), it sets the deletedAt
// timestamp on entities not yet deleted instead of physically removing them.
// Otherwise, it delegates to the driver's Delete. It returns how many
// entities were affected.
func (m *Model[T]) Delete(ctx context.Context, condition *Condition) (int64, error) {
	if err := m.checkCondition(condition); err != nil {
		return 0, err
	}
	if m.schema.deletedAtField != nil {
		operations := UpdateOperationSet{Set(m.schema.deletedAtField.DatabaseColumnName, time.Now().UTC())}
		return m.Apply(ctx, m.withSoftDelete(condition), operations, true)
	}
	var deleted int64
	err := dispatchOperation(ctx, OperationDelete, condition, func() error {
		schema, err := m.location()
		if err != nil {
			return err
		}
		deleted, err = m.driver.Delete(ctx, schema, condition)
		if err != nil {
			return err
		}
		Emit(EventDelete, DeletePayload{Schema: schema, Condition: condition, Deleted: deleted})
		return nil
	})
	return deleted, err
}

// Count returns the number of entities matching the condition.
//
// Soft-deleted entities are excluded automatically.
func (m *Model[T]) Count(ctx context.Context, condition *Condition) (int64, error) {
	if err := m.checkCondition(condition); err != nil {
		return 0, err
	}
	condition = m.withSoftDelete(condition)
	var count int64
	err := dispatchOperation(ctx, OperationCount, condition, func() error {
		schema, err := m.location()
		if err != nil {
			return err
		}
		count, err = m.driver.Count(ctx, schema, condition)
		return err
	})
	return count, err
}

// touch appends SET(path, now) unless the set already assigns path.
func touch(operations UpdateOperationSet, path string) UpdateOperationSet {
	for _, operation := range operations {
		if operation.Path == path {
			return operations
		}
	}
	return operations.Add(Set(path, time.Now().UTC()))
}

// assignIdentity fills an empty string or zero ObjectID identity.
func assignIdentity(field reflect.Value) {
	if !field.CanSet() {
		return
	}
	switch {
	case field.Type() == objectIDType:
		if field.Interface().(primitive.ObjectID).IsZero() {
			field.Set(reflect.ValueOf(primitive.NewObjectID()))
		}
	case field.Kind() == reflect.String:
		if field.String() == "" {
			field.SetString(newIdentity())
		}
	}
}
