// Package core provides the fundamental building blocks of the patchwork ORM.
// This file builds the per-type field descriptor tables. A table is derived
// once per (struct type, tag key) and reused by schemas, the patch compiler,
// the snapshot differ and the coercion engine.
package core

import (
	"reflect"
	"strings"
	"sync"
)

// defaultTagKey is the struct tag consulted for storage names when a schema
// does not override it with TagKey.
const defaultTagKey = "db"

type descriptorKey struct {
	structType reflect.Type
	tagKey     string
}

// typeDescriptor lists the mapped fields of a struct type in declaration order.
type typeDescriptor struct {
	structType reflect.Type
	fieldList  []*Field
}

var descriptorCache sync.Map // descriptorKey -> *typeDescriptor

// describeStruct returns the cached descriptor of structType.
//
// Mapped fields are the exported, visible, non-embedded fields reachable
// without crossing an embedded pointer, whose tag is not "-".
func describeStruct(structType reflect.Type, tagKey string) *typeDescriptor {
	if tagKey == "" {
		tagKey = defaultTagKey
	}
	key := descriptorKey{structType: structType, tagKey: tagKey}
	if cached, ok := descriptorCache.Load(key); ok {
		return cached.(*typeDescriptor)
	}

	descriptor := &typeDescriptor{structType: structType}
	for _, sf := range reflect.VisibleFields(structType) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		offset, ok := absoluteOffset(structType, sf.Index)
		if !ok {
			continue
		}
		columnName := storageName(sf, tagKey)
		if columnName == "-" {
			continue
		}
		descriptor.fieldList = append(descriptor.fieldList, &Field{
			StructFieldName:    sf.Name,
			DatabaseColumnName: columnName,
			Type:               sf.Type,
			MemoryOffset:       offset,
			index:              sf.Index,
		})
	}

	actual, _ := descriptorCache.LoadOrStore(key, descriptor)
	return actual.(*typeDescriptor)
}

// storageName reads the storage name from the tag, ignoring options after a comma.
func storageName(sf reflect.StructField, tagKey string) string {
	tag := sf.Tag.Get(tagKey)
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return sf.Name
}

// absoluteOffset sums offsets along an index path. It fails when the path
// goes through an embedded pointer, whose fields do not live inside the struct.
func absoluteOffset(structType reflect.Type, index []int) (uintptr, bool) {
	var offset uintptr
	current := structType
	for depth, i := range index {
		sf := current.Field(i)
		offset += sf.Offset
		if depth < len(index)-1 {
			if sf.Type.Kind() != reflect.Struct {
				return 0, false
			}
			current = sf.Type
		}
	}
	return offset, true
}

// lookup finds a field by Go name or storage name.
func (descriptor *typeDescriptor) lookup(name string) *Field {
	for _, field := range descriptor.fieldList {
		if field.StructFieldName == name || field.DatabaseColumnName == name {
			return field
		}
	}
	return nil
}

// byPointer resolves a pointer into a value of the described struct back to
// the field it addresses. The pointee type must match, so a pointer to the
// first member of a nested struct is not mistaken for the struct field itself.
func (descriptor *typeDescriptor) byPointer(base uintptr, pointer uintptr, pointee reflect.Type) *Field {
	if pointer < base {
		return nil
	}
	offset := pointer - base
	for _, field := range descriptor.fieldList {
		if field.MemoryOffset == offset && field.Type == pointee {
			return field
		}
	}
	return nil
}
