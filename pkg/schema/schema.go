// Package schema provides optional payload validation for publishers.
// A validator is a capability: a publisher configured with a schema
// name looks it up in the registry its context owns, and absence of
// any validator is a normal configuration state, not a runtime probe.
package schema

import (
	"fmt"

	"github.com/yanun0323/errors"
)

// Validator checks an outgoing payload before it reaches a ring slot.
type Validator interface {
	Name() string
	Validate(payload []byte) error
}

// FieldType enumerates the primitive field kinds of a fixed record.
type FieldType uint8

const (
	FieldU64 FieldType = iota
	FieldI64
	FieldF64
	FieldU32
	FieldI32
	FieldF32
	FieldBytes
	FieldString
)

// size returns the encoded byte size of a field, 0 when the field
// carries its own fixed capacity.
func (t FieldType) size() uint32 {
	switch t {
	case FieldU64, FieldI64, FieldF64:
		return 8
	case FieldU32, FieldI32, FieldF32:
		return 4
	default:
		return 0
	}
}

// Field describes one fixed-offset field. Size is only consulted for
// FieldBytes and FieldString, which occupy a fixed capacity.
type Field struct {
	Name string
	Type FieldType
	Size uint32
}

// FixedRecord validates that payloads are exactly the packed size of
// its field table. It catches struct-layout drift between writer and
// reader processes before a bad payload lands in shared memory.
type FixedRecord struct {
	name   string
	fields []Field
	total  uint32
}

// NewFixedRecord builds a validator from a field table.
func NewFixedRecord(name string, fields ...Field) (*FixedRecord, error) {
	if name == "" {
		return nil, errors.New("schema name is empty")
	}
	if len(fields) == 0 {
		return nil, errors.New("schema has no fields")
	}
	var total uint32
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.Errorf("schema %s: field name is empty", name)
		}
		size := f.Type.size()
		if size == 0 {
			if f.Size == 0 {
				return nil, errors.Errorf("schema %s: field %s needs an explicit size", name, f.Name)
			}
			size = f.Size
		}
		total += size
	}
	return &FixedRecord{name: name, fields: fields, total: total}, nil
}

// Name returns the registered schema name.
func (r *FixedRecord) Name() string { return r.name }

// TotalSize returns the packed record size in bytes.
func (r *FixedRecord) TotalSize() uint32 { return r.total }

// Validate rejects payloads whose length differs from the record size.
func (r *FixedRecord) Validate(payload []byte) error {
	if uint32(len(payload)) != r.total {
		return fmt.Errorf("schema %s: payload is %d bytes, record is %d", r.name, len(payload), r.total)
	}
	return nil
}
