// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// the validator, the repository, both storage backends and the task
// sequencer can all import types without depending on each other.
package types

import (
	"fmt"
	"time"
)

// Gender is the enumerated gender of a Person.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Person represents a person record in the collection.
//
// Struct tags:
//
//  1. db:"..."       column name in the SQLite backend (used by sqlx)
//  2. json:"..."     shape used when a record is logged
//  3. validate:"..." rules checked by go-playground/validator before
//     any write. Optional fields are pointers so "not set" is
//     distinguishable from zero.
//
// The MongoDB backend maps Person onto its own document struct.
type Person struct {
	ID        string    `db:"id"         json:"id,omitempty"`
	Name      string    `db:"name"       json:"name"             validate:"required,min=2"`
	Age       *int      `db:"age"        json:"age,omitempty"    validate:"omitempty,min=0,max=150"`
	Gender    Gender    `db:"gender"     json:"gender,omitempty" validate:"required,oneof=Male Female Other"`
	Salary    *float64  `db:"salary"     json:"salary,omitempty" validate:"omitempty,finite,min=0"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Int returns a pointer to v. Handy for the optional Age field.
func Int(v int) *int { return &v }

// Float returns a pointer to v. Handy for the optional Salary field.
func Float(v float64) *float64 { return &v }

// Field names a queryable Person attribute. The value is the logical name;
// each backend maps it to its own document key or column.
type Field string

const (
	FieldID        Field = "id"
	FieldName      Field = "name"
	FieldAge       Field = "age"
	FieldGender    Field = "gender"
	FieldSalary    Field = "salary"
	FieldCreatedAt Field = "createdAt"
	FieldUpdatedAt Field = "updatedAt"
)

// Valid reports whether f is a known Person field.
func (f Field) Valid() bool {
	switch f {
	case FieldID, FieldName, FieldAge, FieldGender, FieldSalary, FieldCreatedAt, FieldUpdatedAt:
		return true
	}
	return false
}

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Valid reports whether o is a supported operator.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Condition is a single predicate: Field Op Value.
type Condition struct {
	Field Field
	Op    Op
	Value any
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// Filter is a conjunction of conditions. The zero value (nil) matches
// every record.
type Filter []Condition

// Where starts a filter with a single condition.
//
//	types.Where(types.FieldAge, types.OpGte, 25)
func Where(field Field, op Op, value any) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

// And returns a new filter holding the conditions of f followed by more.
// f itself is not modified.
func (f Filter) And(more ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(more))
	out = append(out, f...)
	return append(out, more...)
}

// Validate checks every condition names a known field and operator.
func (f Filter) Validate() error {
	for _, c := range f {
		if !c.Field.Valid() {
			return fmt.Errorf("unknown filter field %q", c.Field)
		}
		if !c.Op.Valid() {
			return fmt.Errorf("unknown filter operator %q on field %q", c.Op, c.Field)
		}
	}
	return nil
}

// Patch is a partial update. Only non-nil fields are applied; everything
// else on the matched records is left untouched (field-merge semantics).
type Patch struct {
	Name   *string  `validate:"omitempty,min=2"`
	Age    *int     `validate:"omitempty,min=0,max=150"`
	Gender *Gender  `validate:"omitempty,oneof=Male Female Other"`
	Salary *float64 `validate:"omitempty,finite,min=0"`

	// UpdatedAt is stamped by the repository, not by callers.
	UpdatedAt time.Time `validate:"-"`
}

// Empty reports whether the patch sets no caller-visible field.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Age == nil && p.Gender == nil && p.Salary == nil
}

// FindOptions shapes a read: ascending sort key, projected fields and a
// result cap. Limit 0 means no cap. An empty Projection returns every
// field; the ID is always returned.
type FindOptions struct {
	Sort       Field
	Projection []Field
	Limit      int64
}

// DeleteResult reports how many records a bulk delete removed.
type DeleteResult struct {
	Deleted int64
}

// UpdateResult reports how many records a bulk update matched and changed.
type UpdateResult struct {
	Matched  int64
	Modified int64
}
