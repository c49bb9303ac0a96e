package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the query flow matches exactly one
// of these through errors.Is.
var (
	ErrEmptyTable         = errors.New("table is empty")
	ErrNoQueryableColumns = errors.New("no queryable columns")
	ErrCancelled          = errors.New("query cancelled")
	ErrNameCollision      = errors.New("result name already in use")
	ErrEvaluation         = errors.New("condition evaluation failed")
	ErrStorage            = errors.New("storage failure")
	ErrConcurrency        = errors.New("table is busy")
	ErrInvalidRange       = errors.New("invalid row range")
	ErrInvalidName        = errors.New("invalid name")
	ErrTableNotFound      = errors.New("table not found")
)

// QueryError carries the kind, the operation and the table involved.
type QueryError struct {
	Kind  error
	Op    string
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	msg := e.Op
	if e.Table != "" {
		msg += " " + e.Table
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a QueryError.
func NewError(kind error, op, table string, err error) *QueryError {
	return &QueryError{Kind: kind, Op: op, Table: table, Err: err}
}

// Errorf builds a QueryError whose cause is a formatted message.
func Errorf(kind error, op, table, format string, args ...any) *QueryError {
	return &QueryError{Kind: kind, Op: op, Table: table, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the error kind of err, or nil when err is not classified.
func KindOf(err error) error {
	for _, k := range []error{
		ErrEmptyTable, ErrNoQueryableColumns, ErrCancelled, ErrNameCollision,
		ErrEvaluation, ErrStorage, ErrConcurrency, ErrInvalidRange,
		ErrInvalidName, ErrTableNotFound,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
